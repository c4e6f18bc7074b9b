package types

import (
	"fmt"

	"github.com/tendermint/tendermint/crypto/ed25519"
)

// TxParams carries the replay-protection envelope of a transaction.
type TxParams struct {
	Nonce   uint32
	ChainID string

	// Transactions roll back entirely on the first failed action unless
	// the submitter opts into best-effort execution of independent
	// actions.
	BestEffort bool
}

// TransactionBody is the signed payload.
type TransactionBody struct {
	Params  TxParams
	Actions []Action
}

// Transaction is one consensus-delivered unit of work: a signature, the
// signing key and the body the signature covers.
type Transaction struct {
	Signature []byte // 64 bytes
	PublicKey []byte // 32 bytes
	Body      TransactionBody
}

// Signer returns the address derived from the transaction's public key.
func (tx Transaction) Signer() Address {
	return AddressFromPubKey(tx.PublicKey)
}

// Verify checks the signature over the canonical body encoding, which the
// caller supplies to keep this package free of codec dependencies.
func (tx Transaction) Verify(bodyBytes []byte) error {
	if len(tx.PublicKey) != ed25519.PubKeySize {
		return fmt.Errorf("%w: public key must be %d bytes", ErrAuth, ed25519.PubKeySize)
	}
	if len(tx.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes", ErrAuth, ed25519.SignatureSize)
	}
	pub := ed25519.PubKey(tx.PublicKey)
	if !pub.VerifySignature(bodyBytes, tx.Signature) {
		return fmt.Errorf("%w: signature verification failed", ErrAuth)
	}
	return nil
}

// ValidateBasic checks the stateless transaction invariants.
func (tx Transaction) ValidateBasic() error {
	if len(tx.Body.Actions) == 0 {
		return fmt.Errorf("%w: transaction carries no actions", ErrDecode)
	}
	if tx.Body.Params.ChainID == "" {
		return fmt.Errorf("%w: empty chain id", ErrDecode)
	}
	for i, a := range tx.Body.Actions {
		if err := a.ValidateBasic(); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Tag(), err)
		}
	}
	return nil
}
