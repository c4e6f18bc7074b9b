package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/tendermint/tendermint/crypto/tmhash"
)

// AddressSize is the length of the raw address payload, the truncated
// SHA-256 of the account's ed25519 public key.
const AddressSize = 20

// Address is an account identifier. The canonical text rendering is
// bech32m with the chain-configured human readable prefix.
type Address [AddressSize]byte

// AddressFromPubKey derives the address owning pubKey.
func AddressFromPubKey(pubKey []byte) Address {
	var addr Address
	copy(addr[:], tmhash.SumTruncated(pubKey))
	return addr
}

// AddressFromBytes converts a raw 20-byte slice into an Address.
func AddressFromBytes(bz []byte) (Address, error) {
	var addr Address
	if len(bz) != AddressSize {
		return addr, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(bz))
	}
	copy(addr[:], bz)
	return addr, nil
}

// Bech32m renders addr with the given prefix.
func (a Address) Bech32m(prefix string) (string, error) {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(prefix, conv)
}

// AddressFromBech32m parses a bech32m string and verifies the prefix.
func AddressFromBech32m(s, prefix string) (Address, error) {
	var addr Address
	hrp, data, version, err := bech32.DecodeGeneric(s)
	if err != nil {
		return addr, fmt.Errorf("decoding bech32m address: %w", err)
	}
	if version != bech32.VersionM {
		return addr, errors.New("address must use the bech32m checksum")
	}
	if hrp != prefix {
		return addr, fmt.Errorf("address prefix %q does not match configured prefix %q", hrp, prefix)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return addr, err
	}
	return AddressFromBytes(raw)
}

// Equal reports a == b.
func (a Address) Equal(b Address) bool {
	return bytes.Equal(a[:], b[:])
}

// String renders the raw bytes in hex. Use Bech32m for user-facing output.
func (a Address) String() string {
	return fmt.Sprintf("%X", a[:])
}
