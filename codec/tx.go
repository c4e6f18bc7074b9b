package codec

import (
	"fmt"

	"github.com/tendermint/tendermint/crypto/ed25519"

	"github.com/ordsys/sequencer/types"
)

// Transaction wire format:
//
//	signature[64] || public_key[32] || body
//	body = nonce:u32 || chain_id:string || best_effort:bool || actions:seq
//
// The signature covers the body bytes exactly as encoded here.

// EncodeTransactionBody produces the canonical signed payload.
func EncodeTransactionBody(body types.TransactionBody) ([]byte, error) {
	w := NewWriter()
	w.U32(body.Params.Nonce)
	w.String(body.Params.ChainID)
	w.Bool(body.Params.BestEffort)
	w.U32(uint32(len(body.Actions)))
	for i, a := range body.Actions {
		if err := encodeAction(w, a); err != nil {
			return nil, fmt.Errorf("encoding action %d: %w", i, err)
		}
	}
	return w.Bytes(), nil
}

// EncodeTransaction produces the full wire form.
func EncodeTransaction(tx types.Transaction) ([]byte, error) {
	if len(tx.Signature) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: signature must be %d bytes", types.ErrDecode, ed25519.SignatureSize)
	}
	if len(tx.PublicKey) != ed25519.PubKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes", types.ErrDecode, ed25519.PubKeySize)
	}
	body, err := EncodeTransactionBody(tx.Body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, ed25519.SignatureSize+ed25519.PubKeySize+len(body))
	out = append(out, tx.Signature...)
	out = append(out, tx.PublicKey...)
	return append(out, body...), nil
}

// DecodeTransaction parses wire bytes and returns the transaction along
// with the body bytes the signature covers.
func DecodeTransaction(bz []byte) (types.Transaction, []byte, error) {
	var tx types.Transaction
	if len(bz) < ed25519.SignatureSize+ed25519.PubKeySize {
		return tx, nil, fmt.Errorf("%w: transaction too short (%d bytes)", types.ErrDecode, len(bz))
	}
	tx.Signature = append([]byte(nil), bz[:ed25519.SignatureSize]...)
	tx.PublicKey = append([]byte(nil), bz[ed25519.SignatureSize:ed25519.SignatureSize+ed25519.PubKeySize]...)
	bodyBytes := bz[ed25519.SignatureSize+ed25519.PubKeySize:]

	r := NewReader(bodyBytes)
	var err error
	if tx.Body.Params.Nonce, err = r.U32(); err != nil {
		return tx, nil, err
	}
	if tx.Body.Params.ChainID, err = r.String(); err != nil {
		return tx, nil, err
	}
	if tx.Body.Params.BestEffort, err = r.Bool(); err != nil {
		return tx, nil, err
	}
	count, err := r.U32()
	if err != nil {
		return tx, nil, err
	}
	tx.Body.Actions = make([]types.Action, 0, count)
	for i := uint32(0); i < count; i++ {
		a, err := decodeAction(r)
		if err != nil {
			return tx, nil, fmt.Errorf("decoding action %d: %w", i, err)
		}
		tx.Body.Actions = append(tx.Body.Actions, a)
	}
	if err := r.Done(); err != nil {
		return tx, nil, err
	}
	return tx, append([]byte(nil), bodyBytes...), nil
}

// EncodeAction returns the standalone encoding of a single action, used
// for per-byte fee sizing.
func EncodeAction(a types.Action) ([]byte, error) {
	w := NewWriter()
	if err := encodeAction(w, a); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeAction(w *Writer, a types.Action) error {
	w.U8(uint8(a.Tag()))
	switch act := a.(type) {
	case types.Transfer:
		w.Raw(act.Recipient[:])
		w.String(act.Asset)
		w.U128(act.Amount)
		w.String(act.FeeAsset)
	case types.CreateMarket:
		w.String(act.MarketID)
		w.String(act.BaseAsset)
		w.String(act.QuoteAsset)
		w.U128(act.TickSize)
		w.U128(act.LotSize)
		w.U8(act.BasePrecision)
		w.String(act.FeeAsset)
	case types.CreateOrder:
		w.String(act.MarketID)
		w.U8(uint8(act.Side))
		w.U8(uint8(act.Kind))
		w.U128(act.Price)
		w.U128(act.Quantity)
		w.U8(uint8(act.TIF))
		w.String(act.FeeAsset)
	case types.CancelOrder:
		w.Raw(act.OrderID[:])
		w.String(act.FeeAsset)
	case types.FeeChange:
		w.U8(uint8(act.ActionTag))
		w.U128(act.BaseFee)
		w.U128(act.PerByteFee)
		w.String(act.FeeAsset)
	case types.UpdateMarket:
		w.String(act.MarketID)
		w.Bool(act.TickSize != nil)
		if act.TickSize != nil {
			w.U128(*act.TickSize)
		}
		w.Bool(act.LotSize != nil)
		if act.LotSize != nil {
			w.U128(*act.LotSize)
		}
		w.Bool(act.Paused)
		w.String(act.FeeAsset)
	case types.SudoChange:
		w.Raw(act.NewSudo[:])
	default:
		return fmt.Errorf("%w: tag %d", types.ErrUnknownAction, a.Tag())
	}
	return nil
}

func decodeAction(r *Reader) (types.Action, error) {
	tag, err := r.U8()
	if err != nil {
		return nil, err
	}
	switch types.ActionTag(tag) {
	case types.TagTransfer:
		var act types.Transfer
		raw, err := r.Fixed(types.AddressSize)
		if err != nil {
			return nil, err
		}
		if act.Recipient, err = types.AddressFromBytes(raw); err != nil {
			return nil, err
		}
		if act.Asset, err = r.String(); err != nil {
			return nil, err
		}
		if act.Amount, err = r.U128(); err != nil {
			return nil, err
		}
		if act.FeeAsset, err = r.String(); err != nil {
			return nil, err
		}
		return act, nil
	case types.TagCreateMarket:
		var act types.CreateMarket
		if act.MarketID, err = r.String(); err != nil {
			return nil, err
		}
		if act.BaseAsset, err = r.String(); err != nil {
			return nil, err
		}
		if act.QuoteAsset, err = r.String(); err != nil {
			return nil, err
		}
		if act.TickSize, err = r.U128(); err != nil {
			return nil, err
		}
		if act.LotSize, err = r.U128(); err != nil {
			return nil, err
		}
		if act.BasePrecision, err = r.U8(); err != nil {
			return nil, err
		}
		if act.FeeAsset, err = r.String(); err != nil {
			return nil, err
		}
		return act, nil
	case types.TagCreateOrder:
		var act types.CreateOrder
		if act.MarketID, err = r.String(); err != nil {
			return nil, err
		}
		side, err := r.U8()
		if err != nil {
			return nil, err
		}
		act.Side = types.Side(side)
		kind, err := r.U8()
		if err != nil {
			return nil, err
		}
		act.Kind = types.OrderKind(kind)
		if act.Price, err = r.U128(); err != nil {
			return nil, err
		}
		if act.Quantity, err = r.U128(); err != nil {
			return nil, err
		}
		tif, err := r.U8()
		if err != nil {
			return nil, err
		}
		act.TIF = types.TimeInForce(tif)
		if act.FeeAsset, err = r.String(); err != nil {
			return nil, err
		}
		return act, nil
	case types.TagCancelOrder:
		var act types.CancelOrder
		raw, err := r.Fixed(types.OrderIDSize)
		if err != nil {
			return nil, err
		}
		if act.OrderID, err = types.OrderIDFromBytes(raw); err != nil {
			return nil, err
		}
		if act.FeeAsset, err = r.String(); err != nil {
			return nil, err
		}
		return act, nil
	case types.TagFeeChange:
		var act types.FeeChange
		t, err := r.U8()
		if err != nil {
			return nil, err
		}
		act.ActionTag = types.ActionTag(t)
		if act.BaseFee, err = r.U128(); err != nil {
			return nil, err
		}
		if act.PerByteFee, err = r.U128(); err != nil {
			return nil, err
		}
		if act.FeeAsset, err = r.String(); err != nil {
			return nil, err
		}
		return act, nil
	case types.TagUpdateMarket:
		var act types.UpdateMarket
		if act.MarketID, err = r.String(); err != nil {
			return nil, err
		}
		hasTick, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if hasTick {
			v, err := r.U128()
			if err != nil {
				return nil, err
			}
			act.TickSize = &v
		}
		hasLot, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if hasLot {
			v, err := r.U128()
			if err != nil {
				return nil, err
			}
			act.LotSize = &v
		}
		if act.Paused, err = r.Bool(); err != nil {
			return nil, err
		}
		if act.FeeAsset, err = r.String(); err != nil {
			return nil, err
		}
		return act, nil
	case types.TagSudoChange:
		var act types.SudoChange
		raw, err := r.Fixed(types.AddressSize)
		if err != nil {
			return nil, err
		}
		if act.NewSudo, err = types.AddressFromBytes(raw); err != nil {
			return nil, err
		}
		return act, nil
	default:
		return nil, fmt.Errorf("%w: tag %d", types.ErrUnknownAction, tag)
	}
}
