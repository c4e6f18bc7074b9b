package app

import (
	"errors"

	"github.com/ordsys/sequencer/types"
)

// ABCI response codes. Stable across releases: explorers and the failure
// receipts in the event log key off these numbers.
const (
	CodeOK uint32 = iota
	CodeDecode
	CodeAuth
	CodeNonce
	CodeUnknownMarket
	CodeUnknownOrder
	CodeUnknownAsset
	CodeMarketExists
	CodeMarketPaused
	CodeInvalidMarket
	CodeInvalidOrder
	CodeInsufficientFee
	CodeUnsupportedFeeAsset
	CodeInsufficientBalance
	CodeBalanceOverflow
	CodeNotTradable
	CodeUnknownAction
	CodePastHeight
	CodeInternal
)

// codeForErr maps an execution failure to its stable code. Every sentinel
// in the taxonomy has exactly one code so all validators report the same
// receipt.
func codeForErr(err error) uint32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, types.ErrDecode):
		return CodeDecode
	case errors.Is(err, types.ErrNotOrderOwner),
		errors.Is(err, types.ErrSudoRequired),
		errors.Is(err, types.ErrAuth):
		return CodeAuth
	case errors.Is(err, types.ErrNonce):
		return CodeNonce
	case errors.Is(err, types.ErrUnknownMarket):
		return CodeUnknownMarket
	case errors.Is(err, types.ErrUnknownOrder):
		return CodeUnknownOrder
	case errors.Is(err, types.ErrUnknownAsset):
		return CodeUnknownAsset
	case errors.Is(err, types.ErrMarketExists):
		return CodeMarketExists
	case errors.Is(err, types.ErrMarketPaused):
		return CodeMarketPaused
	case errors.Is(err, types.ErrInvalidMarket):
		return CodeInvalidMarket
	case errors.Is(err, types.ErrInvalidOrder):
		return CodeInvalidOrder
	case errors.Is(err, types.ErrInsufficientFee):
		return CodeInsufficientFee
	case errors.Is(err, types.ErrUnsupportedFeeAsset):
		return CodeUnsupportedFeeAsset
	case errors.Is(err, types.ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, types.ErrBalanceOverflow):
		return CodeBalanceOverflow
	case errors.Is(err, types.ErrNotTradable):
		return CodeNotTradable
	case errors.Is(err, types.ErrUnknownAction):
		return CodeUnknownAction
	case errors.Is(err, types.ErrPastHeight):
		return CodePastHeight
	default:
		return CodeInternal
	}
}
