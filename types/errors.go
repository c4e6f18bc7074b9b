package types

import "errors"

// Error kinds per failure taxonomy. Every failure on the execution path
// wraps exactly one of these sentinels so the pipeline can map it to a
// stable ABCI code identically on every validator.
var (
	ErrDecode = errors.New("malformed encoding")

	ErrAuth          = errors.New("authorization failed")
	ErrNotOrderOwner = errors.New("signer does not own order")
	ErrSudoRequired  = errors.New("action requires the sudo authority")

	ErrNonce = errors.New("invalid nonce")

	ErrUnknownMarket = errors.New("unknown market")
	ErrUnknownOrder  = errors.New("unknown order")
	ErrUnknownAsset  = errors.New("unknown asset")
	ErrMarketExists  = errors.New("market already exists")
	ErrMarketPaused  = errors.New("market is paused")

	ErrInvalidMarket = errors.New("invalid market parameters")
	ErrInvalidOrder  = errors.New("invalid order")

	ErrInsufficientFee     = errors.New("insufficient balance for fee")
	ErrUnsupportedFeeAsset = errors.New("unsupported fee asset")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")

	ErrNotTradable = errors.New("order not tradable")

	ErrUnknownAction = errors.New("unknown action")

	// ErrPastHeight is returned by queries that request a height other
	// than the latest committed version.
	ErrPastHeight = errors.New("height no longer available")
)
