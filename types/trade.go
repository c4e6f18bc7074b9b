package types

// Trade is the persisted record of one fill. Records are keyed by
// (market, height, tx index, fill index), so the sequence agrees across
// validators.
type Trade struct {
	MarketID     string
	Price        Uint128
	Quantity     Uint128
	MakerOrderID OrderID
	TakerOrderID OrderID
	MakerSide    Side
	Height       uint64
}

// Fill is one entry of a match report, in the order it occurred.
type Fill struct {
	MakerOrderID OrderID
	TakerOrderID OrderID
	Price        Uint128
	Quantity     Uint128
}

// FillReport is the sequence of fills produced by a single submit.
type FillReport []Fill

// MatchStatus is the outcome of submitting an order to the engine.
type MatchStatus uint8

const (
	StatusResting MatchStatus = iota + 1
	StatusFilled
	StatusCancelledIOC
	StatusCancelledFOK
	StatusRejectedNotTradable
)

func (s MatchStatus) String() string {
	switch s {
	case StatusResting:
		return "resting"
	case StatusFilled:
		return "filled"
	case StatusCancelledIOC:
		return "cancelled_ioc"
	case StatusCancelledFOK:
		return "cancelled_fok"
	case StatusRejectedNotTradable:
		return "rejected_not_tradable"
	default:
		return "unknown"
	}
}
