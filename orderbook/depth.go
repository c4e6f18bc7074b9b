package orderbook

import (
	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

// DepthLevel aggregates one price level of one side.
type DepthLevel struct {
	Price      types.Uint128
	Quantity   types.Uint128
	OrderCount uint32
}

// Depth is the aggregated view of a market's book, both sides ordered
// best-first.
type Depth struct {
	MarketID string
	Bids     []DepthLevel
	Asks     []DepthLevel
}

// sideDepth walks the ladder directly: the level price is decoded from
// the ladder key, so entries group exactly the way the ladder sorts
// them, and only the remaining quantity is read from the record.
func sideDepth(state storage.ReadState, marketID string, side types.Side) ([]DepthLevel, error) {
	prefix := codec.LadderSidePrefix(marketID, side)
	it, err := state.Range(prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []DepthLevel
	for ; it.Valid(); it.Next() {
		price, err := codec.PriceFromLadderKey(it.Key(), len(prefix), side)
		if err != nil {
			return nil, err
		}
		id, err := codec.DecodeOrderID(it.Value())
		if err != nil {
			return nil, err
		}
		o, err := Get(state, id)
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].Price.Equal(price) {
			qty, err := out[n-1].Quantity.Add(o.Remaining)
			if err != nil {
				return nil, err
			}
			out[n-1].Quantity = qty
			out[n-1].OrderCount++
			continue
		}
		out = append(out, DepthLevel{Price: price, Quantity: o.Remaining, OrderCount: 1})
	}
	return out, it.Error()
}

// BookDepth aggregates the resting orders of a market into per-level
// totals.
func BookDepth(state storage.ReadState, marketID string) (Depth, error) {
	bids, err := sideDepth(state, marketID, types.SideBuy)
	if err != nil {
		return Depth{}, err
	}
	asks, err := sideDepth(state, marketID, types.SideSell)
	if err != nil {
		return Depth{}, err
	}
	return Depth{MarketID: marketID, Bids: bids, Asks: asks}, nil
}
