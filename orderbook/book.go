// Package orderbook maintains the per-market price-time-priority ladders
// and the matching engine that crosses incoming orders against them.
//
// Orders have exactly one authoritative record, keyed by order id. The
// ladders and the owner index store only references; every read resolves
// through the record. Ladder keys sort best-price-first per side, with a
// monotone arrival sequence breaking ties inside a price level.
package orderbook

import (
	"fmt"

	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

// Get loads the authoritative record of an order.
func Get(state storage.ReadState, id types.OrderID) (types.Order, error) {
	raw, err := state.Get(codec.OrderKey(id))
	if err != nil {
		return types.Order{}, err
	}
	if raw == nil {
		return types.Order{}, fmt.Errorf("%w: %s", types.ErrUnknownOrder, id)
	}
	return codec.DecodeOrder(raw)
}

// nextLadderSeq increments the per-market arrival counter. The counter
// orders entries within a price level: orders created earlier (by block,
// then tx index, then action index) always hold smaller sequence numbers.
func nextLadderSeq(state storage.State, marketID string) (uint64, error) {
	key := codec.LadderSeqKey(marketID)
	raw, err := state.Get(key)
	if err != nil {
		return 0, err
	}
	var seq uint64
	if raw != nil {
		if seq, err = codec.DecodeCounter(raw); err != nil {
			return 0, err
		}
	}
	seq++
	state.Set(key, codec.EncodeCounter(seq))
	return seq, nil
}

// Insert rests the order: ladder entry, authoritative record and owner
// index in one step. The order's LadderSeq is assigned here.
func Insert(state storage.State, o *types.Order) error {
	seq, err := nextLadderSeq(state, o.MarketID)
	if err != nil {
		return err
	}
	o.LadderSeq = seq
	state.Set(codec.LadderKey(o.MarketID, o.Side, o.Price, seq), codec.EncodeOrderID(o.ID))
	state.Set(codec.OrderKey(o.ID), codec.EncodeOrder(*o))
	state.Set(codec.OwnerOrderKey(o.Owner, o.MarketID, o.ID), codec.EncodeMarker())
	return nil
}

// update rewrites the authoritative record of a resting order after a
// partial fill. Ladder position is unchanged.
func update(state storage.State, o types.Order) {
	state.Set(codec.OrderKey(o.ID), codec.EncodeOrder(o))
}

// Remove deletes the order from the ladder, the record space and the
// owner index. Removing the last order of a price level removes the level
// itself, since levels exist only as the set of their ladder keys.
func Remove(state storage.State, o types.Order) {
	state.Delete(codec.LadderKey(o.MarketID, o.Side, o.Price, o.LadderSeq))
	state.Delete(codec.OrderKey(o.ID))
	state.Delete(codec.OwnerOrderKey(o.Owner, o.MarketID, o.ID))
}

// Best returns the top of one side of the book, or nil when the side is
// empty.
func Best(state storage.ReadState, marketID string, side types.Side) (*types.Order, error) {
	it, err := state.Range(codec.LadderSidePrefix(marketID, side))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	if !it.Valid() {
		return nil, it.Error()
	}
	id, err := codec.DecodeOrderID(it.Value())
	if err != nil {
		return nil, err
	}
	o, err := Get(state, id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// RestingOrders returns one side of a market's book in match-priority
// order.
func RestingOrders(state storage.ReadState, marketID string, side types.Side) ([]types.Order, error) {
	it, err := state.Range(codec.LadderSidePrefix(marketID, side))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []types.Order
	for ; it.Valid(); it.Next() {
		id, err := codec.DecodeOrderID(it.Value())
		if err != nil {
			return nil, err
		}
		o, err := Get(state, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, it.Error()
}

// OwnerOrders returns every resting order owned by addr, across all
// markets, in owner-index key order.
func OwnerOrders(state storage.ReadState, addr types.Address) ([]types.Order, error) {
	return ownerScan(state, codec.OwnerAllPrefix(addr))
}

// OwnerMarketOrders returns addr's resting orders in one market.
func OwnerMarketOrders(state storage.ReadState, addr types.Address, marketID string) ([]types.Order, error) {
	return ownerScan(state, codec.OwnerMarketPrefix(addr, marketID))
}

func ownerScan(state storage.ReadState, prefix []byte) ([]types.Order, error) {
	it, err := state.Range(prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []types.Order
	for ; it.Valid(); it.Next() {
		key := it.Key()
		// Key suffix ends in the order id; the uuid rendering is fixed
		// width, so the id is the last 36 bytes.
		if len(key) < len(prefix)+36 {
			return nil, fmt.Errorf("%w: malformed owner index key %q", types.ErrDecode, key)
		}
		id, err := types.OrderIDFromString(string(key[len(key)-36:]))
		if err != nil {
			return nil, err
		}
		o, err := Get(state, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, it.Error()
}
