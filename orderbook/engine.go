package orderbook

import (
	"fmt"

	"github.com/ordsys/sequencer/accounts"
	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

// Engine crosses incoming orders against the book. Matching is a
// synchronous, deterministic walk: no goroutines, no clocks, no floats.
type Engine struct {
	accounts accounts.Keeper
}

// NewEngine returns a matching engine settling through accts.
func NewEngine(accts accounts.Keeper) Engine {
	return Engine{accounts: accts}
}

// Submit runs one match cycle for taker against the book. It mutates a
// scratch overlay that reaches state only when the whole cycle succeeds,
// so a mid-walk failure (for example a balance overflow) leaves no trace.
//
// The taker must already hold escrow: quote notional for buys, base
// quantity for sells. Submit consumes escrow as it fills; the caller
// settles any escrow left over according to the returned status.
func (e Engine) Submit(state *storage.Overlay, m types.Market, taker *types.Order) (types.FillReport, types.MatchStatus, error) {
	if err := taker.ValidateBasic(); err != nil {
		return nil, 0, err
	}
	if err := taker.ValidateAgainstMarket(m); err != nil {
		return nil, 0, err
	}

	scratch := state.NewScratch()
	report, status, err := e.matchCycle(scratch, m, taker)
	if err != nil {
		return nil, 0, err
	}
	scratch.Apply()
	return report, status, nil
}

// crossable reports whether a maker at makerPrice satisfies the taker.
// Market orders accept any opposite price.
func crossable(taker *types.Order, makerPrice types.Uint128) bool {
	if taker.Kind == types.OrderMarket {
		return true
	}
	if taker.Side == types.SideBuy {
		return makerPrice.LTE(taker.Price)
	}
	return makerPrice.GTE(taker.Price)
}

func (e Engine) matchCycle(state *storage.Overlay, m types.Market, taker *types.Order) (types.FillReport, types.MatchStatus, error) {
	opposite := taker.Side.Opposite()

	if taker.TIF == types.FillOrKill {
		ok, err := e.fillable(state, m, taker)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, types.StatusCancelledFOK, nil
		}
	}

	var report types.FillReport
	it, err := state.Range(codec.LadderSidePrefix(m.ID, opposite))
	if err != nil {
		return nil, 0, err
	}
	// The walk buffers maker mutations and applies them after the
	// iterator closes; mutating the range being iterated would make the
	// traversal order undefined.
	type makerFill struct {
		maker types.Order
		qty   types.Uint128
	}
	var fills []makerFill
	remaining := taker.Remaining
	for ; it.Valid() && !remaining.IsZero(); it.Next() {
		id, err := codec.DecodeOrderID(it.Value())
		if err != nil {
			it.Close()
			return nil, 0, err
		}
		maker, err := Get(state, id)
		if err != nil {
			it.Close()
			return nil, 0, err
		}
		if !crossable(taker, maker.Price) {
			break
		}
		qty := remaining
		if maker.Remaining.LT(qty) {
			qty = maker.Remaining
		}
		fills = append(fills, makerFill{maker: maker, qty: qty})
		remaining, err = remaining.Sub(qty)
		if err != nil {
			it.Close()
			return nil, 0, err
		}
	}
	if err := it.Error(); err != nil {
		it.Close()
		return nil, 0, err
	}
	if err := it.Close(); err != nil {
		return nil, 0, err
	}

	if taker.Kind == types.OrderMarket && len(fills) == 0 {
		return nil, types.StatusRejectedNotTradable, nil
	}

	for _, f := range fills {
		maker := f.maker
		// Maker-price rule: the resting order dictates the price.
		if err := e.settle(state, m, taker, &maker, maker.Price, f.qty); err != nil {
			return nil, 0, err
		}
		report = append(report, types.Fill{
			MakerOrderID: maker.ID,
			TakerOrderID: taker.ID,
			Price:        maker.Price,
			Quantity:     f.qty,
		})
		var err error
		if taker.Remaining, err = taker.Remaining.Sub(f.qty); err != nil {
			return nil, 0, err
		}
		if maker.Remaining, err = maker.Remaining.Sub(f.qty); err != nil {
			return nil, 0, err
		}
		if maker.Remaining.IsZero() {
			Remove(state, maker)
		} else {
			update(state, maker)
		}
	}

	switch {
	case taker.Remaining.IsZero():
		return report, types.StatusFilled, nil
	case taker.Kind == types.OrderLimit && taker.TIF == types.GoodTillCancelled:
		if err := Insert(state, taker); err != nil {
			return nil, 0, err
		}
		return report, types.StatusResting, nil
	case len(report) > 0:
		// IOC or market remainder after some fills is discarded.
		return report, types.StatusFilled, nil
	default:
		return report, types.StatusCancelledIOC, nil
	}
}

// fillable is the FOK dry pass: walk crossable liquidity and check it
// covers the full taker quantity. No state is touched.
func (e Engine) fillable(state storage.ReadState, m types.Market, taker *types.Order) (bool, error) {
	it, err := state.Range(codec.LadderSidePrefix(m.ID, taker.Side.Opposite()))
	if err != nil {
		return false, err
	}
	defer it.Close()
	need := taker.Remaining
	for ; it.Valid(); it.Next() {
		id, err := codec.DecodeOrderID(it.Value())
		if err != nil {
			return false, err
		}
		maker, err := Get(state, id)
		if err != nil {
			return false, err
		}
		if !crossable(taker, maker.Price) {
			break
		}
		if maker.Remaining.GTE(need) {
			return true, nil
		}
		if need, err = need.Sub(maker.Remaining); err != nil {
			return false, err
		}
	}
	return false, it.Error()
}

// settle moves value for one fill. The taker's funds come out of escrow
// (placed there by the executor), the maker's out of the escrow taken
// when the maker rested.
func (e Engine) settle(state storage.State, m types.Market, taker, maker *types.Order, price, qty types.Uint128) error {
	notional, ok := price.Mul(qty)
	if !ok {
		return fmt.Errorf("%w: notional %s x %s", types.ErrBalanceOverflow, price, qty)
	}
	buyer, seller := taker, maker
	if taker.Side == types.SideSell {
		buyer, seller = maker, taker
	}
	// Quote leg: buyer's escrow pays the seller.
	if err := e.accounts.SubEscrow(state, buyer.Owner, m.QuoteAsset, notional); err != nil {
		return err
	}
	if err := e.accounts.AddBalance(state, seller.Owner, m.QuoteAsset, notional); err != nil {
		return err
	}
	// Base leg: seller's escrow delivers to the buyer.
	if err := e.accounts.SubEscrow(state, seller.Owner, m.BaseAsset, qty); err != nil {
		return err
	}
	return e.accounts.AddBalance(state, buyer.Owner, m.BaseAsset, qty)
}
