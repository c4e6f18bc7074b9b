package app

import (
	"fmt"

	abci "github.com/tendermint/tendermint/abci/types"

	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/orderbook"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

// txContext carries the per-transaction facts every action needs.
type txContext struct {
	signer  types.Address
	nonce   uint32
	height  uint64
	txIndex int64
}

// chainParams reads the consensus parameters written at genesis.
func (a *App) chainParams(state storage.ReadState) (chainID, prefix string, sudo types.Address, slippageBps uint64, err error) {
	raw, err := state.Get([]byte(codec.ParamsChainIDKey))
	if err != nil {
		return "", "", types.Address{}, 0, err
	}
	chainID = string(raw)
	raw, err = state.Get([]byte(codec.ParamsPrefixKey))
	if err != nil {
		return "", "", types.Address{}, 0, err
	}
	prefix = string(raw)
	raw, err = state.Get([]byte(codec.ParamsSudoKey))
	if err != nil {
		return "", "", types.Address{}, 0, err
	}
	if sudo, err = codec.DecodeAddress(raw); err != nil {
		return "", "", types.Address{}, 0, err
	}
	raw, err = state.Get([]byte(codec.ParamsSlippageKey))
	if err != nil {
		return "", "", types.Address{}, 0, err
	}
	if raw != nil {
		if slippageBps, err = codec.DecodeCounter(raw); err != nil {
			return "", "", types.Address{}, 0, err
		}
	}
	return chainID, prefix, sudo, slippageBps, nil
}

func (a *App) requireSudo(state storage.ReadState, signer types.Address) error {
	raw, err := state.Get([]byte(codec.ParamsSudoKey))
	if err != nil {
		return err
	}
	sudo, err := codec.DecodeAddress(raw)
	if err != nil {
		return err
	}
	if !signer.Equal(sudo) {
		return fmt.Errorf("%w: signer %s", types.ErrSudoRequired, signer)
	}
	return nil
}

// executeTx runs one delivered transaction against the block overlay.
// Every scheduled fee is debited before the first action runs, mirroring
// the admission check: the debits come straight out of the balance the
// transaction started with, so re-applying them after an atomic rollback
// can never fail. An action whose fee cannot be funded from that balance
// fails the transaction; balances credited by its own (rolled-back)
// actions never pay for it.
func (a *App) executeTx(block *storage.Overlay, tx types.Transaction, ctx txContext) (uint32, []abci.Event, error) {
	txOverlay := block.NewScratch()
	var feeEvents []abci.Event
	var feeCharges []feeCharge

	code := CodeOK
	var failErr error
	var failEvent abci.Event
	for i, action := range tx.Body.Actions {
		asset := feeAssetOf(action)
		if asset == "" {
			continue
		}
		encoded, err := codec.EncodeAction(action)
		if err != nil {
			return CodeInternal, nil, err
		}
		amount, err := a.fees.Charge(txOverlay, ctx.signer, action.Tag(), asset, len(encoded))
		if err != nil {
			a.metrics.ActionsFailed.Add(1)
			code = codeForErr(err)
			failErr = err
			failEvent = actionFailedEvent(i, action.Tag(), err)
			break
		}
		if amount.IsZero() {
			continue
		}
		feeCharges = append(feeCharges, feeCharge{payer: ctx.signer, tag: action.Tag(), asset: asset, amount: amount})
		feeEvents = append(feeEvents, feeChargedEvent(ctx.signer, action.Tag(), asset, amount))
	}

	events := append([]abci.Event{}, feeEvents...)
	if failErr == nil {
		for i, action := range tx.Body.Actions {
			actionEvents, err := a.executeAction(txOverlay, action, uint32(i), ctx)
			events = append(events, actionEvents...)
			if err != nil {
				a.metrics.ActionsFailed.Add(1)
				events = append(events, actionFailedEvent(i, action.Tag(), err))
				if !tx.Body.Params.BestEffort {
					code = codeForErr(err)
					failErr = err
					failEvent = actionFailedEvent(i, action.Tag(), err)
					break
				}
			}
		}
	}

	if failErr != nil {
		// Roll the transaction back but keep the collected fees and the
		// nonce bump: a failed transaction still consumed its slot. The
		// rolled-back actions' events go with them; only the fee charges
		// and the failure receipt remain visible.
		txOverlay.Discard()
		for _, c := range feeCharges {
			if err := a.replayFee(txOverlay, c); err != nil {
				return CodeInternal, events, err
			}
		}
		events = append(feeEvents, failEvent)
	}
	a.accounts.SetNonce(txOverlay, ctx.signer, ctx.nonce+1)
	txOverlay.Apply()
	return code, events, nil
}

// feeCharge records one successful fee debit so it can be re-applied when
// an atomic transaction rolls back.
type feeCharge struct {
	payer  types.Address
	tag    types.ActionTag
	asset  string
	amount types.Uint128
}

func (a *App) replayFee(state *storage.Overlay, c feeCharge) error {
	if err := a.accounts.SubBalance(state, c.payer, c.asset, c.amount); err != nil {
		return err
	}
	collector, err := a.fees.Collector(state)
	if err != nil {
		return err
	}
	return a.accounts.AddBalance(state, collector, c.asset, c.amount)
}

func feeAssetOf(action types.Action) string {
	switch act := action.(type) {
	case types.Transfer:
		return act.FeeAsset
	case types.CreateMarket:
		return act.FeeAsset
	case types.CreateOrder:
		return act.FeeAsset
	case types.CancelOrder:
		return act.FeeAsset
	case types.FeeChange:
		return act.FeeAsset
	case types.UpdateMarket:
		return act.FeeAsset
	default:
		return ""
	}
}

// executeAction runs the action in its own scratch overlay, merged only
// on success. Fees were already debited by executeTx.
func (a *App) executeAction(txState *storage.Overlay, action types.Action, actionIndex uint32, ctx txContext) ([]abci.Event, error) {
	scratch := txState.NewScratch()
	events, err := a.applyAction(scratch, action, actionIndex, ctx)
	if err != nil {
		// Scratch is discarded by simply not applying it.
		return nil, err
	}
	scratch.Apply()
	return events, nil
}

func (a *App) applyAction(state *storage.Overlay, action types.Action, actionIndex uint32, ctx txContext) ([]abci.Event, error) {
	if err := action.ValidateBasic(); err != nil {
		return nil, err
	}
	switch act := action.(type) {
	case types.Transfer:
		return a.applyTransfer(state, act, ctx)
	case types.CreateMarket:
		return a.applyCreateMarket(state, act, ctx)
	case types.CreateOrder:
		return a.applyCreateOrder(state, act, actionIndex, ctx)
	case types.CancelOrder:
		return a.applyCancelOrder(state, act, ctx)
	case types.FeeChange:
		return a.applyFeeChange(state, act, ctx)
	case types.UpdateMarket:
		return a.applyUpdateMarket(state, act, ctx)
	case types.SudoChange:
		return a.applySudoChange(state, act, ctx)
	default:
		return nil, fmt.Errorf("%w: tag %d", types.ErrUnknownAction, action.Tag())
	}
}

func (a *App) applyTransfer(state *storage.Overlay, act types.Transfer, ctx txContext) ([]abci.Event, error) {
	ok, err := a.accounts.AssetExists(state, act.Asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownAsset, act.Asset)
	}
	if err := a.accounts.SubBalance(state, ctx.signer, act.Asset, act.Amount); err != nil {
		return nil, err
	}
	if err := a.accounts.AddBalance(state, act.Recipient, act.Asset, act.Amount); err != nil {
		return nil, err
	}
	return []abci.Event{transferEvent(ctx.signer, act.Recipient, act.Asset, act.Amount)}, nil
}

func (a *App) applyCreateMarket(state *storage.Overlay, act types.CreateMarket, ctx txContext) ([]abci.Event, error) {
	if err := a.requireSudo(state, ctx.signer); err != nil {
		return nil, err
	}
	m := types.Market{
		ID:            act.MarketID,
		BaseAsset:     act.BaseAsset,
		QuoteAsset:    act.QuoteAsset,
		TickSize:      act.TickSize,
		LotSize:       act.LotSize,
		BasePrecision: act.BasePrecision,
	}
	if err := a.markets.Create(state, m); err != nil {
		return nil, err
	}
	return []abci.Event{marketCreatedEvent(m)}, nil
}

func (a *App) applyUpdateMarket(state *storage.Overlay, act types.UpdateMarket, ctx txContext) ([]abci.Event, error) {
	if err := a.requireSudo(state, ctx.signer); err != nil {
		return nil, err
	}
	m, err := a.markets.Update(state, act)
	if err != nil {
		return nil, err
	}
	return []abci.Event{marketUpdatedEvent(m)}, nil
}

func (a *App) applyFeeChange(state *storage.Overlay, act types.FeeChange, ctx txContext) ([]abci.Event, error) {
	if err := a.requireSudo(state, ctx.signer); err != nil {
		return nil, err
	}
	a.fees.SetSchedule(state, act.ActionTag, types.FeeEntry{
		BaseFee:    act.BaseFee,
		PerByteFee: act.PerByteFee,
		Asset:      act.FeeAsset,
	})
	return []abci.Event{feeChangedEvent(act)}, nil
}

func (a *App) applySudoChange(state *storage.Overlay, act types.SudoChange, ctx txContext) ([]abci.Event, error) {
	if err := a.requireSudo(state, ctx.signer); err != nil {
		return nil, err
	}
	state.Set([]byte(codec.ParamsSudoKey), codec.EncodeAddress(act.NewSudo))
	return []abci.Event{sudoChangedEvent(act.NewSudo)}, nil
}

func (a *App) applyCancelOrder(state *storage.Overlay, act types.CancelOrder, ctx txContext) ([]abci.Event, error) {
	o, err := orderbook.Get(state, act.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.Owner.Equal(ctx.signer) {
		return nil, fmt.Errorf("%w: order %s", types.ErrNotOrderOwner, o.ID)
	}
	m, err := a.markets.Get(state, o.MarketID)
	if err != nil {
		return nil, err
	}
	orderbook.Remove(state, o)
	// Release the residual escrow exactly: quote at the limit price for
	// buys, base quantity for sells.
	if o.Side == types.SideBuy {
		notional, ok := o.Price.Mul(o.Remaining)
		if !ok {
			return nil, fmt.Errorf("%w: escrow release for %s", types.ErrBalanceOverflow, o.ID)
		}
		if err := a.accounts.ReleaseEscrow(state, o.Owner, m.QuoteAsset, notional); err != nil {
			return nil, err
		}
	} else {
		if err := a.accounts.ReleaseEscrow(state, o.Owner, m.BaseAsset, o.Remaining); err != nil {
			return nil, err
		}
	}
	return []abci.Event{orderCancelledEvent(o.ID, o.MarketID, "cancel_requested")}, nil
}

// escrowForTaker reserves the maximum the taker can possibly spend and
// returns the reserved amount with the asset it is held in.
func (a *App) escrowForTaker(state *storage.Overlay, m types.Market, o *types.Order, slippageBps uint64) (types.Uint128, string, error) {
	if o.Side == types.SideSell {
		if err := a.accounts.Escrow(state, o.Owner, m.BaseAsset, o.Quantity); err != nil {
			return types.Uint128{}, "", err
		}
		return o.Quantity, m.BaseAsset, nil
	}
	var limit types.Uint128
	switch o.Kind {
	case types.OrderLimit:
		var ok bool
		limit, ok = o.Price.Mul(o.Quantity)
		if !ok {
			return types.Uint128{}, "", fmt.Errorf("%w: order notional", types.ErrBalanceOverflow)
		}
	case types.OrderMarket:
		best, err := orderbook.Best(state, m.ID, types.SideSell)
		if err != nil {
			return types.Uint128{}, "", err
		}
		if best == nil {
			return types.Uint128{}, "", fmt.Errorf("%w: market %s has no asks", types.ErrNotTradable, m.ID)
		}
		var ok bool
		limit, ok = types.MulDivGuard(best.Price, o.Quantity, slippageBps)
		if !ok {
			return types.Uint128{}, "", fmt.Errorf("%w: market order escrow", types.ErrBalanceOverflow)
		}
	}
	if err := a.accounts.Escrow(state, o.Owner, m.QuoteAsset, limit); err != nil {
		return types.Uint128{}, "", err
	}
	return limit, m.QuoteAsset, nil
}

func (a *App) applyCreateOrder(state *storage.Overlay, act types.CreateOrder, actionIndex uint32, ctx txContext) ([]abci.Event, error) {
	m, err := a.markets.Get(state, act.MarketID)
	if err != nil {
		return nil, err
	}
	if m.Paused {
		return nil, fmt.Errorf("%w: %s", types.ErrMarketPaused, m.ID)
	}
	_, _, _, slippageBps, err := a.chainParams(state)
	if err != nil {
		return nil, err
	}

	order := types.Order{
		ID:        types.NewOrderID(ctx.signer, ctx.nonce, actionIndex),
		Owner:     ctx.signer,
		MarketID:  act.MarketID,
		Side:      act.Side,
		Kind:      act.Kind,
		Price:     act.Price,
		Quantity:  act.Quantity,
		Remaining: act.Quantity,
		TIF:       act.TIF,
		CreatedAt: ctx.height,
		FeeAsset:  act.FeeAsset,
	}

	escrowed, escrowAsset, err := a.escrowForTaker(state, m, &order, slippageBps)
	if err != nil {
		return nil, err
	}

	report, status, err := a.engine.Submit(state, m, &order)
	if err != nil {
		return nil, err
	}

	// Settle the escrow account: compute what the fills consumed and
	// what a resting remainder must keep reserved, release the rest.
	consumed := types.ZeroUint128
	for _, f := range report {
		var amount types.Uint128
		var ok bool
		if order.Side == types.SideBuy {
			amount, ok = f.Price.Mul(f.Quantity)
		} else {
			amount, ok = f.Quantity, true
		}
		if !ok {
			return nil, fmt.Errorf("%w: fill notional", types.ErrBalanceOverflow)
		}
		if consumed, err = consumed.Add(amount); err != nil {
			return nil, err
		}
	}
	keep := types.ZeroUint128
	if status == types.StatusResting {
		if order.Side == types.SideBuy {
			var ok bool
			if keep, ok = order.Price.Mul(order.Remaining); !ok {
				return nil, fmt.Errorf("%w: resting escrow", types.ErrBalanceOverflow)
			}
		} else {
			keep = order.Remaining
		}
	}
	spent, err := consumed.Add(keep)
	if err != nil {
		return nil, err
	}
	release, err := escrowed.Sub(spent)
	if err != nil {
		return nil, fmt.Errorf("escrow accounting: %w", err)
	}
	if !release.IsZero() {
		if err := a.accounts.ReleaseEscrow(state, order.Owner, escrowAsset, release); err != nil {
			return nil, err
		}
	}

	if status == types.StatusRejectedNotTradable {
		return nil, fmt.Errorf("%w: no opposing liquidity in %s", types.ErrNotTradable, m.ID)
	}

	events := []abci.Event{orderAcceptedEvent(order)}
	for i, f := range report {
		events = append(events, orderFilledEvent(f, m.ID))
		if err := a.recordTrade(state, m.ID, f, order.Side.Opposite(), ctx, i); err != nil {
			return nil, err
		}
	}
	a.metrics.OrdersMatched.Add(float64(len(report)))
	switch status {
	case types.StatusCancelledIOC:
		events = append(events, orderCancelledEvent(order.ID, m.ID, "immediate_or_cancel"))
	case types.StatusCancelledFOK:
		events = append(events, orderCancelledEvent(order.ID, m.ID, "fill_or_kill"))
	}
	return events, nil
}

// recordTrade persists the fill under its chronological index key.
func (a *App) recordTrade(state *storage.Overlay, marketID string, f types.Fill, makerSide types.Side, ctx txContext, fillIndex int) error {
	key, err := codec.TradeKey(marketID, ctx.height, ctx.txIndex, int64(fillIndex))
	if err != nil {
		return err
	}
	state.Set(key, codec.EncodeTrade(types.Trade{
		MarketID:     marketID,
		Price:        f.Price,
		Quantity:     f.Quantity,
		MakerOrderID: f.MakerOrderID,
		TakerOrderID: f.TakerOrderID,
		MakerSide:    makerSide,
		Height:       ctx.height,
	}))
	return nil
}
