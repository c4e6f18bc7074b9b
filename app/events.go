package app

import (
	"fmt"

	abci "github.com/tendermint/tendermint/abci/types"

	"github.com/ordsys/sequencer/types"
)

// Event types and attribute keys. Event ordering within a block is tx
// order, then action order, then fill order inside an action.
const (
	EventMarketCreated  = "market_created"
	EventMarketUpdated  = "market_updated"
	EventOrderAccepted  = "order_accepted"
	EventOrderFilled    = "order_filled"
	EventOrderCancelled = "order_cancelled"
	EventTransfer       = "transfer"
	EventFeeCharged     = "fee_charged"
	EventFeeChanged     = "fee_changed"
	EventSudoChanged    = "sudo_changed"
	EventActionFailed   = "action_failed"
)

func attr(key, value string) abci.EventAttribute {
	return abci.EventAttribute{Key: []byte(key), Value: []byte(value), Index: true}
}

func marketCreatedEvent(m types.Market) abci.Event {
	return abci.Event{
		Type: EventMarketCreated,
		Attributes: []abci.EventAttribute{
			attr("market", m.ID),
			attr("base_asset", m.BaseAsset),
			attr("quote_asset", m.QuoteAsset),
			attr("tick_size", m.TickSize.String()),
			attr("lot_size", m.LotSize.String()),
		},
	}
}

func marketUpdatedEvent(m types.Market) abci.Event {
	return abci.Event{
		Type: EventMarketUpdated,
		Attributes: []abci.EventAttribute{
			attr("market", m.ID),
			attr("tick_size", m.TickSize.String()),
			attr("lot_size", m.LotSize.String()),
			attr("paused", fmt.Sprintf("%t", m.Paused)),
		},
	}
}

func orderAcceptedEvent(o types.Order) abci.Event {
	return abci.Event{
		Type: EventOrderAccepted,
		Attributes: []abci.EventAttribute{
			attr("order_id", o.ID.String()),
			attr("market", o.MarketID),
			attr("side", o.Side.String()),
			attr("kind", o.Kind.String()),
			attr("price", o.Price.String()),
			attr("quantity", o.Quantity.String()),
			attr("remaining", o.Remaining.String()),
			attr("time_in_force", o.TIF.String()),
		},
	}
}

func orderFilledEvent(f types.Fill, marketID string) abci.Event {
	return abci.Event{
		Type: EventOrderFilled,
		Attributes: []abci.EventAttribute{
			attr("market", marketID),
			attr("maker_order_id", f.MakerOrderID.String()),
			attr("taker_order_id", f.TakerOrderID.String()),
			attr("price", f.Price.String()),
			attr("quantity", f.Quantity.String()),
		},
	}
}

func orderCancelledEvent(id types.OrderID, marketID, reason string) abci.Event {
	return abci.Event{
		Type: EventOrderCancelled,
		Attributes: []abci.EventAttribute{
			attr("order_id", id.String()),
			attr("market", marketID),
			attr("reason", reason),
		},
	}
}

func transferEvent(from, to types.Address, asset string, amount types.Uint128) abci.Event {
	return abci.Event{
		Type: EventTransfer,
		Attributes: []abci.EventAttribute{
			attr("from", from.String()),
			attr("to", to.String()),
			attr("asset", asset),
			attr("amount", amount.String()),
		},
	}
}

func feeChargedEvent(payer types.Address, tag types.ActionTag, asset string, amount types.Uint128) abci.Event {
	return abci.Event{
		Type: EventFeeCharged,
		Attributes: []abci.EventAttribute{
			attr("payer", payer.String()),
			attr("action", tag.String()),
			attr("asset", asset),
			attr("amount", amount.String()),
		},
	}
}

func feeChangedEvent(a types.FeeChange) abci.Event {
	return abci.Event{
		Type: EventFeeChanged,
		Attributes: []abci.EventAttribute{
			attr("action", a.ActionTag.String()),
			attr("base_fee", a.BaseFee.String()),
			attr("per_byte_fee", a.PerByteFee.String()),
			attr("asset", a.FeeAsset),
		},
	}
}

func sudoChangedEvent(newSudo types.Address) abci.Event {
	return abci.Event{
		Type: EventSudoChanged,
		Attributes: []abci.EventAttribute{
			attr("new_sudo", newSudo.String()),
		},
	}
}

// actionFailedEvent is the deterministic failure receipt recorded when an
// action's scratch overlay is discarded.
func actionFailedEvent(actionIndex int, tag types.ActionTag, err error) abci.Event {
	return abci.Event{
		Type: EventActionFailed,
		Attributes: []abci.EventAttribute{
			attr("action_index", fmt.Sprintf("%d", actionIndex)),
			attr("action", tag.String()),
			attr("code", fmt.Sprintf("%d", codeForErr(err))),
			attr("reason", err.Error()),
		},
	}
}
