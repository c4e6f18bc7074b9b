package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	abci "github.com/tendermint/tendermint/abci/types"
	tmcrypto "github.com/tendermint/tendermint/proto/tendermint/crypto"

	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/orderbook"
	"github.com/ordsys/sequencer/types"
)

// Query paths. Market ids contain '/', so paths that embed one put it
// either last or in a fixed middle position.
//
//	orderbook/markets
//	orderbook/market/<id>
//	orderbook/order/<order-id>
//	orderbook/orders/market/<id>/<side>
//	orderbook/orders/owner/<bech32m>[/<market>]
//	orderbook/depth/<id>
//	orderbook/trades/<id>[/<limit>]
//	accounts/balance/<bech32m>/<asset>
//	accounts/pending_nonce/<bech32m>
//
// Height 0 means latest. The store keeps one materialized version, so
// any other height is answerable only when it equals the committed one.
func (a *App) Query(req abci.RequestQuery) abci.ResponseQuery {
	if req.Height != 0 && uint64(req.Height) != a.store.Version() {
		if _, err := a.store.RootAt(uint64(req.Height)); err != nil {
			return queryErr(err)
		}
		return queryErr(fmt.Errorf("%w: state at height %d is no longer materialized", types.ErrPastHeight, req.Height))
	}

	path := strings.TrimPrefix(req.Path, "/")
	switch {
	case path == "orderbook/markets":
		return a.queryMarkets()
	case strings.HasPrefix(path, "orderbook/market/"):
		return a.queryMarket(strings.TrimPrefix(path, "orderbook/market/"), req.Prove)
	case strings.HasPrefix(path, "orderbook/order/"):
		return a.queryOrder(strings.TrimPrefix(path, "orderbook/order/"), req.Prove)
	case strings.HasPrefix(path, "orderbook/orders/market/"):
		return a.queryMarketOrders(strings.TrimPrefix(path, "orderbook/orders/market/"))
	case strings.HasPrefix(path, "orderbook/orders/owner/"):
		return a.queryOwnerOrders(strings.TrimPrefix(path, "orderbook/orders/owner/"))
	case strings.HasPrefix(path, "orderbook/depth/"):
		return a.queryDepth(strings.TrimPrefix(path, "orderbook/depth/"))
	case strings.HasPrefix(path, "orderbook/trades/"):
		return a.queryTrades(strings.TrimPrefix(path, "orderbook/trades/"))
	case strings.HasPrefix(path, "accounts/balance/"):
		return a.queryBalance(strings.TrimPrefix(path, "accounts/balance/"), req.Prove)
	case strings.HasPrefix(path, "accounts/pending_nonce/"):
		return a.queryPendingNonce(strings.TrimPrefix(path, "accounts/pending_nonce/"))
	default:
		return queryErr(fmt.Errorf("%w: unknown query path %q", types.ErrDecode, req.Path))
	}
}

func queryErr(err error) abci.ResponseQuery {
	return abci.ResponseQuery{Code: codeForErr(err), Log: err.Error()}
}

func (a *App) queryOK(value []byte, key []byte, prove bool) abci.ResponseQuery {
	resp := abci.ResponseQuery{
		Code:   CodeOK,
		Key:    key,
		Value:  value,
		Height: int64(a.store.Version()),
	}
	if prove && key != nil {
		vp, err := a.store.ProveKey(key)
		if err != nil {
			return queryErr(err)
		}
		proto := vp.Proof.ToProto()
		data, err := proto.Marshal()
		if err != nil {
			return queryErr(err)
		}
		resp.ProofOps = &tmcrypto.ProofOps{
			Ops: []tmcrypto.ProofOp{{Type: "merkle:leaf", Key: key, Data: data}},
		}
	}
	return resp
}

func marshalJSON(v interface{}) (abci.ResponseQuery, []byte, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return queryErr(err), nil, false
	}
	return abci.ResponseQuery{}, raw, true
}

// marketView is the JSON rendering of a market descriptor.
type marketView struct {
	ID            string `json:"id"`
	BaseAsset     string `json:"base_asset"`
	QuoteAsset    string `json:"quote_asset"`
	TickSize      string `json:"tick_size"`
	LotSize       string `json:"lot_size"`
	BasePrecision uint8  `json:"base_precision"`
	Paused        bool   `json:"paused"`
}

func viewOfMarket(m types.Market) marketView {
	return marketView{
		ID:            m.ID,
		BaseAsset:     m.BaseAsset,
		QuoteAsset:    m.QuoteAsset,
		TickSize:      m.TickSize.String(),
		LotSize:       m.LotSize.String(),
		BasePrecision: m.BasePrecision,
		Paused:        m.Paused,
	}
}

// orderView is the JSON rendering of an order record.
type orderView struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Market      string `json:"market"`
	Side        string `json:"side"`
	Kind        string `json:"kind"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	Remaining   string `json:"remaining"`
	TimeInForce string `json:"time_in_force"`
	CreatedAt   uint64 `json:"created_at"`
}

func (a *App) viewOfOrder(o types.Order) (orderView, error) {
	_, prefix, _, _, err := a.chainParams(a.store)
	if err != nil {
		return orderView{}, err
	}
	owner, err := o.Owner.Bech32m(prefix)
	if err != nil {
		return orderView{}, err
	}
	return orderView{
		ID:          o.ID.String(),
		Owner:       owner,
		Market:      o.MarketID,
		Side:        o.Side.String(),
		Kind:        o.Kind.String(),
		Price:       o.Price.String(),
		Quantity:    o.Quantity.String(),
		Remaining:   o.Remaining.String(),
		TimeInForce: o.TIF.String(),
		CreatedAt:   o.CreatedAt,
	}, nil
}

func (a *App) parseAddress(s string) (types.Address, error) {
	_, prefix, _, _, err := a.chainParams(a.store)
	if err != nil {
		return types.Address{}, err
	}
	return types.AddressFromBech32m(s, prefix)
}

func (a *App) queryMarkets() abci.ResponseQuery {
	markets, err := a.markets.All(a.store)
	if err != nil {
		return queryErr(err)
	}
	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, viewOfMarket(m))
	}
	bad, raw, ok := marshalJSON(views)
	if !ok {
		return bad
	}
	return a.queryOK(raw, nil, false)
}

func (a *App) queryMarket(id string, prove bool) abci.ResponseQuery {
	m, err := a.markets.Get(a.store, id)
	if err != nil {
		return queryErr(err)
	}
	bad, raw, ok := marshalJSON(viewOfMarket(m))
	if !ok {
		return bad
	}
	return a.queryOK(raw, codec.MarketKey(id), prove)
}

func (a *App) queryOrder(idStr string, prove bool) abci.ResponseQuery {
	id, err := types.OrderIDFromString(idStr)
	if err != nil {
		return queryErr(err)
	}
	o, err := orderbook.Get(a.store, id)
	if err != nil {
		return queryErr(err)
	}
	view, err := a.viewOfOrder(o)
	if err != nil {
		return queryErr(err)
	}
	bad, raw, ok := marshalJSON(view)
	if !ok {
		return bad
	}
	return a.queryOK(raw, codec.OrderKey(id), prove)
}

func (a *App) queryMarketOrders(rest string) abci.ResponseQuery {
	// <market>/<side>; market ids contain '/', so the side is the last
	// segment.
	cut := strings.LastIndex(rest, "/")
	if cut <= 0 || cut == len(rest)-1 {
		return queryErr(fmt.Errorf("%w: expected <market>/<side>, got %q", types.ErrDecode, rest))
	}
	marketID := rest[:cut]
	side, err := types.SideFromString(rest[cut+1:])
	if err != nil {
		return queryErr(err)
	}
	if _, err := a.markets.Get(a.store, marketID); err != nil {
		return queryErr(err)
	}
	orders, err := orderbook.RestingOrders(a.store, marketID, side)
	if err != nil {
		return queryErr(err)
	}
	return a.respondOrders(orders)
}

func (a *App) queryOwnerOrders(rest string) abci.ResponseQuery {
	// <bech32m>[/<market>]; the address rendering never contains '/',
	// so everything past the first slash is a market filter.
	addrStr, marketID := rest, ""
	if cut := strings.Index(rest, "/"); cut > 0 {
		addrStr, marketID = rest[:cut], rest[cut+1:]
	}
	addr, err := a.parseAddress(addrStr)
	if err != nil {
		return queryErr(err)
	}
	var orders []types.Order
	if marketID == "" {
		orders, err = orderbook.OwnerOrders(a.store, addr)
	} else {
		if _, merr := a.markets.Get(a.store, marketID); merr != nil {
			return queryErr(merr)
		}
		orders, err = orderbook.OwnerMarketOrders(a.store, addr, marketID)
	}
	if err != nil {
		return queryErr(err)
	}
	return a.respondOrders(orders)
}

func (a *App) respondOrders(orders []types.Order) abci.ResponseQuery {
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		view, err := a.viewOfOrder(o)
		if err != nil {
			return queryErr(err)
		}
		views = append(views, view)
	}
	bad, raw, ok := marshalJSON(views)
	if !ok {
		return bad
	}
	return a.queryOK(raw, nil, false)
}

// depthLevelView is one aggregated price level.
type depthLevelView struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	OrderCount uint32 `json:"order_count"`
}

type depthView struct {
	Market string           `json:"market"`
	Bids   []depthLevelView `json:"bids"`
	Asks   []depthLevelView `json:"asks"`
}

func (a *App) queryDepth(marketID string) abci.ResponseQuery {
	if _, err := a.markets.Get(a.store, marketID); err != nil {
		return queryErr(err)
	}
	depth, err := orderbook.BookDepth(a.store, marketID)
	if err != nil {
		return queryErr(err)
	}
	view := depthView{Market: marketID, Bids: []depthLevelView{}, Asks: []depthLevelView{}}
	for _, l := range depth.Bids {
		view.Bids = append(view.Bids, depthLevelView{Price: l.Price.String(), Quantity: l.Quantity.String(), OrderCount: l.OrderCount})
	}
	for _, l := range depth.Asks {
		view.Asks = append(view.Asks, depthLevelView{Price: l.Price.String(), Quantity: l.Quantity.String(), OrderCount: l.OrderCount})
	}
	bad, raw, ok := marshalJSON(view)
	if !ok {
		return bad
	}
	return a.queryOK(raw, nil, false)
}

// tradeView is the JSON rendering of one recorded fill.
type tradeView struct {
	Market       string `json:"market"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	MakerOrderID string `json:"maker_order_id"`
	TakerOrderID string `json:"taker_order_id"`
	MakerSide    string `json:"maker_side"`
	Height       uint64 `json:"height"`
}

// defaultTradeLimit bounds the trades query when no limit segment is
// given.
const defaultTradeLimit = 100

// queryTrades serves the most recent trades of a market, newest first.
// The path is <market>[/<limit>]; market ids contain '/', so the whole
// path is tried as a market id before peeling a numeric limit off the
// end.
func (a *App) queryTrades(rest string) abci.ResponseQuery {
	marketID, limit := rest, defaultTradeLimit
	if _, err := a.markets.Get(a.store, marketID); err != nil {
		cut := strings.LastIndex(rest, "/")
		if cut <= 0 || cut == len(rest)-1 {
			return queryErr(err)
		}
		n, perr := strconv.Atoi(rest[cut+1:])
		if perr != nil || n <= 0 {
			return queryErr(err)
		}
		marketID = rest[:cut]
		if _, err := a.markets.Get(a.store, marketID); err != nil {
			return queryErr(err)
		}
		limit = n
	}
	prefix, err := codec.TradeMarketPrefix(marketID)
	if err != nil {
		return queryErr(err)
	}
	it, err := a.store.Range(prefix)
	if err != nil {
		return queryErr(err)
	}
	defer it.Close()
	views := []tradeView{}
	for ; it.Valid(); it.Next() {
		t, err := codec.DecodeTrade(it.Value())
		if err != nil {
			return queryErr(err)
		}
		views = append(views, tradeView{
			Market:       t.MarketID,
			Price:        t.Price.String(),
			Quantity:     t.Quantity.String(),
			MakerOrderID: t.MakerOrderID.String(),
			TakerOrderID: t.TakerOrderID.String(),
			MakerSide:    t.MakerSide.String(),
			Height:       t.Height,
		})
	}
	if err := it.Error(); err != nil {
		return queryErr(err)
	}
	if len(views) > limit {
		views = views[len(views)-limit:]
	}
	for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
		views[i], views[j] = views[j], views[i]
	}
	bad, raw, ok := marshalJSON(views)
	if !ok {
		return bad
	}
	return a.queryOK(raw, nil, false)
}

type balanceView struct {
	Address  string `json:"address"`
	Asset    string `json:"asset"`
	Balance  string `json:"balance"`
	Escrowed string `json:"escrowed"`
}

func (a *App) queryBalance(rest string, prove bool) abci.ResponseQuery {
	cut := strings.Index(rest, "/")
	if cut <= 0 || cut == len(rest)-1 {
		return queryErr(fmt.Errorf("%w: expected <address>/<asset>, got %q", types.ErrDecode, rest))
	}
	addr, err := a.parseAddress(rest[:cut])
	if err != nil {
		return queryErr(err)
	}
	asset := rest[cut+1:]
	balance, err := a.accounts.Balance(a.store, addr, asset)
	if err != nil {
		return queryErr(err)
	}
	escrowed, err := a.accounts.Escrowed(a.store, addr, asset)
	if err != nil {
		return queryErr(err)
	}
	bad, raw, ok := marshalJSON(balanceView{
		Address:  rest[:cut],
		Asset:    asset,
		Balance:  balance.String(),
		Escrowed: escrowed.String(),
	})
	if !ok {
		return bad
	}
	// Zero balances are deleted keys, so only a funded balance is
	// provable.
	if balance.IsZero() {
		prove = false
	}
	return a.queryOK(raw, codec.BalanceKey(addr, asset), prove)
}

type nonceView struct {
	Address string `json:"address"`
	Nonce   uint32 `json:"nonce"`
}

func (a *App) queryPendingNonce(addrStr string) abci.ResponseQuery {
	addr, err := a.parseAddress(addrStr)
	if err != nil {
		return queryErr(err)
	}
	a.checkMtx.Lock()
	nonce, err := a.accounts.Nonce(a.checkState, addr)
	a.checkMtx.Unlock()
	if err != nil {
		return queryErr(err)
	}
	bad, raw, ok := marshalJSON(nonceView{Address: addrStr, Nonce: nonce})
	if !ok {
		return bad
	}
	return a.queryOK(raw, nil, false)
}
