package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"
	tmproto "github.com/tendermint/tendermint/proto/tendermint/types"
	dbm "github.com/tendermint/tm-db"

	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

const testChainID = "test-chain"

type account struct {
	priv  ed25519.PrivKey
	addr  types.Address
	bech  string
	nonce uint32
}

func newAccount(t *testing.T) *account {
	t.Helper()
	priv := ed25519.GenPrivKey()
	addr := types.AddressFromPubKey(priv.PubKey().Bytes())
	bech, err := addr.Bech32m("seq")
	require.NoError(t, err)
	return &account{priv: priv, addr: addr, bech: bech}
}

// sign produces the wire bytes of a transaction and advances the local
// nonce mirror.
func (a *account) sign(t *testing.T, actions ...types.Action) []byte {
	t.Helper()
	body := types.TransactionBody{
		Params:  types.TxParams{Nonce: a.nonce, ChainID: testChainID},
		Actions: actions,
	}
	bodyBytes, err := codec.EncodeTransactionBody(body)
	require.NoError(t, err)
	sig, err := a.priv.Sign(bodyBytes)
	require.NoError(t, err)
	raw, err := codec.EncodeTransaction(types.Transaction{
		Signature: sig,
		PublicKey: a.priv.PubKey().Bytes(),
		Body:      body,
	})
	require.NoError(t, err)
	a.nonce++
	return raw
}

type fixture struct {
	t     *testing.T
	app   *App
	sudo  *account
	alice *account
	bob   *account
}

func testGenesis(sudo, alice, bob *account) GenesisState {
	return GenesisState{
		ChainID:       testChainID,
		AddressPrefix: "seq",
		Sudo:          sudo.bech,
		SlippageBps:   500,
		Assets:        []string{"BASE", "QUOTE"},
		Balances: []GenesisBalance{
			{Address: alice.bech, Asset: "BASE", Amount: "1000"},
			{Address: alice.bech, Asset: "QUOTE", Amount: "100000"},
			{Address: bob.bech, Asset: "BASE", Amount: "1000"},
			{Address: bob.bech, Asset: "QUOTE", Amount: "100000"},
			{Address: sudo.bech, Asset: "QUOTE", Amount: "1000"},
		},
		Markets: []GenesisMarket{{
			ID:            "BASE/QUOTE",
			BaseAsset:     "BASE",
			QuoteAsset:    "QUOTE",
			TickSize:      "1",
			LotSize:       "1",
			BasePrecision: 6,
		}},
	}
}

func newFixtureWithGenesis(t *testing.T, gs GenesisState, sudo, alice, bob *account) *fixture {
	t.Helper()
	store, err := storage.NewStore(dbm.NewMemDB())
	require.NoError(t, err)
	a := New(store, log.NewNopLogger(), NopMetrics())

	raw, err := json.Marshal(gs)
	require.NoError(t, err)
	a.InitChain(abci.RequestInitChain{ChainId: testChainID, AppStateBytes: raw})
	return &fixture{t: t, app: a, sudo: sudo, alice: alice, bob: bob}
}

func newFixture(t *testing.T) *fixture {
	sudo, alice, bob := newAccount(t), newAccount(t), newAccount(t)
	return newFixtureWithGenesis(t, testGenesis(sudo, alice, bob), sudo, alice, bob)
}

// block delivers the given raw transactions as one block and returns the
// deliver responses and the app hash.
func (f *fixture) block(txs ...[]byte) ([]abci.ResponseDeliverTx, []byte) {
	f.t.Helper()
	height := int64(f.app.store.Version()) + 1
	f.app.BeginBlock(abci.RequestBeginBlock{
		Header: tmproto.Header{ChainID: testChainID, Height: height},
	})
	responses := make([]abci.ResponseDeliverTx, 0, len(txs))
	for _, tx := range txs {
		responses = append(responses, f.app.DeliverTx(abci.RequestDeliverTx{Tx: tx}))
	}
	f.app.EndBlock(abci.RequestEndBlock{Height: height})
	commit := f.app.Commit()
	return responses, commit.Data
}

func (f *fixture) balance(addr types.Address, asset string) types.Uint128 {
	v, err := f.app.accounts.Balance(f.app.store, addr, asset)
	require.NoError(f.t, err)
	return v
}

func (f *fixture) escrowed(addr types.Address, asset string) types.Uint128 {
	v, err := f.app.accounts.Escrowed(f.app.store, addr, asset)
	require.NoError(f.t, err)
	return v
}

func limitBuy(price, qty uint64) types.CreateOrder {
	return types.CreateOrder{
		MarketID: "BASE/QUOTE",
		Side:     types.SideBuy,
		Kind:     types.OrderLimit,
		Price:    types.NewUint128(price),
		Quantity: types.NewUint128(qty),
		TIF:      types.GoodTillCancelled,
		FeeAsset: "QUOTE",
	}
}

func limitSell(price, qty uint64) types.CreateOrder {
	a := limitBuy(price, qty)
	a.Side = types.SideSell
	return a
}

func TestInitChainSetsAppHash(t *testing.T) {
	f := newFixture(t)
	info := f.app.Info(abci.RequestInfo{})
	assert.Equal(t, int64(0), info.LastBlockHeight)
	assert.NotEmpty(t, info.LastBlockAppHash)
}

func TestSimpleCrossEndToEnd(t *testing.T) {
	f := newFixture(t)

	responses, _ := f.block(
		f.alice.sign(t, limitSell(100, 10)),
		f.bob.sign(t, limitBuy(100, 10)),
	)
	require.Equal(t, CodeOK, responses[0].Code, responses[0].Log)
	require.Equal(t, CodeOK, responses[1].Code, responses[1].Log)

	// Alice sold 10 base for 1000 quote.
	assert.Equal(t, types.NewUint128(990), f.balance(f.alice.addr, "BASE"))
	assert.Equal(t, types.NewUint128(101000), f.balance(f.alice.addr, "QUOTE"))
	assert.Equal(t, types.NewUint128(1010), f.balance(f.bob.addr, "BASE"))
	assert.Equal(t, types.NewUint128(99000), f.balance(f.bob.addr, "QUOTE"))
	assert.True(t, f.escrowed(f.alice.addr, "BASE").IsZero())
	assert.True(t, f.escrowed(f.bob.addr, "QUOTE").IsZero())

	// A fill event and a trade record exist.
	var filled bool
	for _, e := range responses[1].Events {
		if e.Type == EventOrderFilled {
			filled = true
		}
	}
	assert.True(t, filled)

	trades := f.app.Query(abci.RequestQuery{Path: "orderbook/trades/BASE/QUOTE"})
	require.Equal(t, CodeOK, trades.Code, trades.Log)
	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(trades.Value, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "100", views[0]["price"])
	assert.Equal(t, "10", views[0]["quantity"])
}

func TestDeterministicAppHash(t *testing.T) {
	sudo, alice, bob := newAccount(t), newAccount(t), newAccount(t)
	gs := testGenesis(sudo, alice, bob)

	f1 := newFixtureWithGenesis(t, gs, sudo, alice, bob)
	txs := [][]byte{
		alice.sign(t, limitSell(100, 10)),
		bob.sign(t, limitBuy(105, 25)),
		alice.sign(t, limitSell(103, 5)),
	}
	_, h1 := f1.block(txs...)

	// A second instance replaying the identical block must land on the
	// identical app hash.
	f2 := newFixtureWithGenesis(t, gs, sudo, alice, bob)
	_, h2 := f2.block(txs...)
	assert.Equal(t, h1, h2)
}

func TestRestingBuyKeepsEscrow(t *testing.T) {
	f := newFixture(t)

	responses, _ := f.block(f.bob.sign(t, limitBuy(100, 10)))
	require.Equal(t, CodeOK, responses[0].Code, responses[0].Log)

	assert.Equal(t, types.NewUint128(1000), f.escrowed(f.bob.addr, "QUOTE"))
	assert.Equal(t, types.NewUint128(99000), f.balance(f.bob.addr, "QUOTE"))
}

func TestCancelOrderReleasesEscrow(t *testing.T) {
	f := newFixture(t)

	responses, _ := f.block(f.bob.sign(t, limitBuy(100, 10)))
	require.Equal(t, CodeOK, responses[0].Code)
	orderID := types.NewOrderID(f.bob.addr, 0, 0)

	// A stranger cannot cancel it.
	responses, _ = f.block(f.alice.sign(t, types.CancelOrder{OrderID: orderID, FeeAsset: "QUOTE"}))
	assert.Equal(t, CodeAuth, responses[0].Code)

	// The order survived the failed cancel.
	resp := f.app.Query(abci.RequestQuery{Path: "orderbook/order/" + orderID.String()})
	require.Equal(t, CodeOK, resp.Code, resp.Log)

	// The owner can.
	responses, _ = f.block(f.bob.sign(t, types.CancelOrder{OrderID: orderID, FeeAsset: "QUOTE"}))
	require.Equal(t, CodeOK, responses[0].Code, responses[0].Log)
	assert.True(t, f.escrowed(f.bob.addr, "QUOTE").IsZero())
	assert.Equal(t, types.NewUint128(100000), f.balance(f.bob.addr, "QUOTE"))

	resp = f.app.Query(abci.RequestQuery{Path: "orderbook/order/" + orderID.String()})
	assert.Equal(t, CodeUnknownOrder, resp.Code)
}

func TestFailedActionChargesFeeAndBumpsNonce(t *testing.T) {
	sudo, alice, bob := newAccount(t), newAccount(t), newAccount(t)
	gs := testGenesis(sudo, alice, bob)
	gs.FeeCollector = sudo.bech
	gs.Fees = []GenesisFee{{
		Action:     "create_order",
		BaseFee:    "10",
		PerByteFee: "0",
		Asset:      "QUOTE",
	}}
	f := newFixtureWithGenesis(t, gs, sudo, alice, bob)

	collectorBefore := f.balance(sudo.addr, "QUOTE")

	// Unknown market: the action fails after the fee is charged.
	bad := limitBuy(100, 10)
	bad.MarketID = "NO/PAIR"
	responses, _ := f.block(alice.sign(t, bad))
	assert.Equal(t, CodeUnknownMarket, responses[0].Code)

	collectorAfter := f.balance(sudo.addr, "QUOTE")
	diff, err := collectorAfter.Sub(collectorBefore)
	require.NoError(t, err)
	assert.Equal(t, types.NewUint128(10), diff, "fee kept despite rollback")
	assert.Equal(t, types.NewUint128(99990), f.balance(alice.addr, "QUOTE"))

	// The nonce advanced, so the next transaction uses the next one.
	responses, _ = f.block(alice.sign(t, limitBuy(100, 10)))
	assert.Equal(t, CodeOK, responses[0].Code, responses[0].Log)
}

func TestFeeChargeUsesPreTransactionBalance(t *testing.T) {
	sudo, alice, bob := newAccount(t), newAccount(t), newAccount(t)
	carol := newAccount(t)
	gs := testGenesis(sudo, alice, bob)
	gs.FeeCollector = sudo.bech
	gs.Fees = []GenesisFee{{
		Action:     "transfer",
		BaseFee:    "10",
		PerByteFee: "0",
		Asset:      "QUOTE",
	}}
	gs.Balances = append(gs.Balances, GenesisBalance{Address: carol.bech, Asset: "BASE", Amount: "100"})
	f := newFixtureWithGenesis(t, gs, sudo, alice, bob)

	// A resting bid carol's sell will cross against.
	responses, _ := f.block(bob.sign(t, limitBuy(100, 10)))
	require.Equal(t, CodeOK, responses[0].Code, responses[0].Log)

	// Carol starts with zero quote. The sell fill would credit her the
	// quote the transfer fee needs, and the last action then fails the
	// whole sequence; the fee must come out of the balance the
	// transaction started with, not out of rolled-back fills.
	responses, _ = f.block(carol.sign(t,
		limitSell(100, 10),
		types.Transfer{Recipient: alice.addr, Asset: "QUOTE", Amount: types.NewUint128(1), FeeAsset: "QUOTE"},
		types.Transfer{Recipient: alice.addr, Asset: "NOPE", Amount: types.NewUint128(1), FeeAsset: "QUOTE"},
	))
	require.Equal(t, CodeInsufficientFee, responses[0].Code, responses[0].Log)

	// Nothing executed and nothing was charged, but the slot was
	// consumed: the next nonce works.
	assert.Equal(t, types.NewUint128(100), f.balance(carol.addr, "BASE"))
	assert.True(t, f.balance(carol.addr, "QUOTE").IsZero())
	assert.True(t, f.escrowed(carol.addr, "BASE").IsZero())
	assert.Equal(t, types.NewUint128(1000), f.escrowed(bob.addr, "QUOTE"))

	responses, _ = f.block(carol.sign(t, limitSell(100, 5)))
	assert.Equal(t, CodeOK, responses[0].Code, responses[0].Log)
}

func TestMempoolViewConcurrentAccess(t *testing.T) {
	f := newFixture(t)

	txs := make([][]byte, 0, 32)
	for i := 0; i < 32; i++ {
		txs = append(txs, f.alice.sign(t, limitBuy(100, 1)))
	}

	// CheckTx arrives on the mempool connection while the pending-nonce
	// query reads the same view from the query connection.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, tx := range txs {
			f.app.CheckTx(abci.RequestCheckTx{Tx: tx, Type: abci.CheckTxType_New})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < len(txs); i++ {
			f.app.Query(abci.RequestQuery{Path: "accounts/pending_nonce/" + f.alice.bech})
		}
	}()
	wg.Wait()

	resp := f.app.Query(abci.RequestQuery{Path: "accounts/pending_nonce/" + f.alice.bech})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	var nonce nonceView
	require.NoError(t, json.Unmarshal(resp.Value, &nonce))
	assert.Equal(t, uint32(len(txs)), nonce.Nonce)
	f.alice.nonce = 0
}

func TestNonceSequencing(t *testing.T) {
	f := newFixture(t)

	// Reusing a consumed nonce is rejected and changes nothing.
	first := f.alice.sign(t, limitSell(100, 10))
	responses, _ := f.block(first)
	require.Equal(t, CodeOK, responses[0].Code)

	responses, _ = f.block(first)
	assert.Equal(t, CodeNonce, responses[0].Code)

	// A gap is also rejected.
	f.alice.nonce = 5
	responses, _ = f.block(f.alice.sign(t, limitSell(101, 10)))
	assert.Equal(t, CodeNonce, responses[0].Code)
	f.alice.nonce = 1
}

func TestWrongChainIDRejected(t *testing.T) {
	f := newFixture(t)

	body := types.TransactionBody{
		Params:  types.TxParams{Nonce: 0, ChainID: "other-chain"},
		Actions: []types.Action{limitBuy(100, 10)},
	}
	bodyBytes, err := codec.EncodeTransactionBody(body)
	require.NoError(t, err)
	sig, err := f.alice.priv.Sign(bodyBytes)
	require.NoError(t, err)
	raw, err := codec.EncodeTransaction(types.Transaction{
		Signature: sig,
		PublicKey: f.alice.priv.PubKey().Bytes(),
		Body:      body,
	})
	require.NoError(t, err)

	responses, _ := f.block(raw)
	assert.Equal(t, CodeAuth, responses[0].Code)
}

func TestSudoGating(t *testing.T) {
	f := newFixture(t)

	create := types.CreateMarket{
		MarketID:   "QUOTE/BASE",
		BaseAsset:  "QUOTE",
		QuoteAsset: "BASE",
		TickSize:   types.NewUint128(1),
		LotSize:    types.NewUint128(1),
		FeeAsset:   "QUOTE",
	}

	responses, _ := f.block(f.alice.sign(t, create))
	assert.Equal(t, CodeAuth, responses[0].Code)

	responses, _ = f.block(f.sudo.sign(t, create))
	require.Equal(t, CodeOK, responses[0].Code, responses[0].Log)

	resp := f.app.Query(abci.RequestQuery{Path: "orderbook/markets"})
	require.Equal(t, CodeOK, resp.Code)
	var markets []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Value, &markets))
	assert.Len(t, markets, 2)
}

func TestPausedMarketRejectsOrders(t *testing.T) {
	f := newFixture(t)

	responses, _ := f.block(f.sudo.sign(t, types.UpdateMarket{
		MarketID: "BASE/QUOTE",
		Paused:   true,
		FeeAsset: "QUOTE",
	}))
	require.Equal(t, CodeOK, responses[0].Code, responses[0].Log)

	responses, _ = f.block(f.alice.sign(t, limitSell(100, 10)))
	assert.Equal(t, CodeMarketPaused, responses[0].Code)
}

func TestTransferAction(t *testing.T) {
	f := newFixture(t)

	responses, _ := f.block(f.alice.sign(t, types.Transfer{
		Recipient: f.bob.addr,
		Asset:     "BASE",
		Amount:    types.NewUint128(250),
		FeeAsset:  "QUOTE",
	}))
	require.Equal(t, CodeOK, responses[0].Code, responses[0].Log)
	assert.Equal(t, types.NewUint128(750), f.balance(f.alice.addr, "BASE"))
	assert.Equal(t, types.NewUint128(1250), f.balance(f.bob.addr, "BASE"))
}

func TestCheckTxAdmission(t *testing.T) {
	f := newFixture(t)

	good := f.alice.sign(t, limitBuy(100, 10))
	resp := f.app.CheckTx(abci.RequestCheckTx{Tx: good, Type: abci.CheckTxType_New})
	assert.Equal(t, CodeOK, resp.Code, resp.Log)

	// The mempool view advanced: the next nonce is now expected.
	next := f.alice.sign(t, limitBuy(100, 10))
	resp = f.app.CheckTx(abci.RequestCheckTx{Tx: next, Type: abci.CheckTxType_New})
	assert.Equal(t, CodeOK, resp.Code, resp.Log)

	resp = f.app.CheckTx(abci.RequestCheckTx{Tx: []byte("garbage"), Type: abci.CheckTxType_New})
	assert.Equal(t, CodeDecode, resp.Code)

	// Neither admission changed committed state.
	assert.Equal(t, types.NewUint128(100000), f.balance(f.bob.addr, "QUOTE"))
	f.alice.nonce = 0
}

func TestQuerySurface(t *testing.T) {
	f := newFixture(t)

	responses, _ := f.block(
		f.alice.sign(t, limitSell(105, 10)),
		f.bob.sign(t, limitBuy(100, 15)),
	)
	for _, r := range responses {
		require.Equal(t, CodeOK, r.Code, r.Log)
	}

	resp := f.app.Query(abci.RequestQuery{Path: "orderbook/depth/BASE/QUOTE"})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	var depth struct {
		Bids []map[string]interface{} `json:"bids"`
		Asks []map[string]interface{} `json:"asks"`
	}
	require.NoError(t, json.Unmarshal(resp.Value, &depth))
	require.Len(t, depth.Bids, 1)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, "100", depth.Bids[0]["price"])
	assert.Equal(t, "105", depth.Asks[0]["price"])

	resp = f.app.Query(abci.RequestQuery{Path: "orderbook/orders/owner/" + f.bob.bech})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	var orders []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Value, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "15", orders[0]["remaining"])

	resp = f.app.Query(abci.RequestQuery{Path: "orderbook/orders/owner/" + f.bob.bech + "/BASE/QUOTE"})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	require.NoError(t, json.Unmarshal(resp.Value, &orders))
	require.Len(t, orders, 1)

	resp = f.app.Query(abci.RequestQuery{Path: "accounts/pending_nonce/" + f.bob.bech})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	var nonce nonceView
	require.NoError(t, json.Unmarshal(resp.Value, &nonce))
	assert.Equal(t, uint32(1), nonce.Nonce)

	resp = f.app.Query(abci.RequestQuery{Path: "accounts/balance/" + f.bob.bech + "/QUOTE"})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	var bal balanceView
	require.NoError(t, json.Unmarshal(resp.Value, &bal))
	assert.Equal(t, "1500", bal.Escrowed)

	resp = f.app.Query(abci.RequestQuery{Path: "bogus/path"})
	assert.Equal(t, CodeDecode, resp.Code)

	resp = f.app.Query(abci.RequestQuery{Path: "orderbook/markets", Height: 99})
	assert.Equal(t, CodePastHeight, resp.Code)
}

func TestQueryTradesLimitNewestFirst(t *testing.T) {
	f := newFixture(t)

	for _, price := range []uint64{100, 101, 102} {
		responses, _ := f.block(
			f.alice.sign(t, limitSell(price, 1)),
			f.bob.sign(t, limitBuy(price, 1)),
		)
		for _, r := range responses {
			require.Equal(t, CodeOK, r.Code, r.Log)
		}
	}

	resp := f.app.Query(abci.RequestQuery{Path: "orderbook/trades/BASE/QUOTE/2"})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Value, &views))
	require.Len(t, views, 2)
	assert.Equal(t, "102", views[0]["price"])
	assert.Equal(t, "101", views[1]["price"])

	// Without a limit segment the default covers everything here, still
	// newest first.
	resp = f.app.Query(abci.RequestQuery{Path: "orderbook/trades/BASE/QUOTE"})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	require.NoError(t, json.Unmarshal(resp.Value, &views))
	require.Len(t, views, 3)
	assert.Equal(t, "102", views[0]["price"])
}

func TestQueryWithProof(t *testing.T) {
	f := newFixture(t)

	resp := f.app.Query(abci.RequestQuery{Path: "orderbook/market/BASE/QUOTE", Prove: true})
	require.Equal(t, CodeOK, resp.Code, resp.Log)
	require.NotNil(t, resp.ProofOps)
	require.Len(t, resp.ProofOps.Ops, 1)
	assert.Equal(t, []byte(codec.MarketPrefix+"BASE/QUOTE"), resp.ProofOps.Ops[0].Key)
}

func TestMarketOrderSlippageEscrow(t *testing.T) {
	f := newFixture(t)

	responses, _ := f.block(f.alice.sign(t, limitSell(100, 10)))
	require.Equal(t, CodeOK, responses[0].Code)

	market := types.CreateOrder{
		MarketID: "BASE/QUOTE",
		Side:     types.SideBuy,
		Kind:     types.OrderMarket,
		Quantity: types.NewUint128(10),
		TIF:      types.ImmediateOrCancel,
		FeeAsset: "QUOTE",
	}
	responses, _ = f.block(f.bob.sign(t, market))
	require.Equal(t, CodeOK, responses[0].Code, responses[0].Log)

	// Fill happened at the resting price; the slippage headroom was
	// released back in full.
	assert.Equal(t, types.NewUint128(1010), f.balance(f.bob.addr, "BASE"))
	assert.Equal(t, types.NewUint128(99000), f.balance(f.bob.addr, "QUOTE"))
	assert.True(t, f.escrowed(f.bob.addr, "QUOTE").IsZero())
}
