package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/ordsys/sequencer/accounts"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

var testMarket = types.Market{
	ID:         "BASE/QUOTE",
	BaseAsset:  "BASE",
	QuoteAsset: "QUOTE",
	TickSize:   u128(1),
	LotSize:    u128(1),
}

type engineFixture struct {
	t      *testing.T
	state  *storage.Overlay
	accts  accounts.Keeper
	engine Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store, err := storage.NewStore(dbm.NewMemDB())
	require.NoError(t, err)
	accts := accounts.NewKeeper()
	return &engineFixture{
		t:      t,
		state:  store.NewOverlay(),
		accts:  accts,
		engine: NewEngine(accts),
	}
}

func (f *engineFixture) fund(owner types.Address, asset string, amount uint64) {
	require.NoError(f.t, f.accts.AddBalance(f.state, owner, asset, u128(amount)))
}

// escrowFor mirrors the executor's escrow placement: quote notional at the
// limit price for buys, base quantity for sells.
func (f *engineFixture) escrowFor(o *types.Order) {
	if o.Side == types.SideBuy {
		notional, ok := o.Price.Mul(o.Remaining)
		require.True(f.t, ok)
		require.NoError(f.t, f.accts.Escrow(f.state, o.Owner, testMarket.QuoteAsset, notional))
		return
	}
	require.NoError(f.t, f.accts.Escrow(f.state, o.Owner, testMarket.BaseAsset, o.Remaining))
}

func (f *engineFixture) submit(o *types.Order) (types.FillReport, types.MatchStatus) {
	f.escrowFor(o)
	report, status, err := f.engine.Submit(f.state, testMarket, o)
	require.NoError(f.t, err)
	return report, status
}

func (f *engineFixture) balance(owner types.Address, asset string) types.Uint128 {
	v, err := f.accts.Balance(f.state, owner, asset)
	require.NoError(f.t, err)
	return v
}

func (f *engineFixture) escrowed(owner types.Address, asset string) types.Uint128 {
	v, err := f.accts.Escrowed(f.state, owner, asset)
	require.NoError(f.t, err)
	return v
}

func TestSimpleCross(t *testing.T) {
	f := newEngineFixture(t)
	maker, taker := addr(1), addr(2)
	f.fund(maker, "BASE", 10)
	f.fund(taker, "QUOTE", 1000)

	sell := newOrder(maker, types.SideSell, 100, 10)
	report, status := f.submit(sell)
	assert.Empty(t, report)
	assert.Equal(t, types.StatusResting, status)

	buy := newOrder(taker, types.SideBuy, 100, 10)
	report, status = f.submit(buy)
	require.Len(t, report, 1)
	assert.Equal(t, types.StatusFilled, status)
	assert.Equal(t, u128(100), report[0].Price)
	assert.Equal(t, u128(10), report[0].Quantity)
	assert.Equal(t, sell.ID, report[0].MakerOrderID)
	assert.Equal(t, buy.ID, report[0].TakerOrderID)

	// Settlement: taker paid 1000 quote, got 10 base; maker the reverse.
	assert.Equal(t, u128(10), f.balance(taker, "BASE"))
	assert.True(t, f.balance(taker, "QUOTE").IsZero())
	assert.Equal(t, u128(1000), f.balance(maker, "QUOTE"))
	assert.True(t, f.balance(maker, "BASE").IsZero())
	assert.True(t, f.escrowed(maker, "BASE").IsZero())
	assert.True(t, f.escrowed(taker, "QUOTE").IsZero())

	// The book is empty again.
	best, err := Best(f.state, testMarket.ID, types.SideSell)
	require.NoError(t, err)
	assert.Nil(t, best)
}

func TestMakerPriceRule(t *testing.T) {
	f := newEngineFixture(t)
	maker, taker := addr(1), addr(2)
	f.fund(maker, "BASE", 10)
	f.fund(taker, "QUOTE", 1000)

	f.submit(newOrder(maker, types.SideSell, 90, 10))

	buy := newOrder(taker, types.SideBuy, 100, 10)
	report, status := f.submit(buy)
	require.Len(t, report, 1)
	assert.Equal(t, types.StatusFilled, status)
	assert.Equal(t, u128(90), report[0].Price, "resting order dictates the price")

	// Taker escrowed 1000 but the fill only consumed 900; the engine
	// leaves the difference in escrow for the caller to release.
	assert.Equal(t, u128(100), f.escrowed(taker, "QUOTE"))
	assert.Equal(t, u128(900), f.balance(maker, "QUOTE"))
}

func TestPriceTimePriority(t *testing.T) {
	f := newEngineFixture(t)
	m1, m2, m3, taker := addr(1), addr(2), addr(3), addr(4)
	for _, a := range []types.Address{m1, m2, m3} {
		f.fund(a, "BASE", 10)
	}
	f.fund(taker, "QUOTE", 10000)

	first := newOrder(m1, types.SideSell, 100, 10)
	second := newOrder(m2, types.SideSell, 100, 10)
	cheaper := newOrder(m3, types.SideSell, 99, 10)
	f.submit(first)
	f.submit(second)
	f.submit(cheaper)

	buy := newOrder(taker, types.SideBuy, 100, 25)
	report, status := f.submit(buy)
	require.Len(t, report, 3)
	assert.Equal(t, types.StatusFilled, status)

	// Best price first, then arrival order within the 100 level.
	assert.Equal(t, cheaper.ID, report[0].MakerOrderID)
	assert.Equal(t, first.ID, report[1].MakerOrderID)
	assert.Equal(t, second.ID, report[2].MakerOrderID)
	assert.Equal(t, u128(10), report[0].Quantity)
	assert.Equal(t, u128(10), report[1].Quantity)
	assert.Equal(t, u128(5), report[2].Quantity)

	// The partially filled maker still rests with the remainder.
	rest, err := Get(f.state, second.ID)
	require.NoError(t, err)
	assert.Equal(t, u128(5), rest.Remaining)
}

func TestPartialFillRestsRemainder(t *testing.T) {
	f := newEngineFixture(t)
	maker, taker := addr(1), addr(2)
	f.fund(maker, "BASE", 4)
	f.fund(taker, "QUOTE", 1000)

	f.submit(newOrder(maker, types.SideSell, 100, 4))

	buy := newOrder(taker, types.SideBuy, 100, 10)
	report, status := f.submit(buy)
	require.Len(t, report, 1)
	assert.Equal(t, types.StatusResting, status)
	assert.Equal(t, u128(6), buy.Remaining)

	best, err := Best(f.state, testMarket.ID, types.SideBuy)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, buy.ID, best.ID)
	assert.Equal(t, u128(6), best.Remaining)
}

func TestFillOrKillInsufficientLiquidity(t *testing.T) {
	f := newEngineFixture(t)
	maker, taker := addr(1), addr(2)
	f.fund(maker, "BASE", 5)
	f.fund(taker, "QUOTE", 1000)

	f.submit(newOrder(maker, types.SideSell, 100, 5))

	buy := newOrder(taker, types.SideBuy, 100, 10)
	buy.TIF = types.FillOrKill
	report, status := f.submit(buy)
	assert.Empty(t, report)
	assert.Equal(t, types.StatusCancelledFOK, status)

	// Nothing moved: the maker still rests untouched and the taker's
	// escrow is intact for the caller to release.
	asks, err := RestingOrders(f.state, testMarket.ID, types.SideSell)
	require.NoError(t, err)
	require.Len(t, asks, 1)
	assert.Equal(t, u128(5), asks[0].Remaining)
	assert.Equal(t, u128(1000), f.escrowed(taker, "QUOTE"))
}

func TestFillOrKillExactLiquidity(t *testing.T) {
	f := newEngineFixture(t)
	m1, m2, taker := addr(1), addr(2), addr(3)
	f.fund(m1, "BASE", 6)
	f.fund(m2, "BASE", 4)
	f.fund(taker, "QUOTE", 1000)

	f.submit(newOrder(m1, types.SideSell, 99, 6))
	f.submit(newOrder(m2, types.SideSell, 100, 4))

	buy := newOrder(taker, types.SideBuy, 100, 10)
	buy.TIF = types.FillOrKill
	report, status := f.submit(buy)
	require.Len(t, report, 2)
	assert.Equal(t, types.StatusFilled, status)
}

func TestImmediateOrCancelNoMatch(t *testing.T) {
	f := newEngineFixture(t)
	taker := addr(1)
	f.fund(taker, "QUOTE", 1000)

	buy := newOrder(taker, types.SideBuy, 100, 10)
	buy.TIF = types.ImmediateOrCancel
	report, status := f.submit(buy)
	assert.Empty(t, report)
	assert.Equal(t, types.StatusCancelledIOC, status)

	// Nothing rests.
	best, err := Best(f.state, testMarket.ID, types.SideBuy)
	require.NoError(t, err)
	assert.Nil(t, best)
}

func TestImmediateOrCancelPartial(t *testing.T) {
	f := newEngineFixture(t)
	maker, taker := addr(1), addr(2)
	f.fund(maker, "BASE", 4)
	f.fund(taker, "QUOTE", 1000)

	f.submit(newOrder(maker, types.SideSell, 100, 4))

	buy := newOrder(taker, types.SideBuy, 100, 10)
	buy.TIF = types.ImmediateOrCancel
	report, status := f.submit(buy)
	require.Len(t, report, 1)
	assert.Equal(t, types.StatusFilled, status)
	assert.Equal(t, u128(4), report[0].Quantity)

	// The unfilled remainder is discarded, not rested.
	best, err := Best(f.state, testMarket.ID, types.SideBuy)
	require.NoError(t, err)
	assert.Nil(t, best)
}

func TestMarketOrderAgainstEmptyBook(t *testing.T) {
	f := newEngineFixture(t)
	taker := addr(1)
	f.fund(taker, "BASE", 10)

	sell := newOrder(taker, types.SideSell, 0, 10)
	sell.Kind = types.OrderMarket
	sell.Price = types.ZeroUint128
	sell.TIF = types.ImmediateOrCancel
	report, status := f.submit(sell)
	assert.Empty(t, report)
	assert.Equal(t, types.StatusRejectedNotTradable, status)
}

func TestMarketSellSweepsBids(t *testing.T) {
	f := newEngineFixture(t)
	maker, taker := addr(1), addr(2)
	f.fund(maker, "QUOTE", 2000)
	f.fund(taker, "BASE", 10)

	f.submit(newOrder(maker, types.SideBuy, 100, 10))

	sell := newOrder(taker, types.SideSell, 0, 10)
	sell.Kind = types.OrderMarket
	sell.Price = types.ZeroUint128
	sell.TIF = types.ImmediateOrCancel
	report, status := f.submit(sell)
	require.Len(t, report, 1)
	assert.Equal(t, types.StatusFilled, status)
	assert.Equal(t, u128(100), report[0].Price)
	assert.Equal(t, u128(1000), f.balance(taker, "QUOTE"))
}

func TestNoCrossLeavesBookAlone(t *testing.T) {
	f := newEngineFixture(t)
	maker, taker := addr(1), addr(2)
	f.fund(maker, "BASE", 10)
	f.fund(taker, "QUOTE", 950)

	f.submit(newOrder(maker, types.SideSell, 100, 10))

	// Bid below the ask rests without trading.
	buy := newOrder(taker, types.SideBuy, 95, 10)
	report, status := f.submit(buy)
	assert.Empty(t, report)
	assert.Equal(t, types.StatusResting, status)

	bids, err := RestingOrders(f.state, testMarket.ID, types.SideBuy)
	require.NoError(t, err)
	asks, err := RestingOrders(f.state, testMarket.ID, types.SideSell)
	require.NoError(t, err)
	assert.Len(t, bids, 1)
	assert.Len(t, asks, 1)
}

func TestTickLotValidation(t *testing.T) {
	f := newEngineFixture(t)
	taker := addr(1)
	f.fund(taker, "QUOTE", 100000)

	coarse := testMarket
	coarse.TickSize = u128(5)
	coarse.LotSize = u128(10)

	offTick := newOrder(taker, types.SideBuy, 101, 10)
	require.NoError(t, f.accts.Escrow(f.state, taker, "QUOTE", u128(1010)))
	_, _, err := f.engine.Submit(f.state, coarse, offTick)
	assert.ErrorIs(t, err, types.ErrInvalidOrder)

	offLot := newOrder(taker, types.SideBuy, 100, 15)
	_, _, err = f.engine.Submit(f.state, coarse, offLot)
	assert.ErrorIs(t, err, types.ErrInvalidOrder)
}

// Conservation: matching moves value between accounts but never creates
// or destroys it.
func TestConservationAcrossMatching(t *testing.T) {
	f := newEngineFixture(t)
	accountsUnderTest := []types.Address{addr(1), addr(2), addr(3)}
	f.fund(addr(1), "BASE", 100)
	f.fund(addr(2), "QUOTE", 50000)
	f.fund(addr(3), "QUOTE", 50000)

	total := func(asset string) types.Uint128 {
		sum := types.ZeroUint128
		for _, a := range accountsUnderTest {
			var err error
			sum, err = sum.Add(f.balance(a, asset))
			require.NoError(t, err)
			sum, err = sum.Add(f.escrowed(a, asset))
			require.NoError(t, err)
		}
		return sum
	}
	baseBefore, quoteBefore := total("BASE"), total("QUOTE")

	f.submit(newOrder(addr(1), types.SideSell, 100, 60))
	f.submit(newOrder(addr(2), types.SideBuy, 100, 25))
	f.submit(newOrder(addr(3), types.SideBuy, 105, 50))
	f.submit(newOrder(addr(1), types.SideSell, 95, 40))

	assert.Equal(t, baseBefore, total("BASE"))
	assert.Equal(t, quoteBefore, total("QUOTE"))
}
