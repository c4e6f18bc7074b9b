package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/ordsys/sequencer/accounts"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

func setup(t *testing.T) (*storage.Overlay, Registry) {
	t.Helper()
	store, err := storage.NewStore(dbm.NewMemDB())
	require.NoError(t, err)
	state := store.NewOverlay()
	accts := accounts.NewKeeper()
	accts.RegisterAsset(state, "BASE")
	accts.RegisterAsset(state, "QUOTE")
	return state, NewRegistry(accts)
}

func testMarket() types.Market {
	return types.Market{
		ID:            "BASE/QUOTE",
		BaseAsset:     "BASE",
		QuoteAsset:    "QUOTE",
		TickSize:      types.NewUint128(5),
		LotSize:       types.NewUint128(10),
		BasePrecision: 6,
	}
}

func TestCreateAndGet(t *testing.T) {
	state, r := setup(t)
	require.NoError(t, r.Create(state, testMarket()))

	got, err := r.Get(state, "BASE/QUOTE")
	require.NoError(t, err)
	assert.Equal(t, testMarket(), got)

	_, err = r.Get(state, "NO/PAIR")
	assert.ErrorIs(t, err, types.ErrUnknownMarket)
}

func TestCreateDuplicate(t *testing.T) {
	state, r := setup(t)
	require.NoError(t, r.Create(state, testMarket()))
	assert.ErrorIs(t, r.Create(state, testMarket()), types.ErrMarketExists)
}

func TestCreateUnknownAsset(t *testing.T) {
	state, r := setup(t)
	m := testMarket()
	m.ID = "WETH/QUOTE"
	m.BaseAsset = "WETH"
	assert.ErrorIs(t, r.Create(state, m), types.ErrUnknownAsset)
}

func TestCreateInvalidDescriptor(t *testing.T) {
	state, r := setup(t)

	m := testMarket()
	m.TickSize = types.ZeroUint128
	assert.ErrorIs(t, r.Create(state, m), types.ErrInvalidMarket)

	m = testMarket()
	m.ID = "mismatched"
	assert.ErrorIs(t, r.Create(state, m), types.ErrInvalidMarket)
}

func TestUpdate(t *testing.T) {
	state, r := setup(t)
	require.NoError(t, r.Create(state, testMarket()))

	tick := types.NewUint128(25)
	updated, err := r.Update(state, types.UpdateMarket{
		MarketID: "BASE/QUOTE",
		TickSize: &tick,
		Paused:   true,
		FeeAsset: "QUOTE",
	})
	require.NoError(t, err)
	assert.Equal(t, tick, updated.TickSize)
	assert.Equal(t, types.NewUint128(10), updated.LotSize, "lot size untouched")
	assert.True(t, updated.Paused)

	got, err := r.Get(state, "BASE/QUOTE")
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = r.Update(state, types.UpdateMarket{MarketID: "NO/PAIR", FeeAsset: "QUOTE"})
	assert.ErrorIs(t, err, types.ErrUnknownMarket)
}

func TestAll(t *testing.T) {
	state, r := setup(t)
	require.NoError(t, r.Create(state, testMarket()))

	second := testMarket()
	second.ID = "QUOTE/BASE"
	second.BaseAsset = "QUOTE"
	second.QuoteAsset = "BASE"
	require.NoError(t, r.Create(state, second))

	all, err := r.All(state)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "BASE/QUOTE", all[0].ID)
	assert.Equal(t, "QUOTE/BASE", all[1].ID)
}
