// Package market holds the market registry: admission of new markets and
// lookups of their descriptors.
package market

import (
	"fmt"

	"github.com/ordsys/sequencer/accounts"
	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

// Registry validates and stores market descriptors.
type Registry struct {
	assets accounts.Keeper
}

// NewRegistry returns a Registry backed by the asset registry.
func NewRegistry(assets accounts.Keeper) Registry {
	return Registry{assets: assets}
}

// Create admits a new market. The caller is responsible for sudo
// authorization; Create enforces the descriptor invariants.
func (r Registry) Create(state storage.State, m types.Market) error {
	if err := m.ValidateBasic(); err != nil {
		return err
	}
	existing, err := state.Get(codec.MarketKey(m.ID))
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", types.ErrMarketExists, m.ID)
	}
	for _, asset := range []string{m.BaseAsset, m.QuoteAsset} {
		ok, err := r.assets.AssetExists(state, asset)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrUnknownAsset, asset)
		}
	}
	state.Set(codec.MarketKey(m.ID), codec.EncodeMarket(m))
	return nil
}

// Get returns the market descriptor.
func (Registry) Get(state storage.ReadState, marketID string) (types.Market, error) {
	raw, err := state.Get(codec.MarketKey(marketID))
	if err != nil {
		return types.Market{}, err
	}
	if raw == nil {
		return types.Market{}, fmt.Errorf("%w: %s", types.ErrUnknownMarket, marketID)
	}
	return codec.DecodeMarket(raw)
}

// Update applies an UpdateMarket action to the stored descriptor. Tick and
// lot changes apply to future orders only.
func (r Registry) Update(state storage.State, act types.UpdateMarket) (types.Market, error) {
	m, err := r.Get(state, act.MarketID)
	if err != nil {
		return types.Market{}, err
	}
	if act.TickSize != nil {
		m.TickSize = *act.TickSize
	}
	if act.LotSize != nil {
		m.LotSize = *act.LotSize
	}
	m.Paused = act.Paused
	if err := m.ValidateBasic(); err != nil {
		return types.Market{}, err
	}
	state.Set(codec.MarketKey(m.ID), codec.EncodeMarket(m))
	return m, nil
}

// All returns every market descriptor in lexicographic id order.
func (Registry) All(state storage.ReadState) ([]types.Market, error) {
	it, err := state.Range([]byte(codec.MarketPrefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []types.Market
	for ; it.Valid(); it.Next() {
		m, err := codec.DecodeMarket(it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, it.Error()
}
