package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

// GenesisState is the chain's initial state document. It travels as JSON
// inside the consensus genesis file's app_state field (or standalone via
// LoadGenesis for tooling and tests).
type GenesisState struct {
	ChainID       string           `json:"chain_id"`
	AddressPrefix string           `json:"address_prefix"`
	Sudo          string           `json:"sudo"`
	FeeCollector  string           `json:"fee_collector"`
	Assets        []string         `json:"assets"`
	Balances      []GenesisBalance `json:"balances"`
	Fees          []GenesisFee     `json:"fees"`
	Markets       []GenesisMarket  `json:"markets"`
	SlippageBps   uint64           `json:"slippage_bps"`
}

// GenesisBalance funds one (address, asset) at genesis.
type GenesisBalance struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// GenesisFee seeds one fee schedule entry.
type GenesisFee struct {
	Action     string `json:"action"`
	BaseFee    string `json:"base_fee"`
	PerByteFee string `json:"per_byte_fee"`
	Asset      string `json:"asset"`
}

// GenesisMarket creates a market at genesis.
type GenesisMarket struct {
	ID            string `json:"id"`
	BaseAsset     string `json:"base_asset"`
	QuoteAsset    string `json:"quote_asset"`
	TickSize      string `json:"tick_size"`
	LotSize       string `json:"lot_size"`
	BasePrecision uint8  `json:"base_precision"`
}

// DefaultGenesis returns a minimal development genesis.
func DefaultGenesis(chainID string) GenesisState {
	return GenesisState{
		ChainID:       chainID,
		AddressPrefix: "seq",
		SlippageBps:   500,
	}
}

// parseGenesis decodes the app_state document handed over by InitChain.
func parseGenesis(raw []byte) (GenesisState, error) {
	var gs GenesisState
	if err := json.Unmarshal(raw, &gs); err != nil {
		return GenesisState{}, fmt.Errorf("parsing genesis app state: %w", err)
	}
	return gs, nil
}

// LoadGenesis reads a genesis document from disk.
func LoadGenesis(path string) (GenesisState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return GenesisState{}, fmt.Errorf("reading genesis file: %w", err)
	}
	var gs GenesisState
	if err := json.Unmarshal(raw, &gs); err != nil {
		return GenesisState{}, fmt.Errorf("parsing genesis file: %w", err)
	}
	return gs, nil
}

// SaveGenesis writes the document to disk.
func (gs GenesisState) SaveGenesis(path string) error {
	raw, err := json.MarshalIndent(gs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

func actionTagFromName(name string) (types.ActionTag, error) {
	for tag := types.TagTransfer; tag <= types.TagSudoChange; tag++ {
		if tag.String() == name {
			return tag, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action name %q", types.ErrDecode, name)
}

// applyGenesis materializes the document into the state overlay.
func (a *App) applyGenesis(state *storage.Overlay, gs GenesisState) error {
	if gs.ChainID == "" {
		return fmt.Errorf("%w: genesis chain id must be set", types.ErrDecode)
	}
	prefix := gs.AddressPrefix
	if prefix == "" {
		prefix = "seq"
	}
	state.Set([]byte(codec.ParamsPrefixKey), []byte(prefix))
	state.Set([]byte(codec.ParamsChainIDKey), []byte(gs.ChainID))
	state.Set([]byte(codec.ParamsSlippageKey), codec.EncodeCounter(gs.SlippageBps))

	sudo, err := types.AddressFromBech32m(gs.Sudo, prefix)
	if err != nil {
		return fmt.Errorf("genesis sudo address: %w", err)
	}
	state.Set([]byte(codec.ParamsSudoKey), codec.EncodeAddress(sudo))

	collector := sudo
	if gs.FeeCollector != "" {
		if collector, err = types.AddressFromBech32m(gs.FeeCollector, prefix); err != nil {
			return fmt.Errorf("genesis fee collector: %w", err)
		}
	}
	a.fees.SetCollector(state, collector)

	for _, asset := range gs.Assets {
		a.accounts.RegisterAsset(state, asset)
	}
	for _, b := range gs.Balances {
		addr, err := types.AddressFromBech32m(b.Address, prefix)
		if err != nil {
			return fmt.Errorf("genesis balance address %q: %w", b.Address, err)
		}
		amount, err := types.Uint128FromString(b.Amount)
		if err != nil {
			return fmt.Errorf("genesis balance amount %q: %w", b.Amount, err)
		}
		if err := a.accounts.AddBalance(state, addr, b.Asset, amount); err != nil {
			return err
		}
	}
	for _, f := range gs.Fees {
		tag, err := actionTagFromName(f.Action)
		if err != nil {
			return err
		}
		baseFee, err := types.Uint128FromString(f.BaseFee)
		if err != nil {
			return fmt.Errorf("genesis base fee %q: %w", f.BaseFee, err)
		}
		perByte, err := types.Uint128FromString(f.PerByteFee)
		if err != nil {
			return fmt.Errorf("genesis per byte fee %q: %w", f.PerByteFee, err)
		}
		a.fees.SetSchedule(state, tag, types.FeeEntry{BaseFee: baseFee, PerByteFee: perByte, Asset: f.Asset})
	}
	for _, gm := range gs.Markets {
		tick, err := types.Uint128FromString(gm.TickSize)
		if err != nil {
			return fmt.Errorf("genesis market %s tick size: %w", gm.ID, err)
		}
		lot, err := types.Uint128FromString(gm.LotSize)
		if err != nil {
			return fmt.Errorf("genesis market %s lot size: %w", gm.ID, err)
		}
		m := types.Market{
			ID:            gm.ID,
			BaseAsset:     gm.BaseAsset,
			QuoteAsset:    gm.QuoteAsset,
			TickSize:      tick,
			LotSize:       lot,
			BasePrecision: gm.BasePrecision,
		}
		if err := a.markets.Create(state, m); err != nil {
			return fmt.Errorf("genesis market %s: %w", gm.ID, err)
		}
	}
	return nil
}
