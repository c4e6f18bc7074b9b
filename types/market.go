package types

import (
	"fmt"
	"strings"
)

// Market describes one trading pair. Markets are created by the sudo
// authority and immutable afterwards except for the fields UpdateMarket is
// allowed to touch (tick, lot, paused).
type Market struct {
	ID            string
	BaseAsset     string
	QuoteAsset    string
	TickSize      Uint128
	LotSize       Uint128
	BasePrecision uint8
	Paused        bool
}

// ValidateBasic checks the stateless market invariants.
func (m Market) ValidateBasic() error {
	if m.ID == "" {
		return fmt.Errorf("%w: empty market id", ErrInvalidMarket)
	}
	if strings.Count(m.ID, "/") != 1 {
		return fmt.Errorf("%w: market id %q must be of the form BASE/QUOTE", ErrInvalidMarket, m.ID)
	}
	if m.BaseAsset == "" || m.QuoteAsset == "" {
		return fmt.Errorf("%w: base and quote assets must be set", ErrInvalidMarket)
	}
	if m.BaseAsset == m.QuoteAsset {
		return fmt.Errorf("%w: base and quote assets must differ", ErrInvalidMarket)
	}
	if m.TickSize.IsZero() {
		return fmt.Errorf("%w: tick size must be positive", ErrInvalidMarket)
	}
	if m.LotSize.IsZero() {
		return fmt.Errorf("%w: lot size must be positive", ErrInvalidMarket)
	}
	return nil
}
