// Package fees applies the configured fee schedule to actions and routes
// the proceeds to the fee collection account.
package fees

import (
	"fmt"

	"github.com/ordsys/sequencer/accounts"
	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

// Keeper computes and collects fees.
type Keeper struct {
	accounts accounts.Keeper
}

// NewKeeper returns a fee Keeper.
func NewKeeper(accts accounts.Keeper) Keeper {
	return Keeper{accounts: accts}
}

// Schedule returns the fee entry for an action kind. Absent entries mean
// the action is free.
func (Keeper) Schedule(state storage.ReadState, tag types.ActionTag) (types.FeeEntry, error) {
	raw, err := state.Get(codec.FeeScheduleKey(tag))
	if err != nil {
		return types.FeeEntry{}, err
	}
	if raw == nil {
		return types.FeeEntry{}, nil
	}
	return codec.DecodeFeeEntry(raw)
}

// SetSchedule writes the fee entry for an action kind. Authorization is
// the caller's concern.
func (Keeper) SetSchedule(state storage.State, tag types.ActionTag, entry types.FeeEntry) {
	state.Set(codec.FeeScheduleKey(tag), codec.EncodeFeeEntry(entry))
}

// Collector returns the fee collection account.
func (Keeper) Collector(state storage.ReadState) (types.Address, error) {
	raw, err := state.Get([]byte(codec.FeeCollectorKey))
	if err != nil {
		return types.Address{}, err
	}
	if raw == nil {
		return types.Address{}, fmt.Errorf("fee collector not initialized")
	}
	return codec.DecodeAddress(raw)
}

// SetCollector records the fee collection account at genesis.
func (Keeper) SetCollector(state storage.State, addr types.Address) {
	state.Set([]byte(codec.FeeCollectorKey), codec.EncodeAddress(addr))
}

// Charge computes base + perByte*size for the action and moves it from
// payer to the collector, verifying the payer's declared fee asset matches
// the schedule's denomination.
func (k Keeper) Charge(state storage.State, payer types.Address, tag types.ActionTag, feeAsset string, encodedSize int) (types.Uint128, error) {
	entry, err := k.Schedule(state, tag)
	if err != nil {
		return types.Uint128{}, err
	}
	if entry.Asset == "" {
		// No schedule entry: the action is free.
		return types.Uint128{}, nil
	}
	if feeAsset != entry.Asset {
		return types.Uint128{}, fmt.Errorf("%w: schedule for %s is denominated in %s, got %s",
			types.ErrUnsupportedFeeAsset, tag, entry.Asset, feeAsset)
	}
	total, ok := entry.TotalFee(encodedSize)
	if !ok {
		return types.Uint128{}, fmt.Errorf("%w: fee computation for %s", types.ErrBalanceOverflow, tag)
	}
	if total.IsZero() {
		return types.Uint128{}, nil
	}
	if err := k.accounts.SubBalance(state, payer, entry.Asset, total); err != nil {
		return types.Uint128{}, fmt.Errorf("%w: %v", types.ErrInsufficientFee, err)
	}
	collector, err := k.Collector(state)
	if err != nil {
		return types.Uint128{}, err
	}
	if err := k.accounts.AddBalance(state, collector, entry.Asset, total); err != nil {
		return types.Uint128{}, err
	}
	return total, nil
}
