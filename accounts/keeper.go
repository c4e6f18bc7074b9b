// Package accounts holds the asset registry and per-account balance,
// escrow and nonce state. All arithmetic is 128-bit with explicit
// overflow/underflow errors; nothing saturates silently.
package accounts

import (
	"fmt"

	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

// Keeper reads and writes account state through whatever overlay the
// pipeline hands it. It carries no state of its own.
type Keeper struct{}

// NewKeeper returns a Keeper.
func NewKeeper() Keeper { return Keeper{} }

// RegisterAsset marks an asset as known.
func (Keeper) RegisterAsset(state storage.State, asset string) {
	state.Set(codec.AssetKey(asset), codec.EncodeMarker())
}

// AssetExists reports whether the asset registry knows asset.
func (Keeper) AssetExists(state storage.ReadState, asset string) (bool, error) {
	raw, err := state.Get(codec.AssetKey(asset))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func getAmount(state storage.ReadState, key []byte) (types.Uint128, error) {
	raw, err := state.Get(key)
	if err != nil {
		return types.Uint128{}, err
	}
	if raw == nil {
		return types.Uint128{}, nil
	}
	return codec.DecodeBalance(raw)
}

func setAmount(state storage.State, key []byte, v types.Uint128) {
	if v.IsZero() {
		state.Delete(key)
		return
	}
	state.Set(key, codec.EncodeBalance(v))
}

// Balance returns the free balance of (addr, asset).
func (Keeper) Balance(state storage.ReadState, addr types.Address, asset string) (types.Uint128, error) {
	return getAmount(state, codec.BalanceKey(addr, asset))
}

// Escrowed returns the escrowed balance of (addr, asset).
func (Keeper) Escrowed(state storage.ReadState, addr types.Address, asset string) (types.Uint128, error) {
	return getAmount(state, codec.EscrowKey(addr, asset))
}

// AddBalance credits amount to (addr, asset).
func (k Keeper) AddBalance(state storage.State, addr types.Address, asset string, amount types.Uint128) error {
	cur, err := k.Balance(state, addr, asset)
	if err != nil {
		return err
	}
	next, err := cur.Add(amount)
	if err != nil {
		return fmt.Errorf("%w: crediting %s to %s", types.ErrBalanceOverflow, amount, addr)
	}
	setAmount(state, codec.BalanceKey(addr, asset), next)
	return nil
}

// SubBalance debits amount from (addr, asset).
func (k Keeper) SubBalance(state storage.State, addr types.Address, asset string, amount types.Uint128) error {
	cur, err := k.Balance(state, addr, asset)
	if err != nil {
		return err
	}
	next, err := cur.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s has %s %s, need %s", types.ErrInsufficientBalance, addr, cur, asset, amount)
	}
	setAmount(state, codec.BalanceKey(addr, asset), next)
	return nil
}

// Escrow moves amount from the free balance into escrow.
func (k Keeper) Escrow(state storage.State, addr types.Address, asset string, amount types.Uint128) error {
	if err := k.SubBalance(state, addr, asset, amount); err != nil {
		return err
	}
	cur, err := k.Escrowed(state, addr, asset)
	if err != nil {
		return err
	}
	next, err := cur.Add(amount)
	if err != nil {
		return fmt.Errorf("%w: escrowing %s for %s", types.ErrBalanceOverflow, amount, addr)
	}
	setAmount(state, codec.EscrowKey(addr, asset), next)
	return nil
}

// ReleaseEscrow moves amount from escrow back to the free balance.
func (k Keeper) ReleaseEscrow(state storage.State, addr types.Address, asset string, amount types.Uint128) error {
	if err := k.SubEscrow(state, addr, asset, amount); err != nil {
		return err
	}
	return k.AddBalance(state, addr, asset, amount)
}

// SubEscrow burns amount out of escrow, used when settling a fill pays the
// counterparty directly.
func (k Keeper) SubEscrow(state storage.State, addr types.Address, asset string, amount types.Uint128) error {
	cur, err := k.Escrowed(state, addr, asset)
	if err != nil {
		return err
	}
	next, err := cur.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s has %s %s escrowed, need %s", types.ErrInsufficientBalance, addr, cur, asset, amount)
	}
	setAmount(state, codec.EscrowKey(addr, asset), next)
	return nil
}

// Nonce returns the next expected nonce of addr.
func (Keeper) Nonce(state storage.ReadState, addr types.Address) (uint32, error) {
	raw, err := state.Get(codec.NonceKey(addr))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	return codec.DecodeNonce(raw)
}

// SetNonce records the next expected nonce of addr.
func (Keeper) SetNonce(state storage.State, addr types.Address, nonce uint32) {
	state.Set(codec.NonceKey(addr), codec.EncodeNonce(nonce))
}
