package types

import "fmt"

// ActionTag discriminates the closed set of action variants on the wire.
type ActionTag uint8

const (
	TagTransfer     ActionTag = 0x01
	TagCreateMarket ActionTag = 0x02
	TagCreateOrder  ActionTag = 0x03
	TagCancelOrder  ActionTag = 0x04
	TagFeeChange    ActionTag = 0x05
	TagUpdateMarket ActionTag = 0x06
	TagSudoChange   ActionTag = 0x07
)

func (t ActionTag) String() string {
	switch t {
	case TagTransfer:
		return "transfer"
	case TagCreateMarket:
		return "create_market"
	case TagCreateOrder:
		return "create_order"
	case TagCancelOrder:
		return "cancel_order"
	case TagFeeChange:
		return "fee_change"
	case TagUpdateMarket:
		return "update_market"
	case TagSudoChange:
		return "sudo_change"
	default:
		return fmt.Sprintf("action(%d)", uint8(t))
	}
}

// Action is one unit of state transition inside a transaction. The variant
// set is closed; executors dispatch with an exhaustive type switch.
type Action interface {
	Tag() ActionTag
	ValidateBasic() error
}

// Transfer moves amount of asset from the signer to Recipient.
type Transfer struct {
	Recipient Address
	Asset     string
	Amount    Uint128
	FeeAsset  string
}

func (a Transfer) Tag() ActionTag { return TagTransfer }

func (a Transfer) ValidateBasic() error {
	if a.Asset == "" {
		return fmt.Errorf("%w: empty asset", ErrDecode)
	}
	if a.Amount.IsZero() {
		return fmt.Errorf("%w: zero transfer amount", ErrDecode)
	}
	if a.FeeAsset == "" {
		return fmt.Errorf("%w: empty fee asset", ErrDecode)
	}
	return nil
}

// CreateMarket admits a new market. Sudo only.
type CreateMarket struct {
	MarketID      string
	BaseAsset     string
	QuoteAsset    string
	TickSize      Uint128
	LotSize       Uint128
	BasePrecision uint8
	FeeAsset      string
}

func (a CreateMarket) Tag() ActionTag { return TagCreateMarket }

func (a CreateMarket) ValidateBasic() error {
	m := Market{
		ID:            a.MarketID,
		BaseAsset:     a.BaseAsset,
		QuoteAsset:    a.QuoteAsset,
		TickSize:      a.TickSize,
		LotSize:       a.LotSize,
		BasePrecision: a.BasePrecision,
	}
	if err := m.ValidateBasic(); err != nil {
		return err
	}
	if a.FeeAsset == "" {
		return fmt.Errorf("%w: empty fee asset", ErrDecode)
	}
	return nil
}

// CreateOrder submits an order to the matching engine.
type CreateOrder struct {
	MarketID string
	Side     Side
	Kind     OrderKind
	Price    Uint128
	Quantity Uint128
	TIF      TimeInForce
	FeeAsset string
}

func (a CreateOrder) Tag() ActionTag { return TagCreateOrder }

func (a CreateOrder) ValidateBasic() error {
	o := Order{
		MarketID:  a.MarketID,
		Side:      a.Side,
		Kind:      a.Kind,
		Price:     a.Price,
		Quantity:  a.Quantity,
		Remaining: a.Quantity,
		TIF:       a.TIF,
		FeeAsset:  a.FeeAsset,
	}
	return o.ValidateBasic()
}

// CancelOrder removes the signer's resting order.
type CancelOrder struct {
	OrderID  OrderID
	FeeAsset string
}

func (a CancelOrder) Tag() ActionTag { return TagCancelOrder }

func (a CancelOrder) ValidateBasic() error {
	if a.FeeAsset == "" {
		return fmt.Errorf("%w: empty fee asset", ErrDecode)
	}
	return nil
}

// FeeChange updates the fee schedule entry for one action kind. Sudo only.
type FeeChange struct {
	ActionTag  ActionTag
	BaseFee    Uint128
	PerByteFee Uint128
	FeeAsset   string
}

func (a FeeChange) Tag() ActionTag { return TagFeeChange }

func (a FeeChange) ValidateBasic() error {
	if a.ActionTag < TagTransfer || a.ActionTag > TagSudoChange {
		return fmt.Errorf("%w: fee change for unknown action tag %d", ErrDecode, a.ActionTag)
	}
	if a.FeeAsset == "" {
		return fmt.Errorf("%w: empty fee asset", ErrDecode)
	}
	return nil
}

// UpdateMarket adjusts tick/lot sizes for future orders and the paused
// flag. Sudo only. Resting orders keep their original alignment.
type UpdateMarket struct {
	MarketID string
	TickSize *Uint128
	LotSize  *Uint128
	Paused   bool
	FeeAsset string
}

func (a UpdateMarket) Tag() ActionTag { return TagUpdateMarket }

func (a UpdateMarket) ValidateBasic() error {
	if a.MarketID == "" {
		return fmt.Errorf("%w: empty market id", ErrDecode)
	}
	if a.TickSize != nil && a.TickSize.IsZero() {
		return fmt.Errorf("%w: tick size must be positive", ErrInvalidMarket)
	}
	if a.LotSize != nil && a.LotSize.IsZero() {
		return fmt.Errorf("%w: lot size must be positive", ErrInvalidMarket)
	}
	if a.FeeAsset == "" {
		return fmt.Errorf("%w: empty fee asset", ErrDecode)
	}
	return nil
}

// SudoChange rotates the sudo authority. Sudo only.
type SudoChange struct {
	NewSudo Address
}

func (a SudoChange) Tag() ActionTag { return TagSudoChange }

func (a SudoChange) ValidateBasic() error { return nil }
