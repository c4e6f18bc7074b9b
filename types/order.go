package types

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendermint/tendermint/crypto/tmhash"
)

// Side is the order side.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// SideFromString parses "buy" or "sell".
func SideFromString(s string) (Side, error) {
	switch s {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", ErrDecode, s)
	}
}

// OrderKind distinguishes limit from market orders.
type OrderKind uint8

const (
	OrderLimit OrderKind = iota + 1
	OrderMarket
)

func (k OrderKind) String() string {
	switch k {
	case OrderLimit:
		return "limit"
	case OrderMarket:
		return "market"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TimeInForce controls how long an order may rest.
type TimeInForce uint8

const (
	GoodTillCancelled TimeInForce = iota + 1
	ImmediateOrCancel
	FillOrKill
)

func (t TimeInForce) String() string {
	switch t {
	case GoodTillCancelled:
		return "GTC"
	case ImmediateOrCancel:
		return "IOC"
	case FillOrKill:
		return "FOK"
	default:
		return fmt.Sprintf("tif(%d)", uint8(t))
	}
}

// OrderIDSize is the byte length of an order identifier.
const OrderIDSize = 16

// OrderID is the 128-bit order identifier, derived deterministically from
// the originating (owner, nonce, action index) so every validator computes
// the same id without any randomness.
type OrderID [OrderIDSize]byte

// NewOrderID derives the id for the action at actionIndex of the owner's
// transaction with the given nonce.
func NewOrderID(owner Address, nonce uint32, actionIndex uint32) OrderID {
	buf := make([]byte, AddressSize+8)
	copy(buf, owner[:])
	binary.LittleEndian.PutUint32(buf[AddressSize:], nonce)
	binary.LittleEndian.PutUint32(buf[AddressSize+4:], actionIndex)
	sum := tmhash.Sum(buf)
	var id OrderID
	copy(id[:], sum[:OrderIDSize])
	return id
}

// OrderIDFromBytes converts a raw 16-byte slice.
func OrderIDFromBytes(bz []byte) (OrderID, error) {
	var id OrderID
	if len(bz) != OrderIDSize {
		return id, fmt.Errorf("%w: order id must be %d bytes, got %d", ErrDecode, OrderIDSize, len(bz))
	}
	copy(id[:], bz)
	return id, nil
}

// OrderIDFromString parses the UUID rendering produced by String.
func OrderIDFromString(s string) (OrderID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OrderID{}, fmt.Errorf("%w: parsing order id: %v", ErrDecode, err)
	}
	return OrderIDFromBytes(u[:])
}

// String renders the id in UUID form, the external representation used in
// queries and events.
func (id OrderID) String() string {
	u, err := uuid.FromBytes(id[:])
	if err != nil {
		// 16-byte input cannot fail.
		panic(err)
	}
	return u.String()
}

// Order is the authoritative record of a single order. Ladders and owner
// indices store only the id; this record is the one source of truth.
type Order struct {
	ID        OrderID
	Owner     Address
	MarketID  string
	Side      Side
	Kind      OrderKind
	Price     Uint128 // meaningful only for limit orders
	Quantity  Uint128
	Remaining Uint128
	TIF       TimeInForce
	CreatedAt uint64 // block height
	FeeAsset  string

	// LadderSeq is the book arrival sequence number assigned at insert
	// time. It fixes time priority within a price level and lets removal
	// reconstruct the ladder key.
	LadderSeq uint64
}

// ValidateBasic checks the order invariants that do not need market state.
func (o Order) ValidateBasic() error {
	if o.MarketID == "" {
		return fmt.Errorf("%w: empty market id", ErrInvalidOrder)
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("%w: invalid side", ErrInvalidOrder)
	}
	if o.Kind != OrderLimit && o.Kind != OrderMarket {
		return fmt.Errorf("%w: invalid order kind", ErrInvalidOrder)
	}
	switch o.TIF {
	case GoodTillCancelled, ImmediateOrCancel, FillOrKill:
	default:
		return fmt.Errorf("%w: invalid time in force", ErrInvalidOrder)
	}
	if o.Quantity.IsZero() {
		return fmt.Errorf("%w: zero quantity", ErrInvalidOrder)
	}
	if o.Remaining.GT(o.Quantity) {
		return fmt.Errorf("%w: remaining exceeds quantity", ErrInvalidOrder)
	}
	if o.Kind == OrderLimit && o.Price.IsZero() {
		return fmt.Errorf("%w: limit order requires a positive price", ErrInvalidOrder)
	}
	if o.FeeAsset == "" {
		return fmt.Errorf("%w: empty fee asset", ErrInvalidOrder)
	}
	return nil
}

// ValidateAgainstMarket checks tick and lot alignment.
func (o Order) ValidateAgainstMarket(m Market) error {
	if !o.Quantity.Mod(m.LotSize).IsZero() {
		return fmt.Errorf("%w: quantity %s not aligned to lot size %s", ErrInvalidOrder, o.Quantity, m.LotSize)
	}
	if o.Kind == OrderLimit && !o.Price.Mod(m.TickSize).IsZero() {
		return fmt.Errorf("%w: price %s not aligned to tick size %s", ErrInvalidOrder, o.Price, m.TickSize)
	}
	return nil
}
