package codec

import (
	"fmt"

	"github.com/ordsys/sequencer/types"
)

// Value discriminators. Every persisted value starts with one of these.
const (
	kindMarket   uint8 = 0x01
	kindOrder    uint8 = 0x02
	kindTrade    uint8 = 0x03
	kindFeeEntry uint8 = 0x04
	kindBalance  uint8 = 0x05
	kindNonce    uint8 = 0x06
	kindMarker   uint8 = 0x07
	kindAddress  uint8 = 0x08
	kindCounter  uint8 = 0x09
	kindOrderRef uint8 = 0x0a
)

func expectKind(r *Reader, want uint8) error {
	got, err := r.U8()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: value discriminator %#x, want %#x", types.ErrDecode, got, want)
	}
	return nil
}

// EncodeMarket encodes a market descriptor.
func EncodeMarket(m types.Market) []byte {
	w := NewWriter()
	w.U8(kindMarket)
	w.String(m.ID)
	w.String(m.BaseAsset)
	w.String(m.QuoteAsset)
	w.U128(m.TickSize)
	w.U128(m.LotSize)
	w.U8(m.BasePrecision)
	w.Bool(m.Paused)
	return w.Bytes()
}

// DecodeMarket is the inverse of EncodeMarket.
func DecodeMarket(bz []byte) (types.Market, error) {
	var m types.Market
	r := NewReader(bz)
	if err := expectKind(r, kindMarket); err != nil {
		return m, err
	}
	var err error
	if m.ID, err = r.String(); err != nil {
		return m, err
	}
	if m.BaseAsset, err = r.String(); err != nil {
		return m, err
	}
	if m.QuoteAsset, err = r.String(); err != nil {
		return m, err
	}
	if m.TickSize, err = r.U128(); err != nil {
		return m, err
	}
	if m.LotSize, err = r.U128(); err != nil {
		return m, err
	}
	if m.BasePrecision, err = r.U8(); err != nil {
		return m, err
	}
	if m.Paused, err = r.Bool(); err != nil {
		return m, err
	}
	return m, r.Done()
}

// EncodeOrder encodes the authoritative order record.
func EncodeOrder(o types.Order) []byte {
	w := NewWriter()
	w.U8(kindOrder)
	w.Raw(o.ID[:])
	w.Raw(o.Owner[:])
	w.String(o.MarketID)
	w.U8(uint8(o.Side))
	w.U8(uint8(o.Kind))
	w.U128(o.Price)
	w.U128(o.Quantity)
	w.U128(o.Remaining)
	w.U8(uint8(o.TIF))
	w.U64(o.CreatedAt)
	w.String(o.FeeAsset)
	w.U64(o.LadderSeq)
	return w.Bytes()
}

// DecodeOrder is the inverse of EncodeOrder.
func DecodeOrder(bz []byte) (types.Order, error) {
	var o types.Order
	r := NewReader(bz)
	if err := expectKind(r, kindOrder); err != nil {
		return o, err
	}
	idBytes, err := r.Fixed(types.OrderIDSize)
	if err != nil {
		return o, err
	}
	if o.ID, err = types.OrderIDFromBytes(idBytes); err != nil {
		return o, err
	}
	ownerBytes, err := r.Fixed(types.AddressSize)
	if err != nil {
		return o, err
	}
	if o.Owner, err = types.AddressFromBytes(ownerBytes); err != nil {
		return o, err
	}
	if o.MarketID, err = r.String(); err != nil {
		return o, err
	}
	side, err := r.U8()
	if err != nil {
		return o, err
	}
	o.Side = types.Side(side)
	kind, err := r.U8()
	if err != nil {
		return o, err
	}
	o.Kind = types.OrderKind(kind)
	if o.Price, err = r.U128(); err != nil {
		return o, err
	}
	if o.Quantity, err = r.U128(); err != nil {
		return o, err
	}
	if o.Remaining, err = r.U128(); err != nil {
		return o, err
	}
	tif, err := r.U8()
	if err != nil {
		return o, err
	}
	o.TIF = types.TimeInForce(tif)
	if o.CreatedAt, err = r.U64(); err != nil {
		return o, err
	}
	if o.FeeAsset, err = r.String(); err != nil {
		return o, err
	}
	if o.LadderSeq, err = r.U64(); err != nil {
		return o, err
	}
	return o, r.Done()
}

// EncodeTrade encodes a persisted fill record.
func EncodeTrade(t types.Trade) []byte {
	w := NewWriter()
	w.U8(kindTrade)
	w.String(t.MarketID)
	w.U128(t.Price)
	w.U128(t.Quantity)
	w.Raw(t.MakerOrderID[:])
	w.Raw(t.TakerOrderID[:])
	w.U8(uint8(t.MakerSide))
	w.U64(t.Height)
	return w.Bytes()
}

// DecodeTrade is the inverse of EncodeTrade.
func DecodeTrade(bz []byte) (types.Trade, error) {
	var t types.Trade
	r := NewReader(bz)
	if err := expectKind(r, kindTrade); err != nil {
		return t, err
	}
	var err error
	if t.MarketID, err = r.String(); err != nil {
		return t, err
	}
	if t.Price, err = r.U128(); err != nil {
		return t, err
	}
	if t.Quantity, err = r.U128(); err != nil {
		return t, err
	}
	maker, err := r.Fixed(types.OrderIDSize)
	if err != nil {
		return t, err
	}
	if t.MakerOrderID, err = types.OrderIDFromBytes(maker); err != nil {
		return t, err
	}
	taker, err := r.Fixed(types.OrderIDSize)
	if err != nil {
		return t, err
	}
	if t.TakerOrderID, err = types.OrderIDFromBytes(taker); err != nil {
		return t, err
	}
	side, err := r.U8()
	if err != nil {
		return t, err
	}
	t.MakerSide = types.Side(side)
	if t.Height, err = r.U64(); err != nil {
		return t, err
	}
	return t, r.Done()
}

// EncodeFeeEntry encodes one fee schedule row.
func EncodeFeeEntry(f types.FeeEntry) []byte {
	w := NewWriter()
	w.U8(kindFeeEntry)
	w.U128(f.BaseFee)
	w.U128(f.PerByteFee)
	w.String(f.Asset)
	return w.Bytes()
}

// DecodeFeeEntry is the inverse of EncodeFeeEntry.
func DecodeFeeEntry(bz []byte) (types.FeeEntry, error) {
	var f types.FeeEntry
	r := NewReader(bz)
	if err := expectKind(r, kindFeeEntry); err != nil {
		return f, err
	}
	var err error
	if f.BaseFee, err = r.U128(); err != nil {
		return f, err
	}
	if f.PerByteFee, err = r.U128(); err != nil {
		return f, err
	}
	if f.Asset, err = r.String(); err != nil {
		return f, err
	}
	return f, r.Done()
}

// EncodeBalance encodes a 128-bit balance value.
func EncodeBalance(v types.Uint128) []byte {
	w := NewWriter()
	w.U8(kindBalance)
	w.U128(v)
	return w.Bytes()
}

// DecodeBalance is the inverse of EncodeBalance.
func DecodeBalance(bz []byte) (types.Uint128, error) {
	r := NewReader(bz)
	if err := expectKind(r, kindBalance); err != nil {
		return types.Uint128{}, err
	}
	v, err := r.U128()
	if err != nil {
		return types.Uint128{}, err
	}
	return v, r.Done()
}

// EncodeNonce encodes an account nonce.
func EncodeNonce(v uint32) []byte {
	w := NewWriter()
	w.U8(kindNonce)
	w.U32(v)
	return w.Bytes()
}

// DecodeNonce is the inverse of EncodeNonce.
func DecodeNonce(bz []byte) (uint32, error) {
	r := NewReader(bz)
	if err := expectKind(r, kindNonce); err != nil {
		return 0, err
	}
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return v, r.Done()
}

// EncodeMarker encodes a bare presence marker (asset registry, owner
// index entries).
func EncodeMarker() []byte {
	return []byte{kindMarker}
}

// DecodeMarker verifies a presence marker.
func DecodeMarker(bz []byte) error {
	r := NewReader(bz)
	if err := expectKind(r, kindMarker); err != nil {
		return err
	}
	return r.Done()
}

// EncodeAddress encodes an address value (sudo authority, fee collector).
func EncodeAddress(a types.Address) []byte {
	w := NewWriter()
	w.U8(kindAddress)
	w.Raw(a[:])
	return w.Bytes()
}

// DecodeAddress is the inverse of EncodeAddress.
func DecodeAddress(bz []byte) (types.Address, error) {
	r := NewReader(bz)
	if err := expectKind(r, kindAddress); err != nil {
		return types.Address{}, err
	}
	raw, err := r.Fixed(types.AddressSize)
	if err != nil {
		return types.Address{}, err
	}
	addr, err := types.AddressFromBytes(raw)
	if err != nil {
		return types.Address{}, err
	}
	return addr, r.Done()
}

// EncodeCounter encodes a u64 counter (ladder sequence, committed height).
func EncodeCounter(v uint64) []byte {
	w := NewWriter()
	w.U8(kindCounter)
	w.U64(v)
	return w.Bytes()
}

// DecodeCounter is the inverse of EncodeCounter.
func DecodeCounter(bz []byte) (uint64, error) {
	r := NewReader(bz)
	if err := expectKind(r, kindCounter); err != nil {
		return 0, err
	}
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return v, r.Done()
}

// EncodeOrderID encodes an order id reference (ladder entries).
func EncodeOrderID(id types.OrderID) []byte {
	w := NewWriter()
	w.U8(kindOrderRef)
	w.Raw(id[:])
	return w.Bytes()
}

// DecodeOrderID is the inverse of EncodeOrderID.
func DecodeOrderID(bz []byte) (types.OrderID, error) {
	r := NewReader(bz)
	if err := expectKind(r, kindOrderRef); err != nil {
		return types.OrderID{}, err
	}
	raw, err := r.Fixed(types.OrderIDSize)
	if err != nil {
		return types.OrderID{}, err
	}
	id, err := types.OrderIDFromBytes(raw)
	if err != nil {
		return types.OrderID{}, err
	}
	return id, r.Done()
}
