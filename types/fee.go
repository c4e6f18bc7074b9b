package types

// FeeEntry is the fee schedule row for one action kind: a flat base fee
// plus a per-encoded-byte component, both denominated in Asset.
type FeeEntry struct {
	BaseFee    Uint128
	PerByteFee Uint128
	Asset      string
}

// TotalFee returns base + perByte*size, or ok=false on 128-bit overflow.
func (f FeeEntry) TotalFee(encodedSize int) (Uint128, bool) {
	variable, ok := f.PerByteFee.Mul(NewUint128(uint64(encodedSize)))
	if !ok {
		return Uint128{}, false
	}
	total, err := f.BaseFee.Add(variable)
	if err != nil {
		return Uint128{}, false
	}
	return total, true
}
