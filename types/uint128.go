package types

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Uint128 is an unsigned 128-bit integer. Prices, quantities and balances
// are all carried in this type; the matching path never touches floating
// point. The wire form is lo||hi, little-endian (see the codec package).
type Uint128 struct {
	Lo uint64
	Hi uint64
}

var (
	// ZeroUint128 is the additive identity.
	ZeroUint128 = Uint128{}

	// MaxUint128 is the largest representable value.
	MaxUint128 = Uint128{Lo: ^uint64(0), Hi: ^uint64(0)}

	errUint128Overflow = errors.New("uint128 overflow")
)

// NewUint128 returns v as a Uint128.
func NewUint128(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// IsZero reports whether u == 0.
func (u Uint128) IsZero() bool {
	return u.Lo == 0 && u.Hi == 0
}

// Cmp returns -1, 0 or 1 depending on whether u is less than, equal to or
// greater than v.
func (u Uint128) Cmp(v Uint128) int {
	switch {
	case u.Hi != v.Hi:
		if u.Hi < v.Hi {
			return -1
		}
		return 1
	case u.Lo != v.Lo:
		if u.Lo < v.Lo {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// LT reports u < v.
func (u Uint128) LT(v Uint128) bool { return u.Cmp(v) < 0 }

// GT reports u > v.
func (u Uint128) GT(v Uint128) bool { return u.Cmp(v) > 0 }

// LTE reports u <= v.
func (u Uint128) LTE(v Uint128) bool { return u.Cmp(v) <= 0 }

// GTE reports u >= v.
func (u Uint128) GTE(v Uint128) bool { return u.Cmp(v) >= 0 }

// Equal reports u == v.
func (u Uint128) Equal(v Uint128) bool { return u == v }

// Add returns u+v, failing on overflow. Balance arithmetic relies on the
// explicit error so that an overflowing credit aborts the action instead of
// wrapping.
func (u Uint128) Add(v Uint128) (Uint128, error) {
	lo, carry := bits.Add64(u.Lo, v.Lo, 0)
	hi, carry := bits.Add64(u.Hi, v.Hi, carry)
	if carry != 0 {
		return Uint128{}, errUint128Overflow
	}
	return Uint128{Lo: lo, Hi: hi}, nil
}

// Sub returns u-v, failing when v > u.
func (u Uint128) Sub(v Uint128) (Uint128, error) {
	lo, borrow := bits.Sub64(u.Lo, v.Lo, 0)
	hi, borrow := bits.Sub64(u.Hi, v.Hi, borrow)
	if borrow != 0 {
		return Uint128{}, errors.New("uint128 underflow")
	}
	return Uint128{Lo: lo, Hi: hi}, nil
}

// Mul returns u*v. The product is computed in 256-bit width and narrowed
// back; ok is false when the upper 128 bits are non-zero.
func (u Uint128) Mul(v Uint128) (res Uint128, ok bool) {
	// (uHi*2^64 + uLo) * (vHi*2^64 + vLo)
	carryHi, lo := bits.Mul64(u.Lo, v.Lo)
	if u.Hi != 0 && v.Hi != 0 {
		return Uint128{}, false
	}
	p1Hi, p1Lo := bits.Mul64(u.Hi, v.Lo)
	p2Hi, p2Lo := bits.Mul64(u.Lo, v.Hi)
	if p1Hi != 0 || p2Hi != 0 {
		return Uint128{}, false
	}
	hi, carry := bits.Add64(carryHi, p1Lo, 0)
	if carry != 0 {
		return Uint128{}, false
	}
	hi, carry = bits.Add64(hi, p2Lo, 0)
	if carry != 0 {
		return Uint128{}, false
	}
	return Uint128{Lo: lo, Hi: hi}, true
}

// QuoRem returns (u/v, u%v). Division by zero panics, as for native ints;
// callers validate tick and lot sizes at market admission.
func (u Uint128) QuoRem(v Uint128) (q, r Uint128) {
	if v.IsZero() {
		panic("uint128 division by zero")
	}
	if v.Hi == 0 {
		if u.Hi < v.Lo {
			lo, rem := bits.Div64(u.Hi, u.Lo, v.Lo)
			return Uint128{Lo: lo}, Uint128{Lo: rem}
		}
		hi := u.Hi / v.Lo
		lo, rem := bits.Div64(u.Hi%v.Lo, u.Lo, v.Lo)
		return Uint128{Lo: lo, Hi: hi}, Uint128{Lo: rem}
	}
	// Divisor wider than 64 bits: shift-subtract long division. Rare in
	// practice (tick and lot sizes are small), so clarity over speed.
	q, r = Uint128{}, Uint128{}
	for i := 127; i >= 0; i-- {
		r = r.shl1()
		if u.bit(i) {
			r.Lo |= 1
		}
		if r.GTE(v) {
			r, _ = r.Sub(v)
			q = q.setBit(i)
		}
	}
	return q, r
}

// Mod returns u % v.
func (u Uint128) Mod(v Uint128) Uint128 {
	_, r := u.QuoRem(v)
	return r
}

func (u Uint128) shl1() Uint128 {
	return Uint128{Lo: u.Lo << 1, Hi: u.Hi<<1 | u.Lo>>63}
}

func (u Uint128) bit(i int) bool {
	if i >= 64 {
		return u.Hi>>(uint(i)-64)&1 == 1
	}
	return u.Lo>>uint(i)&1 == 1
}

func (u Uint128) setBit(i int) Uint128 {
	if i >= 64 {
		u.Hi |= 1 << (uint(i) - 64)
	} else {
		u.Lo |= 1 << uint(i)
	}
	return u
}

// String renders u in decimal.
func (u Uint128) String() string {
	if u.IsZero() {
		return "0"
	}
	var sb []byte
	ten := NewUint128(10)
	for !u.IsZero() {
		var r Uint128
		u, r = u.QuoRem(ten)
		sb = append(sb, byte('0'+r.Lo))
	}
	for i, j := 0, len(sb)-1; i < j; i, j = i+1, j-1 {
		sb[i], sb[j] = sb[j], sb[i]
	}
	return string(sb)
}

// Uint128FromString parses a decimal string.
func Uint128FromString(s string) (Uint128, error) {
	if s == "" {
		return Uint128{}, errors.New("empty uint128 string")
	}
	if strings.HasPrefix(s, "-") {
		return Uint128{}, fmt.Errorf("negative value %q for uint128", s)
	}
	res := Uint128{}
	ten := NewUint128(10)
	for _, c := range s {
		if c < '0' || c > '9' {
			return Uint128{}, fmt.Errorf("invalid digit %q in uint128 string", c)
		}
		var ok bool
		res, ok = res.Mul(ten)
		if !ok {
			return Uint128{}, errUint128Overflow
		}
		var err error
		res, err = res.Add(NewUint128(uint64(c - '0')))
		if err != nil {
			return Uint128{}, err
		}
	}
	return res, nil
}

// MulDivGuard computes a*b*(10000+bps)/10000, used for the market-order
// escrow slippage guard. ok is false when an intermediate product exceeds
// 128 bits.
func MulDivGuard(a, b Uint128, bps uint64) (Uint128, bool) {
	prod, ok := a.Mul(b)
	if !ok {
		return Uint128{}, false
	}
	scaled, ok := prod.Mul(NewUint128(10000 + bps))
	if !ok {
		return Uint128{}, false
	}
	q, _ := scaled.QuoRem(NewUint128(10000))
	return q, true
}
