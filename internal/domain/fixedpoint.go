package domain

import (
	"math"
	"math/bits"
)

// SafeAdd panics on int64 overflow.
func SafeAdd(a, b int64) int64 {
	c := a + b
	if (c > a) != (b > 0) {
		panic(InvariantViolation{Msg: "int64 overflow in add"})
	}
	return c
}

func SafeSub(a, b int64) int64 {
	c := a - b
	if (c < a) != (b > 0) {
		panic(InvariantViolation{Msg: "int64 overflow in sub"})
	}
	return c
}

func SafeMul(a, b int64) int64 {
	return MulDiv(a, b, 1)
}

// MulDiv returns a*b/c truncated toward zero, using a 128-bit intermediate product.
// Overflow of the final quotient and c == 0 are invariant violations.
func MulDiv(a, b, c int64) int64 {
	if c == 0 {
		panic(InvariantViolation{Msg: "division by zero"})
	}
	neg := (a < 0) != (b < 0) != (c < 0)
	hi, lo := bits.Mul64(abs64(a), abs64(b))
	uc := abs64(c)
	if hi >= uc {
		panic(InvariantViolation{Msg: "int64 overflow in mul/div"})
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > math.MaxInt64 {
		panic(InvariantViolation{Msg: "int64 overflow in mul/div"})
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// Notional is price*qty in quote-asset units.
func Notional(p Price, q Quantity) Amount {
	return Amount(MulDiv(int64(p), int64(q), QtyScale))
}

// ApplyRate returns amount*rate.
func ApplyRate(a Amount, r Rate) Amount {
	return Amount(MulDiv(int64(a), int64(r), RateScale))
}

func (a Amount) Add(b Amount) Amount { return Amount(SafeAdd(int64(a), int64(b))) }
func (a Amount) Sub(b Amount) Amount { return Amount(SafeSub(int64(a), int64(b))) }

func (q Quantity) Add(b Quantity) Quantity { return Quantity(SafeAdd(int64(q), int64(b))) }
func (q Quantity) Sub(b Quantity) Quantity { return Quantity(SafeSub(int64(q), int64(b))) }

func MinQuantity(a, b Quantity) Quantity {
	if a < b {
		return a
	}
	return b
}

func MinAmount(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}
