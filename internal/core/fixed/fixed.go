// Package fixed implements the Q32.32 fixed-point number used for every
// simulation value that must be bit-identical across machines.
//
// Overflow policy is saturating for every operation: results that do not fit
// clamp to Max or Min, and division by zero saturates by the sign of the
// dividend (zero divided by zero is zero).
package fixed

import (
	"math"
	"math/bits"
)

// Q32.32 layout constants.
const (
	Shift = 32
	Scale = 1 << Shift
	Mask  = Scale - 1
	Half  = 1 << (Shift - 1)
)

// Fixed is a signed Q32.32 fixed-point number.
type Fixed int64

// Common values.
const (
	Zero Fixed = 0
	One  Fixed = Scale
	Max  Fixed = math.MaxInt64
	Min  Fixed = math.MinInt64
)

// FromInt converts an integer, saturating outside the 32-bit integer range.
func FromInt(i int64) Fixed {
	if i > math.MaxInt32 {
		return Max
	}
	if i < math.MinInt32 {
		return Min
	}
	return Fixed(i << Shift)
}

// FromRatio returns num/den rounded to the nearest representable value.
func FromRatio(num, den int64) Fixed {
	if den == 0 {
		return saturateSign(num)
	}
	negative := (num < 0) != (den < 0)
	ua, ub := absU64(num), absU64(den)

	hi := ua >> Shift
	lo := ua << Shift
	lo, carry := bits.Add64(lo, ub/2, 0)
	hi += carry
	if hi >= ub {
		return saturate(negative)
	}
	quo, _ := bits.Div64(hi, lo, ub)
	return fromMagnitude(quo, negative)
}

// Raw returns the underlying Q32.32 bits.
func (f Fixed) Raw() int64 { return int64(f) }

// Int truncates toward negative infinity.
func (f Fixed) Int() int64 { return int64(f) >> Shift }

// Round rounds to the nearest integer, halves away from zero.
func (f Fixed) Round() int64 {
	if f < 0 {
		return -int64((absU64(int64(f)) + Half) >> Shift)
	}
	return int64((uint64(f) + Half) >> Shift)
}

// Frac returns the fractional bits.
func (f Fixed) Frac() Fixed { return f & Mask }

func (f Fixed) IsZero() bool { return f == 0 }

// Add returns f+g, saturating on overflow.
func (f Fixed) Add(g Fixed) Fixed {
	s := f + g
	if (f >= 0) == (g >= 0) && (s >= 0) != (f >= 0) {
		return saturate(f < 0)
	}
	return s
}

// Sub returns f-g, saturating on overflow.
func (f Fixed) Sub(g Fixed) Fixed {
	if g == Min {
		if f >= 0 {
			return Max
		}
		return f + Max + 1
	}
	return f.Add(-g)
}

// Neg returns -f; -Min saturates to Max.
func (f Fixed) Neg() Fixed {
	if f == Min {
		return Max
	}
	return -f
}

// Abs returns |f|; |Min| saturates to Max.
func (f Fixed) Abs() Fixed {
	if f < 0 {
		return f.Neg()
	}
	return f
}

// Mul returns f*g truncated toward zero, saturating on overflow.
func (f Fixed) Mul(g Fixed) Fixed {
	if f == 0 || g == 0 {
		return 0
	}
	negative := (f < 0) != (g < 0)
	hi, lo := bits.Mul64(absU64(int64(f)), absU64(int64(g)))
	// Q64.64 product; the Q32.32 result is bits [32, 96).
	if hi>>Shift != 0 {
		return saturate(negative)
	}
	return fromMagnitude(hi<<Shift|lo>>Shift, negative)
}

// Div returns f/g truncated toward zero, saturating on overflow and on
// division by zero.
func (f Fixed) Div(g Fixed) Fixed {
	if g == 0 {
		return saturateSign(int64(f))
	}
	negative := (f < 0) != (g < 0)
	ua, ub := absU64(int64(f)), absU64(int64(g))

	hi := ua >> Shift
	lo := ua << Shift
	if hi >= ub {
		return saturate(negative)
	}
	quo, _ := bits.Div64(hi, lo, ub)
	return fromMagnitude(quo, negative)
}

// Cmp returns -1, 0 or +1.
func (f Fixed) Cmp(g Fixed) int {
	switch {
	case f < g:
		return -1
	case f > g:
		return 1
	}
	return 0
}

// MinOf returns the smaller of a and b.
func MinOf(a, b Fixed) Fixed {
	if a < b {
		return a
	}
	return b
}

// MaxOf returns the larger of a and b.
func MaxOf(a, b Fixed) Fixed {
	if a > b {
		return a
	}
	return b
}

// Clamp limits f to [lo, hi].
func Clamp(f, lo, hi Fixed) Fixed {
	return MinOf(MaxOf(f, lo), hi)
}

func absU64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

func fromMagnitude(m uint64, negative bool) Fixed {
	if negative {
		if m > 1<<63 {
			return Min
		}
		return Fixed(-int64(m-1) - 1)
	}
	if m > math.MaxInt64 {
		return Max
	}
	return Fixed(m)
}

func saturate(negative bool) Fixed {
	if negative {
		return Min
	}
	return Max
}

func saturateSign(v int64) Fixed {
	switch {
	case v > 0:
		return Max
	case v < 0:
		return Min
	}
	return 0
}
