// Package modifier evaluates stacked modifiers (entity ← owner ← global)
// with generation-stamped, lazily rebuilt caches.
//
// Writes to an owner's or the global modifier sources bump a single
// generation counter and never touch entity state. Each entity container
// remembers the parent generation it was built against; a read that finds
// the stamp out of date rebuilds that one container and nothing else.
package modifier

import "github.com/archon/engine/internal/core/fixed"

// TypeID indexes a modifier type. Values at or above MaxTypes are rejected.
type TypeID uint16

// MaxTypes is the number of tracked modifier types (two 64-bit mask words).
const MaxTypes = 128

const maskWords = MaxTypes / 64

// Value is one modifier contribution. The applied result is
// (Base + Add) * (1 + Mul).
type Value struct {
	Base fixed.Fixed
	Add  fixed.Fixed
	Mul  fixed.Fixed
}

// Identity is the neutral modifier.
var Identity = Value{}

// Additive returns a Value contributing only an additive bonus.
func Additive(v fixed.Fixed) Value { return Value{Add: v} }

// Multiplicative returns a Value contributing only a multiplicative bonus,
// e.g. fixed.FromRatio(1, 10) for +10%.
func Multiplicative(v fixed.Fixed) Value { return Value{Mul: v} }

func (v Value) IsIdentity() bool { return v == Identity }

// Combine stacks two contributions: every component adds.
func (v Value) Combine(o Value) Value {
	return Value{
		Base: v.Base.Add(o.Base),
		Add:  v.Add.Add(o.Add),
		Mul:  v.Mul.Add(o.Mul),
	}
}

// Apply evaluates v. Base is returned untouched when there is nothing to
// apply, and the multiply is skipped when Mul is zero.
func Apply(v Value) fixed.Fixed {
	if v.Add == 0 && v.Mul == 0 {
		return v.Base
	}
	r := v.Base.Add(v.Add)
	if v.Mul == 0 {
		return r
	}
	return r.Mul(fixed.One.Add(v.Mul))
}
