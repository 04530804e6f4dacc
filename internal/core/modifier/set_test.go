package modifier

import (
	"testing"

	"github.com/archon/engine/internal/core/fixed"
)

func TestApply(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want fixed.Fixed
	}{
		{"identity", Value{Base: fixed.FromInt(10)}, fixed.FromInt(10)},
		{"additive", Value{Base: fixed.FromInt(10), Add: fixed.FromInt(2)}, fixed.FromInt(12)},
		{"multiplicative", Value{Base: fixed.FromInt(10), Mul: fixed.FromRatio(1, 2)}, fixed.FromInt(15)},
		{"both", Value{Base: fixed.FromInt(10), Add: fixed.FromInt(2), Mul: fixed.FromRatio(1, 2)}, fixed.FromInt(18)},
		{"malus", Value{Base: fixed.FromInt(10), Mul: fixed.FromRatio(-1, 2)}, fixed.FromInt(5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Apply(tc.v); got != tc.want {
				t.Fatalf("Apply = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSetMaskTracksActiveSlots(t *testing.T) {
	var s Set
	s.Put(3, Additive(fixed.One))
	s.Accumulate(70, Multiplicative(fixed.One))
	s.Accumulate(70, Multiplicative(fixed.One))

	if s.Len() != 2 || !s.IsActive(3) || !s.IsActive(70) || s.IsActive(4) {
		t.Fatalf("mask wrong: len=%d", s.Len())
	}
	if got := s.Get(70).Mul; got != fixed.FromInt(2) {
		t.Fatalf("accumulated mul = %s", got)
	}

	var order []TypeID
	s.Each(func(t TypeID, _ Value) { order = append(order, t) })
	if len(order) != 2 || order[0] != 3 || order[1] != 70 {
		t.Fatalf("Each order = %v", order)
	}

	s.Put(3, Identity)
	if s.IsActive(3) || s.Len() != 1 {
		t.Fatal("putting identity did not clear the mask bit")
	}

	s.Reset()
	if s.Len() != 0 || s.Get(70) != Identity {
		t.Fatal("Reset left active slots behind")
	}
	if s.Get(MaxTypes+1) != Identity {
		t.Fatal("out of range Get should be identity")
	}
}

func TestSetCopyAndLayer(t *testing.T) {
	var a, b Set
	a.Put(1, Additive(fixed.FromInt(2)))
	b.Put(1, Additive(fixed.FromInt(3)))
	b.Put(2, Multiplicative(fixed.FromRatio(1, 10)))

	var c Set
	c.Put(9, Additive(fixed.One))
	c.CopyFrom(&a)
	if c.IsActive(9) || c.Get(1).Add != fixed.FromInt(2) {
		t.Fatal("CopyFrom kept stale slot or lost value")
	}
	c.Layer(&b)
	if c.Get(1).Add != fixed.FromInt(5) || !c.IsActive(2) {
		t.Fatalf("Layer result wrong: %+v", c.Get(1))
	}
}
