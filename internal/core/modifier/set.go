package modifier

import "math/bits"

// Set is a fixed array of modifier values indexed by TypeID plus a bitmask of
// the slots that hold something other than Identity. Every slot outside the
// mask is Identity, so Reset only has to visit the handful of active slots.
type Set struct {
	values [MaxTypes]Value
	active [maskWords]uint64
}

func (s *Set) Get(t TypeID) Value {
	if t >= MaxTypes {
		return Identity
	}
	return s.values[t]
}

// Put stores v, keeping the mask in step.
func (s *Set) Put(t TypeID, v Value) {
	s.values[t] = v
	if v.IsIdentity() {
		s.active[t>>6] &^= 1 << (t & 63)
	} else {
		s.active[t>>6] |= 1 << (t & 63)
	}
}

// Accumulate stacks v onto slot t.
func (s *Set) Accumulate(t TypeID, v Value) {
	s.Put(t, s.values[t].Combine(v))
}

// IsActive reports whether slot t holds a non-identity value.
func (s *Set) IsActive(t TypeID) bool {
	return t < MaxTypes && s.active[t>>6]&(1<<(t&63)) != 0
}

// Len returns the number of active slots.
func (s *Set) Len() int {
	n := 0
	for _, w := range s.active {
		n += bits.OnesCount64(w)
	}
	return n
}

// Reset clears the active slots only.
func (s *Set) Reset() {
	s.Each(func(t TypeID, _ Value) {
		s.values[t] = Identity
	})
	s.active = [maskWords]uint64{}
}

// Each visits active slots in ascending type order.
func (s *Set) Each(fn func(TypeID, Value)) {
	for w, word := range s.active {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			word &^= 1 << b
			t := TypeID(w*64 + b)
			fn(t, s.values[t])
		}
	}
}

// CopyFrom replaces s with the contents of o.
func (s *Set) CopyFrom(o *Set) {
	s.Reset()
	o.Each(func(t TypeID, v Value) {
		s.values[t] = v
	})
	s.active = o.active
}

// Layer stacks every active slot of o onto s.
func (s *Set) Layer(o *Set) {
	o.Each(func(t TypeID, v Value) {
		s.Accumulate(t, v)
	})
}
