package ecs

import "slices"

// OwnerIndex maps an owner to the entities it owns. Buckets are kept sorted
// by entity ID so every peer iterates them in the same order, including one
// that rebuilt its index from a snapshot.
//
// The Unowned sentinel is never indexed: it would be one huge bucket touched
// by nearly every ownership change. Callers that need unowned entities scan
// the store instead (see EachUnowned).
type OwnerIndex struct {
	buckets [][]EntityID
	owned   int
}

func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{buckets: make([][]EntityID, 0, 64)}
}

// Add inserts id into owner's bucket. Adding Unowned or an existing member
// is a no-op.
func (x *OwnerIndex) Add(owner OwnerID, id EntityID) {
	if owner == Unowned {
		return
	}
	x.grow(owner)
	b := x.buckets[owner]
	pos, found := slices.BinarySearch(b, id)
	if found {
		return
	}
	x.buckets[owner] = slices.Insert(b, pos, id)
	x.owned++
}

// Remove deletes id from owner's bucket and reports whether it was there.
// Removing a mapping that does not exist is a no-op.
func (x *OwnerIndex) Remove(owner OwnerID, id EntityID) bool {
	if owner == Unowned || int(owner) >= len(x.buckets) {
		return false
	}
	b := x.buckets[owner]
	pos, found := slices.BinarySearch(b, id)
	if !found {
		return false
	}
	x.buckets[owner] = slices.Delete(b, pos, pos+1)
	x.owned--
	return true
}

// EntitiesOf returns owner's entities in ascending ID order. The slice is a
// view into the index: it must not be modified and is only valid until the
// next ownership change. Use AppendEntitiesOf to keep a copy.
func (x *OwnerIndex) EntitiesOf(owner OwnerID) []EntityID {
	if owner == Unowned || int(owner) >= len(x.buckets) {
		return nil
	}
	return x.buckets[owner]
}

// AppendEntitiesOf appends owner's entities to dst.
func (x *OwnerIndex) AppendEntitiesOf(dst []EntityID, owner OwnerID) []EntityID {
	return append(dst, x.EntitiesOf(owner)...)
}

// CountOf returns how many entities owner has.
func (x *OwnerIndex) CountOf(owner OwnerID) int {
	return len(x.EntitiesOf(owner))
}

// Contains reports whether id is indexed under owner.
func (x *OwnerIndex) Contains(owner OwnerID, id EntityID) bool {
	_, found := slices.BinarySearch(x.EntitiesOf(owner), id)
	return found
}

// Owned returns the number of indexed (owned) entities.
func (x *OwnerIndex) Owned() int { return x.owned }

// Owners returns every owner with at least one entity, ascending.
func (x *OwnerIndex) Owners() []OwnerID {
	out := make([]OwnerID, 0, 16)
	for o, b := range x.buckets {
		if len(b) > 0 {
			out = append(out, OwnerID(o))
		}
	}
	return out
}

// Rebuild discards every bucket and reindexes the store. Load-time only.
func (x *OwnerIndex) Rebuild(s *Store) {
	for i := range x.buckets {
		x.buckets[i] = x.buckets[i][:0]
	}
	x.owned = 0
	s.Each(func(id EntityID, r Record) {
		if r.Owner == Unowned {
			return
		}
		x.grow(r.Owner)
		x.buckets[r.Owner] = append(x.buckets[r.Owner], id)
		x.owned++
	})
	for i := range x.buckets {
		slices.Sort(x.buckets[i])
	}
}

func (x *OwnerIndex) grow(owner OwnerID) {
	for int(owner) >= len(x.buckets) {
		x.buckets = append(x.buckets, nil)
	}
}
