package ecs

// EachOwned iterates owner's entities through the reverse index, O(k).
func EachOwned(s *Store, owner OwnerID, fn func(EntityID, Record)) {
	for _, id := range s.owners.EntitiesOf(owner) {
		idx := s.slots[id]
		fn(id, s.records[idx])
	}
}

// EachUnowned is the forward-scan fallback for the sentinel owner, O(n).
func EachUnowned(s *Store, fn func(EntityID, Record)) {
	for i := range s.records {
		if s.records[i].Owner == Unowned {
			fn(s.ids[i], s.records[i])
		}
	}
}

// EachOccupied iterates entities whose controller differs from their owner.
func EachOccupied(s *Store, fn func(EntityID, Record)) {
	for i := range s.records {
		if s.records[i].Occupied() {
			fn(s.ids[i], s.records[i])
		}
	}
}

// CountWhere counts records matching pred with a forward scan.
func CountWhere(s *Store, pred func(Record) bool) int {
	n := 0
	for i := range s.records {
		if pred(s.records[i]) {
			n++
		}
	}
	return n
}
