package ecs

import "errors"

var ErrExtensionFull = errors.New("ecs: extension table full")

// NoExtension is the handle stored in Record.Extension when an entity has no
// auxiliary data.
const NoExtension uint16 = 0

// ExtensionTable is a caller-owned side table addressed by the 16-bit handle
// kept in Record.Extension. Released handles are recycled through a free list.
// The core never reads it; it exists so collaborators keep entity data out of
// the packed record.
type ExtensionTable[T any] struct {
	data     []T
	used     []bool
	freeList []uint16
}

func NewExtensionTable[T any](capacity int) *ExtensionTable[T] {
	if capacity > MaxEntities {
		capacity = MaxEntities
	}
	t := &ExtensionTable[T]{
		data:     make([]T, 1, capacity+1),
		used:     make([]bool, 1, capacity+1),
		freeList: make([]uint16, 0, 64),
	}
	return t
}

// Alloc stores v and returns its handle. Handle 0 is never returned.
func (t *ExtensionTable[T]) Alloc(v T) (uint16, error) {
	if n := len(t.freeList); n > 0 {
		h := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.data[h] = v
		t.used[h] = true
		return h, nil
	}
	if len(t.data) >= MaxEntities {
		return NoExtension, ErrExtensionFull
	}
	t.data = append(t.data, v)
	t.used = append(t.used, true)
	return uint16(len(t.data) - 1), nil
}

// Get returns a pointer to the live value behind h.
func (t *ExtensionTable[T]) Get(h uint16) (*T, bool) {
	if h == NoExtension || int(h) >= len(t.data) || !t.used[h] {
		return nil, false
	}
	return &t.data[h], true
}

// Release frees h. Releasing a dead or zero handle is a no-op.
func (t *ExtensionTable[T]) Release(h uint16) {
	if h == NoExtension || int(h) >= len(t.data) || !t.used[h] {
		return
	}
	var zero T
	t.data[h] = zero
	t.used[h] = false
	t.freeList = append(t.freeList, h)
}

// Len returns the number of live handles.
func (t *ExtensionTable[T]) Len() int {
	return len(t.data) - 1 - len(t.freeList)
}
