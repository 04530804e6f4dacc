package ecs

import (
	"errors"
	"fmt"

	"github.com/archon/engine/internal/core/contract"
	"github.com/archon/engine/internal/core/event"
	"go.uber.org/zap"
)

var (
	ErrCapacity      = errors.New("ecs: entity capacity exhausted")
	ErrUnknownEntity = errors.New("ecs: unknown entity")
	ErrOwnerRange    = errors.New("ecs: owner id out of range")
)

const noSlot = -1

// Store holds the packed records of every entity in a dense array addressed
// through a flat ID→index table. Entities are added once at load time and
// never removed, so indices stay stable for the life of the simulation.
//
// Not safe for concurrent mutation; the command processor serialises writers.
type Store struct {
	records   []Record
	ids       []EntityID // index → ID
	slots     []int32    // ID → index, noSlot when absent
	maxOwners int

	owners *OwnerIndex
	bus    *event.Bus
	log    *zap.Logger
}

// NewStore allocates a store for up to capacity entities and owner IDs below
// maxOwners. bus may be nil when no events are wanted (tools, tests).
func NewStore(capacity, maxOwners int, bus *event.Bus, log *zap.Logger) *Store {
	if capacity > MaxEntities {
		capacity = MaxEntities
	}
	if maxOwners <= 0 || maxOwners > MaxEntities {
		maxOwners = MaxEntities
	}
	slots := make([]int32, MaxEntities)
	for i := range slots {
		slots[i] = noSlot
	}
	return &Store{
		records:   make([]Record, 0, capacity),
		ids:       make([]EntityID, 0, capacity),
		slots:     slots,
		maxOwners: maxOwners,
		owners:    NewOwnerIndex(),
		bus:       bus,
		log:       log,
	}
}

// AddEntity appends a new entity. It returns false when capacity is exhausted
// or when the ID already exists; the duplicate case logs a warning and leaves
// the existing record untouched.
func (s *Store) AddEntity(id EntityID, terrain TerrainClass) bool {
	if s.slots[id] != noSlot {
		s.log.Warn("duplicate entity ignored", zap.Uint16("entity", uint16(id)))
		return false
	}
	if len(s.records) == cap(s.records) {
		s.log.Warn("entity capacity exhausted",
			zap.Uint16("entity", uint16(id)),
			zap.Int("capacity", cap(s.records)),
		)
		return false
	}
	s.slots[id] = int32(len(s.records))
	s.records = append(s.records, Record{Terrain: terrain})
	s.ids = append(s.ids, id)
	return true
}

// Seed sets owner, controller and extension of a freshly added entity without
// touching the reverse index or emitting events. Load-time only: call
// OwnerIndex.Rebuild once every entity has been seeded.
func (s *Store) Seed(id EntityID, owner, controller OwnerID, extension uint16) error {
	r, err := s.ref(id)
	if err != nil {
		return err
	}
	if int(owner) >= s.maxOwners || int(controller) >= s.maxOwners {
		return fmt.Errorf("%w: %d", ErrOwnerRange, max(owner, controller))
	}
	r.Owner = owner
	r.Controller = controller
	r.Extension = extension
	return nil
}

// RebuildIndex reconstructs the reverse index from the records. Load-time only.
func (s *Store) RebuildIndex() {
	s.owners.Rebuild(s)
}

func (s *Store) Len() int { return len(s.records) }
func (s *Store) Cap() int { return cap(s.records) }

// MaxOwners is the exclusive upper bound for owner IDs.
func (s *Store) MaxOwners() int { return s.maxOwners }

// Has reports whether id was added.
func (s *Store) Has(id EntityID) bool { return s.slots[id] != noSlot }

// IndexOf returns the dense index of id.
func (s *Store) IndexOf(id EntityID) (int, bool) {
	idx := s.slots[id]
	return int(idx), idx != noSlot
}

// IDAt returns the ID stored at a dense index.
func (s *Store) IDAt(idx int) EntityID { return s.ids[idx] }

// RecordAt returns a copy of the record at a dense index.
func (s *Store) RecordAt(idx int) Record { return s.records[idx] }

// Get returns a copy of the record for id.
func (s *Store) Get(id EntityID) (Record, bool) {
	idx := s.slots[id]
	if idx == noSlot {
		return Record{}, false
	}
	return s.records[idx], true
}

func (s *Store) Owner(id EntityID) (OwnerID, bool) {
	idx := s.slots[id]
	if idx == noSlot {
		return Unowned, false
	}
	return s.records[idx].Owner, true
}

func (s *Store) Controller(id EntityID) (OwnerID, bool) {
	idx := s.slots[id]
	if idx == noSlot {
		return Unowned, false
	}
	return s.records[idx].Controller, true
}

func (s *Store) Terrain(id EntityID) (TerrainClass, bool) {
	idx := s.slots[id]
	if idx == noSlot {
		return 0, false
	}
	return s.records[idx].Terrain, true
}

func (s *Store) Extension(id EntityID) (uint16, bool) {
	idx := s.slots[id]
	if idx == noSlot {
		return 0, false
	}
	return s.records[idx].Extension, true
}

// SetOwner is the only runtime path that changes ownership. It keeps the
// reverse index in step and emits OwnershipChanged. Setting the current
// owner again is a no-op.
func (s *Store) SetOwner(id EntityID, owner OwnerID) error {
	r, err := s.ref(id)
	if err != nil {
		return err
	}
	if int(owner) >= s.maxOwners {
		return fmt.Errorf("%w: %d", ErrOwnerRange, owner)
	}
	old := r.Owner
	if old == owner {
		return nil
	}
	r.Owner = owner
	if old != Unowned && !s.owners.Remove(old, id) {
		contract.Violation(s.log, "owner bucket missing entity",
			zap.Uint16("entity", uint16(id)),
			zap.Uint16("owner", uint16(old)),
		)
	}
	s.owners.Add(owner, id)
	if s.bus != nil {
		event.Emit(s.bus, OwnershipChanged{Entity: id, Old: old, New: owner})
	}
	return nil
}

func (s *Store) SetController(id EntityID, controller OwnerID) error {
	r, err := s.ref(id)
	if err != nil {
		return err
	}
	if int(controller) >= s.maxOwners {
		return fmt.Errorf("%w: %d", ErrOwnerRange, controller)
	}
	old := r.Controller
	if old == controller {
		return nil
	}
	r.Controller = controller
	if s.bus != nil {
		event.Emit(s.bus, ControllerChanged{Entity: id, Old: old, New: controller})
	}
	return nil
}

func (s *Store) SetTerrain(id EntityID, terrain TerrainClass) error {
	r, err := s.ref(id)
	if err != nil {
		return err
	}
	old := r.Terrain
	if old == terrain {
		return nil
	}
	r.Terrain = terrain
	if s.bus != nil {
		event.Emit(s.bus, TerrainChanged{Entity: id, Old: old, New: terrain})
	}
	return nil
}

// SetExtension stores the caller's auxiliary handle. No event is emitted:
// the handle is opaque to the core.
func (s *Store) SetExtension(id EntityID, handle uint16) error {
	r, err := s.ref(id)
	if err != nil {
		return err
	}
	r.Extension = handle
	return nil
}

// Owners returns the reverse index. Callers must treat it as read-only.
func (s *Store) Owners() *OwnerIndex { return s.owners }

// Each calls fn for every entity in index order.
func (s *Store) Each(fn func(EntityID, Record)) {
	for i := range s.records {
		fn(s.ids[i], s.records[i])
	}
}

// ref returns a pointer into the backing array so writes land in place.
func (s *Store) ref(id EntityID) (*Record, error) {
	idx := s.slots[id]
	if idx == noSlot {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	return &s.records[idx], nil
}
