package modifier

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/archon/engine/internal/core/contract"
	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/event"
	"github.com/archon/engine/internal/core/fixed"
	"go.uber.org/zap"
)

var (
	ErrTypeOutOfRange = errors.New("modifier: type out of range")
	ErrScopeFull      = errors.New("modifier: too many modifiers on scope")
	ErrUnknownScope   = errors.New("modifier: unknown scope")
)

// Lookup is the read access the system needs into the entity store.
type Lookup interface {
	IndexOf(id ecs.EntityID) (int, bool)
	IDAt(idx int) ecs.EntityID
	Owner(id ecs.EntityID) (ecs.OwnerID, bool)
	Cap() int
	MaxOwners() int
}

// Stats counts cache rebuilds. Entity rebuilds only ever happen on reads.
type Stats struct {
	EntityRebuilds uint64
	OwnerRebuilds  uint64
}

// sources is the list of modifiers attached to one scope, kept sorted by
// (type, source), and their aggregate.
type sources struct {
	entries    []Entry
	local      Set
	generation uint32
	nextExpiry uint64
}

// container is a cached, layered Set with the stamp it was built against.
type container struct {
	cached    Set
	lastSeen  uint32
	lastOwner ecs.OwnerID
	dirty     bool
	built     bool
}

type ownerScope struct {
	sources
	container
}

// entityScope always has a container once read; own is allocated only when
// the entity gets a modifier of its own.
type entityScope struct {
	own *sources
	container
}

// System owns every modifier scope. Mutations happen on the single writer;
// reads may run concurrently with each other, so cache rebuilds are
// serialised by mu.
type System struct {
	mu sync.Mutex

	lookup      Lookup
	bus         *event.Bus
	log         *zap.Logger
	maxPerScope int

	global    sources
	globalGen uint32
	owners    []*ownerScope
	entities  []*entityScope // by dense entity index

	stats Stats
}

// New creates an empty modifier system. maxPerScope bounds the number of
// simultaneous modifiers on any single scope.
func New(lookup Lookup, maxPerScope int, bus *event.Bus, log *zap.Logger) *System {
	return &System{
		lookup:      lookup,
		bus:         bus,
		log:         log,
		maxPerScope: maxPerScope,
		owners:      make([]*ownerScope, 0, 64),
		entities:    make([]*entityScope, lookup.Cap()),
	}
}

// Effective returns base with every modifier of type t that applies to the
// entity: global, then its owner's, then its own. Unknown entities and types
// yield base unchanged.
func (s *System) Effective(id ecs.EntityID, t TypeID, base fixed.Fixed) fixed.Fixed {
	v, ok := s.EffectiveValue(id, t)
	if !ok {
		return base
	}
	v.Base = base.Add(v.Base)
	return Apply(v)
}

// EffectiveValue returns the layered modifier for the entity without
// applying it. ok is false for an unknown entity or type.
func (s *System) EffectiveValue(id ecs.EntityID, t TypeID) (Value, bool) {
	if t >= MaxTypes {
		return Identity, false
	}
	idx, ok := s.lookup.IndexOf(id)
	if !ok {
		return Identity, false
	}
	owner, _ := s.lookup.Owner(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	es := s.entityAt(idx, true)
	s.refreshEntity(es, owner)
	return es.cached.Get(t), true
}

// OwnerEffective applies global and owner modifiers of type t to base.
func (s *System) OwnerEffective(owner ecs.OwnerID, t TypeID, base fixed.Fixed) fixed.Fixed {
	if t >= MaxTypes {
		return base
	}
	s.mu.Lock()
	v := s.ownerSet(owner).Get(t)
	s.mu.Unlock()
	v.Base = base.Add(v.Base)
	return Apply(v)
}

// GlobalEffective applies global modifiers of type t to base.
func (s *System) GlobalEffective(t TypeID, base fixed.Fixed) fixed.Fixed {
	if t >= MaxTypes {
		return base
	}
	s.mu.Lock()
	v := s.global.local.Get(t)
	s.mu.Unlock()
	v.Base = base.Add(v.Base)
	return Apply(v)
}

// AddModifier inserts or replaces the modifier identified by (t, source) on
// scope and bumps that scope's generation. expiry 0 never expires.
func (s *System) AddModifier(scope Scope, t TypeID, v Value, source uint32, expiry uint64) error {
	if t >= MaxTypes {
		s.log.Warn("modifier type out of range",
			zap.Uint16("type", uint16(t)), zap.Stringer("scope", scope))
		return fmt.Errorf("%w: %d", ErrTypeOutOfRange, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.sourcesOf(scope, true)
	if err != nil {
		return err
	}
	e := Entry{Type: t, Source: source, Value: v, Expiry: expiry}
	pos, found := slices.BinarySearchFunc(src.entries, e, compareEntry)
	if found {
		src.entries[pos] = e
	} else {
		if len(src.entries) >= s.maxPerScope {
			s.log.Warn("modifier scope full",
				zap.Stringer("scope", scope), zap.Int("limit", s.maxPerScope))
			return fmt.Errorf("%w: %s holds %d", ErrScopeFull, scope, len(src.entries))
		}
		src.entries = slices.Insert(src.entries, pos, e)
	}
	src.aggregate()
	s.bump(scope)
	if s.bus != nil {
		event.Emit(s.bus, ModifierChanged{Scope: scope, Type: t, Source: source})
	}
	return nil
}

// CanAdd reports the error AddModifier would return for (scope, t, source)
// without changing anything.
func (s *System) CanAdd(scope Scope, t TypeID, source uint32) error {
	if t >= MaxTypes {
		return fmt.Errorf("%w: %d", ErrTypeOutOfRange, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src, err := s.sourcesOf(scope, false)
	if err != nil || src == nil {
		return err
	}
	if _, found := slices.BinarySearchFunc(src.entries, Entry{Type: t, Source: source}, compareEntry); found {
		return nil
	}
	if len(src.entries) >= s.maxPerScope {
		return fmt.Errorf("%w: %s holds %d", ErrScopeFull, scope, len(src.entries))
	}
	return nil
}

// Has reports whether scope holds the modifier (t, source).
func (s *System) Has(scope Scope, t TypeID, source uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, err := s.sourcesOf(scope, false)
	if err != nil || src == nil {
		return false
	}
	_, found := slices.BinarySearchFunc(src.entries, Entry{Type: t, Source: source}, compareEntry)
	return found
}

// RemoveModifier deletes the modifier (t, source) from scope. It reports
// whether anything was removed.
func (s *System) RemoveModifier(scope Scope, t TypeID, source uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.sourcesOf(scope, false)
	if err != nil || src == nil {
		return false
	}
	pos, found := slices.BinarySearchFunc(src.entries, Entry{Type: t, Source: source}, compareEntry)
	if !found {
		return false
	}
	src.entries = slices.Delete(src.entries, pos, pos+1)
	src.aggregate()
	s.bump(scope)
	if s.bus != nil {
		event.Emit(s.bus, ModifierChanged{Scope: scope, Type: t, Source: source, Removed: true})
	}
	return true
}

// ExpireModifiers removes every modifier with 0 < expiry <= tick. Each scope
// that lost at least one modifier has its generation bumped once. Returns the
// number of modifiers removed.
func (s *System) ExpireModifiers(tick uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, scopes := 0, 0
	if n := s.global.expire(tick); n > 0 {
		removed += n
		scopes++
		s.bump(GlobalScope())
	}
	for o, os := range s.owners {
		if os == nil {
			continue
		}
		if n := os.expire(tick); n > 0 {
			removed += n
			scopes++
			s.bump(OwnerScope(ecs.OwnerID(o)))
		}
	}
	for idx, es := range s.entities {
		if es == nil || es.own == nil {
			continue
		}
		if n := es.own.expire(tick); n > 0 {
			removed += n
			scopes++
			s.bump(EntityScope(s.lookup.IDAt(idx)))
		}
	}
	if removed > 0 && s.bus != nil {
		event.Emit(s.bus, ModifiersExpired{Tick: tick, Removed: removed, Scopes: scopes})
	}
	return removed
}

// Modifiers returns a copy of the modifiers attached directly to scope.
func (s *System) Modifiers(scope Scope) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, err := s.sourcesOf(scope, false)
	if err != nil || src == nil {
		return nil
	}
	return slices.Clone(src.entries)
}

// Sources visits every modifier in a canonical order: global, owners by ID,
// entities by dense index.
func (s *System) Sources(fn func(Scope, Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.global.entries {
		fn(GlobalScope(), e)
	}
	for o, os := range s.owners {
		if os == nil {
			continue
		}
		for _, e := range os.entries {
			fn(OwnerScope(ecs.OwnerID(o)), e)
		}
	}
	for idx, es := range s.entities {
		if es == nil || es.own == nil {
			continue
		}
		id := s.lookup.IDAt(idx)
		for _, e := range es.own.entries {
			fn(EntityScope(id), e)
		}
	}
}

// Count returns the number of modifiers attached anywhere.
func (s *System) Count() int {
	n := 0
	s.Sources(func(Scope, Entry) { n++ })
	return n
}

func (s *System) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *System) GlobalGeneration() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalGen
}

func (s *System) OwnerGeneration(owner ecs.OwnerID) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(owner) >= len(s.owners) || s.owners[owner] == nil {
		return 0
	}
	return s.owners[owner].generation
}

// sourcesOf resolves scope to its source list. With create false a scope
// that never held modifiers yields (nil, nil).
func (s *System) sourcesOf(scope Scope, create bool) (*sources, error) {
	switch scope.Kind {
	case ScopeGlobal:
		return &s.global, nil
	case ScopeOwner:
		if scope.ID == uint16(ecs.Unowned) || int(scope.ID) >= s.lookup.MaxOwners() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
		}
		os := s.ownerAt(ecs.OwnerID(scope.ID), create)
		if os == nil {
			return nil, nil
		}
		return &os.sources, nil
	case ScopeEntity:
		idx, ok := s.lookup.IndexOf(ecs.EntityID(scope.ID))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
		}
		es := s.entityAt(idx, create)
		if es == nil {
			return nil, nil
		}
		if es.own == nil {
			if !create {
				return nil, nil
			}
			es.own = &sources{}
		}
		return es.own, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
}

// bump advances exactly one generation counter: the global one, or the
// owner's, or marks a single entity container dirty.
func (s *System) bump(scope Scope) {
	switch scope.Kind {
	case ScopeGlobal:
		s.globalGen++
	case ScopeOwner:
		os := s.owners[scope.ID]
		os.generation++
		os.container.dirty = true
	case ScopeEntity:
		idx, _ := s.lookup.IndexOf(ecs.EntityID(scope.ID))
		es := s.entities[idx]
		es.own.generation++
		es.container.dirty = true
	}
}

func (s *System) ownerAt(owner ecs.OwnerID, create bool) *ownerScope {
	if int(owner) < len(s.owners) && s.owners[owner] != nil {
		return s.owners[owner]
	}
	if !create {
		return nil
	}
	for int(owner) >= len(s.owners) {
		s.owners = append(s.owners, nil)
	}
	os := &ownerScope{}
	os.container.dirty = true
	s.owners[owner] = os
	return os
}

func (s *System) entityAt(idx int, create bool) *entityScope {
	if idx >= len(s.entities) {
		if !create {
			return nil
		}
		s.entities = append(s.entities, make([]*entityScope, idx+1-len(s.entities))...)
	}
	es := s.entities[idx]
	if es == nil && create {
		es = &entityScope{}
		es.container.dirty = true
		s.entities[idx] = es
	}
	return es
}

// parentStamp is the generation an entity container owned by owner must
// have seen to be valid. Owner and global counters only increase, so their
// wrapping sum changes whenever either does.
func (s *System) parentStamp(owner ecs.OwnerID) uint32 {
	if owner == ecs.Unowned || int(owner) >= len(s.owners) || s.owners[owner] == nil {
		return s.globalGen
	}
	return s.owners[owner].generation + s.globalGen
}

// ownerSet returns owner's layered set, rebuilding it first if the global
// generation moved or its own sources changed.
func (s *System) ownerSet(owner ecs.OwnerID) *Set {
	if owner == ecs.Unowned || int(owner) >= len(s.owners) || s.owners[owner] == nil {
		return &s.global.local
	}
	os := s.owners[owner]
	c := &os.container
	if c.dirty || !c.built || c.lastSeen != s.globalGen {
		c.cached.CopyFrom(&s.global.local)
		c.cached.Layer(&os.local)
		c.lastSeen = s.globalGen
		c.lastOwner = owner
		c.dirty = false
		c.built = true
		s.stats.OwnerRebuilds++
	}
	return &c.cached
}

func (s *System) refreshEntity(es *entityScope, owner ecs.OwnerID) {
	c := &es.container
	stamp := s.parentStamp(owner)
	if c.built && !c.dirty && c.lastOwner == owner && c.lastSeen == stamp {
		return
	}
	parent := s.ownerSet(owner)
	c.cached.CopyFrom(parent)
	if es.own != nil {
		c.cached.Layer(&es.own.local)
	}
	c.lastSeen = s.parentStamp(owner)
	c.lastOwner = owner
	c.dirty = false
	c.built = true
	s.stats.EntityRebuilds++
	if c.lastSeen != stamp {
		contract.Violation(s.log, "parent generation moved during entity rebuild",
			zap.Uint32("stamp", stamp), zap.Uint32("seen", c.lastSeen))
	}
}

func (src *sources) aggregate() {
	src.local.Reset()
	src.nextExpiry = 0
	for _, e := range src.entries {
		src.local.Accumulate(e.Type, e.Value)
		if e.Expiry != 0 && (src.nextExpiry == 0 || e.Expiry < src.nextExpiry) {
			src.nextExpiry = e.Expiry
		}
	}
}

// expire drops entries with 0 < Expiry <= tick in one pass.
func (src *sources) expire(tick uint64) int {
	if src.nextExpiry == 0 || src.nextExpiry > tick {
		return 0
	}
	kept := src.entries[:0]
	for _, e := range src.entries {
		if e.Expiry != 0 && e.Expiry <= tick {
			continue
		}
		kept = append(kept, e)
	}
	n := len(src.entries) - len(kept)
	clear(src.entries[len(kept):])
	src.entries = kept
	src.aggregate()
	return n
}

// Placed is a modifier together with the scope it is attached to, as
// visited by Sources.
type Placed struct {
	Scope Scope
	Entry Entry
}

// Restore replaces every modifier with entries. All entries are validated
// into fresh scopes first; on error the current modifiers are left
// untouched. Generations restart at zero and no events are emitted.
func (s *System) Restore(entries []Placed) error {
	fresh := New(s.lookup, s.maxPerScope, nil, s.log)
	for _, p := range entries {
		e := p.Entry
		if err := fresh.AddModifier(p.Scope, e.Type, e.Value, e.Source, e.Expiry); err != nil {
			return fmt.Errorf("restore %s: %w", p.Scope, err)
		}
	}
	// AddModifier bumped generations while filling; start from a clean stamp.
	fresh.globalGen = 0
	for _, os := range fresh.owners {
		if os != nil {
			os.generation = 0
		}
	}
	for _, es := range fresh.entities {
		if es != nil && es.own != nil {
			es.own.generation = 0
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = fresh.global
	s.globalGen = 0
	s.owners = fresh.owners
	s.entities = fresh.entities
	return nil
}
