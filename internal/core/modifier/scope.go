package modifier

import (
	"cmp"
	"fmt"

	"github.com/archon/engine/internal/core/ecs"
)

// ScopeKind is a level of the modifier hierarchy.
type ScopeKind uint8

const (
	ScopeGlobal ScopeKind = iota
	ScopeOwner
	ScopeEntity
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeOwner:
		return "owner"
	case ScopeEntity:
		return "entity"
	}
	return fmt.Sprintf("scope(%d)", uint8(k))
}

// Scope addresses one modifier container.
type Scope struct {
	Kind ScopeKind
	ID   uint16
}

func GlobalScope() Scope                { return Scope{Kind: ScopeGlobal} }
func OwnerScope(o ecs.OwnerID) Scope    { return Scope{Kind: ScopeOwner, ID: uint16(o)} }
func EntityScope(id ecs.EntityID) Scope { return Scope{Kind: ScopeEntity, ID: uint16(id)} }

func (s Scope) String() string {
	if s.Kind == ScopeGlobal {
		return "global"
	}
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// Entry is a single modifier attached to a scope, identified by (Type, Source).
type Entry struct {
	Type   TypeID
	Source uint32
	Value  Value
	Expiry uint64 // tick at which it is removed; 0 never
}

func compareEntry(a, b Entry) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Source, b.Source)
}

// ModifierChanged is emitted when a modifier is added, replaced or removed.
type ModifierChanged struct {
	Scope   Scope
	Type    TypeID
	Source  uint32
	Removed bool
}

// ModifiersExpired is emitted once per ExpireModifiers call that removed
// anything.
type ModifiersExpired struct {
	Tick    uint64
	Removed int
	Scopes  int
}
