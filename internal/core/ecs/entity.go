package ecs

import "unsafe"

// EntityID is the stable 16-bit identifier of a simulated entity.
type EntityID uint16

// OwnerID identifies a faction. Unowned is the sentinel for "no owner" and is
// never stored in the reverse index.
type OwnerID uint16

const Unowned OwnerID = 0

// TerrainClass is an index into the terrain catalog.
type TerrainClass uint16

// Record is the packed per-entity state. Its size is fixed at eight bytes;
// everything else about an entity lives behind Extension in caller-owned
// tables.
type Record struct {
	Owner      OwnerID
	Controller OwnerID
	Terrain    TerrainClass
	Extension  uint16
}

// RecordSize is the in-memory size of Record.
const RecordSize = int(unsafe.Sizeof(Record{}))

var _ [8 - RecordSize]struct{}
var _ [RecordSize - 8]struct{}

// Occupied reports whether the entity is controlled by someone other than
// its owner.
func (r Record) Occupied() bool { return r.Controller != r.Owner }

// MaxEntities is the size of the 16-bit ID space.
const MaxEntities = 1 << 16
