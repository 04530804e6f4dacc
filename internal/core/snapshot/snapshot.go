// Package snapshot exports the full simulation state as one flat
// little-endian buffer and imports it back into fresh structures.
//
// Layout: a 72-byte header, then one 10-byte record per entity in store
// index order, then one 41-byte record per modifier in canonical source
// order. The header checksum is blake2b-256 of everything after the header.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/event"
	"github.com/archon/engine/internal/core/fixed"
	"github.com/archon/engine/internal/core/modifier"
	"github.com/archon/engine/internal/core/wire"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	Version = 1

	HeaderSize   = 72
	EntitySize   = 10
	ModifierSize = 41
)

var magic = [4]byte{'A', 'R', 'C', 'N'}

var (
	ErrBadMagic = errors.New("snapshot: bad magic")
	ErrVersion  = errors.New("snapshot: unsupported version")
	ErrSize     = errors.New("snapshot: size mismatch")
	ErrChecksum = errors.New("snapshot: checksum mismatch")
	ErrCorrupt  = errors.New("snapshot: corrupt record")
)

// Header describes a snapshot without decoding its body.
type Header struct {
	Version    uint16
	Generation uint64
	Tick       uint64
	Entities   uint32
	Modifiers  uint32
	Checksum   [32]byte
}

// Size is the exact byte length of a snapshot with this header.
func (h Header) Size() int {
	return HeaderSize + int(h.Entities)*EntitySize + int(h.Modifiers)*ModifierSize
}

// Export encodes store and mods. Equal states always produce equal bytes.
func Export(store *ecs.Store, mods *modifier.System, generation, tick uint64) []byte {
	var placed []modifier.Placed
	mods.Sources(func(s modifier.Scope, e modifier.Entry) {
		placed = append(placed, modifier.Placed{Scope: s, Entry: e})
	})

	body := wire.NewWriter(store.Len()*EntitySize + len(placed)*ModifierSize)
	store.Each(func(id ecs.EntityID, r ecs.Record) {
		body.U16(uint16(id))
		body.U16(uint16(r.Owner))
		body.U16(uint16(r.Controller))
		body.U16(uint16(r.Terrain))
		body.U16(r.Extension)
	})
	for _, p := range placed {
		body.U8(uint8(p.Scope.Kind))
		body.U16(p.Scope.ID)
		body.U16(uint16(p.Entry.Type))
		body.U32(p.Entry.Source)
		body.I64(p.Entry.Value.Base.Raw())
		body.I64(p.Entry.Value.Add.Raw())
		body.I64(p.Entry.Value.Mul.Raw())
		body.U64(p.Entry.Expiry)
	}

	h := Header{
		Version:    Version,
		Generation: generation,
		Tick:       tick,
		Entities:   uint32(store.Len()),
		Modifiers:  uint32(len(placed)),
		Checksum:   blake2b.Sum256(body.Bytes()),
	}
	w := wire.NewWriter(HeaderSize + body.Len())
	writeHeader(w, h)
	w.Raw(body.Bytes())
	return w.Bytes()
}

func writeHeader(w *wire.Writer, h Header) {
	w.Raw(magic[:])
	w.U16(h.Version)
	w.U16(0)
	w.U64(h.Generation)
	w.U64(h.Tick)
	w.U32(h.Entities)
	w.U32(h.Modifiers)
	w.Raw(h.Checksum[:])
	w.U64(0)
}

// ReadHeader decodes and checks the header: magic, version and the exact
// total length. It does not verify the checksum.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrSize, len(data), HeaderSize)
	}
	r := wire.NewReader(data[:HeaderSize])
	if !bytes.Equal(r.Raw(4), magic[:]) {
		return Header{}, ErrBadMagic
	}
	var h Header
	h.Version = r.U16()
	r.U16()
	h.Generation = r.U64()
	h.Tick = r.U64()
	h.Entities = r.U32()
	h.Modifiers = r.U32()
	copy(h.Checksum[:], r.Raw(32))
	r.U64()
	if err := r.Done(); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrSize, err)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	if h.Size() != len(data) {
		return Header{}, fmt.Errorf("%w: %d bytes, header says %d", ErrSize, len(data), h.Size())
	}
	return h, nil
}

// Options sizes the structures Import builds.
type Options struct {
	Capacity    int // raised to the snapshot's entity count if smaller
	MaxOwners   int
	MaxPerScope int
	Bus         *event.Bus
	Log         *zap.Logger
}

// Image is a decoded snapshot ready to be swapped into an engine.
type Image struct {
	Header    Header
	Store     *ecs.Store
	Modifiers *modifier.System
}

// Import verifies data and decodes it into fresh structures. Nothing is
// shared with any live state, so a failed import leaves the caller's state
// untouched.
func Import(data []byte, opts Options) (*Image, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[HeaderSize:]
	if blake2b.Sum256(body) != h.Checksum {
		return nil, ErrChecksum
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	capacity := max(opts.Capacity, int(h.Entities))
	store := ecs.NewStore(capacity, opts.MaxOwners, opts.Bus, log)

	r := wire.NewReader(body)
	for i := uint32(0); i < h.Entities; i++ {
		id := ecs.EntityID(r.U16())
		owner := ecs.OwnerID(r.U16())
		controller := ecs.OwnerID(r.U16())
		terrain := ecs.TerrainClass(r.U16())
		ext := r.U16()
		if !store.AddEntity(id, terrain) {
			return nil, fmt.Errorf("%w: entity %d duplicated", ErrCorrupt, id)
		}
		if err := store.Seed(id, owner, controller, ext); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	store.RebuildIndex()

	placed := make([]modifier.Placed, 0, h.Modifiers)
	for i := uint32(0); i < h.Modifiers; i++ {
		kind := modifier.ScopeKind(r.U8())
		if kind > modifier.ScopeEntity {
			return nil, fmt.Errorf("%w: scope kind %d", ErrCorrupt, kind)
		}
		p := modifier.Placed{Scope: modifier.Scope{Kind: kind, ID: r.U16()}}
		p.Entry.Type = modifier.TypeID(r.U16())
		p.Entry.Source = r.U32()
		p.Entry.Value.Base = fixed.Fixed(r.I64())
		p.Entry.Value.Add = fixed.Fixed(r.I64())
		p.Entry.Value.Mul = fixed.Fixed(r.I64())
		p.Entry.Expiry = r.U64()
		placed = append(placed, p)
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSize, err)
	}

	mods := modifier.New(store, opts.MaxPerScope, opts.Bus, log)
	if err := mods.Restore(placed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return &Image{Header: h, Store: store, Modifiers: mods}, nil
}
