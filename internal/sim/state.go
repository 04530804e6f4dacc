// Package sim assembles the simulation core into a runnable engine: the
// mutable State, the built-in command kinds, scenario loading and the
// fixed tick pipeline.
package sim

import (
	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/event"
	"github.com/archon/engine/internal/core/modifier"
	"go.uber.org/zap"
)

// Options sizes a State.
type Options struct {
	Capacity    int
	MaxOwners   int
	MaxPerScope int
}

// ProvinceInfo is the per-entity data kept outside the packed record,
// addressed through Record.Extension.
type ProvinceInfo struct {
	Name  string
	Water bool
}

// State is everything commands may read and mutate. Commands receive it
// inside the processor's mutation window; queries receive it inside a
// query window.
type State struct {
	Entities  *ecs.Store
	Modifiers *modifier.System
	Provinces *ecs.ExtensionTable[ProvinceInfo]
	Bus       *event.Bus

	opts       Options
	tick       uint64
	generation uint64
	log        *zap.Logger
}

func NewState(opts Options, bus *event.Bus, log *zap.Logger) *State {
	store := ecs.NewStore(opts.Capacity, opts.MaxOwners, bus, log)
	return &State{
		Entities:  store,
		Modifiers: modifier.New(store, opts.MaxPerScope, bus, log),
		Provinces: ecs.NewExtensionTable[ProvinceInfo](opts.Capacity),
		Bus:       bus,
		opts:      opts,
		log:       log,
	}
}

// BumpGeneration records one successful command.
func (s *State) BumpGeneration() uint64 {
	s.generation++
	return s.generation
}

// Generation counts successful commands since the scenario was loaded.
func (s *State) Generation() uint64 { return s.generation }

// Tick is the logical tick currently being processed, or the last one
// processed between ticks.
func (s *State) Tick() uint64 { return s.tick }

func (s *State) Options() Options { return s.opts }

// Province returns the extension data of entity id.
func (s *State) Province(id ecs.EntityID) (*ProvinceInfo, bool) {
	h, ok := s.Entities.Extension(id)
	if !ok {
		return nil, false
	}
	return s.Provinces.Get(h)
}
