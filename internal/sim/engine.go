package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/archon/engine/internal/core/command"
	"github.com/archon/engine/internal/core/event"
	"github.com/archon/engine/internal/core/snapshot"
	coresys "github.com/archon/engine/internal/core/system"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine drives a State through the tick pipeline:
//
//	Command  apply every submission queued for the tick
//	Update   expire timed modifiers
//	Publish  emit TickCompleted
//	Persist  collaborators registered with Register
//
// Step must be called from one goroutine. Submit, View, Check and Snapshot
// are safe from any goroutine.
type Engine struct {
	proc     *command.Processor[*State]
	registry *command.Registry[*State]
	runner   *coresys.Runner
	bus      *event.Bus
	log      *zap.Logger

	tick    atomic.Uint64 // last completed tick
	results []command.Result
}

// NewEngine wraps st. st.Bus is the bus every component emits to.
func NewEngine(st *State, log *zap.Logger) (*Engine, error) {
	e := &Engine{
		proc:     command.NewProcessor(st, st.Bus, log),
		registry: command.NewRegistry[*State](log),
		runner:   coresys.NewRunner(),
		bus:      st.Bus,
		log:      log,
	}
	if err := RegisterBuiltins(e.registry); err != nil {
		return nil, fmt.Errorf("register built-in commands: %w", err)
	}
	e.tick.Store(st.tick)
	e.runner.Register(&commandSystem{e: e})
	e.runner.Register(&expirySystem{e: e})
	e.runner.Register(&publishSystem{e: e})
	return e, nil
}

// Register adds a collaborator system, typically in PhasePersist.
func (e *Engine) Register(s coresys.System) { e.runner.Register(s) }

// Registry holds decoders for every known command kind.
func (e *Engine) Registry() *command.Registry[*State] { return e.registry }

func (e *Engine) Bus() *event.Bus { return e.bus }

// Tick returns the last completed tick.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// Submit queues cmd for the next tick that has not started processing
// commands. Called from an event handler during a tick, that is the tick
// after the running one.
func (e *Engine) Submit(peer uuid.UUID, priority int32, cmd Command) error {
	return e.SubmitAt(max(e.Tick()+1, e.proc.Next()), peer, priority, cmd)
}

// SubmitAt queues cmd for a specific future tick.
func (e *Engine) SubmitAt(tick uint64, peer uuid.UUID, priority int32, cmd Command) error {
	return e.proc.Submit(command.Submission[*State]{Tick: tick, Priority: priority, Peer: peer, Cmd: detach(cmd)})
}

// Step runs one full tick and returns the command results of that tick.
func (e *Engine) Step() []command.Result {
	next := e.Tick() + 1
	e.results = nil
	e.runner.Tick(next)
	e.tick.Store(next)
	return e.results
}

// View runs fn inside a query window.
func (e *Engine) View(fn func(*State)) { e.proc.View(fn) }

// Check validates cmd against the current state without executing it.
func (e *Engine) Check(cmd Command) error { return e.proc.Check(cmd) }

// Snapshot exports the current state.
func (e *Engine) Snapshot() []byte {
	var out []byte
	e.proc.View(func(s *State) {
		out = snapshot.Export(s.Entities, s.Modifiers, s.generation, s.tick)
	})
	return out
}

// Restore replaces the entity and modifier state with a snapshot. On error
// the current state is left as it was. Extension handles are restored as
// stored, so the province table must come from the same scenario.
func (e *Engine) Restore(data []byte) error {
	var opts snapshot.Options
	e.proc.View(func(s *State) {
		opts = snapshot.Options{
			Capacity:    s.opts.Capacity,
			MaxOwners:   s.opts.MaxOwners,
			MaxPerScope: s.opts.MaxPerScope,
			Bus:         s.Bus,
			Log:         e.log,
		}
	})
	img, err := snapshot.Import(data, opts)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	e.proc.Mutate(func(s *State) *State {
		s.Entities = img.Store
		s.Modifiers = img.Modifiers
		s.generation = img.Header.Generation
		s.tick = img.Header.Tick
		return s
	})
	e.tick.Store(img.Header.Tick)
	if n := e.proc.Resume(img.Header.Tick); n > 0 {
		e.log.Warn("dropped submissions at or before restored tick", zap.Int("count", n))
	}
	e.log.Info("state restored",
		zap.Uint64("tick", img.Header.Tick),
		zap.Uint64("generation", img.Header.Generation),
		zap.Uint32("entities", img.Header.Entities),
		zap.Uint32("modifiers", img.Header.Modifiers),
	)
	return nil
}
