package sim

import (
	"github.com/archon/engine/internal/core/event"
	coresys "github.com/archon/engine/internal/core/system"
)

// commandSystem applies the tick's submissions. Phase Command.
type commandSystem struct{ e *Engine }

func (s *commandSystem) Phase() coresys.Phase { return coresys.PhaseCommand }

func (s *commandSystem) Update(tick uint64) {
	s.e.proc.Mutate(func(st *State) *State {
		st.tick = tick
		return st
	})
	s.e.results = s.e.proc.Process(tick)
}

// expirySystem removes modifiers whose expiry tick has come. Phase Update.
type expirySystem struct{ e *Engine }

func (s *expirySystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *expirySystem) Update(tick uint64) {
	s.e.proc.Mutate(func(st *State) *State {
		st.Modifiers.ExpireModifiers(tick)
		return st
	})
}

// publishSystem announces the finished tick. Phase Publish.
type publishSystem struct{ e *Engine }

func (s *publishSystem) Phase() coresys.Phase { return coresys.PhasePublish }

func (s *publishSystem) Update(tick uint64) {
	executed, rejected := 0, 0
	for _, r := range s.e.results {
		if r.OK() {
			executed++
		} else {
			rejected++
		}
	}
	s.e.proc.Mutate(func(st *State) *State {
		event.Emit(st.Bus, event.TickCompleted{
			Tick:       tick,
			Generation: st.generation,
			Executed:   executed,
			Rejected:   rejected,
		})
		return st
	})
}
