package command

import (
	"fmt"
	"slices"
	"sync"

	"github.com/archon/engine/internal/core/event"
	"go.uber.org/zap"
)

// Processor owns state S and is the only path that mutates it. Process runs
// in the mutation window (write lock); View and Check run in query windows
// (read lock) and may overlap each other.
//
// Event handlers run inside the mutation window and must not call View.
type Processor[S any] struct {
	window sync.RWMutex
	state  S

	subMu   sync.Mutex
	pending map[uint64][]queued[S]
	next    uint64 // lowest tick still accepting submissions

	bus *event.Bus
	log *zap.Logger
}

func NewProcessor[S any](state S, bus *event.Bus, log *zap.Logger) *Processor[S] {
	return &Processor[S]{
		state:   state,
		pending: make(map[uint64][]queued[S]),
		bus:     bus,
		log:     log,
	}
}

// Submit queues sub for its tick. Safe for concurrent use.
func (p *Processor[S]) Submit(sub Submission[S]) error {
	if sub.Cmd == nil {
		return ErrNilCommand
	}
	payload, err := sub.Cmd.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", sub.Cmd.Kind(), err)
	}
	q := queued[S]{sub: sub, payload: payload, checksum: Checksum(sub.Cmd.Kind(), payload)}

	p.subMu.Lock()
	defer p.subMu.Unlock()
	if sub.Tick < p.next {
		return fmt.Errorf("%w: tick %d, next %d", ErrLate, sub.Tick, p.next)
	}
	p.pending[sub.Tick] = append(p.pending[sub.Tick], q)
	return nil
}

// Next returns the lowest tick still accepting submissions.
func (p *Processor[S]) Next() uint64 {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	return p.next
}

// Pending returns the number of queued submissions.
func (p *Processor[S]) Pending() int {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	n := 0
	for _, qs := range p.pending {
		n += len(qs)
	}
	return n
}

// Process applies every submission for ticks up to and including tick, in
// tick order and canonical order within a tick. Each command's events are
// dispatched before the next command runs.
func (p *Processor[S]) Process(tick uint64) []Result {
	batch := p.drain(tick)
	if len(batch) == 0 {
		return nil
	}

	p.window.Lock()
	defer p.window.Unlock()

	results := make([]Result, 0, len(batch))
	seq := 0
	for _, q := range batch {
		res := p.apply(q, seq)
		if res.OK() {
			seq++
		}
		results = append(results, res)
		if p.bus != nil {
			p.bus.DispatchAll()
		}
	}
	return results
}

func (p *Processor[S]) drain(tick uint64) []queued[S] {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	ticks := make([]uint64, 0, len(p.pending))
	for t := range p.pending {
		if t <= tick {
			ticks = append(ticks, t)
		}
	}
	slices.Sort(ticks)

	var batch []queued[S]
	for _, t := range ticks {
		qs := p.pending[t]
		slices.SortStableFunc(qs, compareQueued[S])
		batch = append(batch, qs...)
		delete(p.pending, t)
	}
	if tick+1 > p.next {
		p.next = tick + 1
	}
	return batch
}

func (p *Processor[S]) apply(q queued[S], seq int) Result {
	cmd := q.sub.Cmd
	res := Result{Tick: q.sub.Tick, Kind: cmd.Kind(), Peer: q.sub.Peer}

	if err := p.safeValidate(cmd); err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrRejected, cmd.Kind(), err)
		p.log.Debug("command rejected",
			zap.Uint64("tick", q.sub.Tick),
			zap.String("kind", cmd.Kind()),
			zap.Stringer("peer", q.sub.Peer),
			zap.Error(err),
		)
		if p.bus != nil {
			event.Emit(p.bus, Rejected{Tick: q.sub.Tick, Kind: cmd.Kind(), Peer: q.sub.Peer, Reason: err.Error()})
		}
		return res
	}

	cmd.Execute(p.state)
	if v, ok := any(p.state).(Versioned); ok {
		res.Generation = v.BumpGeneration()
	}
	if p.bus != nil {
		event.Emit(p.bus, Executed{
			Tick:       q.sub.Tick,
			Seq:        seq,
			Priority:   q.sub.Priority,
			Kind:       cmd.Kind(),
			Peer:       q.sub.Peer,
			Payload:    q.payload,
			Generation: res.Generation,
		})
	}
	return res
}

// safeValidate turns a panicking validator into a rejection so one bad
// command cannot stop the tick.
func (p *Processor[S]) safeValidate(cmd Command[S]) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("command validator panic recovered",
				zap.String("kind", cmd.Kind()),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("validator panic: %v", rec)
		}
	}()
	return cmd.Validate(p.state)
}

// Check validates cmd against the current state without executing it.
func (p *Processor[S]) Check(cmd Command[S]) error {
	p.window.RLock()
	defer p.window.RUnlock()
	if err := p.safeValidate(cmd); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRejected, cmd.Kind(), err)
	}
	return nil
}

// View runs fn inside a query window. fn must not mutate state.
func (p *Processor[S]) View(fn func(S)) {
	p.window.RLock()
	defer p.window.RUnlock()
	fn(p.state)
}

// Mutate runs fn inside the mutation window, for work that is not a command
// (tick phases, snapshot restore). Events emitted by fn are dispatched
// before the window closes.
func (p *Processor[S]) Mutate(fn func(S) S) {
	p.window.Lock()
	defer p.window.Unlock()
	p.state = fn(p.state)
	if p.bus != nil {
		p.bus.DispatchAll()
	}
}

// Resume makes the processor accept submissions for every tick after tick,
// as after restoring a snapshot taken at tick. Queued submissions for tick
// or earlier are dropped and their count returned.
func (p *Processor[S]) Resume(tick uint64) int {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	dropped := 0
	for t, qs := range p.pending {
		if t <= tick {
			dropped += len(qs)
			delete(p.pending, t)
		}
	}
	p.next = tick + 1
	return dropped
}
