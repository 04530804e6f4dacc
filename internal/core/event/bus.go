package event

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Bus queues value-typed events during a command's Execute phase and
// delivers them in one batch before the next command begins.
//
// Each event type gets its own typed queue so events are never boxed.
// A shared order log keeps delivery in global emission order across types;
// within a type, subscribers run in registration order.
//
// Emit, Publish, DispatchAll and Discard belong to the goroutine that owns
// the mutation window. Subscribe and Dispose may be called from any
// goroutine, including from inside a handler; handler lists are replaced,
// never edited in place, so a dispatch in progress keeps the list it
// started with.
type Bus struct {
	mu     sync.RWMutex // guards types, queues and every handler list
	types  map[reflect.Type]uint16
	queues []queue
	order  []pending
}

type pending struct {
	typ uint16
	idx uint32
}

// queue is the type-erased view of a typedQueue. It carries indices, not
// event values.
type queue interface {
	deliver(b *Bus, idx uint32)
	reset()
	live() int
}

type typedQueue[T any] struct {
	events   []T
	handlers []*handlerSlot[T]
}

type handlerSlot[T any] struct {
	fn       func(T)
	disposed atomic.Bool
}

func NewBus() *Bus {
	return &Bus{
		types:  make(map[reflect.Type]uint16, 16),
		queues: make([]queue, 0, 16),
		order:  make([]pending, 0, 256),
	}
}

// Subscribe registers a typed handler for events of type T. The returned
// Subscription removes it again.
func Subscribe[T any](b *Bus, fn func(T)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := queueOf[T](b)
	slot := &handlerSlot[T]{fn: fn}
	hs := make([]*handlerSlot[T], len(q.handlers), len(q.handlers)+1)
	copy(hs, q.handlers)
	q.handlers = append(hs, slot)
	return &Subscription{cancel: func() {
		slot.disposed.Store(true)
		b.mu.Lock()
		defer b.mu.Unlock()
		kept := make([]*handlerSlot[T], 0, len(q.handlers))
		for _, h := range q.handlers {
			if h != slot {
				kept = append(kept, h)
			}
		}
		q.handlers = kept
	}}
}

// Emit queues an event for the next DispatchAll. Events of a type nobody
// subscribes to are dropped immediately.
func Emit[T any](b *Bus, event T) {
	b.mu.RLock()
	id, ok := b.types[reflect.TypeFor[T]()]
	var q *typedQueue[T]
	if ok {
		q = b.queues[id].(*typedQueue[T])
		ok = len(q.handlers) > 0
	}
	b.mu.RUnlock()
	if !ok {
		return
	}
	b.order = append(b.order, pending{typ: id, idx: uint32(len(q.events))})
	q.events = append(q.events, event)
}

// Publish delivers an event synchronously, bypassing the queue.
func Publish[T any](b *Bus, event T) {
	b.mu.RLock()
	id, ok := b.types[reflect.TypeFor[T]()]
	var hs []*handlerSlot[T]
	if ok {
		hs = b.queues[id].(*typedQueue[T]).handlers
	}
	b.mu.RUnlock()
	for _, h := range hs {
		if !h.disposed.Load() {
			h.fn(event)
		}
	}
}

// DispatchAll delivers every queued event in emission order. Events emitted
// by handlers during dispatch are delivered in the same call.
func (b *Bus) DispatchAll() {
	if len(b.order) == 0 {
		return
	}
	for i := 0; i < len(b.order); i++ {
		p := b.order[i]
		b.queue(p.typ).deliver(b, p.idx)
	}
	for _, p := range b.order {
		b.queue(p.typ).reset()
	}
	b.order = b.order[:0]
}

func (b *Bus) queue(id uint16) queue {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queues[id]
}

// Pending returns the number of queued, undelivered events.
func (b *Bus) Pending() int { return len(b.order) }

// Discard drops every queued event without delivering it.
func (b *Bus) Discard() {
	for _, p := range b.order {
		b.queue(p.typ).reset()
	}
	b.order = b.order[:0]
}

// Subscribers returns the number of live handlers for T.
func Subscribers[T any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.types[reflect.TypeFor[T]()]
	if !ok {
		return 0
	}
	return b.queues[id].live()
}

func queueOf[T any](b *Bus) *typedQueue[T] {
	t := reflect.TypeFor[T]()
	if id, ok := b.types[t]; ok {
		return b.queues[id].(*typedQueue[T])
	}
	q := &typedQueue[T]{
		events:   make([]T, 0, 16),
		handlers: make([]*handlerSlot[T], 0, 4),
	}
	b.types[t] = uint16(len(b.queues))
	b.queues = append(b.queues, q)
	return q
}

func (q *typedQueue[T]) deliver(b *Bus, idx uint32) {
	b.mu.RLock()
	hs := q.handlers
	b.mu.RUnlock()
	ev := q.events[idx]
	for _, h := range hs {
		if !h.disposed.Load() {
			h.fn(ev)
		}
	}
}

func (q *typedQueue[T]) reset() {
	clear(q.events)
	q.events = q.events[:0]
}

func (q *typedQueue[T]) live() int { return len(q.handlers) }

// Subscription is the disposable handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Dispose unregisters the handler. Calling it more than once is a no-op.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
