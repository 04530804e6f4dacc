package sim

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/archon/engine/internal/core/command"
	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/event"
	"github.com/archon/engine/internal/core/fixed"
	"github.com/archon/engine/internal/core/modifier"
	"github.com/archon/engine/internal/core/snapshot"
)

const typeTax modifier.TypeID = 0

func TestScenarioOwnershipAndModifiers(t *testing.T) {
	const (
		ownerA ecs.OwnerID = 1
		ownerB ecs.OwnerID = 2
	)
	e := newTestEngine(t, 50000, func(id ecs.EntityID) ecs.OwnerID {
		switch {
		case id <= 12500:
			return ownerA
		case id <= 25000:
			return 3
		case id <= 37500:
			return 4
		}
		return ecs.Unowned
	})

	submit(t, e, AddModifier{
		Scope: modifier.OwnerScope(ownerA),
		Type:  typeTax,
		Value: modifier.Multiplicative(fixed.FromRatio(1, 10)),
	})
	if res := e.Step(); len(res) != 1 || !res[0].OK() {
		t.Fatalf("results = %+v", res)
	}

	base := fixed.FromInt(100)
	e.View(func(s *State) {
		if got := s.Modifiers.Effective(42, typeTax, base).Round(); got != 110 {
			t.Fatalf("owned by A: %d, want 110", got)
		}
	})

	submit(t, e, SetOwner{Entity: 42, Owner: ownerB})
	e.Step()

	e.View(func(s *State) {
		if got := s.Modifiers.Effective(42, typeTax, base).Round(); got != 100 {
			t.Fatalf("owned by B: %d, want 100", got)
		}
		owners := s.Entities.Owners()
		if owners.CountOf(ownerA) != 12499 || owners.CountOf(ownerB) != 1 {
			t.Fatalf("CountOf(A)=%d CountOf(B)=%d", owners.CountOf(ownerA), owners.CountOf(ownerB))
		}
		if owners.Contains(ownerA, 42) || !owners.Contains(ownerB, 42) {
			t.Fatal("reverse index not updated")
		}
	})
}

// randomCommands produces a reproducible mix of every built-in kind.
func randomCommands(r *rand.Rand, n int) []Command {
	out := make([]Command, 0, n)
	for len(out) < n {
		id := ecs.EntityID(1 + r.IntN(300))
		owner := ecs.OwnerID(r.IntN(8))
		switch r.IntN(8) {
		case 0, 1:
			out = append(out, SetOwner{Entity: id, Owner: owner})
		case 2:
			out = append(out, SetController{Entity: id, Controller: owner})
		case 3:
			out = append(out, SetTerrain{Entity: id, Terrain: ecs.TerrainClass(r.IntN(6))})
		case 4:
			scope := modifier.EntityScope(id)
			if owner != ecs.Unowned && r.IntN(2) == 0 {
				scope = modifier.OwnerScope(owner)
			}
			out = append(out, AddModifier{
				Scope:  scope,
				Type:   modifier.TypeID(r.IntN(4)),
				Value:  modifier.Value{Add: fixed.FromInt(int64(r.IntN(10))), Mul: fixed.FromRatio(int64(r.IntN(50)), 100)},
				Source: uint32(r.IntN(3)),
				Expiry: uint64(r.IntN(40)),
			})
		case 5:
			out = append(out, RemoveModifier{Scope: modifier.EntityScope(id), Type: modifier.TypeID(r.IntN(4)), Source: uint32(r.IntN(3))})
		case 6:
			out = append(out, TransferOwner{From: ecs.OwnerID(1 + r.IntN(7)), To: owner})
		case 7:
			out = append(out, Annex{Owner: owner, Entities: []ecs.EntityID{id, id + 1}})
		}
	}
	return out
}

func runSequence(t *testing.T, cmds []Command, shuffle *rand.Rand) [][]byte {
	t.Helper()
	e := newTestEngine(t, 301, func(id ecs.EntityID) ecs.OwnerID { return ecs.OwnerID(id % 5) })
	const perTick = 25
	var snaps [][]byte
	for start := 0; start < len(cmds); start += perTick {
		batch := cmds[start:min(start+perTick, len(cmds))]
		order := make([]int, len(batch))
		for i := range order {
			order[i] = i
		}
		if shuffle != nil {
			shuffle.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		for _, i := range order {
			if err := e.Submit(peerN(byte(start+i)%4), 0, batch[i]); err != nil {
				t.Fatal(err)
			}
		}
		e.Step()
		snaps = append(snaps, e.Snapshot())
	}
	return snaps
}

func TestDeterminism(t *testing.T) {
	cmds := randomCommands(rand.New(rand.NewPCG(7, 11)), 500)
	first := runSequence(t, cmds, nil)
	second := runSequence(t, cmds, rand.New(rand.NewPCG(99, 3)))
	for i := range first {
		if !bytes.Equal(first[i], second[i]) {
			t.Fatalf("tick %d: snapshots differ", i+1)
		}
	}
	h1, err := snapshot.ReadHeader(first[len(first)-1])
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := snapshot.ReadHeader(second[len(second)-1])
	if h1.Checksum != h2.Checksum || h1.Generation == 0 {
		t.Fatalf("headers = %+v / %+v", h1, h2)
	}
}

func TestReverseIndexConsistentAfterRandomCommands(t *testing.T) {
	e := newTestEngine(t, 301, func(id ecs.EntityID) ecs.OwnerID { return ecs.OwnerID(id % 5) })
	for _, c := range randomCommands(rand.New(rand.NewPCG(1, 2)), 400) {
		submit(t, e, c)
	}
	e.Step()
	e.View(func(s *State) {
		total := 0
		s.Entities.Each(func(id ecs.EntityID, r ecs.Record) {
			if r.Owner == ecs.Unowned {
				return
			}
			total++
			if !s.Entities.Owners().Contains(r.Owner, id) {
				t.Fatalf("entity %d missing from owner %d", id, r.Owner)
			}
		})
		if total != s.Entities.Owners().Owned() {
			t.Fatalf("index holds %d, store owns %d", s.Entities.Owners().Owned(), total)
		}
	})
}

func TestSnapshotRestoreContinuesIdentically(t *testing.T) {
	cmds := randomCommands(rand.New(rand.NewPCG(5, 5)), 200)
	a := newTestEngine(t, 301, func(id ecs.EntityID) ecs.OwnerID { return ecs.OwnerID(id % 5) })
	for _, c := range cmds[:100] {
		submit(t, a, c)
	}
	a.Step()
	a.Step()
	snap := a.Snapshot()

	b := newTestEngine(t, 301, nil)
	if err := b.Restore(snap); err != nil {
		t.Fatal(err)
	}
	if b.Tick() != a.Tick() || !bytes.Equal(b.Snapshot(), snap) {
		t.Fatal("restored engine differs")
	}
	for _, e := range []*Engine{a, b} {
		for _, c := range cmds[100:] {
			submit(t, e, c)
		}
		e.Step()
	}
	if !bytes.Equal(a.Snapshot(), b.Snapshot()) {
		t.Fatal("engines diverged after restore")
	}

	corrupt := bytes.Clone(snap)
	corrupt[len(corrupt)-1] ^= 0xFF
	before := b.Snapshot()
	if err := b.Restore(corrupt); !errors.Is(err, snapshot.ErrChecksum) {
		t.Fatalf("corrupt restore: %v", err)
	}
	if !bytes.Equal(b.Snapshot(), before) {
		t.Fatal("failed restore changed state")
	}
}

func TestJournalReplay(t *testing.T) {
	var journal []command.Executed
	a := newTestEngine(t, 301, func(id ecs.EntityID) ecs.OwnerID { return ecs.OwnerID(id % 5) })
	event.Subscribe(a.Bus(), func(ev command.Executed) { journal = append(journal, ev) })

	cmds := randomCommands(rand.New(rand.NewPCG(3, 4)), 120)
	for i, c := range cmds {
		if err := a.Submit(peerN(byte(i%3)), int32(i%2), c); err != nil {
			t.Fatal(err)
		}
		if i%40 == 39 {
			a.Step()
		}
	}

	b := newTestEngine(t, 301, func(id ecs.EntityID) ecs.OwnerID { return ecs.OwnerID(id % 5) })
	for _, ev := range journal {
		cmd, err := b.Registry().Decode(ev.Kind, ev.Payload)
		if err != nil {
			t.Fatal(err)
		}
		if err := b.SubmitAt(ev.Tick, ev.Peer, ev.Priority, cmd); err != nil {
			t.Fatal(err)
		}
	}
	for b.Tick() < a.Tick() {
		for _, r := range b.Step() {
			if !r.OK() {
				t.Fatalf("replayed command rejected: %v", r.Err)
			}
		}
	}
	if !bytes.Equal(a.Snapshot(), b.Snapshot()) {
		t.Fatal("replay diverged")
	}
}

func TestTickPipeline(t *testing.T) {
	e := newTestEngine(t, 10, nil)
	var ticks []event.TickCompleted
	event.Subscribe(e.Bus(), func(ev event.TickCompleted) { ticks = append(ticks, ev) })
	var expired []modifier.ModifiersExpired
	event.Subscribe(e.Bus(), func(ev modifier.ModifiersExpired) { expired = append(expired, ev) })

	submit(t, e, AddModifier{Scope: modifier.EntityScope(3), Type: typeTax, Value: modifier.Additive(fixed.One), Expiry: 2})
	submit(t, e, SetOwner{Entity: 99, Owner: 1})
	e.Step()
	e.Step()

	if len(ticks) != 2 || ticks[0].Executed != 1 || ticks[0].Rejected != 1 || ticks[1].Tick != 2 {
		t.Fatalf("TickCompleted = %+v", ticks)
	}
	if len(expired) != 1 || expired[0].Tick != 2 {
		t.Fatalf("expired = %+v", expired)
	}
	e.View(func(s *State) {
		if s.Modifiers.Count() != 0 || s.Tick() != 2 || s.Generation() != 1 {
			t.Fatalf("tick=%d gen=%d mods=%d", s.Tick(), s.Generation(), s.Modifiers.Count())
		}
	})
}

func BenchmarkStep(b *testing.B) {
	e := newTestEngine(b, 5000, func(id ecs.EntityID) ecs.OwnerID { return ecs.OwnerID(id % 8) })
	cmds := randomCommands(rand.New(rand.NewPCG(1, 1)), 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, c := range cmds[:64] {
			_ = e.Submit(peerN(0), 0, c)
		}
		e.Step()
	}
}

func TestSubmitFromTickHandlerRunsNextTick(t *testing.T) {
	e := newTestEngine(t, 4, nil)
	var submitErr error
	event.Subscribe(e.Bus(), func(ev event.TickCompleted) {
		if ev.Tick == 1 {
			submitErr = e.Submit(peerN(2), 0, SetOwner{Entity: 2, Owner: 3})
		}
	})

	if res := e.Step(); len(res) != 0 {
		t.Fatalf("tick 1 results = %+v", res)
	}
	if submitErr != nil {
		t.Fatalf("submit from handler: %v", submitErr)
	}
	res := e.Step()
	if len(res) != 1 || !res[0].OK() || res[0].Tick != 2 {
		t.Fatalf("tick 2 results = %+v", res)
	}
	e.View(func(s *State) {
		if got, _ := s.Entities.Owner(2); got != 3 {
			t.Fatalf("owner = %d, want 3", got)
		}
	})
}
