package sim

import (
	"testing"

	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/event"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var testOptions = Options{Capacity: 1 << 16, MaxOwners: 16, MaxPerScope: 16}

// newTestEngine builds an engine over entities 1..n, all unowned, with the
// given owner assignment applied at load time.
func newTestEngine(t testing.TB, n int, owner func(id ecs.EntityID) ecs.OwnerID) *Engine {
	t.Helper()
	var log *zap.Logger
	if tt, ok := t.(*testing.T); ok {
		log = zaptest.NewLogger(tt)
	} else {
		log = zap.NewNop()
	}
	st := NewState(testOptions, event.NewBus(), log)
	for i := 1; i <= n; i++ {
		id := ecs.EntityID(i)
		if !st.Entities.AddEntity(id, ecs.TerrainClass(i%5)) {
			t.Fatalf("add %d failed", i)
		}
		if owner != nil {
			o := owner(id)
			if err := st.Entities.Seed(id, o, o, ecs.NoExtension); err != nil {
				t.Fatal(err)
			}
		}
	}
	st.Entities.RebuildIndex()
	e, err := NewEngine(st, log)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func peerN(n byte) uuid.UUID {
	return uuid.UUID{15: n}
}

func submit(t testing.TB, e *Engine, cmd Command) {
	t.Helper()
	if err := e.Submit(peerN(1), 0, cmd); err != nil {
		t.Fatal(err)
	}
}
