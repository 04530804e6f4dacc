// Profiling:
// go build ./cmd/simbench
// ./simbench cpu   (or mem)
// go tool pprof -http=":8000" -nodefraction=0.001 ./simbench cpu.pprof

package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/event"
	"github.com/archon/engine/internal/core/fixed"
	"github.com/archon/engine/internal/core/modifier"
	"github.com/archon/engine/internal/sim"
	"github.com/google/uuid"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

const (
	entities  = 50000
	owners    = 256
	ticks     = 2000
	perTick   = 64
	readsTick = 4096
)

func main() {
	mode := "cpu"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	var p interface{ Stop() }
	switch mode {
	case "cpu":
		p = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	case "mem":
		p = profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	case "none":
	default:
		fmt.Fprintln(os.Stderr, "Usage: simbench [cpu|mem|none]")
		os.Exit(1)
	}
	elapsed, rebuilds := run()
	if p != nil {
		p.Stop()
	}
	fmt.Printf("%d ticks in %s (%.0f ticks/s), %d entity cache rebuilds\n",
		ticks, elapsed, float64(ticks)/elapsed.Seconds(), rebuilds)
}

func run() (time.Duration, uint64) {
	log := zap.NewNop()
	st := sim.NewState(sim.Options{Capacity: entities, MaxOwners: owners, MaxPerScope: 32}, event.NewBus(), log)
	for i := 1; i <= entities; i++ {
		id := ecs.EntityID(i)
		st.Entities.AddEntity(id, ecs.TerrainClass(i%8))
		o := ecs.OwnerID(i%(owners-1) + 1)
		_ = st.Entities.Seed(id, o, o, ecs.NoExtension)
	}
	st.Entities.RebuildIndex()
	eng, err := sim.NewEngine(st, log)
	if err != nil {
		panic(err)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	peer := uuid.New()
	start := time.Now()
	for t := uint64(1); t <= ticks; t++ {
		for range perTick {
			var cmd sim.Command
			switch rng.IntN(3) {
			case 0:
				cmd = sim.SetOwner{Entity: ecs.EntityID(rng.IntN(entities) + 1), Owner: ecs.OwnerID(rng.IntN(owners-1) + 1)}
			case 1:
				cmd = sim.AddModifier{
					Scope:  modifier.OwnerScope(ecs.OwnerID(rng.IntN(owners-1) + 1)),
					Type:   modifier.TypeID(rng.IntN(modifier.MaxTypes)),
					Value:  modifier.Additive(fixed.FromRatio(int64(rng.IntN(100)), 10)),
					Source: uint32(rng.IntN(16)),
					Expiry: t + uint64(rng.IntN(50)+1),
				}
			default:
				cmd = sim.SetController{Entity: ecs.EntityID(rng.IntN(entities) + 1), Controller: ecs.OwnerID(rng.IntN(owners))}
			}
			_ = eng.Submit(peer, 0, cmd)
		}
		eng.Step()
		eng.View(func(s *sim.State) {
			for range readsTick {
				s.Modifiers.Effective(ecs.EntityID(rng.IntN(entities)+1), modifier.TypeID(rng.IntN(8)), fixed.One)
			}
		})
	}
	var rebuilds uint64
	eng.View(func(s *sim.State) { rebuilds = s.Modifiers.Stats().EntityRebuilds })
	return time.Since(start), rebuilds
}
