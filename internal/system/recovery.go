package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/archon/engine/internal/persist"
	"github.com/archon/engine/internal/sim"
	"go.uber.org/zap"
)

var ErrDiverged = errors.New("replay diverged from journal")

// SnapshotLoader returns the newest archived snapshot, or nil.
type SnapshotLoader interface {
	Latest(ctx context.Context) (*persist.SnapshotRow, error)
}

// JournalReader returns unarchived journal entries after a tick.
type JournalReader interface {
	Since(ctx context.Context, tick uint64) ([]persist.JournalEntry, error)
}

// Recover restores the newest snapshot into eng and replays the journal
// recorded after it. Every replayed command must execute and leave the
// generation the journal recorded. Returns the tick reached.
//
// Call Recover before registering a PersistenceSystem, otherwise the replayed
// commands are journaled a second time.
func Recover(ctx context.Context, eng *sim.Engine, snaps SnapshotLoader, journal JournalReader, log *zap.Logger) (uint64, error) {
	row, err := snaps.Latest(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	if row != nil {
		if err := eng.Restore(row.Data); err != nil {
			return 0, err
		}
	}
	entries, err := journal.Since(ctx, eng.Tick())
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	if len(entries) == 0 {
		return eng.Tick(), nil
	}

	for _, e := range entries {
		cmd, err := eng.Registry().Decode(e.Kind, e.Payload)
		if err != nil {
			return 0, fmt.Errorf("journal tick %d seq %d: %w", e.Tick, e.Seq, err)
		}
		if err := eng.SubmitAt(e.Tick, e.Peer, e.Priority, cmd); err != nil {
			return 0, fmt.Errorf("journal tick %d seq %d: %w", e.Tick, e.Seq, err)
		}
	}

	last := entries[len(entries)-1].Tick
	next := 0
	for eng.Tick() < last {
		results := eng.Step()
		tick := eng.Tick()
		for _, r := range results {
			if next >= len(entries) || entries[next].Tick != tick {
				return 0, fmt.Errorf("%w: unexpected %s at tick %d", ErrDiverged, r.Kind, tick)
			}
			want := entries[next]
			next++
			if !r.OK() {
				return 0, fmt.Errorf("%w: tick %d seq %d: %w", ErrDiverged, tick, want.Seq, r.Err)
			}
			if r.Kind != want.Kind || r.Generation != want.Generation {
				return 0, fmt.Errorf("%w: tick %d seq %d: got %s@%d, journal %s@%d",
					ErrDiverged, tick, want.Seq, r.Kind, r.Generation, want.Kind, want.Generation)
			}
		}
	}
	if next != len(entries) {
		return 0, fmt.Errorf("%w: %d journal entries not replayed", ErrDiverged, len(entries)-next)
	}
	log.Info("journal replayed",
		zap.Int("commands", len(entries)),
		zap.Uint64("tick", eng.Tick()),
	)
	return eng.Tick(), nil
}
