package system

import (
	"context"
	"time"

	"github.com/archon/engine/internal/config"
	"github.com/archon/engine/internal/core/command"
	"github.com/archon/engine/internal/core/event"
	"github.com/archon/engine/internal/core/snapshot"
	coresys "github.com/archon/engine/internal/core/system"
	"github.com/archon/engine/internal/persist"
	"go.uber.org/zap"
)

const saveTimeout = 5 * time.Second

// JournalWriter stores executed commands.
type JournalWriter interface {
	Append(ctx context.Context, entries []persist.JournalEntry) error
	MarkArchived(ctx context.Context, tick uint64) error
}

// SnapshotWriter archives state images.
type SnapshotWriter interface {
	Save(ctx context.Context, row persist.SnapshotRow) error
	Prune(ctx context.Context, keep int) (int64, error)
}

// Snapshotter produces a state image; *sim.Engine implements it.
type Snapshotter interface {
	Snapshot() []byte
}

// PersistenceSystem journals every executed command and periodically
// archives a full snapshot. Phase 4 (Persist).
//
// Commands are buffered as they execute and written in Update, in
// transactions of at most the batch size. record runs inside the mutation
// window and never touches the database. A failed write keeps the buffer
// for the next attempt.
type PersistenceSystem struct {
	engine   Snapshotter
	journal  JournalWriter
	snaps    SnapshotWriter
	log      *zap.Logger
	pending  []persist.JournalEntry
	batch    int
	interval uint64 // archive every N ticks, 0 = never
	keep     int
}

func NewPersistenceSystem(bus *event.Bus, eng Snapshotter, journal JournalWriter, snaps SnapshotWriter, cfg config.PersistConfig, log *zap.Logger) *PersistenceSystem {
	s := &PersistenceSystem{
		engine:   eng,
		journal:  journal,
		snaps:    snaps,
		log:      log,
		batch:    max(cfg.JournalBatch, 1),
		interval: cfg.SnapshotInterval,
		keep:     cfg.SnapshotKeep,
	}
	event.Subscribe(bus, s.record)
	return s
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(tick uint64) {
	s.Flush()
	if s.interval == 0 || tick%s.interval != 0 {
		return
	}
	s.SaveSnapshot()
}

// Pending returns the number of buffered journal entries.
func (s *PersistenceSystem) Pending() int { return len(s.pending) }

func (s *PersistenceSystem) record(ev command.Executed) {
	s.pending = append(s.pending, persist.JournalEntry{
		Tick:       ev.Tick,
		Seq:        ev.Seq,
		Priority:   ev.Priority,
		Kind:       ev.Kind,
		Peer:       ev.Peer,
		Payload:    ev.Payload,
		Generation: ev.Generation,
	})
}

// Flush writes every buffered entry. Called at the end of each tick and for
// graceful shutdown.
func (s *PersistenceSystem) Flush() bool {
	for len(s.pending) > 0 {
		n := min(len(s.pending), s.batch)
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := s.journal.Append(ctx, s.pending[:n])
		cancel()
		if err != nil {
			s.log.Error("journal write failed",
				zap.Int("pending", len(s.pending)), zap.Error(err))
			return false
		}
		s.pending = s.pending[n:]
	}
	s.pending = nil
	return true
}

// SaveSnapshot archives the current state. The journal is flushed first so
// no entry at or before the snapshot tick is lost when it gets archived.
func (s *PersistenceSystem) SaveSnapshot() bool {
	if !s.Flush() {
		return false
	}
	data := s.engine.Snapshot()
	hdr, err := snapshot.ReadHeader(data)
	if err != nil {
		s.log.Error("snapshot export unreadable", zap.Error(err))
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	row := persist.SnapshotRow{
		Tick:       hdr.Tick,
		Generation: hdr.Generation,
		Entities:   hdr.Entities,
		Modifiers:  hdr.Modifiers,
		Checksum:   hdr.Checksum,
		Data:       data,
	}
	if err := s.snaps.Save(ctx, row); err != nil {
		s.log.Error("snapshot save failed", zap.Uint64("tick", hdr.Tick), zap.Error(err))
		return false
	}
	if err := s.journal.MarkArchived(ctx, hdr.Tick); err != nil {
		s.log.Error("journal archive failed", zap.Uint64("tick", hdr.Tick), zap.Error(err))
	}
	if s.keep > 0 {
		if n, err := s.snaps.Prune(ctx, s.keep); err != nil {
			s.log.Error("snapshot prune failed", zap.Error(err))
		} else if n > 0 {
			s.log.Debug("old snapshots pruned", zap.Int64("count", n))
		}
	}
	s.log.Info("snapshot archived",
		zap.Uint64("tick", hdr.Tick),
		zap.Uint64("generation", hdr.Generation),
		zap.Int("bytes", len(data)),
	)
	return true
}
