package persist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// JournalEntry is one executed command as stored in command_journal.
type JournalEntry struct {
	Tick       uint64
	Seq        int
	Priority   int32
	Kind       string
	Peer       uuid.UUID
	Payload    []byte
	Generation uint64
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Append atomically writes a batch of entries in a single transaction.
// Either every entry is stored or none is.
func (r *JournalRepo) Append(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO command_journal (tick, seq, priority, kind, peer, payload, generation)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			int64(e.Tick), e.Seq, e.Priority, e.Kind, e.Peer, e.Payload, int64(e.Generation),
		); err != nil {
			return fmt.Errorf("journal insert tick %d seq %d: %w", e.Tick, e.Seq, err)
		}
	}

	return tx.Commit(ctx)
}

// Since returns every unarchived entry recorded after tick, in execution
// order.
func (r *JournalRepo) Since(ctx context.Context, tick uint64) ([]JournalEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT tick, seq, priority, kind, peer, payload, generation
		 FROM command_journal
		 WHERE tick > $1 AND archived = FALSE
		 ORDER BY tick, seq`, int64(tick),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []JournalEntry
	for rows.Next() {
		var (
			e      JournalEntry
			t, gen int64
		)
		if err := rows.Scan(&t, &e.Seq, &e.Priority, &e.Kind, &e.Peer, &e.Payload, &gen); err != nil {
			return nil, err
		}
		e.Tick, e.Generation = uint64(t), uint64(gen)
		result = append(result, e)
	}
	return result, rows.Err()
}

// MarkArchived flags every entry at or before tick as covered by a stored
// snapshot, so recovery no longer replays it.
func (r *JournalRepo) MarkArchived(ctx context.Context, tick uint64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE command_journal SET archived = TRUE WHERE archived = FALSE AND tick <= $1`,
		int64(tick),
	)
	return err
}
