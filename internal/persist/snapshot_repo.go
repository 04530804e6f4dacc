package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SnapshotRow is one archived state image.
type SnapshotRow struct {
	Tick       uint64
	Generation uint64
	Entities   uint32
	Modifiers  uint32
	Checksum   [32]byte
	Data       []byte
	CreatedAt  time.Time
}

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save stores row. Saving a tick twice replaces the earlier image.
func (r *SnapshotRepo) Save(ctx context.Context, row SnapshotRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO snapshots (tick, generation, entities, modifiers, checksum, data)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tick) DO UPDATE SET
		   generation = EXCLUDED.generation, entities = EXCLUDED.entities,
		   modifiers = EXCLUDED.modifiers, checksum = EXCLUDED.checksum,
		   data = EXCLUDED.data, created_at = NOW()`,
		int64(row.Tick), int64(row.Generation), int32(row.Entities), int32(row.Modifiers),
		row.Checksum[:], row.Data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot tick %d: %w", row.Tick, err)
	}
	return nil
}

// Latest returns the snapshot with the highest tick, or nil when none is
// stored.
func (r *SnapshotRepo) Latest(ctx context.Context) (*SnapshotRow, error) {
	var (
		row        SnapshotRow
		tick, gen  int64
		ents, mods int32
		checksum   []byte
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT tick, generation, entities, modifiers, checksum, data, created_at
		 FROM snapshots ORDER BY tick DESC LIMIT 1`,
	).Scan(&tick, &gen, &ents, &mods, &checksum, &row.Data, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(checksum) != len(row.Checksum) {
		return nil, fmt.Errorf("snapshot tick %d: checksum is %d bytes", tick, len(checksum))
	}
	row.Tick, row.Generation = uint64(tick), uint64(gen)
	row.Entities, row.Modifiers = uint32(ents), uint32(mods)
	copy(row.Checksum[:], checksum)
	return &row, nil
}

// Prune deletes all but the newest keep snapshots.
func (r *SnapshotRepo) Prune(ctx context.Context, keep int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
		   SELECT id FROM snapshots ORDER BY tick DESC LIMIT $1)`, keep,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
