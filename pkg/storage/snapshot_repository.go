package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRow is one good's lowest price at the end of a refresh.
type SnapshotRow struct {
	SnapshotID       uuid.UUID
	GoodID           string
	LowestPrice      float64
	ObservationCount int
	TakenAt          time.Time
}

// Snapshot is a full archived price set.
type Snapshot struct {
	ID      uuid.UUID
	TakenAt time.Time
	Prices  map[string]float64
}

// BuildRows turns a price map into rows sorted by good id. counts may be nil.
func BuildRows(id uuid.UUID, takenAt time.Time, prices map[string]float64, counts map[string]int) []SnapshotRow {
	rows := make([]SnapshotRow, 0, len(prices))
	for good, price := range prices {
		rows = append(rows, SnapshotRow{
			SnapshotID:       id,
			GoodID:           good,
			LowestPrice:      price,
			ObservationCount: counts[good],
			TakenAt:          takenAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].GoodID < rows[j].GoodID
	})
	return rows
}

// SnapshotRepository persists refresh snapshots to the price_snapshots table.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// InsertSnapshot bulk inserts rows with COPY.
func (r *SnapshotRepository) InsertSnapshot(ctx context.Context, rows []SnapshotRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	columns := []string{"snapshot_id", "good_id", "lowest_price", "observation_count", "taken_at"}

	copyCount, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"price_snapshots"},
		columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
			row := rows[i]
			return []interface{}{
				row.SnapshotID,
				row.GoodID,
				row.LowestPrice,
				row.ObservationCount,
				row.TakenAt,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy snapshot: %w", err)
	}

	return copyCount, nil
}

// LatestSnapshot returns the most recent snapshot, or nil when the archive is empty.
func (r *SnapshotRepository) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		id      uuid.UUID
		takenAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT snapshot_id, taken_at FROM price_snapshots
		ORDER BY taken_at DESC
		LIMIT 1
	`).Scan(&id, &takenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT good_id, lowest_price FROM price_snapshots
		WHERE snapshot_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query snapshot %s: %w", id, err)
	}
	defer rows.Close()

	snapshot := &Snapshot{ID: id, TakenAt: takenAt, Prices: make(map[string]float64)}
	for rows.Next() {
		var (
			good  string
			price float64
		)
		if err := rows.Scan(&good, &price); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snapshot.Prices[good] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snapshot, nil
}

// PruneBefore deletes snapshots taken before cutoff.
func (r *SnapshotRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM price_snapshots WHERE taken_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
