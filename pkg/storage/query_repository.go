package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PricePoint is one archived lowest price for a good.
type PricePoint struct {
	TakenAt     time.Time
	LowestPrice float64
}

// HistorySummary aggregates a good's archived prices over a window.
type HistorySummary struct {
	GoodID  string
	Points  int
	Min     float64
	Max     float64
	Average float64
	First   float64
	Last    float64
	Since   time.Time
}

// Change returns the relative move from the first to the last point, 0.05 meaning +5%.
func (s HistorySummary) Change() float64 {
	if s.Points < 2 || s.First == 0 {
		return 0
	}
	return (s.Last - s.First) / s.First
}

// Summarize folds points, oldest first, into a HistorySummary.
func Summarize(goodID string, since time.Time, points []PricePoint) HistorySummary {
	summary := HistorySummary{GoodID: goodID, Points: len(points), Since: since}
	if len(points) == 0 {
		return summary
	}

	summary.Min = points[0].LowestPrice
	summary.Max = points[0].LowestPrice
	summary.First = points[0].LowestPrice
	summary.Last = points[len(points)-1].LowestPrice

	var total float64
	for _, p := range points {
		if p.LowestPrice < summary.Min {
			summary.Min = p.LowestPrice
		}
		if p.LowestPrice > summary.Max {
			summary.Max = p.LowestPrice
		}
		total += p.LowestPrice
	}
	summary.Average = total / float64(len(points))

	return summary
}

// QueryRepository handles read operations over the snapshot archive.
type QueryRepository struct {
	pool *pgxpool.Pool
}

// NewQueryRepository creates a new QueryRepository.
func NewQueryRepository(pool *pgxpool.Pool) *QueryRepository {
	return &QueryRepository{pool: pool}
}

// GetPriceHistory returns a good's archived prices taken after since, oldest first.
func (r *QueryRepository) GetPriceHistory(ctx context.Context, goodID string, since time.Time) ([]PricePoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT taken_at, lowest_price
		FROM price_snapshots
		WHERE good_id = $1 AND taken_at >= $2
		ORDER BY taken_at ASC
	`, goodID, since)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.TakenAt, &p.LowestPrice); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}

	return points, nil
}

// GetHistorySummary summarizes a good's archived prices over the last duration.
func (r *QueryRepository) GetHistorySummary(ctx context.Context, goodID string, duration time.Duration) (HistorySummary, error) {
	since := time.Now().Add(-duration)
	points, err := r.GetPriceHistory(ctx, goodID, since)
	if err != nil {
		return HistorySummary{GoodID: goodID, Since: since}, err
	}
	return Summarize(goodID, since, points), nil
}

// GetDataFreshness returns when the newest snapshot was taken.
// Returns nil if the archive is empty.
func (r *QueryRepository) GetDataFreshness(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT taken_at FROM price_snapshots
		ORDER BY taken_at DESC
		LIMIT 1
	`).Scan(&t)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query data freshness: %w", err)
	}
	return &t, nil
}

// IsDataFresh checks if the newest snapshot is within the given threshold.
func (r *QueryRepository) IsDataFresh(ctx context.Context, threshold time.Duration) (bool, error) {
	freshness, err := r.GetDataFreshness(ctx)
	if err != nil {
		return false, err
	}
	if freshness == nil {
		return false, nil
	}

	return time.Since(*freshness) <= threshold, nil
}

// GetSnapshotCount returns the number of archived snapshots.
func (r *QueryRepository) GetSnapshotCount(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT snapshot_id) FROM price_snapshots
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}
