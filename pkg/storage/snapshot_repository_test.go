package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuildRows(t *testing.T) {
	id := uuid.New()
	takenAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := BuildRows(id, takenAt,
		map[string]float64{"minecraft:stick": 2, "minecraft:diamond": 90},
		map[string]int{"minecraft:diamond": 3},
	)

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].GoodID != "minecraft:diamond" || rows[1].GoodID != "minecraft:stick" {
		t.Errorf("Expected rows sorted by good id, got %s, %s", rows[0].GoodID, rows[1].GoodID)
	}
	if rows[0].ObservationCount != 3 || rows[1].ObservationCount != 0 {
		t.Errorf("Unexpected counts: %d, %d", rows[0].ObservationCount, rows[1].ObservationCount)
	}
	for _, row := range rows {
		if row.SnapshotID != id || !row.TakenAt.Equal(takenAt) {
			t.Errorf("Expected shared snapshot id and time, got %+v", row)
		}
	}

	if rows := BuildRows(id, takenAt, nil, nil); len(rows) != 0 {
		t.Errorf("Expected no rows for empty prices, got %d", len(rows))
	}
}

// Note: InsertSnapshot and LatestSnapshot require database integration tests.
