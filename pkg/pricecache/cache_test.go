package pricecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"craft-flipping/pkg/catalog"
)

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Good{
		{ID: "minecraft:diamond", Name: "Diamond"},
		{ID: "minecraft:iron_ingot", Name: "Iron Ingot"},
		{ID: "minecraft:stick", Name: "Stick"},
	}, nil, nil)
}

func newTestCache() (*Cache, *fakeClock) {
	clock := newFakeClock()
	c := New(testCatalog(), nil, nil)
	c.SetClock(clock.Now)
	return c, clock
}

func TestNew_NilConfig(t *testing.T) {
	c := New(nil, nil, nil)
	if c.TTL() != 5*time.Minute {
		t.Errorf("Expected default TTL 5m, got %v", c.TTL())
	}
	if c.logger == nil {
		t.Error("Expected quiet logger when nil is passed")
	}
}

func TestLowestAndAveragePrice(t *testing.T) {
	c, _ := newTestCache()

	if _, ok := c.LowestPrice("minecraft:diamond"); ok {
		t.Error("Expected no data for empty cache")
	}

	c.Ingest("minecraft:diamond", 120, "api")
	c.Ingest("minecraft:diamond", 80, "chat")
	c.Ingest("minecraft:diamond", 100, "api")

	lowest, ok := c.LowestPrice("minecraft:diamond")
	if !ok || lowest != 80 {
		t.Errorf("Expected lowest 80, got %v (%v)", lowest, ok)
	}
	avg, ok := c.AveragePrice("minecraft:diamond")
	if !ok || avg != 100 {
		t.Errorf("Expected average 100, got %v (%v)", avg, ok)
	}

	obs := c.Observations("minecraft:diamond")
	if len(obs) != 3 || obs[1].Source != "chat" {
		t.Errorf("Expected 3 observations in ingestion order, got %+v", obs)
	}
	for _, o := range obs {
		if o.Good != "minecraft:diamond" {
			t.Errorf("Expected observation good to match key, got %s", o.Good)
		}
	}
}

func TestIngest_NeverRejectsPrice(t *testing.T) {
	c, _ := newTestCache()
	c.Ingest("minecraft:stick", 0, "api")

	lowest, ok := c.LowestPrice("minecraft:stick")
	if !ok || lowest != 0 {
		t.Errorf("Expected zero price to be kept, got %v (%v)", lowest, ok)
	}
}

func TestTTLEviction(t *testing.T) {
	c, clock := newTestCache()

	c.Ingest("minecraft:diamond", 50, "api")
	clock.Advance(3 * time.Minute)
	c.Ingest("minecraft:diamond", 70, "api")
	c.Ingest("minecraft:stick", 1, "api")

	clock.Advance(2 * time.Minute)
	// first observation is exactly TTL old and still fresh
	if lowest, _ := c.LowestPrice("minecraft:diamond"); lowest != 50 {
		t.Errorf("Expected 50 at exactly TTL, got %v", lowest)
	}

	clock.Advance(time.Second)
	if lowest, _ := c.LowestPrice("minecraft:diamond"); lowest != 70 {
		t.Errorf("Expected stale 50 evicted leaving 70, got %v", lowest)
	}
	if c.TotalObservations() != 2 {
		t.Errorf("Expected 2 fresh observations, got %d", c.TotalObservations())
	}

	clock.Advance(3 * time.Minute)
	if _, ok := c.LowestPrice("minecraft:diamond"); ok {
		t.Error("Expected no data after all observations expired")
	}
	if prices := c.AllLowestPrices(); len(prices) != 0 {
		t.Errorf("Expected empty snapshot, got %v", prices)
	}
	if c.GoodCount() != 0 {
		t.Errorf("Expected 0 goods, got %d", c.GoodCount())
	}
}

func TestIngestAt_OldTimestampExpires(t *testing.T) {
	c, clock := newTestCache()
	c.IngestAt("minecraft:diamond", 10, "archive", clock.Now().Add(-10*time.Minute))
	if _, ok := c.LowestPrice("minecraft:diamond"); ok {
		t.Error("Expected archived observation older than TTL to be evicted")
	}
}

func TestAllLowestPrices(t *testing.T) {
	c, _ := newTestCache()
	c.Ingest("minecraft:diamond", 90, "api")
	c.Ingest("minecraft:diamond", 85, "api")
	c.Ingest("minecraft:stick", 2, "api")

	prices := c.AllLowestPrices()
	if len(prices) != 2 || prices["minecraft:diamond"] != 85 || prices["minecraft:stick"] != 2 {
		t.Errorf("Unexpected snapshot: %v", prices)
	}

	goods := c.Goods()
	if len(goods) != 2 || goods[0] != "minecraft:diamond" {
		t.Errorf("Expected sorted goods, got %v", goods)
	}

	c.Clear()
	if c.TotalObservations() != 0 {
		t.Error("Expected Clear to drop everything")
	}
}

func TestIngestByName(t *testing.T) {
	c, _ := newTestCache()

	good, err := c.IngestByName("Iron Ingot", 7, "chat")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if good.ID != "minecraft:iron_ingot" {
		t.Errorf("Expected iron ingot, got %s", good.ID)
	}
	if lowest, ok := c.LowestPrice("minecraft:iron_ingot"); !ok || lowest != 7 {
		t.Errorf("Expected 7, got %v", lowest)
	}

	if _, err := c.IngestByName("zzzz", 1, "chat"); !errors.Is(err, ErrUnresolvableGood) {
		t.Errorf("Expected ErrUnresolvableGood, got %v", err)
	}
}

func TestBulkRefresh_ReplacesAndSkips(t *testing.T) {
	c, _ := newTestCache()
	c.Ingest("minecraft:stick", 99, "chat")

	report := c.BulkRefresh(context.Background(), func(ctx context.Context) ([]Entry, error) {
		return []Entry{
			{GoodID: "minecraft:diamond", Price: 100, Source: "a"},
			{GoodID: "minecraft:unobtainium", Price: 5, Source: "b"},
			{GoodID: "minecraft:diamond", Price: 90, Source: "c"},
			{GoodID: "iron_ingot", Price: 8, Source: "d"},
		}, nil
	})

	if !report.Success {
		t.Fatalf("Expected success, got %+v", report)
	}
	if report.Fetched != 4 || report.Loaded != 3 || report.Skipped != 1 {
		t.Errorf("Expected fetched=4 loaded=3 skipped=1, got %+v", report)
	}
	if _, ok := c.LowestPrice("minecraft:stick"); ok {
		t.Error("Expected cache to be cleared before the fresh batch")
	}
	if lowest, _ := c.LowestPrice("minecraft:diamond"); lowest != 90 {
		t.Errorf("Expected 90, got %v", lowest)
	}
	if _, ok := c.LowestPrice("minecraft:iron_ingot"); !ok {
		t.Error("Expected bare id to be resolved through the catalog")
	}
	if c.LastRefresh().IsZero() {
		t.Error("Expected refresh time to be recorded")
	}
	if c.NeedsRefresh() {
		t.Error("Expected fresh cache not to need refresh")
	}
}

func TestBulkRefresh_FailureLeavesCache(t *testing.T) {
	c, _ := newTestCache()
	c.Ingest("minecraft:stick", 3, "chat")

	fetchErr := errors.New("boom")
	report := c.BulkRefresh(context.Background(), func(ctx context.Context) ([]Entry, error) {
		return nil, fetchErr
	})

	if report.Success || !errors.Is(report.Err, fetchErr) {
		t.Errorf("Expected failed report with fetch error, got %+v", report)
	}
	if _, ok := c.LowestPrice("minecraft:stick"); !ok {
		t.Error("Expected cache untouched after failed fetch")
	}
	if c.IsRefreshing() {
		t.Error("Expected refreshing flag cleared after failure")
	}
	if !c.LastRefresh().IsZero() {
		t.Error("Expected no refresh time after failure")
	}
}

func TestBulkRefresh_EmptyFetchLeavesCache(t *testing.T) {
	c, _ := newTestCache()
	c.Ingest("minecraft:stick", 3, "chat")

	report := c.BulkRefresh(context.Background(), func(ctx context.Context) ([]Entry, error) {
		return nil, nil
	})

	if report.Success || !errors.Is(report.Err, ErrNoEntries) {
		t.Errorf("Expected ErrNoEntries, got %+v", report)
	}
	if c.TotalObservations() != 1 {
		t.Errorf("Expected existing observation kept, got %d", c.TotalObservations())
	}
}

func TestBulkRefresh_SingleFlight(t *testing.T) {
	c, _ := newTestCache()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan RefreshReport)

	go func() {
		done <- c.BulkRefresh(context.Background(), func(ctx context.Context) ([]Entry, error) {
			close(started)
			<-release
			return []Entry{{GoodID: "minecraft:diamond", Price: 1, Source: "api"}}, nil
		})
	}()

	<-started
	if !c.IsRefreshing() {
		t.Error("Expected refreshing flag during fetch")
	}

	c.Ingest("minecraft:stick", 4, "chat")
	called := false
	second := c.BulkRefresh(context.Background(), func(ctx context.Context) ([]Entry, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(second.Err, ErrRefreshInProgress) || second.Success {
		t.Errorf("Expected ErrRefreshInProgress, got %+v", second)
	}
	if called {
		t.Error("Expected second fetch never to run")
	}
	if _, ok := c.LowestPrice("minecraft:stick"); !ok {
		t.Error("Expected rejected refresh not to touch the cache")
	}

	close(release)
	first := <-done
	if !first.Success {
		t.Errorf("Expected first refresh to succeed, got %+v", first)
	}
	if c.IsRefreshing() {
		t.Error("Expected flag cleared after refresh")
	}
}

func TestNeedsRefresh(t *testing.T) {
	c, clock := newTestCache()

	if !c.NeedsRefresh() {
		t.Error("Expected never-refreshed cache to need refresh")
	}
	if _, ok := c.TimeSinceLastRefresh(); ok {
		t.Error("Expected no time since refresh before first refresh")
	}

	c.BulkRefresh(context.Background(), func(ctx context.Context) ([]Entry, error) {
		return []Entry{{GoodID: "minecraft:diamond", Price: 1}}, nil
	})

	clock.Advance(4 * time.Minute)
	if since, ok := c.TimeSinceLastRefresh(); !ok || since != 4*time.Minute {
		t.Errorf("Expected 4m since refresh, got %v (%v)", since, ok)
	}
	if c.NeedsRefresh() {
		t.Error("Expected no refresh needed within TTL")
	}

	clock.Advance(2 * time.Minute)
	if !c.NeedsRefresh() {
		t.Error("Expected refresh needed after TTL")
	}
}

func TestConcurrentIngestAndRead(t *testing.T) {
	c, _ := newTestCache()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Ingest("minecraft:diamond", float64(i*100+j), "api")
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.AllLowestPrices()
				c.LowestPrice("minecraft:diamond")
			}
		}()
	}
	wg.Wait()

	if c.TotalObservations() != 800 {
		t.Errorf("Expected 800 observations, got %d", c.TotalObservations())
	}
	if lowest, _ := c.LowestPrice("minecraft:diamond"); lowest != 0 {
		t.Errorf("Expected lowest 0, got %v", lowest)
	}
}
