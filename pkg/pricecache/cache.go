package pricecache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/catalog"
	"craft-flipping/pkg/logging"
)

var (
	// ErrRefreshInProgress is reported when a bulk refresh is already running
	ErrRefreshInProgress = errors.New("price cache: refresh already in progress")
	// ErrUnresolvableGood is returned when a name or id does not match the catalog
	ErrUnresolvableGood = errors.New("price cache: good not in catalog")
	// ErrNoEntries is reported when a fetch succeeded but returned nothing to load
	ErrNoEntries = errors.New("price cache: fetch returned no entries")
)

// Observation is one timestamped price sighting. Immutable once created.
type Observation struct {
	Good       string
	Price      float64
	Source     string
	ObservedAt time.Time
}

// Entry is a raw listing handed to BulkRefresh by a fetch function
type Entry struct {
	GoodID string
	Price  float64
	Source string
}

// FetchFunc retrieves the full listing set for a bulk refresh
type FetchFunc func(ctx context.Context) ([]Entry, error)

// RefreshReport describes one BulkRefresh call
type RefreshReport struct {
	Success  bool
	Fetched  int
	Loaded   int
	Skipped  int
	Duration time.Duration
	Err      error
}

// Resolver maps ids and chat names onto catalog goods
type Resolver interface {
	Resolve(id string) (catalog.Good, bool)
	FindByNameStrict(name string) (catalog.Good, bool)
}

// Config holds price cache settings
type Config struct {
	TTL time.Duration
}

// DefaultConfig returns a five minute TTL
func DefaultConfig() *Config {
	return &Config{TTL: 5 * time.Minute}
}

// Cache holds fresh price observations per good.
// Stale observations are evicted lazily at the start of every read.
type Cache struct {
	config   *Config
	resolver Resolver
	logger   *logging.Logger
	now      func() time.Time

	mu          sync.Mutex
	entries     map[string][]Observation
	lastRefresh time.Time

	refreshing atomic.Bool
}

// New creates a price cache. If config is nil, default config is used.
func New(resolver Resolver, config *Config, logger *logging.Logger) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}

	return &Cache{
		config:   config,
		resolver: resolver,
		logger:   logging.OrQuiet(logger),
		now:      time.Now,
		entries:  make(map[string][]Observation),
	}
}

// SetClock replaces the time source
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// TTL returns the staleness window
func (c *Cache) TTL() time.Duration {
	return c.config.TTL
}

// Ingest records a price for good observed now. The price is never rejected.
func (c *Cache) Ingest(good string, price float64, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(good, price, source, c.now())
}

// IngestAt records a price with an explicit observation time
func (c *Cache) IngestAt(good string, price float64, source string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(good, price, source, at)
}

// IngestByName resolves name through the catalog and records the price under the matched good
func (c *Cache) IngestByName(name string, price float64, source string) (catalog.Good, error) {
	if c.resolver == nil {
		return catalog.Good{}, ErrUnresolvableGood
	}
	good, ok := c.resolver.FindByNameStrict(name)
	if !ok {
		return catalog.Good{}, ErrUnresolvableGood
	}
	c.Ingest(good.ID, price, source)
	return good, nil
}

func (c *Cache) appendLocked(good string, price float64, source string, at time.Time) {
	c.entries[good] = append(c.entries[good], Observation{
		Good:       good,
		Price:      price,
		Source:     source,
		ObservedAt: at,
	})
}

// evictLocked drops stale observations for one good
func (c *Cache) evictLocked(good string, now time.Time) {
	obs, ok := c.entries[good]
	if !ok {
		return
	}
	fresh := obs[:0]
	for _, o := range obs {
		if now.Sub(o.ObservedAt) <= c.config.TTL {
			fresh = append(fresh, o)
		}
	}
	if len(fresh) == 0 {
		delete(c.entries, good)
		return
	}
	c.entries[good] = fresh
}

func (c *Cache) evictAllLocked(now time.Time) {
	for good := range c.entries {
		c.evictLocked(good, now)
	}
}

// LowestPrice returns the minimum fresh price for good
func (c *Cache) LowestPrice(good string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked(good, c.now())
	obs := c.entries[good]
	if len(obs) == 0 {
		return 0, false
	}
	return minPrice(obs), true
}

// AveragePrice returns the mean fresh price for good
func (c *Cache) AveragePrice(good string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked(good, c.now())
	obs := c.entries[good]
	if len(obs) == 0 {
		return 0, false
	}
	var sum float64
	for _, o := range obs {
		sum += o.Price
	}
	return sum / float64(len(obs)), true
}

// Observations returns a copy of the fresh observations for good in ingestion order
func (c *Cache) Observations(good string) []Observation {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked(good, c.now())
	obs := c.entries[good]
	out := make([]Observation, len(obs))
	copy(out, obs)
	return out
}

// AllLowestPrices returns the minimum fresh price for every good that has one
func (c *Cache) AllLowestPrices() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictAllLocked(c.now())
	prices := make(map[string]float64, len(c.entries))
	for good, obs := range c.entries {
		prices[good] = minPrice(obs)
	}
	return prices
}

// Goods returns the ids with at least one fresh observation, sorted
func (c *Cache) Goods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictAllLocked(c.now())
	goods := make([]string, 0, len(c.entries))
	for good := range c.entries {
		goods = append(goods, good)
	}
	sort.Strings(goods)
	return goods
}

// TotalObservations counts fresh observations across all goods
func (c *Cache) TotalObservations() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictAllLocked(c.now())
	total := 0
	for _, obs := range c.entries {
		total += len(obs)
	}
	return total
}

// GoodCount counts goods with at least one fresh observation
func (c *Cache) GoodCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictAllLocked(c.now())
	return len(c.entries)
}

// Clear drops every observation
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]Observation)
}

func minPrice(obs []Observation) float64 {
	lowest := obs[0].Price
	for _, o := range obs[1:] {
		if o.Price < lowest {
			lowest = o.Price
		}
	}
	return lowest
}

// IsRefreshing reports whether a bulk refresh is running
func (c *Cache) IsRefreshing() bool {
	return c.refreshing.Load()
}

// LastRefresh returns when the last bulk refresh finished ingesting (zero if never)
func (c *Cache) LastRefresh() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh
}

// TimeSinceLastRefresh returns the age of the last refresh; false when there has been none
func (c *Cache) TimeSinceLastRefresh() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRefresh.IsZero() {
		return 0, false
	}
	return c.now().Sub(c.lastRefresh), true
}

// NeedsRefresh is true when the cache was never refreshed or the last refresh is older than TTL
func (c *Cache) NeedsRefresh() bool {
	since, ok := c.TimeSinceLastRefresh()
	return !ok || since > c.config.TTL
}

// BulkRefresh replaces the cache contents with a fresh fetch.
// Only one refresh runs at a time; a concurrent caller gets ErrRefreshInProgress
// straight away and the cache is not touched. A failed or empty fetch leaves the
// cache as it was. Entries whose id is not in the catalog are skipped.
func (c *Cache) BulkRefresh(ctx context.Context, fetch FetchFunc) RefreshReport {
	if !c.refreshing.CompareAndSwap(false, true) {
		return RefreshReport{Err: ErrRefreshInProgress}
	}
	defer c.refreshing.Store(false)

	start := time.Now()
	log := c.logger.WithComponent("price_cache")

	entries, err := fetch(ctx)
	if err != nil {
		log.WithError(err).Warn("Bulk refresh fetch failed, cache left unchanged")
		return RefreshReport{Err: err, Duration: time.Since(start)}
	}
	if len(entries) == 0 {
		log.Warn("Bulk refresh fetched no entries, cache left unchanged")
		return RefreshReport{Err: ErrNoEntries, Duration: time.Since(start)}
	}

	report := RefreshReport{Fetched: len(entries)}

	c.mu.Lock()
	c.entries = make(map[string][]Observation)
	now := c.now()
	for _, e := range entries {
		id, ok := c.resolveLocked(e.GoodID)
		if !ok {
			report.Skipped++
			continue
		}
		c.appendLocked(id, e.Price, e.Source, now)
		report.Loaded++
	}
	c.lastRefresh = now
	c.mu.Unlock()

	report.Success = report.Loaded > 0
	report.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"fetched": report.Fetched,
		"loaded":  report.Loaded,
		"skipped": report.Skipped,
	}).Info("Bulk refresh ingested")

	return report
}

// resolveLocked maps a listing id onto a catalog id. Without a resolver ids are taken as-is.
func (c *Cache) resolveLocked(id string) (string, bool) {
	if c.resolver == nil {
		return id, id != ""
	}
	good, ok := c.resolver.Resolve(id)
	if !ok {
		return "", false
	}
	return good.ID, true
}
