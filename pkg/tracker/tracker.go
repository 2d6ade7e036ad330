package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/auction"
	"craft-flipping/pkg/capture"
	"craft-flipping/pkg/catalog"
	"craft-flipping/pkg/config"
	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/pricecache"
	"craft-flipping/pkg/profit"
	"craft-flipping/pkg/recipes"
	"craft-flipping/pkg/storage"
)

var (
	// ErrUnknownGood is returned when a query matches nothing in the catalog
	ErrUnknownGood = errors.New("no such item")
	// ErrNoCalculation is returned when a good has no price or no costable recipe
	ErrNoCalculation = errors.New("no price or recipe data for item")
)

// Fetcher pulls auction listings (auction.Client implements it)
type Fetcher interface {
	FetchAll(ctx context.Context, credential string) (*auction.FetchResult, error)
	TestCredential(ctx context.Context, candidate string) bool
}

// Archive stores refresh snapshots (storage.SnapshotRepository implements it)
type Archive interface {
	InsertSnapshot(ctx context.Context, rows []storage.SnapshotRow) (int64, error)
	LatestSnapshot(ctx context.Context) (*storage.Snapshot, error)
}

// Options wires a Tracker. Catalog, Registry, Fetcher and Settings are required.
type Options struct {
	Catalog  *catalog.Catalog
	Registry *recipes.Registry
	Fetcher  Fetcher
	Settings *config.Settings
	// CacheConfig defaults to a five minute TTL
	CacheConfig *pricecache.Config
	// Archive is optional
	Archive Archive
	// FallbackCredential is used when the settings document has no credential
	FallbackCredential string
	Logger             *logging.Logger
}

// Tracker is the query surface the CLI and the bot drive
type Tracker struct {
	catalog    *catalog.Catalog
	registry   *recipes.Registry
	cache      *pricecache.Cache
	calculator *profit.Calculator
	formatter  *profit.OutputFormatter
	capturer   *capture.Capturer
	fetcher    Fetcher
	settings   *config.Settings
	archive    Archive
	fallback   string
	logger     *logging.Logger
}

// New builds the cache and calculator on top of the given catalog and registry
func New(opts Options) (*Tracker, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("tracker: catalog is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("tracker: recipe registry is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("tracker: fetcher is required")
	}
	if opts.Settings == nil {
		return nil, fmt.Errorf("tracker: settings are required")
	}

	logger := logging.OrQuiet(opts.Logger)
	cache := pricecache.New(opts.Catalog, opts.CacheConfig, logger)
	cat := opts.Catalog

	return &Tracker{
		catalog:    cat,
		registry:   opts.Registry,
		cache:      cache,
		calculator: profit.NewCalculator(cache, opts.Registry, cat, logger),
		formatter: profit.NewOutputFormatter(func(id string) string {
			if g, ok := cat.Resolve(id); ok {
				return g.Name
			}
			return id
		}),
		capturer: capture.NewCapturer(cache, logger),
		fetcher:  opts.Fetcher,
		settings: opts.Settings,
		archive:  opts.Archive,
		fallback: opts.FallbackCredential,
		logger:   logger,
	}, nil
}

// Cache exposes the underlying price cache
func (t *Tracker) Cache() *pricecache.Cache {
	return t.cache
}

// Formatter returns the output formatter bound to the catalog's display names
func (t *Tracker) Formatter() *profit.OutputFormatter {
	return t.formatter
}

// Settings returns the persisted user settings
func (t *Tracker) Settings() *config.Settings {
	return t.settings
}

func (t *Tracker) credential() string {
	if c := t.settings.Credential(); c != "" {
		return c
	}
	return t.fallback
}

// SetCredential stores a credential without checking it
func (t *Tracker) SetCredential(credential string) error {
	return t.settings.SetCredential(strings.TrimSpace(credential))
}

// ValidateCredential checks candidate against the API in the background and
// saves it when accepted. The channel yields one value and is closed.
func (t *Tracker) ValidateCredential(ctx context.Context, candidate string) <-chan bool {
	out := make(chan bool, 1)
	candidate = strings.TrimSpace(candidate)

	go func() {
		defer close(out)

		ok := t.fetcher.TestCredential(context.WithoutCancel(ctx), candidate)
		if ok {
			if err := t.settings.SetCredential(candidate); err != nil {
				t.logger.WithComponent("tracker").WithError(err).Error("Failed to save credential")
				ok = false
			}
		}
		out <- ok
	}()

	return out
}

// RefreshOutcome is the user-facing result of a refresh
type RefreshOutcome struct {
	ID          uuid.UUID
	Success     bool
	Message     string
	Report      pricecache.RefreshReport
	Pages       int
	RateLimited bool
	Partial     bool
}

// Refresh starts a bulk refresh in the background. The channel yields one
// outcome and is closed. The refresh is not cancelled with ctx.
func (t *Tracker) Refresh(ctx context.Context) <-chan RefreshOutcome {
	out := make(chan RefreshOutcome, 1)
	detached := context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		out <- t.RefreshNow(detached)
	}()

	return out
}

// RefreshNow runs a bulk refresh on the calling goroutine
func (t *Tracker) RefreshNow(ctx context.Context) RefreshOutcome {
	id := uuid.New()
	outcome := RefreshOutcome{ID: id}
	credential := t.credential()

	var fetched *auction.FetchResult
	t.logger.RefreshStart(id.String())

	report := t.cache.BulkRefresh(ctx, func(ctx context.Context) ([]pricecache.Entry, error) {
		result, err := t.fetcher.FetchAll(ctx, credential)
		if err != nil {
			return nil, err
		}
		fetched = result

		entries := make([]pricecache.Entry, 0, len(result.Listings))
		for _, l := range result.Listings {
			entries = append(entries, pricecache.Entry{
				GoodID: l.Item.ID,
				Price:  l.Price,
				Source: "auction:" + l.SellerName(),
			})
		}
		return entries, nil
	})

	outcome.Report = report
	outcome.Success = report.Success
	if fetched != nil {
		outcome.Pages = fetched.Pages
		outcome.RateLimited = fetched.RateLimited
		outcome.Partial = fetched.Partial
	}
	outcome.Message = refreshMessage(outcome)

	switch {
	case report.Success:
		t.logger.RefreshComplete(id.String(), report.Duration.Seconds(), report.Loaded, report.Skipped)
		t.archiveSnapshot(ctx, id)
	case errors.Is(report.Err, pricecache.ErrRefreshInProgress):
		t.logger.WithRefresh(id.String()).Warn("Refresh skipped, another refresh is running")
	default:
		err := report.Err
		if err == nil {
			err = errors.New(outcome.Message)
		}
		t.logger.RefreshError(id.String(), err, report.Duration.Seconds())
	}

	return outcome
}

func refreshMessage(o RefreshOutcome) string {
	r := o.Report
	var terr *auction.TransportError

	switch {
	case errors.Is(r.Err, pricecache.ErrRefreshInProgress):
		return "Already refreshing auction data..."
	case errors.Is(r.Err, auction.ErrNoCredential):
		return "No API key set! Use apikey <key> first."
	case errors.Is(r.Err, auction.ErrUnauthorized):
		return "Invalid API key! Please check and try again."
	case errors.Is(r.Err, pricecache.ErrNoEntries) && o.RateLimited:
		return "Rate limited by the auction API, try again shortly."
	case errors.Is(r.Err, pricecache.ErrNoEntries):
		return "The auction API returned no entries."
	case errors.As(r.Err, &terr):
		return "Failed to load auction data. Check logs for details."
	case r.Err != nil:
		return "Failed to load auction data. Check logs for details."
	case r.Loaded == 0:
		return fmt.Sprintf("None of the %d auction entries matched a known item.", r.Fetched)
	}

	msg := fmt.Sprintf("Loaded %d auction entries!", r.Loaded)
	var notes []string
	if r.Skipped > 0 {
		notes = append(notes, fmt.Sprintf("%d unknown skipped", r.Skipped))
	}
	if o.RateLimited {
		notes = append(notes, "stopped early: rate limited")
	}
	if o.Partial {
		notes = append(notes, "partial: a later page failed")
	}
	if len(notes) > 0 {
		msg += " (" + strings.Join(notes, ", ") + ")"
	}
	return msg
}

// archiveSnapshot writes the fresh lowest prices to the archive, if one is configured
func (t *Tracker) archiveSnapshot(ctx context.Context, id uuid.UUID) {
	if t.archive == nil {
		return
	}

	prices := t.cache.AllLowestPrices()
	counts := make(map[string]int, len(prices))
	for good := range prices {
		counts[good] = len(t.cache.Observations(good))
	}

	rows := storage.BuildRows(id, t.cache.LastRefresh(), prices, counts)
	n, err := t.archive.InsertSnapshot(ctx, rows)
	if err != nil {
		t.logger.WithRefresh(id.String()).WithError(err).Error("Failed to archive snapshot")
		return
	}
	t.logger.WithRefresh(id.String()).WithField("rows", n).Info("Archived price snapshot")
}

// WarmFromArchive loads the latest archived snapshot into the cache at its original
// timestamp, so expired snapshots add nothing. Returns the number of prices loaded.
func (t *Tracker) WarmFromArchive(ctx context.Context) (int, error) {
	if t.archive == nil {
		return 0, nil
	}

	snapshot, err := t.archive.LatestSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("warming cache: %w", err)
	}
	if snapshot == nil {
		return 0, nil
	}

	age := time.Since(snapshot.TakenAt)
	if age > t.cache.TTL() {
		t.logger.WithComponent("tracker").WithField("age", age.String()).Info("Latest snapshot is stale, not warming cache")
		return 0, nil
	}

	for good, price := range snapshot.Prices {
		t.cache.IngestAt(good, price, "archive", snapshot.TakenAt)
	}

	t.logger.WithComponent("tracker").WithFields(logrus.Fields{
		"snapshot_id": snapshot.ID.String(),
		"prices":      len(snapshot.Prices),
	}).Info("Warmed cache from archive")

	return len(snapshot.Prices), nil
}

// Status is a point-in-time summary for the status command
type Status struct {
	CredentialSet   bool
	Observations    int
	Goods           int
	Recipes         int
	HasRefreshed    bool
	SinceRefresh    time.Duration
	Refreshing      bool
	NeedsRefresh    bool
	AutoRefresh     bool
	IntervalMinutes int
}

// Status reports cache and settings state
func (t *Tracker) Status() Status {
	since, refreshed := t.cache.TimeSinceLastRefresh()
	return Status{
		CredentialSet:   t.credential() != "",
		Observations:    t.cache.TotalObservations(),
		Goods:           t.cache.GoodCount(),
		Recipes:         t.registry.Count(),
		HasRefreshed:    refreshed,
		SinceRefresh:    since,
		Refreshing:      t.cache.IsRefreshing(),
		NeedsRefresh:    t.cache.NeedsRefresh(),
		AutoRefresh:     t.settings.AutoRefresh(),
		IntervalMinutes: t.settings.RefreshIntervalMinutes(),
	}
}

// String renders the status block
func (s Status) String() string {
	var b strings.Builder

	b.WriteString("=== Profit Calculator Status ===\n")
	if s.CredentialSet {
		b.WriteString("API Key: Set\n")
	} else {
		b.WriteString("API Key: Not set\n")
	}
	b.WriteString(fmt.Sprintf("Cached Items: %d (%d goods)\n", s.Observations, s.Goods))
	b.WriteString(fmt.Sprintf("Recipes: %d\n", s.Recipes))
	if s.HasRefreshed {
		b.WriteString(fmt.Sprintf("Last Refresh: %d minutes ago\n", int(s.SinceRefresh.Minutes())))
	} else {
		b.WriteString("Last Refresh: never\n")
	}
	if s.Refreshing {
		b.WriteString("Refreshing: Yes\n")
	} else {
		b.WriteString("Refreshing: No\n")
	}
	if s.AutoRefresh {
		b.WriteString(fmt.Sprintf("Auto Refresh: every %d minutes\n", s.IntervalMinutes))
	} else {
		b.WriteString("Auto Refresh: off\n")
	}

	return b.String()
}

// FindProfitable ranks craftable goods within budget by margin
func (t *Tracker) FindProfitable(budget float64) []profit.Calculation {
	return t.calculator.FindProfitableItems(budget)
}

// AllProfits ranks every priced craftable good by absolute profit
func (t *Tracker) AllProfits() []profit.Calculation {
	return t.calculator.CalculateAllProfits()
}

// Lookup resolves query as an id first, then as a name
func (t *Tracker) Lookup(query string) (catalog.Good, bool) {
	if good, ok := t.catalog.Resolve(query); ok {
		return good, true
	}
	return t.catalog.FindByName(query)
}

// Detail resolves query and computes its calculation
func (t *Tracker) Detail(query string) (profit.Calculation, error) {
	good, ok := t.Lookup(query)
	if !ok {
		return profit.Calculation{}, fmt.Errorf("%w: %q", ErrUnknownGood, query)
	}

	calc, ok := t.calculator.CalculateProfit(good.ID)
	if !ok {
		return profit.Calculation{}, fmt.Errorf("%w: %s", ErrNoCalculation, good.Name)
	}
	if avg, ok := t.cache.AveragePrice(good.ID); ok {
		calc.AveragePrice = avg
	}
	return calc, nil
}

// Observe feeds one chat line into the cache. False when the line is not a sighting.
func (t *Tracker) Observe(line string) bool {
	_, ok := t.capturer.Observe(line)
	return ok
}

// ConsumeChat feeds a chat log into the cache until EOF or ctx is done
func (t *Tracker) ConsumeChat(ctx context.Context, r io.Reader) (capture.Stats, error) {
	return t.capturer.Consume(ctx, r)
}
