package tracker

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/auction"
	"craft-flipping/pkg/catalog"
	"craft-flipping/pkg/config"
	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/pricecache"
	"craft-flipping/pkg/recipes"
)

// NewFromConfig loads the catalog, the recipe book and the settings document
// named by cfg and wires them to a DonutSMP auction client. archive may be nil.
func NewFromConfig(cfg *config.Config, archive Archive, logger *logging.Logger) (*Tracker, error) {
	logger = logging.OrQuiet(logger)
	log := logger.WithComponent("bootstrap")

	cat, err := catalog.LoadFile(cfg.Catalog.Path, &catalog.Config{
		DefaultNamespace: cfg.Catalog.DefaultNamespace,
		ResolveCacheSize: catalog.DefaultConfig().ResolveCacheSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	registry := recipes.NewRegistry(cat, logger)
	stats, err := registry.Load(recipes.FileSource{Path: cfg.Recipes.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}

	settings, err := config.LoadSettings(cfg.Settings.Path, logger)
	if err != nil {
		// defaults stay in memory; the next setter rewrites the file
		log.WithError(err).Warn("Failed to load settings, using defaults")
	}

	client := auction.NewClient(&auction.ClientConfig{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.GetTimeout(),
		PageDelay: cfg.API.GetRateLimitDelay(),
	}, logger, nil)

	t, err := New(Options{
		Catalog:            cat,
		Registry:           registry,
		Fetcher:            client,
		Settings:           settings,
		CacheConfig:        &pricecache.Config{TTL: cfg.Cache.GetTTL()},
		Archive:            archive,
		FallbackCredential: cfg.API.Credential,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"goods":           cat.Len(),
		"recipes":         stats.Loaded,
		"recipes_skipped": stats.Skipped,
		"credential_set":  t.Status().CredentialSet,
		"settings_path":   settings.Path(),
		"cache_ttl":       cfg.Cache.GetTTL().String(),
		"catalog_path":    cfg.Catalog.Path,
		"recipes_path":    cfg.Recipes.Path,
	}).Info("Tracker initialized")

	return t, nil
}

// CaptureFile feeds a chat log into the cache. A missing path is not an error.
func (t *Tracker) CaptureFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		t.logger.WithComponent("capture").WithField("path", path).Warn("Chat log not found, skipping capture")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open chat log: %w", err)
	}
	defer f.Close()

	stats, err := t.ConsumeChat(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to read chat log: %w", err)
	}

	t.logger.WithComponent("capture").WithFields(logrus.Fields{
		"path":       path,
		"lines":      stats.Lines,
		"matched":    stats.Matched,
		"ingested":   stats.Ingested,
		"unresolved": stats.Unresolved,
	}).Info("Chat log captured")
	return nil
}
