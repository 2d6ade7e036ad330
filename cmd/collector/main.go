package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"craft-flipping/pkg/collector"
	"craft-flipping/pkg/config"
	"craft-flipping/pkg/database"
	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/storage"
	"craft-flipping/pkg/tracker"
)

const VERSION = "0.1.0"

var (
	configPath = flag.String("config", "config.yml", "Path to config.yml")
	interval   = flag.Duration("interval", 0, "Refresh interval (default: the stored auto refresh interval, or 5m)")
	retention  = flag.Duration("retention", 7*24*time.Hour, "Drop archived snapshots older than this (0 disables pruning)")
	once       = flag.Bool("once", false, "Run a single refresh and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfigForCLI(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("collector")
	log.WithField("version", VERSION).Info("starting snapshot collector")

	dbConfig, err := database.ConfigFromURL(cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("failed to load database configuration")
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Connect(connectCtx, dbConfig)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	log.WithField("path", cfg.Database.MigrationsPath).Info("running database migrations")
	if err := database.MigrateUp(dbConfig.DatabaseURL, cfg.Database.MigrationsPath); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	version, dirty, err := database.MigrateVersion(dbConfig.DatabaseURL, cfg.Database.MigrationsPath)
	if err != nil {
		log.WithError(err).Warn("failed to get migration version")
	} else {
		log.WithFields(logrus.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("migrations complete")
	}

	stats := db.Pool.Stat()
	log.WithFields(logrus.Fields{
		"total_conns": stats.TotalConns(),
		"idle_conns":  stats.IdleConns(),
		"acquired":    stats.AcquiredConns(),
		"max_conns":   stats.MaxConns(),
	}).Info("database pool initialized")

	archive := storage.NewSnapshotRepository(db.Pool)
	queries := storage.NewQueryRepository(db.Pool)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logArchiveState(ctx, queries, cfg.Cache.GetTTL(), log)

	t, err := tracker.NewFromConfig(cfg, archive, logger)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize tracker")
	}
	if !t.Status().CredentialSet {
		log.Fatal("no API key set, run craftcalc -apikey=KEY or set DONUT_API_KEY")
	}

	if n, err := t.WarmFromArchive(ctx); err != nil {
		log.WithError(err).Warn("failed to warm cache from archive")
	} else if n > 0 {
		log.WithField("prices", n).Info("cache warmed from archive")
	}

	pollerConfig := collector.DefaultPollerConfig()
	switch {
	case *interval > 0:
		pollerConfig.Interval = *interval
	case t.Settings().AutoRefresh():
		pollerConfig.Interval = time.Duration(t.Settings().RefreshIntervalMinutes()) * time.Minute
	}

	if *once {
		outcome := t.RefreshNow(ctx)
		log.WithFields(logrus.Fields{
			"refresh_id": outcome.ID.String(),
			"success":    outcome.Success,
		}).Info(outcome.Message)
		if !outcome.Success {
			os.Exit(1)
		}
		return
	}

	poller := collector.NewPoller(t, pollerConfig, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	if *retention > 0 {
		g.Go(func() error {
			return pruneLoop(gctx, archive, *retention, log)
		})
	}

	log.WithFields(logrus.Fields{
		"poll_interval": pollerConfig.Interval.String(),
		"retention":     retention.String(),
	}).Info("collector fully initialized, polling started")

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("collector stopped with error")
	}

	final := poller.Stats()
	log.WithFields(logrus.Fields{
		"polls":     final.Polls,
		"successes": final.Successes,
	}).Info("collector shutdown complete")
}

func logArchiveState(ctx context.Context, queries *storage.QueryRepository, ttl time.Duration, log *logrus.Entry) {
	count, err := queries.GetSnapshotCount(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to count archived snapshots")
		return
	}

	fields := logrus.Fields{"snapshots": count}
	if newest, err := queries.GetDataFreshness(ctx); err == nil && newest != nil {
		fields["newest"] = newest.Format(time.RFC3339)
	}
	fresh, err := queries.IsDataFresh(ctx, ttl)
	if err == nil {
		fields["fresh"] = fresh
	}
	log.WithFields(fields).Info("archive state")
}

func pruneLoop(ctx context.Context, archive *storage.SnapshotRepository, keep time.Duration, log *logrus.Entry) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := archive.PruneBefore(ctx, time.Now().Add(-keep))
			if err != nil {
				log.WithError(err).Warn("failed to prune snapshots")
				continue
			}
			if n > 0 {
				log.WithField("rows", n).Info("pruned old snapshots")
			}
		}
	}
}
