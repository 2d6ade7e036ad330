package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"craft-flipping/pkg/config"
	"craft-flipping/pkg/database"
	"craft-flipping/pkg/discord"
	"craft-flipping/pkg/jobs"
	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/scheduler"
	"craft-flipping/pkg/storage"
	"craft-flipping/pkg/tracker"
)

const VERSION = "0.1.0"

const archiveRetention = 7 * 24 * time.Hour

func main() {
	cfg, err := config.LoadConfig("config.yml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithComponent("main").WithField("version", VERSION).Info("starting_craft_flipping_bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archive, closeArchive := openArchive(ctx, cfg, logger)
	defer closeArchive()

	var trackerArchive tracker.Archive
	if archive != nil {
		trackerArchive = archive
	}

	t, err := tracker.NewFromConfig(cfg, trackerArchive, logger)
	if err != nil {
		logger.WithComponent("main").WithError(err).Fatal("Failed to initialize tracker")
	}

	if n, err := t.WarmFromArchive(ctx); err != nil {
		logger.WithComponent("main").WithError(err).Warn("Failed to warm cache from archive")
	} else if n > 0 {
		logger.WithComponent("main").WithField("prices", n).Info("Cache warmed from archive")
	}

	commands := discord.NewCommandHandler(t, nil, logger)
	discordBot, err := discord.NewBot(&cfg.Discord, commands, logger)
	if err != nil {
		logger.WithDiscord().WithError(err).Fatal("Failed to create Discord bot")
	}

	botCtx, botCancel := context.WithTimeout(ctx, 30*time.Second)
	err = discordBot.Start(botCtx)
	botCancel()
	if err != nil {
		logger.WithDiscord().WithError(err).Fatal("Failed to start Discord bot")
	}

	if _, err := discordBot.SendMessage(fmt.Sprintf("⚒️ **craft-flipping v%s** has logged in.", VERSION)); err != nil {
		logger.WithDiscord().WithError(err).Warn("Failed to send startup message")
	}

	executor := jobs.NewExecutor(cfg, t, t.Formatter(), discordBot, logger)

	sched := scheduler.NewScheduler(logger, executor, t)
	if err := sched.LoadReports(cfg); err != nil {
		logger.WithComponent("scheduler").WithError(err).Fatal("Failed to load report schedules")
	}
	if t.Settings().AutoRefresh() {
		if err := sched.SetAutoRefresh(t.Settings().RefreshIntervalMinutes()); err != nil {
			logger.WithComponent("scheduler").WithError(err).Fatal("Failed to schedule auto refresh")
		}
	}
	sched.Start()

	logger.WithComponent("main").WithFields(logrus.Fields{
		"reports_loaded":   len(cfg.Reports),
		"schedules_active": len(cfg.Schedules),
		"auto_refresh":     sched.AutoRefreshInterval(),
		"archive_enabled":  archive != nil,
	}).Info("craft-flipping fully initialized")

	g, gctx := errgroup.WithContext(ctx)

	// prime the cache so the first command has data; chat prices go in after the
	// refresh because a refresh replaces the cache
	g.Go(func() error {
		if t.Status().CredentialSet {
			outcome := t.RefreshNow(gctx)
			logger.WithComponent("main").WithField("result", outcome.Message).Info("Initial refresh finished")
		} else {
			logger.WithComponent("main").Warn("No API key set, skipping initial refresh")
		}
		if err := t.CaptureFile(gctx, cfg.Capture.Path); err != nil {
			logger.WithComponent("main").WithError(err).Warn("Chat capture failed")
		}
		return nil
	})

	if archive != nil {
		g.Go(func() error {
			return pruneLoop(gctx, archive, logger)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithComponent("main").WithError(err).Error("Background task failed")
	}

	logger.WithComponent("main").Info("Shutdown signal received, gracefully stopping...")

	sched.Stop()

	if _, err := discordBot.SendMessage("☠️ **craft-flipping** has logged out."); err != nil {
		logger.WithDiscord().WithError(err).Warn("Failed to send shutdown message")
	}

	time.Sleep(2 * time.Second)

	if err := discordBot.Stop(); err != nil {
		logger.WithDiscord().WithError(err).Error("Error stopping Discord bot")
	}

	logger.WithComponent("main").Info("craft-flipping shutdown complete")
}

// openArchive connects to and migrates the snapshot database when one is configured.
// Any failure leaves the bot running without an archive.
func openArchive(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*storage.SnapshotRepository, func()) {
	noop := func() {}
	log := logger.WithComponent("archive")

	if cfg.Database.URL == "" {
		log.Info("No DATABASE_URL found, running without snapshot archive")
		return nil, noop
	}

	dbConfig, err := database.ConfigFromURL(cfg.Database.URL)
	if err != nil {
		log.WithError(err).Warn("Invalid database config, running without snapshot archive")
		return nil, noop
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := database.Connect(connectCtx, dbConfig)
	cancel()
	if err != nil {
		log.WithError(err).Warn("Failed to connect to database, running without snapshot archive")
		return nil, noop
	}

	log.WithField("path", cfg.Database.MigrationsPath).Info("Running database migrations")
	if err := database.MigrateUp(dbConfig.DatabaseURL, cfg.Database.MigrationsPath); err != nil {
		log.WithError(err).Warn("Failed to run migrations, running without snapshot archive")
		db.Close()
		return nil, noop
	}

	version, dirty, err := database.MigrateVersion(dbConfig.DatabaseURL, cfg.Database.MigrationsPath)
	if err != nil {
		log.WithError(err).Warn("Failed to get migration version")
	} else {
		log.WithFields(logrus.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("Database schema ready")
	}

	return storage.NewSnapshotRepository(db.Pool), db.Close
}

// pruneLoop drops archived snapshots older than the retention window once an hour
func pruneLoop(ctx context.Context, archive *storage.SnapshotRepository, logger *logging.Logger) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := archive.PruneBefore(ctx, time.Now().Add(-archiveRetention))
			if err != nil {
				logger.WithComponent("archive").WithError(err).Warn("Failed to prune snapshots")
				continue
			}
			if n > 0 {
				logger.WithComponent("archive").WithField("rows", n).Info("Pruned old snapshots")
			}
		}
	}
}
