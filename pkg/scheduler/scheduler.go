package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"craft-flipping/pkg/config"
	"craft-flipping/pkg/jobs"
	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/tracker"
)

const (
	reportTimeout  = 5 * time.Minute
	refreshTimeout = 2 * time.Minute
)

// Refresher runs a bulk price refresh (tracker.Tracker implements it)
type Refresher interface {
	RefreshNow(ctx context.Context) tracker.RefreshOutcome
}

// Scheduler runs report schedules and the periodic auto refresh
type Scheduler struct {
	cron        *cron.Cron
	executor    jobs.ReportExecutor
	refresher   Refresher
	logger      *logging.Logger
	reports     map[string]config.ReportConfig
	autoRefresh cron.EntryID
	interval    int
	mu          sync.RWMutex
}

// NewScheduler creates a scheduler. refresher may be nil when auto refresh is not used.
func NewScheduler(logger *logging.Logger, executor jobs.ReportExecutor, refresher Refresher) *Scheduler {
	logger = logging.OrQuiet(logger)
	cronLogger := cron.VerbosePrintfLogger(logger.WithComponent("scheduler").Logger)
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:      c,
		executor:  executor,
		refresher: refresher,
		logger:    logger,
		reports:   make(map[string]config.ReportConfig),
	}
}

// LoadReports registers report configurations and their cron schedules
func (s *Scheduler) LoadReports(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, report := range cfg.Reports {
		s.reports[report.Name] = report
	}

	for _, schedule := range cfg.Schedules {
		log := s.logger.WithComponent("scheduler").WithField("report_name", schedule.ReportName)

		if !schedule.Enabled {
			log.Debug("Schedule disabled, skipping")
			continue
		}

		report, exists := s.reports[schedule.ReportName]
		if !exists {
			log.Error("Report not found for schedule")
			continue
		}

		if !report.Enabled {
			log.Debug("Report disabled, skipping schedule")
			continue
		}

		_, err := s.cron.AddFunc(schedule.Cron, func() {
			s.executeReport(report)
		})
		if err != nil {
			return fmt.Errorf("failed to add cron job for %s: %w", schedule.ReportName, err)
		}

		log.WithField("cron", schedule.Cron).Info("Scheduled report added")
	}

	return nil
}

// SetAutoRefresh schedules a bulk refresh every intervalMinutes, replacing any
// previous interval. Zero or less turns auto refresh off.
func (s *Scheduler) SetAutoRefresh(intervalMinutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.autoRefresh != 0 {
		s.cron.Remove(s.autoRefresh)
		s.autoRefresh = 0
		s.interval = 0
	}

	if intervalMinutes <= 0 {
		s.logger.WithComponent("scheduler").Info("Auto refresh disabled")
		return nil
	}
	if s.refresher == nil {
		return fmt.Errorf("auto refresh needs a refresher")
	}

	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	id, err := s.cron.AddFunc(spec, s.refresh)
	if err != nil {
		return fmt.Errorf("failed to schedule auto refresh: %w", err)
	}

	s.autoRefresh = id
	s.interval = intervalMinutes
	s.logger.WithComponent("scheduler").WithField("interval_minutes", intervalMinutes).Info("Auto refresh scheduled")
	return nil
}

// AutoRefreshInterval returns the active auto refresh interval in minutes, 0 when off
func (s *Scheduler) AutoRefreshInterval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.WithComponent("scheduler").Info("Starting report scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.logger.WithComponent("scheduler").Info("Stopping report scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ExecuteReport runs a report immediately (manual trigger)
func (s *Scheduler) ExecuteReport(reportName string) error {
	s.mu.RLock()
	report, exists := s.reports[reportName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("report %s not found", reportName)
	}

	go s.executeReport(report)
	return nil
}

// ExecuteAllReports runs every enabled report sequentially, in name order
func (s *Scheduler) ExecuteAllReports() {
	s.mu.RLock()
	reports := make([]config.ReportConfig, 0, len(s.reports))
	for _, report := range s.reports {
		if report.Enabled {
			reports = append(reports, report)
		}
	}
	s.mu.RUnlock()

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Name < reports[j].Name
	})

	s.logger.WithComponent("scheduler").WithField("report_count", len(reports)).Info("Executing all enabled reports")

	for _, report := range reports {
		s.executeReport(report)
	}
}

func (s *Scheduler) executeReport(report config.ReportConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	log := s.logger.WithComponent("scheduler").WithField("report_name", report.Name)
	log.WithField("budget", report.Budget).Info("Executing scheduled report")

	if err := s.executor.ExecuteReport(ctx, report); err != nil {
		log.WithError(err).Error("Report execution failed")
	}
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	outcome := s.refresher.RefreshNow(ctx)
	log := s.logger.WithComponent("scheduler").WithField("refresh_id", outcome.ID.String())
	if outcome.Success {
		log.WithField("loaded", outcome.Report.Loaded).Info("Auto refresh completed")
		return
	}
	log.WithField("reason", outcome.Message).Warn("Auto refresh failed")
}

// GetReportNames returns all configured report names, sorted
func (s *Scheduler) GetReportNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.reports))
	for name := range s.reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetReportStatus returns whether each report is enabled
func (s *Scheduler) GetReportStatus() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := make(map[string]bool, len(s.reports))
	for name, report := range s.reports {
		status[name] = report.Enabled
	}
	return status
}

// IsRunning returns whether any job is scheduled
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
