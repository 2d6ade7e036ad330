package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/config"
	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/profit"
)

// ReportResult represents the output of a report run
type ReportResult struct {
	ReportName   string
	Success      bool
	Error        error
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	ItemsFound   int
	Report       *profit.Report
	ReportConfig config.ReportConfig
	// RefreshMessage is set when the run refreshed prices first
	RefreshMessage string
}

// Executor runs reports against a ranker and hands them to a notifier
type Executor struct {
	reports   []config.ReportConfig
	ranker    Ranker
	formatter *ResultFormatter
	notifier  Notifier
	logger    *logging.Logger
}

// NewExecutor creates a report executor. notifier may be nil, in which case
// reports are only logged.
func NewExecutor(cfg *config.Config, ranker Ranker, formatter *profit.OutputFormatter, notifier Notifier, logger *logging.Logger) *Executor {
	return &Executor{
		reports:   cfg.Reports,
		ranker:    ranker,
		formatter: NewResultFormatter(formatter),
		notifier:  notifier,
		logger:    logging.OrQuiet(logger),
	}
}

// Formatter returns the result formatter used for delivery
func (e *Executor) Formatter() *ResultFormatter {
	return e.formatter
}

// ExecuteReportWithResult runs a report by name and returns its result.
// Prices are refreshed first when the cache is stale; a failed refresh
// falls back to whatever is cached.
func (e *Executor) ExecuteReportWithResult(ctx context.Context, reportName string) (*ReportResult, error) {
	startTime := time.Now()
	log := e.logger.WithComponent("report_executor").WithField("report_name", reportName)

	var (
		reportConfig config.ReportConfig
		found        bool
	)
	for _, r := range e.reports {
		if r.Name == reportName {
			reportConfig = r
			found = true
			break
		}
	}

	if !found {
		return &ReportResult{
			ReportName: reportName,
			Success:    false,
			Error:      fmt.Errorf("report '%s' not found in configuration", reportName),
			StartTime:  startTime,
			EndTime:    time.Now(),
		}, nil
	}

	if !reportConfig.Enabled {
		return &ReportResult{
			ReportName:   reportName,
			Success:      false,
			Error:        fmt.Errorf("report '%s' is disabled", reportName),
			StartTime:    startTime,
			EndTime:      time.Now(),
			ReportConfig: reportConfig,
		}, nil
	}

	result := &ReportResult{
		ReportName:   reportName,
		StartTime:    startTime,
		ReportConfig: reportConfig,
	}

	status := e.ranker.Status()
	if status.NeedsRefresh && !status.Refreshing {
		outcome := e.ranker.RefreshNow(ctx)
		result.RefreshMessage = outcome.Message
		if !outcome.Success {
			log.WithField("refresh", outcome.Message).Warn("Failed to refresh prices, using cached data")
		}
	}

	calcs := e.ranker.FindProfitable(reportConfig.Budget)
	if limit := reportConfig.GetLimit(); len(calcs) > limit {
		calcs = calcs[:limit]
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	result.ItemsFound = len(calcs)
	result.Success = true
	result.Report = &profit.Report{
		Name:        reportConfig.Name,
		Description: reportConfig.Description,
		Budget:      reportConfig.Budget,
		Results:     calcs,
		GeneratedAt: result.EndTime,
	}

	if len(calcs) == 0 {
		log.WithField("budget", reportConfig.Budget).Warn("No profitable crafts within budget")
	}

	log.WithFields(logrus.Fields{
		"duration":   result.Duration,
		"item_count": result.ItemsFound,
	}).Info("Report completed")

	return result, nil
}

// ExecuteReport runs a report and delivers it
func (e *Executor) ExecuteReport(ctx context.Context, report config.ReportConfig) error {
	result, err := e.ExecuteReportWithResult(ctx, report.Name)
	if err != nil {
		return err
	}
	return e.deliver(ctx, result)
}

// ExecuteAllReports runs and delivers every enabled report, returning the first error
func (e *Executor) ExecuteAllReports(ctx context.Context) error {
	var firstErr error
	for _, r := range e.reports {
		if !r.Enabled {
			e.logger.WithComponent("report_executor").WithField("report_name", r.Name).Info("Skipping disabled report")
			continue
		}
		if err := e.ExecuteReport(ctx, r); err != nil {
			e.logger.WithComponent("report_executor").WithField("report_name", r.Name).WithError(err).Error("Report execution failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RunAll runs every enabled report without delivering
func (e *Executor) RunAll(ctx context.Context) []*ReportResult {
	var results []*ReportResult
	for _, r := range e.reports {
		if !r.Enabled {
			continue
		}
		result, err := e.ExecuteReportWithResult(ctx, r.Name)
		if err != nil {
			result = &ReportResult{ReportName: r.Name, Error: err, ReportConfig: r}
		}
		results = append(results, result)
	}
	return results
}

func (e *Executor) deliver(ctx context.Context, result *ReportResult) error {
	if e.notifier == nil {
		e.logger.WithComponent("report_executor").WithField("report_name", result.ReportName).
			Info(e.formatter.FormatForTerminal(result))
		if !result.Success {
			return result.Error
		}
		return nil
	}

	if !result.Success {
		if err := e.notifier.SendError(result.ReportName, result.Error); err != nil {
			return fmt.Errorf("failed to send report error: %w", err)
		}
		return result.Error
	}

	if err := e.notifier.SendReport(ctx, result.ReportName, e.formatter.FormatForDiscord(result), result.ItemsFound); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	return nil
}
