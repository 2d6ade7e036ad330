package jobs

import (
	"context"

	"craft-flipping/pkg/config"
	"craft-flipping/pkg/profit"
	"craft-flipping/pkg/tracker"
)

// ReportExecutor runs configured reports
type ReportExecutor interface {
	ExecuteReport(ctx context.Context, report config.ReportConfig) error
	ExecuteAllReports(ctx context.Context) error
}

// Ranker supplies fresh rankings (tracker.Tracker implements it)
type Ranker interface {
	Status() tracker.Status
	RefreshNow(ctx context.Context) tracker.RefreshOutcome
	FindProfitable(budget float64) []profit.Calculation
}

// Notifier delivers finished reports (discord.Bot implements it)
type Notifier interface {
	SendReport(ctx context.Context, title, content string, itemCount int) error
	SendError(reportName string, err error) error
}
