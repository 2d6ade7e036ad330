package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"craft-flipping/pkg/catalog"
	"craft-flipping/pkg/config"
	"craft-flipping/pkg/profit"
	"craft-flipping/pkg/tracker"
)

type fakeRanker struct {
	status     tracker.Status
	outcome    tracker.RefreshOutcome
	results    []profit.Calculation
	refreshes  int
	lastBudget float64
}

func (f *fakeRanker) Status() tracker.Status { return f.status }

func (f *fakeRanker) RefreshNow(ctx context.Context) tracker.RefreshOutcome {
	f.refreshes++
	return f.outcome
}

func (f *fakeRanker) FindProfitable(budget float64) []profit.Calculation {
	f.lastBudget = budget
	return f.results
}

type fakeNotifier struct {
	reports []string
	errors  []string
	err     error
}

func (n *fakeNotifier) SendReport(ctx context.Context, title, content string, itemCount int) error {
	n.reports = append(n.reports, title+"\n"+content)
	return n.err
}

func (n *fakeNotifier) SendError(reportName string, err error) error {
	n.errors = append(n.errors, reportName)
	return n.err
}

func testConfig() *config.Config {
	return &config.Config{
		Reports: []config.ReportConfig{
			{Name: "Cheap", Budget: 100, Limit: 2, Enabled: true},
			{Name: "Rich", Budget: 10000, Enabled: true},
			{Name: "Off", Budget: 1, Enabled: false},
		},
	}
}

func calcs(n int) []profit.Calculation {
	out := make([]profit.Calculation, n)
	for i := range out {
		out[i] = profit.Calculation{
			Good:          catalog.Good{ID: "minecraft:item", Name: "Item"},
			MaterialsCost: 10,
			Profit:        5,
			Margin:        50,
		}
	}
	return out
}

func TestExecuteReportWithResult(t *testing.T) {
	ranker := &fakeRanker{results: calcs(5)}
	e := NewExecutor(testConfig(), ranker, nil, nil, nil)

	result, err := e.ExecuteReportWithResult(context.Background(), "Cheap")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got %v", result.Error)
	}
	if ranker.lastBudget != 100 {
		t.Errorf("Expected budget 100, got %.2f", ranker.lastBudget)
	}
	if result.ItemsFound != 2 || len(result.Report.Results) != 2 {
		t.Errorf("Expected results limited to 2, got %d", result.ItemsFound)
	}

	result, _ = e.ExecuteReportWithResult(context.Background(), "Rich")
	if result.ItemsFound != 5 {
		t.Errorf("Expected default limit to keep all 5, got %d", result.ItemsFound)
	}
}

func TestExecuteReportWithResult_MissingOrDisabled(t *testing.T) {
	e := NewExecutor(testConfig(), &fakeRanker{}, nil, nil, nil)

	for _, name := range []string{"Nope", "Off"} {
		result, err := e.ExecuteReportWithResult(context.Background(), name)
		if err != nil {
			t.Fatalf("Expected error in result, not returned, got %v", err)
		}
		if result.Success || result.Error == nil {
			t.Errorf("Expected %q to fail, got %+v", name, result)
		}
	}
}

func TestExecuteReportWithResult_RefreshesStaleCache(t *testing.T) {
	tests := []struct {
		name      string
		status    tracker.Status
		refreshes int
	}{
		{"fresh", tracker.Status{NeedsRefresh: false}, 0},
		{"stale", tracker.Status{NeedsRefresh: true}, 1},
		{"stale but refreshing", tracker.Status{NeedsRefresh: true, Refreshing: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranker := &fakeRanker{
				status:  tt.status,
				outcome: tracker.RefreshOutcome{Message: "Failed to load auction data."},
				results: calcs(1),
			}
			e := NewExecutor(testConfig(), ranker, nil, nil, nil)

			result, _ := e.ExecuteReportWithResult(context.Background(), "Cheap")
			if ranker.refreshes != tt.refreshes {
				t.Errorf("Expected %d refreshes, got %d", tt.refreshes, ranker.refreshes)
			}
			if !result.Success {
				t.Error("Expected report to succeed on cached data even when refresh fails")
			}
		})
	}
}

func TestExecuteAllReports_Delivers(t *testing.T) {
	notifier := &fakeNotifier{}
	e := NewExecutor(testConfig(), &fakeRanker{results: calcs(1)}, nil, notifier, nil)

	if err := e.ExecuteAllReports(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(notifier.reports) != 2 {
		t.Fatalf("Expected 2 delivered reports, got %d", len(notifier.reports))
	}
	if !strings.Contains(notifier.reports[0], "Cheap (budget $100.00)") {
		t.Errorf("Expected report title in content, got %s", notifier.reports[0])
	}
}

func TestExecuteReport_NotifierFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("discord down")}
	e := NewExecutor(testConfig(), &fakeRanker{}, nil, notifier, nil)

	if err := e.ExecuteReport(context.Background(), config.ReportConfig{Name: "Cheap"}); err == nil {
		t.Error("Expected delivery error")
	}
}

func TestExecuteReport_DisabledSendsError(t *testing.T) {
	notifier := &fakeNotifier{}
	e := NewExecutor(testConfig(), &fakeRanker{}, nil, notifier, nil)

	if err := e.ExecuteReport(context.Background(), config.ReportConfig{Name: "Off"}); err == nil {
		t.Error("Expected error for disabled report")
	}
	if len(notifier.errors) != 1 || notifier.errors[0] != "Off" {
		t.Errorf("Expected an error notification, got %v", notifier.errors)
	}
}

func TestRunAll(t *testing.T) {
	e := NewExecutor(testConfig(), &fakeRanker{results: calcs(3)}, nil, nil, nil)

	results := e.RunAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("Expected 2 results for enabled reports, got %d", len(results))
	}

	out := e.Formatter().FormatForTerminal(results[0])
	if !strings.Contains(out, "Report Results: Cheap") || !strings.Contains(out, "Items: 2") {
		t.Errorf("Unexpected terminal output:\n%s", out)
	}
	md := e.Formatter().FormatForMarkdown(results[1])
	if !strings.Contains(md, "| # | Item |") {
		t.Errorf("Expected markdown table, got:\n%s", md)
	}
}
