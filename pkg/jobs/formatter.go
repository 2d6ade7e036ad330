package jobs

import (
	"fmt"
	"strings"
	"time"

	"craft-flipping/pkg/profit"
)

// ResultFormatter renders report results, delegating the ranking itself to profit.OutputFormatter
type ResultFormatter struct {
	profit *profit.OutputFormatter
}

// NewResultFormatter wraps a profit formatter. A nil formatter prints good ids.
func NewResultFormatter(of *profit.OutputFormatter) *ResultFormatter {
	if of == nil {
		of = profit.NewOutputFormatter(nil)
	}
	return &ResultFormatter{profit: of}
}

// FormatForTerminal formats a result for terminal output
func (rf *ResultFormatter) FormatForTerminal(result *ReportResult) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("\n🎯 Report Results: %s\n", result.ReportName))
	output.WriteString(strings.Repeat("=", 60) + "\n")

	if !result.Success {
		output.WriteString(fmt.Sprintf("❌ Report failed: %v\n", result.Error))
		return output.String()
	}

	output.WriteString(fmt.Sprintf("📊 Status: Success | Duration: %v | Items: %d\n",
		result.Duration.Truncate(time.Millisecond), result.ItemsFound))
	if result.RefreshMessage != "" {
		output.WriteString(fmt.Sprintf("🔄 %s\n", result.RefreshMessage))
	}

	if result.Report != nil {
		output.WriteString(rf.profit.FormatForTerminal(result.Report))
	}

	return output.String()
}

// FormatForMarkdown formats a result for a markdown file
func (rf *ResultFormatter) FormatForMarkdown(result *ReportResult) string {
	if !result.Success || result.Report == nil {
		return fmt.Sprintf("## %s\n\nReport failed: %v\n", result.ReportName, result.Error)
	}
	return rf.profit.FormatForMarkdown(result.Report)
}

// FormatForDiscord formats a result for a Discord message
func (rf *ResultFormatter) FormatForDiscord(result *ReportResult) string {
	if !result.Success || result.Report == nil {
		return fmt.Sprintf("Report failed: %v", result.Error)
	}
	return rf.profit.FormatForDiscord(result.Report)
}
