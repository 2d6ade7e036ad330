package profit

import (
	"fmt"
	"strings"
	"time"
)

// Report is a ranked result set ready for display
type Report struct {
	Name        string
	Description string
	Budget      float64
	Results     []Calculation
	GeneratedAt time.Time
}

// NameFunc maps a good id onto a display name
type NameFunc func(id string) string

// OutputFormatter renders calculations for the terminal, markdown files and Discord
type OutputFormatter struct {
	names NameFunc
}

// NewOutputFormatter creates a formatter. A nil names func prints ingredient ids.
func NewOutputFormatter(names NameFunc) *OutputFormatter {
	if names == nil {
		names = func(id string) string { return id }
	}
	return &OutputFormatter{names: names}
}

// FormatDetail renders one calculation with its recipe breakdown
func (of *OutputFormatter) FormatDetail(calc Calculation) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("=== %s ===\n", calc.Good.Name))
	output.WriteString(fmt.Sprintf("Selling Price: $%.2f\n", calc.SellingPrice))
	if calc.AveragePrice > 0 {
		output.WriteString(fmt.Sprintf("Average Listing: $%.2f\n", calc.AveragePrice))
	}
	output.WriteString(fmt.Sprintf("Materials Cost: $%.2f\n", calc.MaterialsCost))
	output.WriteString(fmt.Sprintf("Profit: $%.2f (%.1f%%)\n", calc.Profit, calc.Margin))

	output.WriteString("\nRecipe:\n")
	if calc.Recipe.OutputQuantity > 1 {
		output.WriteString(fmt.Sprintf("  makes %dx\n", calc.Recipe.OutputQuantity))
	}
	for _, ing := range calc.Recipe.Ingredients {
		price, ok := calc.MaterialPrices[ing.Good]
		if !ok {
			price = 0
		}
		output.WriteString(fmt.Sprintf("  - %dx %s @ $%.2f = $%.2f\n",
			ing.Quantity, of.names(ing.Good), price, price*float64(ing.Quantity)))
	}

	return output.String()
}

// FormatForTerminal renders a ranking as a fixed-width table
func (of *OutputFormatter) FormatForTerminal(report *Report) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("\n💰 %s\n", reportTitle(report)))
	output.WriteString(strings.Repeat("=", 72) + "\n")

	if report.Description != "" {
		output.WriteString(fmt.Sprintf("📝 %s\n", report.Description))
	}

	if len(report.Results) == 0 {
		output.WriteString("No profitable crafts found.\n")
		return output.String()
	}

	output.WriteString(fmt.Sprintf("%-4s %-28s %12s %12s %12s %8s\n", "#", "Item", "Sell", "Cost", "Profit", "Margin"))
	output.WriteString(strings.Repeat("-", 72) + "\n")
	for i, calc := range report.Results {
		output.WriteString(fmt.Sprintf("%-4d %-28s %12.2f %12.2f %12.2f %7.1f%%\n",
			i+1, truncate(calc.Good.Name, 28), calc.SellingPrice, calc.MaterialsCost, calc.Profit, calc.Margin))
	}

	return output.String()
}

// FormatForMarkdown renders a ranking as a markdown table
func (of *OutputFormatter) FormatForMarkdown(report *Report) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("## %s\n\n", reportTitle(report)))
	if report.Description != "" {
		output.WriteString(report.Description + "\n\n")
	}
	if !report.GeneratedAt.IsZero() {
		output.WriteString(fmt.Sprintf("_Generated %s_\n\n", report.GeneratedAt.UTC().Format(time.RFC3339)))
	}

	if len(report.Results) == 0 {
		output.WriteString("No profitable crafts found.\n")
		return output.String()
	}

	output.WriteString("| # | Item | Sell | Cost | Profit | Margin |\n")
	output.WriteString("|---|------|-----:|-----:|-------:|-------:|\n")
	for i, calc := range report.Results {
		output.WriteString(fmt.Sprintf("| %d | %s | $%.2f | $%.2f | $%.2f | %.1f%% |\n",
			i+1, calc.Good.Name, calc.SellingPrice, calc.MaterialsCost, calc.Profit, calc.Margin))
	}

	return output.String()
}

// FormatForDiscord renders a ranking as a Discord message
func (of *OutputFormatter) FormatForDiscord(report *Report) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("**%s**\n", reportTitle(report)))

	if len(report.Results) == 0 {
		output.WriteString("No profitable crafts found.")
		return output.String()
	}

	output.WriteString("```\n")
	for i, calc := range report.Results {
		output.WriteString(fmt.Sprintf("%2d. %-24s +$%-10.2f %6.1f%%  (cost $%.2f)\n",
			i+1, truncate(calc.Good.Name, 24), calc.Profit, calc.Margin, calc.MaterialsCost))
	}
	output.WriteString("```")

	return output.String()
}

func reportTitle(report *Report) string {
	title := report.Name
	if title == "" {
		title = "Profitable Crafts"
	}
	if report.Budget > 0 {
		title = fmt.Sprintf("%s (budget $%.2f)", title, report.Budget)
	}
	return title
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
