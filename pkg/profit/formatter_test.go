package profit

import (
	"strings"
	"testing"

	"craft-flipping/pkg/catalog"
	"craft-flipping/pkg/recipes"
)

func sampleCalculation() Calculation {
	return Calculation{
		Good:          catalog.Good{ID: "minecraft:tool", Name: "Tool"},
		UnitPrice:     50,
		SellingPrice:  50,
		MaterialsCost: 32,
		Profit:        18,
		Margin:        56.3,
		Recipe: recipes.Recipe{
			Output:         "minecraft:tool",
			OutputQuantity: 1,
			Ingredients: []recipes.Ingredient{
				{Good: "minecraft:ingot", Quantity: 3},
				{Good: "minecraft:stick", Quantity: 2},
			},
		},
		MaterialPrices: map[string]float64{"minecraft:ingot": 10},
	}
}

func TestFormatDetail(t *testing.T) {
	names := map[string]string{"minecraft:ingot": "Ingot", "minecraft:stick": "Stick"}
	of := NewOutputFormatter(func(id string) string { return names[id] })

	out := of.FormatDetail(sampleCalculation())

	expected := []string{
		"=== Tool ===\n",
		"Selling Price: $50.00\n",
		"Materials Cost: $32.00\n",
		"Profit: $18.00 (56.3%)\n",
		"\nRecipe:\n",
		"  - 3x Ingot @ $10.00 = $30.00\n",
		"  - 2x Stick @ $0.00 = $0.00\n",
	}
	for _, line := range expected {
		if !strings.Contains(out, line) {
			t.Errorf("Expected output to contain %q, got:\n%s", line, out)
		}
	}
	if strings.Contains(out, "Average Listing") {
		t.Errorf("Expected no average line without an average, got:\n%s", out)
	}

	calc := sampleCalculation()
	calc.AveragePrice = 55
	if out := of.FormatDetail(calc); !strings.Contains(out, "Average Listing: $55.00\n") {
		t.Errorf("Expected average listing line, got:\n%s", out)
	}
}

func TestFormatRankings(t *testing.T) {
	of := NewOutputFormatter(nil)
	report := &Report{Name: "Top", Budget: 100, Results: []Calculation{sampleCalculation()}}

	terminal := of.FormatForTerminal(report)
	if !strings.Contains(terminal, "Top (budget $100.00)") || !strings.Contains(terminal, "Tool") {
		t.Errorf("Unexpected terminal output:\n%s", terminal)
	}

	markdown := of.FormatForMarkdown(report)
	if !strings.Contains(markdown, "| 1 | Tool | $50.00 | $32.00 | $18.00 | 56.3% |") {
		t.Errorf("Unexpected markdown output:\n%s", markdown)
	}

	discord := of.FormatForDiscord(report)
	if !strings.HasPrefix(discord, "**Top (budget $100.00)**") || !strings.HasSuffix(discord, "```") {
		t.Errorf("Unexpected discord output:\n%s", discord)
	}

	empty := of.FormatForDiscord(&Report{})
	if !strings.Contains(empty, "No profitable crafts found.") {
		t.Errorf("Expected empty message, got %s", empty)
	}
}
