package profit

import (
	"sort"

	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/catalog"
	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/recipes"
)

// PriceSource provides lowest fresh prices
type PriceSource interface {
	LowestPrice(good string) (float64, bool)
	AllLowestPrices() map[string]float64
}

// RecipeSource resolves recipes and their cost against a price snapshot
type RecipeSource interface {
	HasRecipe(good string) bool
	CheapestRecipe(good string, prices map[string]float64) (recipes.Recipe, bool)
	RecipeCost(recipe recipes.Recipe, prices map[string]float64) float64
}

// GoodLister enumerates and resolves catalog goods
type GoodLister interface {
	All() []catalog.Good
	Resolve(id string) (catalog.Good, bool)
}

// Calculation is the profit picture for crafting one good. Recomputed per query.
type Calculation struct {
	Good catalog.Good
	// UnitPrice is the lowest listing for one unit of the good
	UnitPrice float64
	// AveragePrice is the mean fresh listing for one unit, 0 when not filled in
	AveragePrice float64
	// SellingPrice is UnitPrice times the recipe's output quantity
	SellingPrice  float64
	MaterialsCost float64
	Profit        float64
	// Margin is Profit as a percentage of MaterialsCost (0 when cost is 0)
	Margin float64
	Recipe recipes.Recipe
	// MaterialPrices holds the snapshot price of each ingredient that had one
	MaterialPrices map[string]float64
}

// Profitable reports whether crafting and selling makes money
func (c Calculation) Profitable() bool {
	return c.Profit > 0
}

// Calculator ranks goods by crafting profit. It keeps no state of its own.
type Calculator struct {
	prices  PriceSource
	recipes RecipeSource
	goods   GoodLister
	logger  *logging.Logger
}

// NewCalculator creates a profit calculator over the given cache, registry and catalog
func NewCalculator(prices PriceSource, recipeSource RecipeSource, goods GoodLister, logger *logging.Logger) *Calculator {
	return &Calculator{
		prices:  prices,
		recipes: recipeSource,
		goods:   goods,
		logger:  logging.OrQuiet(logger),
	}
}

// CalculateProfit computes the calculation for one good. False when the good
// has no fresh price or no costable recipe.
func (c *Calculator) CalculateProfit(good string) (Calculation, bool) {
	g, ok := c.goods.Resolve(good)
	if !ok {
		g = catalog.Good{ID: good, Name: good}
	}

	if _, ok := c.prices.LowestPrice(g.ID); !ok {
		return Calculation{}, false
	}

	snapshot := c.prices.AllLowestPrices()
	return c.calculate(g, snapshot)
}

// calculate prices g entirely from snapshot
func (c *Calculator) calculate(g catalog.Good, snapshot map[string]float64) (Calculation, bool) {
	unit, ok := snapshot[g.ID]
	if !ok {
		return Calculation{}, false
	}

	recipe, ok := c.recipes.CheapestRecipe(g.ID, snapshot)
	if !ok {
		return Calculation{}, false
	}

	cost := c.recipes.RecipeCost(recipe, snapshot)
	if cost == recipes.UnknownCost {
		return Calculation{}, false
	}

	materialPrices := make(map[string]float64, len(recipe.Ingredients))
	for _, ing := range recipe.Ingredients {
		if price, ok := snapshot[ing.Good]; ok {
			materialPrices[ing.Good] = price
		}
	}

	selling := unit * float64(recipe.OutputQuantity)
	profit := selling - cost
	margin := 0.0
	if cost > 0 {
		margin = profit / cost * 100
	}

	return Calculation{
		Good:           g,
		UnitPrice:      unit,
		SellingPrice:   selling,
		MaterialsCost:  cost,
		Profit:         profit,
		Margin:         margin,
		Recipe:         recipe,
		MaterialPrices: materialPrices,
	}, true
}

// FindProfitableItems returns every craftable catalog good with positive profit
// and materials cost within budget, best margin first. Equal margins are ordered by good id.
func (c *Calculator) FindProfitableItems(budget float64) []Calculation {
	snapshot := c.prices.AllLowestPrices()
	if len(snapshot) == 0 {
		c.logger.WithComponent("profit").Warn("No price data available")
		return []Calculation{}
	}

	results := []Calculation{}
	for _, g := range c.goods.All() {
		if !c.recipes.HasRecipe(g.ID) {
			continue
		}
		calc, ok := c.calculate(g, snapshot)
		if !ok {
			continue
		}
		if calc.Profit > 0 && calc.MaterialsCost <= budget {
			results = append(results, calc)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Margin != results[j].Margin {
			return results[i].Margin > results[j].Margin
		}
		return results[i].Good.ID < results[j].Good.ID
	})

	c.logger.WithComponent("profit").WithFields(logrus.Fields{
		"budget":     budget,
		"priced":     len(snapshot),
		"profitable": len(results),
	}).Debug("Ranked profitable goods")

	return results
}

// CalculateAllProfits computes every good that currently has a price and a recipe,
// highest absolute profit first, with no budget or profitability filter.
func (c *Calculator) CalculateAllProfits() []Calculation {
	snapshot := c.prices.AllLowestPrices()
	if len(snapshot) == 0 {
		c.logger.WithComponent("profit").Warn("No price data available")
		return []Calculation{}
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := []Calculation{}
	for _, id := range ids {
		if !c.recipes.HasRecipe(id) {
			continue
		}
		g, ok := c.goods.Resolve(id)
		if !ok {
			g = catalog.Good{ID: id, Name: id}
		}
		if calc, ok := c.calculate(g, snapshot); ok {
			results = append(results, calc)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Profit != results[j].Profit {
			return results[i].Profit > results[j].Profit
		}
		return results[i].Good.ID < results[j].Good.ID
	})

	return results
}
