package profit

import (
	"math"
	"strings"
	"testing"

	"craft-flipping/pkg/catalog"
	"craft-flipping/pkg/pricecache"
	"craft-flipping/pkg/recipes"
)

type fixture struct {
	catalog  *catalog.Catalog
	cache    *pricecache.Cache
	registry *recipes.Registry
	calc     *Calculator
}

func newFixture(t *testing.T, goods []catalog.Good, raws recipes.StaticSource) *fixture {
	t.Helper()
	cat := catalog.New(goods, nil, nil)
	reg := recipes.NewRegistry(cat, nil)
	if _, err := reg.Load(raws); err != nil {
		t.Fatalf("Failed to load recipes: %v", err)
	}
	cache := pricecache.New(cat, nil, nil)
	return &fixture{
		catalog:  cat,
		cache:    cache,
		registry: reg,
		calc:     NewCalculator(cache, reg, cat, nil),
	}
}

func ingotToolFixture(t *testing.T) *fixture {
	f := newFixture(t,
		[]catalog.Good{{ID: "ingot", Name: "Ingot"}, {ID: "tool", Name: "Tool"}},
		recipes.StaticSource{
			{Kind: recipes.KindShapeless, Output: "tool", OutputQuantity: 1, Ingredients: []string{"ingot", "ingot", "ingot"}},
		})
	f.cache.Ingest("minecraft:ingot", 10, "test")
	f.cache.Ingest("minecraft:tool", 50, "test")
	return f
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestCalculateProfit_IngotTool(t *testing.T) {
	f := ingotToolFixture(t)

	calc, ok := f.calc.CalculateProfit("tool")
	if !ok {
		t.Fatal("Expected a calculation for tool")
	}
	if calc.MaterialsCost != 30 {
		t.Errorf("Expected cost 30, got %v", calc.MaterialsCost)
	}
	if calc.Profit != 20 {
		t.Errorf("Expected profit 20, got %v", calc.Profit)
	}
	if !approx(calc.Margin, 66.67) {
		t.Errorf("Expected margin ~66.67, got %v", calc.Margin)
	}
	if !calc.Profitable() {
		t.Error("Expected calculation to be profitable")
	}
	if calc.MaterialPrices["minecraft:ingot"] != 10 {
		t.Errorf("Expected ingot price 10 in material prices, got %v", calc.MaterialPrices)
	}
}

func TestFindProfitableItems_Budget(t *testing.T) {
	f := ingotToolFixture(t)

	if results := f.calc.FindProfitableItems(25); len(results) != 0 {
		t.Errorf("Expected tool excluded at budget 25, got %d results", len(results))
	}

	results := f.calc.FindProfitableItems(30)
	if len(results) != 1 || results[0].Good.ID != "minecraft:tool" {
		t.Errorf("Expected tool included at budget 30, got %+v", results)
	}
}

func TestCalculateProfit_NoData(t *testing.T) {
	f := ingotToolFixture(t)

	if _, ok := f.calc.CalculateProfit("ingot"); ok {
		t.Error("Expected no calculation for a good without recipe")
	}

	f.cache.Clear()
	f.cache.Ingest("minecraft:tool", 50, "test")
	if _, ok := f.calc.CalculateProfit("tool"); ok {
		t.Error("Expected no calculation when an ingredient is unpriced")
	}

	f.cache.Clear()
	f.cache.Ingest("minecraft:ingot", 10, "test")
	if _, ok := f.calc.CalculateProfit("tool"); ok {
		t.Error("Expected no calculation when the good itself is unpriced")
	}
}

func TestCalculateProfit_OutputQuantityAndZeroCost(t *testing.T) {
	f := newFixture(t,
		[]catalog.Good{{ID: "plank"}, {ID: "stick"}, {ID: "dirt"}, {ID: "mud"}},
		recipes.StaticSource{
			{Kind: recipes.KindShaped, Output: "stick", OutputQuantity: 4, Ingredients: []string{"plank", "", "", "plank"}},
			{Kind: recipes.KindShapeless, Output: "mud", Ingredients: []string{"dirt"}},
		})
	f.cache.Ingest("minecraft:plank", 2, "test")
	f.cache.Ingest("minecraft:stick", 3, "test")
	f.cache.Ingest("minecraft:dirt", 0, "test")
	f.cache.Ingest("minecraft:mud", 1, "test")

	stick, ok := f.calc.CalculateProfit("stick")
	if !ok {
		t.Fatal("Expected a calculation for stick")
	}
	if stick.SellingPrice != 12 || stick.UnitPrice != 3 {
		t.Errorf("Expected selling 12 from unit 3 x4, got %v from %v", stick.SellingPrice, stick.UnitPrice)
	}
	if stick.Profit != 8 || !approx(stick.Margin, 200) {
		t.Errorf("Expected profit 8 margin 200, got %v %v", stick.Profit, stick.Margin)
	}

	mud, ok := f.calc.CalculateProfit("mud")
	if !ok {
		t.Fatal("Expected a calculation for mud")
	}
	if mud.Margin != 0 || mud.Profit != 1 {
		t.Errorf("Expected zero margin on zero cost with profit 1, got margin %v profit %v", mud.Margin, mud.Profit)
	}
}

func TestFindProfitableItems_OrderingAndFilter(t *testing.T) {
	f := newFixture(t,
		[]catalog.Good{{ID: "ore"}, {ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "loss"}},
		recipes.StaticSource{
			{Kind: recipes.KindShapeless, Output: "c", Ingredients: []string{"ore"}},
			{Kind: recipes.KindShapeless, Output: "b", Ingredients: []string{"ore"}},
			{Kind: recipes.KindShapeless, Output: "a", Ingredients: []string{"ore", "ore"}},
			{Kind: recipes.KindShapeless, Output: "loss", Ingredients: []string{"ore"}},
		})
	f.cache.Ingest("minecraft:ore", 10, "test")
	f.cache.Ingest("minecraft:a", 40, "test")   // cost 20, margin 100
	f.cache.Ingest("minecraft:b", 15, "test")   // cost 10, margin 50
	f.cache.Ingest("minecraft:c", 15, "test")   // cost 10, margin 50
	f.cache.Ingest("minecraft:loss", 5, "test") // cost 10, negative profit

	results := f.calc.FindProfitableItems(1000)
	var ids []string
	for _, r := range results {
		ids = append(ids, r.Good.ID)
		if r.Profit <= 0 {
			t.Errorf("Expected only positive profit, got %s %v", r.Good.ID, r.Profit)
		}
	}
	expected := "minecraft:a,minecraft:b,minecraft:c"
	if strings.Join(ids, ",") != expected {
		t.Errorf("Expected %s, got %s", expected, strings.Join(ids, ","))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Margin > results[i-1].Margin {
			t.Error("Expected non-increasing margin")
		}
	}

	limited := f.calc.FindProfitableItems(15)
	for _, r := range limited {
		if r.MaterialsCost > 15 {
			t.Errorf("Expected cost within budget, got %s cost %v", r.Good.ID, r.MaterialsCost)
		}
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 results within budget 15, got %d", len(limited))
	}
}

func TestCalculateAllProfits(t *testing.T) {
	f := newFixture(t,
		[]catalog.Good{{ID: "ore"}, {ID: "a"}, {ID: "b"}, {ID: "loss"}, {ID: "unpriced"}},
		recipes.StaticSource{
			{Kind: recipes.KindShapeless, Output: "a", Ingredients: []string{"ore", "ore"}},
			{Kind: recipes.KindShapeless, Output: "b", Ingredients: []string{"ore"}},
			{Kind: recipes.KindShapeless, Output: "loss", Ingredients: []string{"ore"}},
			{Kind: recipes.KindShapeless, Output: "unpriced", Ingredients: []string{"ore"}},
		})
	f.cache.Ingest("minecraft:ore", 10, "test")
	f.cache.Ingest("minecraft:a", 40, "test")   // profit 20
	f.cache.Ingest("minecraft:b", 15, "test")   // profit 5
	f.cache.Ingest("minecraft:loss", 4, "test") // profit -6

	results := f.calc.CalculateAllProfits()
	if len(results) != 3 {
		t.Fatalf("Expected 3 priced craftable goods, got %d", len(results))
	}
	if results[0].Good.ID != "minecraft:a" || results[2].Good.ID != "minecraft:loss" {
		t.Errorf("Expected descending profit a,b,loss, got %s,%s,%s",
			results[0].Good.ID, results[1].Good.ID, results[2].Good.ID)
	}
}

func TestRanking_EmptySnapshot(t *testing.T) {
	f := ingotToolFixture(t)
	f.cache.Clear()

	if results := f.calc.FindProfitableItems(100); results == nil || len(results) != 0 {
		t.Errorf("Expected empty non-nil result, got %v", results)
	}
	if results := f.calc.CalculateAllProfits(); len(results) != 0 {
		t.Errorf("Expected empty result, got %v", results)
	}
}
