package recipes

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/logging"
)

// IDNormalizer canonicalises good ids (the catalog implements it)
type IDNormalizer interface {
	NormalizeID(id string) string
}

// Registry indexes recipes by output good. Safe for concurrent queries and AddCustomRecipe.
type Registry struct {
	mu         sync.RWMutex
	byOutput   map[string][]Recipe
	normalizer IDNormalizer
	logger     *logging.Logger
}

// NewRegistry creates an empty registry. A nil normalizer keeps ids as given (trimmed, lowercased).
func NewRegistry(normalizer IDNormalizer, logger *logging.Logger) *Registry {
	return &Registry{
		byOutput:   make(map[string][]Recipe),
		normalizer: normalizer,
		logger:     logging.OrQuiet(logger),
	}
}

func (r *Registry) normalize(id string) string {
	if r.normalizer != nil {
		return r.normalizer.NormalizeID(id)
	}
	return strings.ToLower(strings.TrimSpace(id))
}

// Load replaces the registry contents with every convertible recipe from source.
// Only a failing source is an error; bad definitions are skipped and counted.
func (r *Registry) Load(source Source) (LoadStats, error) {
	var stats LoadStats
	log := r.logger.WithComponent("recipe_registry")

	raws, err := source.RawRecipes()
	if err != nil {
		return stats, fmt.Errorf("loading recipes: %w", err)
	}

	byOutput := make(map[string][]Recipe)
	for i, raw := range raws {
		recipe, err := r.convert(raw)
		if err != nil {
			stats.Skipped++
			log.WithFields(logrus.Fields{
				"index":  i,
				"output": raw.Output,
				"kind":   raw.Kind,
				"error":  err.Error(),
			}).Debug("Skipping recipe")
			continue
		}
		byOutput[recipe.Output] = append(byOutput[recipe.Output], recipe)
		stats.Loaded++
	}

	r.mu.Lock()
	r.byOutput = byOutput
	r.mu.Unlock()

	log.WithFields(logrus.Fields{
		"loaded":  stats.Loaded,
		"skipped": stats.Skipped,
		"outputs": len(byOutput),
	}).Info("Loaded recipes")

	return stats, nil
}

// convert normalises a raw definition into a Recipe
func (r *Registry) convert(raw RawRecipe) (Recipe, error) {
	output := r.normalize(raw.Output)
	if output == "" {
		return Recipe{}, fmt.Errorf("%w: missing output", ErrInvalidRecipe)
	}

	qty := raw.OutputQuantity
	if qty < 1 {
		qty = 1
	}

	var slots []string
	switch raw.Kind {
	case KindShaped, KindShapeless:
		slots = raw.Ingredients
	case KindSmelting:
		for _, slot := range raw.Ingredients {
			if strings.TrimSpace(slot) != "" {
				slots = []string{slot}
				break
			}
		}
	default:
		return Recipe{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRecipe, raw.Kind)
	}

	ingredients := make([]Ingredient, 0, len(slots))
	for _, slot := range slots {
		id := r.normalize(slot)
		if id == "" {
			continue
		}
		ingredients = mergeIngredient(ingredients, id, 1)
	}
	if len(ingredients) == 0 {
		return Recipe{}, fmt.Errorf("%w: no ingredients", ErrInvalidRecipe)
	}

	return Recipe{
		Output:         output,
		OutputQuantity: qty,
		Ingredients:    ingredients,
		Kind:           raw.Kind,
	}, nil
}

// mergeIngredient adds qty of good, summing into an existing entry so order follows first appearance
func mergeIngredient(ingredients []Ingredient, good string, qty int) []Ingredient {
	for i := range ingredients {
		if ingredients[i].Good == good {
			ingredients[i].Quantity += qty
			return ingredients
		}
	}
	return append(ingredients, Ingredient{Good: good, Quantity: qty})
}

// AddCustomRecipe registers a recipe at runtime. Duplicate ingredients are merged.
func (r *Registry) AddCustomRecipe(output string, outputQuantity int, ingredients []Ingredient) error {
	out := r.normalize(output)
	if out == "" {
		return fmt.Errorf("%w: missing output", ErrInvalidRecipe)
	}
	if outputQuantity < 1 {
		return fmt.Errorf("%w: output quantity must be at least 1, got %d", ErrInvalidRecipe, outputQuantity)
	}
	if len(ingredients) == 0 {
		return fmt.Errorf("%w: at least one ingredient is required", ErrInvalidRecipe)
	}

	merged := make([]Ingredient, 0, len(ingredients))
	for _, ing := range ingredients {
		id := r.normalize(ing.Good)
		if id == "" {
			return fmt.Errorf("%w: ingredient without a good", ErrInvalidRecipe)
		}
		if ing.Quantity < 1 {
			return fmt.Errorf("%w: ingredient %s quantity must be at least 1, got %d", ErrInvalidRecipe, id, ing.Quantity)
		}
		merged = mergeIngredient(merged, id, ing.Quantity)
	}

	recipe := Recipe{
		Output:         out,
		OutputQuantity: outputQuantity,
		Ingredients:    merged,
		Kind:           KindCustom,
	}

	r.mu.Lock()
	existing := r.byOutput[out]
	next := make([]Recipe, len(existing), len(existing)+1)
	copy(next, existing)
	r.byOutput[out] = append(next, recipe)
	r.mu.Unlock()

	r.logger.WithComponent("recipe_registry").WithFields(logrus.Fields{
		"output":      out,
		"ingredients": len(merged),
	}).Info("Registered custom recipe")

	return nil
}

// HasRecipe reports whether any recipe produces good
func (r *Registry) HasRecipe(good string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byOutput[r.normalize(good)]) > 0
}

// Recipes returns the recipes for good in registration order
func (r *Registry) Recipes(good string) []Recipe {
	r.mu.RLock()
	list := r.byOutput[r.normalize(good)]
	r.mu.RUnlock()

	out := make([]Recipe, len(list))
	copy(out, list)
	return out
}

// Count returns the total number of registered recipes
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, list := range r.byOutput {
		total += len(list)
	}
	return total
}

// Outputs returns every good with at least one recipe, sorted
func (r *Registry) Outputs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	outputs := make([]string, 0, len(r.byOutput))
	for good := range r.byOutput {
		outputs = append(outputs, good)
	}
	sort.Strings(outputs)
	return outputs
}

// RecipeCost sums quantity times price over the ingredients.
// Returns UnknownCost as soon as one ingredient has no price.
func (r *Registry) RecipeCost(recipe Recipe, prices map[string]float64) float64 {
	return RecipeCost(recipe, prices)
}

// RecipeCost is the registry-independent form of Registry.RecipeCost
func RecipeCost(recipe Recipe, prices map[string]float64) float64 {
	cost, ok := costOf(recipe, prices)
	if !ok {
		return UnknownCost
	}
	return cost
}

func costOf(recipe Recipe, prices map[string]float64) (float64, bool) {
	var total float64
	for _, ing := range recipe.Ingredients {
		price, ok := prices[ing.Good]
		if !ok {
			return 0, false
		}
		total += price * float64(ing.Quantity)
	}
	return total, true
}

// CheapestRecipe returns the lowest-cost costable recipe for good.
// On equal cost the first registered recipe wins.
func (r *Registry) CheapestRecipe(good string, prices map[string]float64) (Recipe, bool) {
	var (
		best     Recipe
		bestCost float64
		found    bool
	)
	for _, recipe := range r.Recipes(good) {
		cost, ok := costOf(recipe, prices)
		if !ok {
			continue
		}
		if !found || cost < bestCost {
			best, bestCost, found = recipe, cost, true
		}
	}
	return best, found
}
