package recipes

import "errors"

// UnknownCost is returned by RecipeCost when an ingredient has no price
const UnknownCost = -1.0

// ErrInvalidRecipe is returned for recipes that cannot be converted or registered
var ErrInvalidRecipe = errors.New("invalid recipe")

// Kind is the recipe family a raw definition belongs to
type Kind string

const (
	// KindShaped is a grid recipe where slot position matters
	KindShaped Kind = "shaped"
	// KindShapeless is a grid recipe where only the slot contents matter
	KindShapeless Kind = "shapeless"
	// KindSmelting turns a single input into the output
	KindSmelting Kind = "smelting"
	// KindCustom marks recipes registered at runtime
	KindCustom Kind = "custom"
)

// RawRecipe is a recipe definition as the recipe book supplies it.
// Ingredients holds one good id per slot; an empty string is an empty slot.
type RawRecipe struct {
	Kind           Kind     `yaml:"kind"`
	Output         string   `yaml:"output"`
	OutputQuantity int      `yaml:"output_quantity"`
	Ingredients    []string `yaml:"ingredients"`
}

// Source supplies raw recipe definitions
type Source interface {
	RawRecipes() ([]RawRecipe, error)
}

// Ingredient is a distinct input good and how many of it a recipe consumes
type Ingredient struct {
	Good     string `yaml:"good"`
	Quantity int    `yaml:"quantity"`
}

// Recipe converts merged ingredients into OutputQuantity units of Output. Immutable after construction.
type Recipe struct {
	Output         string
	OutputQuantity int
	Ingredients    []Ingredient
	Kind           Kind
}

// LoadStats summarises a Load call
type LoadStats struct {
	Loaded  int
	Skipped int
}
