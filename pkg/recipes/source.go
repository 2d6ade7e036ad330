package recipes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource reads raw recipes from a YAML recipe book
type FileSource struct {
	Path string
}

type recipeBook struct {
	Recipes []RawRecipe `yaml:"recipes"`
}

// RawRecipes implements Source
func (f FileSource) RawRecipes() ([]RawRecipe, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe book %s: %w", f.Path, err)
	}

	var book recipeBook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("failed to parse recipe book %s: %w", f.Path, err)
	}

	return book.Recipes, nil
}

// StaticSource serves a fixed list of raw recipes
type StaticSource []RawRecipe

// RawRecipes implements Source
func (s StaticSource) RawRecipes() ([]RawRecipe, error) {
	return s, nil
}
