package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RecipeComponent is one catalog line of a recipe.
type RecipeComponent struct {
	CatalogID string  `json:"catalog_id" yaml:"catalog_id"`
	Quantity  int     `json:"quantity" yaml:"quantity"`
	Variant   *string `json:"variant,omitempty" yaml:"variant"`
	Notes     *string `json:"notes,omitempty" yaml:"notes"`
}

// Recipe is a named bundle of items added to a cart together.
type Recipe struct {
	Key         string            `json:"key" yaml:"-"`
	DisplayName string            `json:"display_name" yaml:"display_name"`
	Description string            `json:"description" yaml:"description"`
	Items       []RecipeComponent `json:"items" yaml:"items"`
}

type recipeFile struct {
	Recipes map[string]Recipe `yaml:"recipes"`
}

// RecipeBook is an immutable set of recipes whose components all resolve
// in a catalog.
type RecipeBook struct {
	keys    []string
	recipes map[string]Recipe
}

func NewRecipeBook(recipes map[string]Recipe, cat *Catalog) (*RecipeBook, error) {
	b := &RecipeBook{recipes: make(map[string]Recipe, len(recipes))}
	for key, r := range recipes {
		r.Key = key
		if strings.TrimSpace(r.DisplayName) == "" {
			r.DisplayName = key
		}
		if len(r.Items) == 0 {
			return nil, fmt.Errorf("%w: recipe %s has no items", ErrInvalidItem, key)
		}
		items := make([]RecipeComponent, len(r.Items))
		for i, c := range r.Items {
			if c.Quantity <= 0 {
				c.Quantity = 1
			}
			if _, ok := cat.Get(c.CatalogID); !ok {
				return nil, fmt.Errorf("%w: recipe %s references unknown item %s", ErrInvalidItem, key, c.CatalogID)
			}
			items[i] = c
		}
		r.Items = items
		b.recipes[key] = r
		b.keys = append(b.keys, key)
	}
	sort.Strings(b.keys)
	return b, nil
}

func ParseRecipes(data []byte, cat *Catalog) (*RecipeBook, error) {
	var file recipeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("recipes: parse: %w", err)
	}
	return NewRecipeBook(file.Recipes, cat)
}

// LoadRecipes reads path, or the built-in recipes when path is empty.
func LoadRecipes(path string, cat *Catalog) (*RecipeBook, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = defaultData.ReadFile("data/recipes.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("recipes: read %s: %w", path, err)
	}
	return ParseRecipes(data, cat)
}

func (b *RecipeBook) Get(key string) (Recipe, bool) {
	r, ok := b.recipes[key]
	return r, ok
}

// Match returns the first recipe, by key order, whose key or display name
// contains keyword.
func (b *RecipeBook) Match(keyword string) (Recipe, bool) {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return Recipe{}, false
	}
	if r, ok := b.recipes[kw]; ok {
		return r, true
	}
	for _, key := range b.keys {
		r := b.recipes[key]
		if strings.Contains(strings.ToLower(key), kw) || strings.Contains(strings.ToLower(r.DisplayName), kw) {
			return r, true
		}
	}
	return Recipe{}, false
}

func (b *RecipeBook) All() []Recipe {
	out := make([]Recipe, 0, len(b.keys))
	for _, key := range b.keys {
		out = append(out, b.recipes[key])
	}
	return out
}
