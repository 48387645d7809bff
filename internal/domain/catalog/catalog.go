package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/currency"
)

const (
	DefaultCurrency = "INR"
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrDuplicateItem = errors.New("catalog: duplicate item id")
	ErrInvalidItem   = errors.New("catalog: invalid item")
)

// Item is a read-only catalog entry. Prices are minor currency units.
type Item struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description" yaml:"description"`
	Category      string   `json:"category" yaml:"category"`
	Price         int64    `json:"price" yaml:"price"`
	Currency      string   `json:"currency" yaml:"currency"`
	Sizes         []string `json:"sizes,omitempty" yaml:"sizes"`
	Color         string   `json:"color,omitempty" yaml:"color"`
	Material      string   `json:"material,omitempty" yaml:"material"`
	Capacity      string   `json:"capacity,omitempty" yaml:"capacity"`
	InStock       bool     `json:"in_stock" yaml:"in_stock"`
	StockQuantity int      `json:"stock_quantity" yaml:"stock_quantity"`
	ImageURL      string   `json:"image_url,omitempty" yaml:"image_url"`
	Unit          string   `json:"unit,omitempty" yaml:"unit"`
	Brand         string   `json:"brand,omitempty" yaml:"brand"`
	Tags          []string `json:"tags,omitempty" yaml:"tags"`
}

// HasVariants reports whether the item is sold in sizes.
func (i Item) HasVariants() bool {
	return len(i.Sizes) > 0
}

// AllowsVariant reports whether v names one of the item's sizes,
// ignoring case.
func (i Item) AllowsVariant(v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, s := range i.Sizes {
		if s == v {
			return true
		}
	}
	return false
}

func (i Item) searchText() string {
	return strings.ToLower(strings.Join([]string{i.Name, i.Description, i.Category, i.Color, i.Material}, " "))
}

func (i Item) clone() Item {
	i.Sizes = append([]string(nil), i.Sizes...)
	i.Tags = append([]string(nil), i.Tags...)
	return i
}

// Filter narrows List. Nil or empty fields impose no constraint, except
// InStockOnly which defaults to true.
type Filter struct {
	Query       string
	Category    string
	MinPrice    *int64
	MaxPrice    *int64
	Color       string
	Size        string
	InStockOnly *bool
	Limit       int
	Offset      int
}

var categorySynonyms = map[string]string{
	"mugs":          "mug",
	"coffee mug":    "mug",
	"coffee mugs":   "mug",
	"tshirts":       "tshirt",
	"t-shirt":       "tshirt",
	"t-shirts":      "tshirt",
	"shirt":         "tshirt",
	"shirts":        "tshirt",
	"hoodies":       "hoodie",
	"bottles":       "bottle",
	"water bottle":  "bottle",
	"water bottles": "bottle",
	"bags":          "bag",
	"backpack":      "bag",
	"backpacks":     "bag",
	"tote":          "bag",
}

// NormalizeCategory maps spoken or plural category names onto catalog
// categories. Unknown names pass through lower-cased.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if canonical, ok := categorySynonyms[c]; ok {
		return canonical
	}
	return c
}

// Catalog is an immutable, insertion-ordered product directory. It is safe
// for concurrent use.
type Catalog struct {
	items    []Item
	byID     map[string]int
	currency string
}

// New validates items and builds a Catalog preserving their order.
func New(items []Item) (*Catalog, error) {
	c := &Catalog{
		items:    make([]Item, 0, len(items)),
		byID:     make(map[string]int, len(items)),
		currency: DefaultCurrency,
	}
	for _, item := range items {
		item = item.clone()
		item.ID = strings.TrimSpace(item.ID)
		item.Category = NormalizeCategory(item.Category)
		item.Currency = strings.ToUpper(strings.TrimSpace(item.Currency))
		if item.Currency == "" {
			item.Currency = DefaultCurrency
		}
		for i, s := range item.Sizes {
			item.Sizes[i] = strings.ToUpper(strings.TrimSpace(s))
		}
		if err := validate(item); err != nil {
			return nil, err
		}
		if _, exists := c.byID[item.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		c.byID[item.ID] = len(c.items)
		c.items = append(c.items, item)
	}
	if len(c.items) > 0 {
		c.currency = c.items[0].Currency
	}
	return c, nil
}

func validate(item Item) error {
	switch {
	case item.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	case strings.TrimSpace(item.Name) == "":
		return fmt.Errorf("%w: %s: name is required", ErrInvalidItem, item.ID)
	case item.Category == "":
		return fmt.Errorf("%w: %s: category is required", ErrInvalidItem, item.ID)
	case item.Price < 0:
		return fmt.Errorf("%w: %s: price must not be negative", ErrInvalidItem, item.ID)
	}
	if _, err := currency.ParseISO(item.Currency); err != nil {
		return fmt.Errorf("%w: %s: currency %q: %v", ErrInvalidItem, item.ID, item.Currency, err)
	}
	return nil
}

// Currency is the catalog's default currency, used for empty carts.
func (c *Catalog) Currency() string {
	return c.currency
}

func (c *Catalog) Len() int {
	return len(c.items)
}

func (c *Catalog) Get(id string) (Item, bool) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Item{}, false
	}
	return c.items[idx].clone(), true
}

// All returns every item in insertion order.
func (c *Catalog) All() []Item {
	out := make([]Item, len(c.items))
	for i, item := range c.items {
		out[i] = item.clone()
	}
	return out
}

// List returns all items matching f in insertion order. Limit and Offset
// are ignored; use Page for paging.
func (c *Catalog) List(f Filter) []Item {
	inStockOnly := f.InStockOnly == nil || *f.InStockOnly
	category := ""
	if f.Category != "" {
		category = NormalizeCategory(f.Category)
	}
	color := strings.ToLower(strings.TrimSpace(f.Color))
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]Item, 0)
	for _, item := range c.items {
		if inStockOnly && !item.InStock {
			continue
		}
		if category != "" && item.Category != category {
			continue
		}
		if f.MinPrice != nil && item.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && item.Price > *f.MaxPrice {
			continue
		}
		if color != "" && strings.ToLower(item.Color) != color {
			continue
		}
		if f.Size != "" && !item.AllowsVariant(f.Size) {
			continue
		}
		if query != "" && !strings.Contains(item.searchText(), query) {
			continue
		}
		out = append(out, item.clone())
	}
	return out
}

// Page applies f and then its Limit/Offset window, returning the window and
// the number of matches before paging.
func (c *Catalog) Page(f Filter) ([]Item, int) {
	all := c.List(f)
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []Item{}, len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all)
}

// Search matches query case-insensitively against name, description,
// category, color and material. Stock is not considered.
func (c *Catalog) Search(query string) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Item, 0)
	for _, item := range c.items {
		if strings.Contains(item.searchText(), q) {
			out = append(out, item.clone())
		}
	}
	return out
}

func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	for _, item := range c.items {
		seen[item.Category] = struct{}{}
	}
	return sortedKeys(seen)
}

// Colors lists the distinct colors, restricted to in-stock items of
// category when one is given.
func (c *Catalog) Colors(category string) []string {
	items := c.items
	if category != "" {
		items = c.List(Filter{Category: category})
	}
	seen := make(map[string]struct{})
	for _, item := range items {
		if item.Color != "" {
			seen[item.Color] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
