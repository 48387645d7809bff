package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/domain/catalog"
	"github.com/example/agent-commerce/internal/domain/pricing"
)

var (
	ErrMissingSession  = apperr.New(apperr.KindValidation, "missing_session", "session id is required")
	ErrItemNotFound    = apperr.New(apperr.KindNotFound, "item_not_found", "catalog item not found")
	ErrOutOfStock      = apperr.New(apperr.KindValidation, "out_of_stock", "item is out of stock")
	ErrInvalidVariant  = apperr.New(apperr.KindValidation, "invalid_variant", "variant is not offered for this item")
	ErrInvalidQuantity = apperr.New(apperr.KindValidation, "invalid_quantity", "quantity must not be negative")
	ErrLineNotFound    = apperr.New(apperr.KindNotFound, "line_not_found", "cart line not found")
	ErrRecipeNotFound  = apperr.New(apperr.KindNotFound, "recipe_not_found", "recipe not found")
)

// ErrCacheMiss is returned by a Cache that holds no entry for a session.
var ErrCacheMiss = errors.New("cart: cache miss")

// Line is one selection in a cart. Name and UnitPrice are captured when the
// line is first added and never re-read from the catalog.
type Line struct {
	CatalogID string  `json:"catalog_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	Currency  string  `json:"currency"`
	Variant   string  `json:"variant,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

func (l Line) Total() int64 {
	return pricing.LineTotal(l.UnitPrice, l.Quantity)
}

type Cart struct {
	SessionID string    `json:"session_id"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Subtotal() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.Total()
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Line returns the line for (catalogID, variant), if present.
func (c *Cart) Line(catalogID, variant string) (Line, bool) {
	for _, l := range c.Lines {
		if l.CatalogID == catalogID && l.Variant == variant {
			return l, true
		}
	}
	return Line{}, false
}

type Totals struct {
	ItemCount  int    `json:"item_count"`
	Subtotal   int64  `json:"subtotal"`
	Tax        int64  `json:"tax"`
	GrandTotal int64  `json:"grand_total"`
	Currency   string `json:"currency"`
}

// NormalizeVariant returns the canonical upper-case form of a variant. A
// nil or blank variant is the empty string.
func NormalizeVariant(v *string) string {
	if v == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(*v))
}

// Store persists carts. Implementations must apply UpsertLines atomically:
// every line is merged or none is.
type Store interface {
	// UpsertLines merges each line on (catalog id, variant): quantities are
	// summed, notes follow COALESCE(new, old), name and price stay as first
	// stored.
	UpsertLines(ctx context.Context, sessionID string, lines []Line, now time.Time) error
	// SetQuantity reports false when no line matches.
	SetQuantity(ctx context.Context, sessionID, catalogID, variant string, quantity int, now time.Time) (bool, error)
	DeleteLine(ctx context.Context, sessionID, catalogID, variant string, now time.Time) error
	Clear(ctx context.Context, sessionID string, now time.Time) error
	// Get returns an empty cart for unknown sessions.
	Get(ctx context.Context, sessionID string) (*Cart, error)
}

// Cache is an optional read-through cache of carts keyed by session.
type Cache interface {
	Get(ctx context.Context, sessionID string) (*Cart, error)
	Set(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Catalog interface {
	Get(id string) (catalog.Item, bool)
	Currency() string
}

type Recipes interface {
	Match(keyword string) (catalog.Recipe, bool)
}
