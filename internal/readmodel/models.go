// Package readmodel holds the plain views returned to agents and HTTP
// clients. Every view carries minor-unit amounts; text fields are ready to be
// read out.
package readmodel

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/catalog"
	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/domain/pricing"
)

// ProductReadModel is a catalog item with a display price.
type ProductReadModel struct {
	catalog.Item
	PriceDisplay string `json:"price_display"`
}

type ProductPage struct {
	Items  []ProductReadModel `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

func FromItem(item catalog.Item) ProductReadModel {
	return ProductReadModel{Item: item, PriceDisplay: pricing.Format(item.Price, item.Currency)}
}

func FromItems(items []catalog.Item) []ProductReadModel {
	out := make([]ProductReadModel, len(items))
	for i, item := range items {
		out[i] = FromItem(item)
	}
	return out
}

// CartItemReadModel represents an item in the cart
type CartItemReadModel struct {
	CatalogID string  `json:"catalog_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Variant   string  `json:"variant,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	UnitPrice int64   `json:"unit_price"`
	LineTotal int64   `json:"line_total"`
	Currency  string  `json:"currency"`
}

// CartReadModel is the read model for a session's cart
type CartReadModel struct {
	SessionID string              `json:"session_id"`
	Items     []CartItemReadModel `json:"items"`
	ItemCount int                 `json:"item_count"`
	Subtotal  int64               `json:"subtotal"`
	Tax       int64               `json:"tax"`
	Total     int64               `json:"total"`
	Currency  string              `json:"currency"`
	Text      string              `json:"text"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
}

func FromCart(c *cart.Cart, totals cart.Totals) *CartReadModel {
	view := &CartReadModel{
		SessionID: c.SessionID,
		Items:     make([]CartItemReadModel, len(c.Lines)),
		ItemCount: totals.ItemCount,
		Subtotal:  totals.Subtotal,
		Tax:       totals.Tax,
		Total:     totals.GrandTotal,
		Currency:  totals.Currency,
	}
	for i, l := range c.Lines {
		view.Items[i] = CartItemReadModel{
			CatalogID: l.CatalogID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Variant:   l.Variant,
			Notes:     l.Notes,
			UnitPrice: l.UnitPrice,
			LineTotal: l.Total(),
			Currency:  l.Currency,
		}
	}
	if !c.UpdatedAt.IsZero() {
		updated := c.UpdatedAt
		view.UpdatedAt = &updated
	}
	view.Text = cartText(view)
	return view
}

func cartText(v *CartReadModel) string {
	if len(v.Items) == 0 {
		return "Your cart is empty."
	}
	var b strings.Builder
	noun := "items"
	if v.ItemCount == 1 {
		noun = "item"
	}
	fmt.Fprintf(&b, "Your cart has %d %s:\n", v.ItemCount, noun)
	for _, item := range v.Items {
		name := item.Name
		if item.Variant != "" {
			name += " (" + item.Variant + ")"
		}
		fmt.Fprintf(&b, "- %d x %s: %s", item.Quantity, name, pricing.Format(item.LineTotal, item.Currency))
		if item.Notes != nil && *item.Notes != "" {
			fmt.Fprintf(&b, " [%s]", *item.Notes)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Subtotal: %s\n", pricing.Format(v.Subtotal, v.Currency))
	fmt.Fprintf(&b, "Tax: %s\n", pricing.Format(v.Tax, v.Currency))
	fmt.Fprintf(&b, "Total: %s", pricing.Format(v.Total, v.Currency))
	return b.String()
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	*order.Order
	ItemCount int    `json:"item_count"`
	Text      string `json:"text"`
}

func FromOrder(o *order.Order) *OrderReadModel {
	if o == nil {
		return nil
	}
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return &OrderReadModel{Order: o, ItemCount: n, Text: order.SummaryText(o)}
}

func FromOrders(orders []*order.Order) []*OrderReadModel {
	out := make([]*OrderReadModel, len(orders))
	for i, o := range orders {
		out[i] = FromOrder(o)
	}
	return out
}
