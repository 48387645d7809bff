package order

import "time"

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderPlaced struct {
	Type              string    `json:"type"`
	OrderID           string    `json:"order_id"`
	SessionID         string    `json:"session_id"`
	CheckoutSessionID *string   `json:"checkout_session_id,omitempty"`
	CustomerName      *string   `json:"customer_name,omitempty"`
	ContactInfo       *string   `json:"contact_info,omitempty"`
	Lines             []Line    `json:"lines"`
	Total             int64     `json:"total"`
	Currency          string    `json:"currency"`
	PlacedAt          time.Time `json:"placed_at"`
}

type OrderStatusChanged struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	SessionID   string    `json:"session_id"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	Description *string   `json:"description,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}
