package cart

import "time"

const EventCartUpdated = "cart.updated"

type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
	ActionClear  Action = "clear"
)

// CartUpdated is published after every successful cart mutation.
type CartUpdated struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	Action     Action    `json:"action"`
	CatalogID  string    `json:"catalog_id,omitempty"`
	Variant    string    `json:"variant,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	ItemCount  int       `json:"item_count"`
	Subtotal   int64     `json:"subtotal"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}
