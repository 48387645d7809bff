package order

import (
	"context"
	"fmt"
	"time"

	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/domain/cart"
)

type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

const (
	LabelPlaced       = "PLACED"
	PlacedDescription = "Order received via voice agent"
)

var (
	ErrOrderNotFound     = apperr.New(apperr.KindNotFound, "order_not_found", "order not found")
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "invalid_transition", "invalid order status transition")
	ErrInvalidStatus     = apperr.New(apperr.KindValidation, "invalid_status", "unknown order status")
	ErrEmptyOrder        = apperr.New(apperr.KindValidation, "empty_order", "order must have at least one line")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := validTransitions[status]; !ok {
		return "", ErrInvalidStatus.WithMessage(fmt.Sprintf("unknown order status %q", s)).WithParam("status")
	}
	return status, nil
}

// Line is an order line frozen at order time.
type Line struct {
	CatalogID string `json:"catalog_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
	Currency  string `json:"currency"`
}

// StatusEntry is one row of the append-only status history.
type StatusEntry struct {
	Status      string    `json:"status"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Order struct {
	ID                string         `json:"id"`
	SessionID         string         `json:"session_id"`
	CheckoutSessionID *string        `json:"checkout_session_id,omitempty"`
	Lines             []Line         `json:"lines"`
	Subtotal          int64          `json:"subtotal"`
	Tax               int64          `json:"tax"`
	Fulfillment       int64          `json:"fulfillment"`
	Total             int64          `json:"total"`
	Currency          string         `json:"currency"`
	Status            Status         `json:"status"`
	CustomerName      *string        `json:"customer_name,omitempty"`
	ContactInfo       *string        `json:"contact_info,omitempty"`
	Metadata          map[string]any `json:"metadata"`
	CreatedAt         time.Time      `json:"created_at"`
	CancelledAt       *time.Time     `json:"cancelled_at,omitempty"`
	StatusHistory     []StatusEntry  `json:"status_history"`
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrInvalidTransition.WithMessage(fmt.Sprintf("order %s is already cancelled", o.ID))
	case target == StatusCancelled:
		return ErrInvalidTransition.WithMessage(fmt.Sprintf("order %s is %s and can no longer be cancelled", o.ID, o.Status))
	default:
		return ErrInvalidTransition.WithMessage(fmt.Sprintf("order %s cannot move from %s to %s", o.ID, o.Status, target))
	}
}

// ListFilter narrows order listings. A Limit of zero or less means no limit
// at the store level.
type ListFilter struct {
	SessionID string
	Status    Status
	From      *time.Time
	To        *time.Time
	Limit     int
}

// Store is the durable system of record for orders. PlaceFromCart and
// Create are single transactions that also clear the session's cart.
type Store interface {
	// PlaceFromCart hands the session's cart lines to build and persists the
	// result. It returns nil, nil without calling build when the cart is
	// empty.
	PlaceFromCart(ctx context.Context, sessionID string, build func(lines []cart.Line) (*Order, error)) (*Order, error)
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// LatestForSession returns nil, nil when the session has no orders.
	LatestForSession(ctx context.Context, sessionID string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]*Order, error)
	AppendStatus(ctx context.Context, id string, entry StatusEntry) error
	// UpdateStatus applies the move only while the order is still in from.
	UpdateStatus(ctx context.Context, id string, from, to Status, entry StatusEntry, cancelledAt *time.Time) error
}

type CartInvalidator interface {
	Invalidate(ctx context.Context, sessionID string)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
