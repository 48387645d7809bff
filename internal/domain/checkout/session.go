// Package checkout freezes a cart into a payable session and completes it
// into an order.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/example/agent-commerce/internal/apperr"
)

type Status string

const (
	StatusNotReadyForPayment Status = "not_ready_for_payment"
	StatusReadyForPayment    Status = "ready_for_payment"
	StatusInProgress         Status = "in_progress"
	StatusCompleted          Status = "completed"
	StatusCanceled           Status = "canceled"
)

var (
	ErrSessionNotFound          = apperr.New(apperr.KindNotFound, "checkout_session_not_found", "checkout session not found")
	ErrUnknownFulfillmentOption = apperr.New(apperr.KindValidation, "unknown_fulfillment_option", "unknown fulfillment option")
	ErrInvalidAddress           = apperr.New(apperr.KindValidation, "invalid_address", "fulfillment address is invalid")
	ErrInvalidBuyer             = apperr.New(apperr.KindValidation, "invalid_buyer", "buyer is invalid")
	ErrAlreadyCompleted         = apperr.New(apperr.KindConflict, "already_completed", "checkout session is already completed")
	ErrSessionCanceled          = apperr.New(apperr.KindConflict, "session_canceled", "checkout session is canceled")
	ErrNotReady                 = apperr.New(apperr.KindConflict, "not_ready_for_payment", "checkout session has no line items")
	ErrInvalidTransition        = apperr.New(apperr.KindConflict, "invalid_transition", "invalid checkout status transition")
)

var validTransitions = map[Status][]Status{
	StatusNotReadyForPayment: {StatusReadyForPayment, StatusCanceled},
	StatusReadyForPayment:    {StatusInProgress, StatusCompleted, StatusCanceled},
	StatusInProgress:         {StatusCompleted, StatusCanceled},
	StatusCompleted:          {},
	StatusCanceled:           {},
}

type TotalType string

const (
	TotalItemsBaseAmount TotalType = "items_base_amount"
	TotalSubtotal        TotalType = "subtotal"
	TotalTax             TotalType = "tax"
	TotalFulfillment     TotalType = "fulfillment"
	TotalTotal           TotalType = "total"
)

type ItemRef struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Variant  string `json:"variant,omitempty"`
}

type LineItem struct {
	ID         string  `json:"id"`
	Item       ItemRef `json:"item"`
	Name       string  `json:"name"`
	UnitPrice  int64   `json:"unit_price"`
	BaseAmount int64   `json:"base_amount"`
	Discount   int64   `json:"discount"`
	Subtotal   int64   `json:"subtotal"`
	Tax        int64   `json:"tax"`
	Total      int64   `json:"total"`
}

type Total struct {
	Type        TotalType `json:"type"`
	DisplayText string    `json:"display_text"`
	Amount      int64     `json:"amount"`
}

type FulfillmentOption struct {
	Type                 string    `json:"type"`
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Subtitle             string    `json:"subtitle,omitempty"`
	Carrier              string    `json:"carrier,omitempty"`
	EarliestDeliveryTime time.Time `json:"earliest_delivery_time"`
	LatestDeliveryTime   time.Time `json:"latest_delivery_time"`
	Subtotal             int64     `json:"subtotal"`
	Tax                  int64     `json:"tax"`
	Total                int64     `json:"total"`
}

type Buyer struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Name joins the first and last name, or returns "" when both are blank.
func (b Buyer) Name() string {
	switch {
	case b.FirstName != "" && b.LastName != "":
		return b.FirstName + " " + b.LastName
	case b.FirstName != "":
		return b.FirstName
	default:
		return b.LastName
	}
}

// Contact prefers the email over the phone number.
func (b Buyer) Contact() string {
	if b.Email != "" {
		return b.Email
	}
	return b.PhoneNumber
}

type Address struct {
	Name       string `json:"name"`
	LineOne    string `json:"line_one"`
	LineTwo    string `json:"line_two,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type OrderRef struct {
	ID                string `json:"id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url"`
}

type Session struct {
	ID                  string              `json:"id"`
	SessionID           string              `json:"session_id"`
	Status              Status              `json:"status"`
	Currency            string              `json:"currency"`
	LineItems           []LineItem          `json:"line_items"`
	Totals              []Total             `json:"totals"`
	FulfillmentOptions  []FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID *string             `json:"fulfillment_option_id,omitempty"`
	Buyer               *Buyer              `json:"buyer,omitempty"`
	FulfillmentAddress  *Address            `json:"fulfillment_address,omitempty"`
	Order               *OrderRef           `json:"order,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func (s *Session) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// terminalError reports why a completed or canceled session rejects changes.
func (s *Session) terminalError() error {
	switch s.Status {
	case StatusCompleted:
		return ErrAlreadyCompleted.WithMessage(fmt.Sprintf("checkout session %s is already completed", s.ID))
	case StatusCanceled:
		return ErrSessionCanceled.WithMessage(fmt.Sprintf("checkout session %s is canceled", s.ID))
	}
	return nil
}

// Amount returns the value of the totals entry of type t, or 0.
func (s *Session) Amount(t TotalType) int64 {
	for _, total := range s.Totals {
		if total.Type == t {
			return total.Amount
		}
	}
	return 0
}

// SelectedFulfillment returns the chosen option, if any.
func (s *Session) SelectedFulfillment() (FulfillmentOption, bool) {
	if s.FulfillmentOptionID == nil {
		return FulfillmentOption{}, false
	}
	return s.option(*s.FulfillmentOptionID)
}

func (s *Session) option(id string) (FulfillmentOption, bool) {
	for _, o := range s.FulfillmentOptions {
		if o.ID == id {
			return o, true
		}
	}
	return FulfillmentOption{}, false
}

func (s *Session) clone() *Session {
	c := *s
	c.LineItems = append([]LineItem(nil), s.LineItems...)
	c.Totals = append([]Total(nil), s.Totals...)
	c.FulfillmentOptions = append([]FulfillmentOption(nil), s.FulfillmentOptions...)
	if s.FulfillmentOptionID != nil {
		id := *s.FulfillmentOptionID
		c.FulfillmentOptionID = &id
	}
	if s.Buyer != nil {
		b := *s.Buyer
		c.Buyer = &b
	}
	if s.FulfillmentAddress != nil {
		a := *s.FulfillmentAddress
		c.FulfillmentAddress = &a
	}
	if s.Order != nil {
		o := *s.Order
		c.Order = &o
	}
	return &c
}

// Store holds checkout sessions. Get returns ErrSessionNotFound for unknown
// ids.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
}
