package command

import "github.com/example/agent-commerce/internal/domain/checkout"

// Cart Commands
type AddToCart struct {
	SessionID string  `json:"session_id"`
	CatalogID string  `json:"catalog_id"`
	Quantity  int     `json:"quantity"`
	Variant   *string `json:"variant,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

type AddRecipe struct {
	SessionID string `json:"session_id"`
	Recipe    string `json:"recipe"`
}

type UpdateCartItem struct {
	SessionID string  `json:"session_id"`
	CatalogID string  `json:"catalog_id"`
	Quantity  int     `json:"quantity"`
	Variant   *string `json:"variant,omitempty"`
}

type RemoveFromCart struct {
	SessionID string  `json:"session_id"`
	CatalogID string  `json:"catalog_id"`
	Variant   *string `json:"variant,omitempty"`
}

type ClearCart struct {
	SessionID string `json:"session_id"`
}

// Order Commands
type PlaceOrder struct {
	SessionID    string         `json:"session_id"`
	CustomerName *string        `json:"customer_name,omitempty"`
	ContactInfo  *string        `json:"contact_info,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type CancelOrder struct {
	OrderID string  `json:"order_id"`
	Reason  *string `json:"reason,omitempty"`
}

// UpdateOrderStatus advances the order when Status names a lifecycle state
// and otherwise appends a free-form history entry.
type UpdateOrderStatus struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	Description *string `json:"description,omitempty"`
}

// Checkout Commands
type CreateCheckout struct {
	SessionID string `json:"session_id"`
}

type UpdateCheckout struct {
	CheckoutSessionID   string            `json:"checkout_session_id"`
	FulfillmentOptionID *string           `json:"fulfillment_option_id,omitempty"`
	FulfillmentAddress  *checkout.Address `json:"fulfillment_address,omitempty"`
	Buyer               *checkout.Buyer   `json:"buyer,omitempty"`
}

type BeginPayment struct {
	CheckoutSessionID string `json:"checkout_session_id"`
}

type CompleteCheckout struct {
	CheckoutSessionID string          `json:"checkout_session_id"`
	Buyer             *checkout.Buyer `json:"buyer,omitempty"`
}

type CancelCheckout struct {
	CheckoutSessionID string `json:"checkout_session_id"`
}
