package command

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/checkout"
	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/readmodel"
)

type Handler struct {
	cartSvc     *cart.Service
	orderSvc    *order.Service
	checkoutSvc *checkout.Service
	logger      *zap.Logger
}

func NewHandler(
	cartSvc *cart.Service,
	orderSvc *order.Service,
	checkoutSvc *checkout.Service,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cartSvc:     cartSvc,
		orderSvc:    orderSvc,
		checkoutSvc: checkoutSvc,
		logger:      logger.Named("command"),
	}
}

// AddToCart adds an item to cart
func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.AddItem(ctx, cmd.SessionID, cmd.CatalogID, cmd.Quantity, cmd.Variant, cmd.Notes)
	if err != nil {
		return nil, h.fail("add to cart", err)
	}
	return readmodel.FromCart(c, h.cartSvc.Totals(c)), nil
}

// AddRecipe adds every item of a named recipe
func (h *Handler) AddRecipe(ctx context.Context, cmd AddRecipe) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.AddRecipe(ctx, cmd.SessionID, cmd.Recipe)
	if err != nil {
		return nil, h.fail("add recipe", err)
	}
	return readmodel.FromCart(c, h.cartSvc.Totals(c)), nil
}

// UpdateCartItem sets a line's quantity; zero removes it
func (h *Handler) UpdateCartItem(ctx context.Context, cmd UpdateCartItem) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.SetQuantity(ctx, cmd.SessionID, cmd.CatalogID, cmd.Quantity, cmd.Variant)
	if err != nil {
		return nil, h.fail("update cart item", err)
	}
	return readmodel.FromCart(c, h.cartSvc.Totals(c)), nil
}

// RemoveFromCart removes an item from cart
func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.RemoveItem(ctx, cmd.SessionID, cmd.CatalogID, cmd.Variant)
	if err != nil {
		return nil, h.fail("remove from cart", err)
	}
	return readmodel.FromCart(c, h.cartSvc.Totals(c)), nil
}

// ClearCart clears all items from cart
func (h *Handler) ClearCart(ctx context.Context, cmd ClearCart) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.Clear(ctx, cmd.SessionID)
	if err != nil {
		return nil, h.fail("clear cart", err)
	}
	return readmodel.FromCart(c, h.cartSvc.Totals(c)), nil
}

// PlaceOrder creates an order from cart. It returns nil, nil when the cart
// is empty.
func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*readmodel.OrderReadModel, error) {
	o, err := h.orderSvc.PlaceOrder(ctx, cmd.SessionID, order.PlaceOptions{
		CustomerName: cmd.CustomerName,
		ContactInfo:  cmd.ContactInfo,
		Metadata:     cmd.Metadata,
	})
	if err != nil {
		return nil, h.fail("place order", err)
	}
	return readmodel.FromOrder(o), nil
}

// CancelOrder cancels a confirmed order
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*readmodel.OrderReadModel, error) {
	o, err := h.orderSvc.Cancel(ctx, cmd.OrderID, cmd.Reason)
	if err != nil {
		return nil, h.fail("cancel order", err)
	}
	return readmodel.FromOrder(o), nil
}

func (h *Handler) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatus) (*readmodel.OrderReadModel, error) {
	var (
		o   *order.Order
		err error
	)
	if status, parseErr := order.ParseStatus(strings.ToLower(strings.TrimSpace(cmd.Status))); parseErr == nil {
		if status == order.StatusCancelled {
			o, err = h.orderSvc.Cancel(ctx, cmd.OrderID, cmd.Description)
		} else {
			o, err = h.orderSvc.Advance(ctx, cmd.OrderID, status, cmd.Description)
		}
	} else {
		o, err = h.orderSvc.AppendStatus(ctx, cmd.OrderID, strings.ToUpper(strings.TrimSpace(cmd.Status)), cmd.Description)
	}
	if err != nil {
		return nil, h.fail("update order status", err)
	}
	return readmodel.FromOrder(o), nil
}

func (h *Handler) CreateCheckout(ctx context.Context, cmd CreateCheckout) (*checkout.Session, error) {
	cs, err := h.checkoutSvc.Create(ctx, cmd.SessionID)
	if err != nil {
		return nil, h.fail("create checkout", err)
	}
	return cs, nil
}

func (h *Handler) UpdateCheckout(ctx context.Context, cmd UpdateCheckout) (*checkout.Session, error) {
	cs, err := h.checkoutSvc.Update(ctx, cmd.CheckoutSessionID, checkout.Update{
		FulfillmentOptionID: cmd.FulfillmentOptionID,
		FulfillmentAddress:  cmd.FulfillmentAddress,
		Buyer:               cmd.Buyer,
	})
	if err != nil {
		return nil, h.fail("update checkout", err)
	}
	return cs, nil
}

func (h *Handler) BeginPayment(ctx context.Context, cmd BeginPayment) (*checkout.Session, error) {
	cs, err := h.checkoutSvc.BeginPayment(ctx, cmd.CheckoutSessionID)
	if err != nil {
		return nil, h.fail("begin payment", err)
	}
	return cs, nil
}

func (h *Handler) CompleteCheckout(ctx context.Context, cmd CompleteCheckout) (*checkout.Session, error) {
	cs, err := h.checkoutSvc.Complete(ctx, cmd.CheckoutSessionID, cmd.Buyer)
	if err != nil {
		return nil, h.fail("complete checkout", err)
	}
	return cs, nil
}

func (h *Handler) CancelCheckout(ctx context.Context, cmd CancelCheckout) (*checkout.Session, error) {
	cs, err := h.checkoutSvc.Cancel(ctx, cmd.CheckoutSessionID)
	if err != nil {
		return nil, h.fail("cancel checkout", err)
	}
	return cs, nil
}

// fail makes sure every error leaving the facade is classified. Storage and
// unclassified failures are logged here since callers only see the kind.
func (h *Handler) fail(op string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindUnknown:
		h.logger.Error(op+" failed", zap.Error(err))
		return &apperr.Error{Kind: apperr.KindUnknown, Code: "internal_error", Message: op + " failed", Err: err}
	case apperr.KindStorage:
		h.logger.Error(op+" failed", zap.Error(err))
	}
	return err
}
