package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/catalog"
	"github.com/example/agent-commerce/internal/domain/checkout"
	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/readmodel"
)

var ErrProductNotFound = apperr.New(apperr.KindNotFound, "product_not_found", "product not found")

type Handler struct {
	catalog     *catalog.Catalog
	recipes     *catalog.RecipeBook
	cartSvc     *cart.Service
	orderSvc    *order.Service
	checkoutSvc *checkout.Service
	logger      *zap.Logger
}

func NewHandler(
	cat *catalog.Catalog,
	recipes *catalog.RecipeBook,
	cartSvc *cart.Service,
	orderSvc *order.Service,
	checkoutSvc *checkout.Service,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		catalog:     cat,
		recipes:     recipes,
		cartSvc:     cartSvc,
		orderSvc:    orderSvc,
		checkoutSvc: checkoutSvc,
		logger:      logger.Named("query"),
	}
}

// Products
func (h *Handler) GetProduct(id string) (readmodel.ProductReadModel, error) {
	item, ok := h.catalog.Get(id)
	if !ok {
		return readmodel.ProductReadModel{}, ErrProductNotFound.
			WithMessage(fmt.Sprintf("product %s not found", id)).
			WithParam("id")
	}
	return readmodel.FromItem(item), nil
}

// ListProducts applies the filter and pages the result.
func (h *Handler) ListProducts(f catalog.Filter) readmodel.ProductPage {
	items, total := h.catalog.Page(f)
	limit, offset := f.Limit, f.Offset
	if limit <= 0 {
		limit = catalog.DefaultPageSize
	}
	if limit > catalog.MaxPageSize {
		limit = catalog.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return readmodel.ProductPage{Items: readmodel.FromItems(items), Total: total, Limit: limit, Offset: offset}
}

func (h *Handler) Currency() string {
	return h.catalog.Currency()
}

func (h *Handler) Categories() []string {
	return h.catalog.Categories()
}

func (h *Handler) Colors(category string) []string {
	return h.catalog.Colors(category)
}

func (h *Handler) Recipes() []catalog.Recipe {
	if h.recipes == nil {
		return []catalog.Recipe{}
	}
	return h.recipes.All()
}

// Cart
func (h *Handler) GetCart(ctx context.Context, sessionID string) (*readmodel.CartReadModel, error) {
	c, err := h.cartSvc.Get(ctx, sessionID)
	if err != nil {
		return nil, h.fail("get cart", err)
	}
	return readmodel.FromCart(c, h.cartSvc.Totals(c)), nil
}

func (h *Handler) CartTotal(ctx context.Context, sessionID string) (cart.Totals, error) {
	totals, err := h.cartSvc.Total(ctx, sessionID)
	if err != nil {
		return cart.Totals{}, h.fail("cart total", err)
	}
	return totals, nil
}

// Orders
func (h *Handler) GetOrder(ctx context.Context, id string) (*readmodel.OrderReadModel, error) {
	o, err := h.orderSvc.Summary(ctx, id)
	if err != nil {
		return nil, h.fail("get order", err)
	}
	return readmodel.FromOrder(o), nil
}

// LatestOrder returns nil, nil when the session has never ordered.
func (h *Handler) LatestOrder(ctx context.Context, sessionID string) (*readmodel.OrderReadModel, error) {
	o, err := h.orderSvc.LatestForSession(ctx, sessionID)
	if err != nil {
		return nil, h.fail("latest order", err)
	}
	return readmodel.FromOrder(o), nil
}

func (h *Handler) ListOrders(ctx context.Context, f order.ListFilter) ([]*readmodel.OrderReadModel, error) {
	orders, err := h.orderSvc.List(ctx, f)
	if err != nil {
		return nil, h.fail("list orders", err)
	}
	return readmodel.FromOrders(orders), nil
}

func (h *Handler) Analytics(ctx context.Context, f order.AnalyticsFilter) (*order.Analytics, error) {
	a, err := h.orderSvc.Analytics(ctx, f)
	if err != nil {
		return nil, h.fail("order analytics", err)
	}
	return a, nil
}

// Checkout
func (h *Handler) GetCheckout(ctx context.Context, id string) (*checkout.Session, error) {
	cs, err := h.checkoutSvc.Get(ctx, id)
	if err != nil {
		return nil, h.fail("get checkout", err)
	}
	return cs, nil
}

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
