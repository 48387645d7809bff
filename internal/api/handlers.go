package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/agent-commerce/internal/api/middleware"
	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/auth"
	"github.com/example/agent-commerce/internal/command"
	"github.com/example/agent-commerce/internal/domain/catalog"
	"github.com/example/agent-commerce/internal/domain/checkout"
	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/observability"
	"github.com/example/agent-commerce/internal/query"
)

const apiVersion = "2025-01-01"

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheck
}

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	tokens       *auth.SessionTokens
	checks       []namedCheck
	logger       *zap.Logger
	now          func() time.Time
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, tokens *auth.SessionTokens, logger *zap.Logger) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		tokens:       tokens,
		logger:       observability.OrNop(logger).Named("api"),
		now:          time.Now,
	}
}

// AddHealthCheck registers a dependency probed by GET /health.
func (h *Handlers) AddHealthCheck(name string, check HealthCheck) {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// System Handlers

// Health answers 503 when any registered dependency check fails.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.check(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.String("check", c.name), zap.Error(err))
			checks[c.name] = "unavailable"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[c.name] = "ok"
	}
	respondJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   apiVersion,
		"checks":    checks,
	})
}

func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"name":     "agent-commerce",
		"version":  apiVersion,
		"protocol": "Agentic Commerce Protocol (ACP)",
		"capabilities": map[string]bool{
			"catalog":   true,
			"cart":      true,
			"recipes":   true,
			"checkout":  true,
			"orders":    true,
			"analytics": true,
		},
		"currency": h.queryHandler.Currency(),
	})
}

type sessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// IssueSession signs a token for the session already resolved for this
// request. The token saves clients from echoing X-Session-ID; it is not
// proof of ownership, since the header alone also selects a session.
func (h *Handlers) IssueSession(w http.ResponseWriter, r *http.Request) {
	token, id, expiresAt, err := h.tokens.Issue(middleware.SessionID(r.Context()))
	if err != nil {
		h.logger.Error("issue session token failed", zap.Error(err))
		respondError(w, err)
		return
	}
	w.Header().Set(middleware.SessionHeader, id)
	respondJSON(w, http.StatusCreated, sessionResponse{
		Token:     token,
		SessionID: id,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(h.tokens.TTL().Seconds()),
	})
}

// Catalog Handlers

func (h *Handlers) ListCatalog(w http.ResponseWriter, r *http.Request) {
	f, err := parseCatalogFilter(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.queryHandler.ListProducts(f))
}

func (h *Handlers) GetCatalogItem(w http.ResponseWriter, r *http.Request) {
	product, err := h.queryHandler.GetProduct(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"categories": h.queryHandler.Categories()})
}

func (h *Handlers) GetColors(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"colors": h.queryHandler.Colors(r.URL.Query().Get("category"))})
}

func (h *Handlers) GetRecipes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]catalog.Recipe{"recipes": h.queryHandler.Recipes()})
}

// Cart Handlers

type addItemRequest struct {
	CatalogID string  `json:"catalog_id"`
	Quantity  int     `json:"quantity"`
	Variant   *string `json:"variant,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

type updateItemRequest struct {
	Quantity *int    `json:"quantity"`
	Variant  *string `json:"variant,omitempty"`
}

type addRecipeRequest struct {
	Recipe string `json:"recipe"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.queryHandler.GetCart(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.CatalogID) == "" {
		respondError(w, apperr.Validation("missing_catalog_id", "catalog_id is required", "catalog_id"))
		return
	}

	view, err := h.cmdHandler.AddToCart(r.Context(), command.AddToCart{
		SessionID: middleware.SessionID(r.Context()),
		CatalogID: req.CatalogID,
		Quantity:  req.Quantity,
		Variant:   req.Variant,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Quantity == nil {
		respondError(w, apperr.Validation("missing_quantity", "quantity is required", "quantity"))
		return
	}

	view, err := h.cmdHandler.UpdateCartItem(r.Context(), command.UpdateCartItem{
		SessionID: middleware.SessionID(r.Context()),
		CatalogID: chi.URLParam(r, "id"),
		Quantity:  *req.Quantity,
		Variant:   variantParam(r, req.Variant),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.cmdHandler.RemoveFromCart(r.Context(), command.RemoveFromCart{
		SessionID: middleware.SessionID(r.Context()),
		CatalogID: chi.URLParam(r, "id"),
		Variant:   variantParam(r, nil),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.cmdHandler.ClearCart(r.Context(), command.ClearCart{SessionID: middleware.SessionID(r.Context())})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) AddRecipe(w http.ResponseWriter, r *http.Request) {
	var req addRecipeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	view, err := h.cmdHandler.AddRecipe(r.Context(), command.AddRecipe{
		SessionID: middleware.SessionID(r.Context()),
		Recipe:    req.Recipe,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Checkout Handlers

type updateCheckoutRequest struct {
	FulfillmentOptionID *string           `json:"fulfillment_option_id,omitempty"`
	FulfillmentAddress  *checkout.Address `json:"fulfillment_address,omitempty"`
	Buyer               *checkout.Buyer   `json:"buyer,omitempty"`
}

type completeCheckoutRequest struct {
	Buyer *checkout.Buyer `json:"buyer,omitempty"`
}

func (h *Handlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	cs, err := h.cmdHandler.CreateCheckout(r.Context(), command.CreateCheckout{SessionID: middleware.SessionID(r.Context())})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cs)
}

func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	cs, err := h.queryHandler.GetCheckout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cs)
}

func (h *Handlers) UpdateCheckout(w http.ResponseWriter, r *http.Request) {
	var req updateCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	cs, err := h.cmdHandler.UpdateCheckout(r.Context(), command.UpdateCheckout{
		CheckoutSessionID:   chi.URLParam(r, "id"),
		FulfillmentOptionID: req.FulfillmentOptionID,
		FulfillmentAddress:  req.FulfillmentAddress,
		Buyer:               req.Buyer,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cs)
}

func (h *Handlers) BeginPayment(w http.ResponseWriter, r *http.Request) {
	cs, err := h.cmdHandler.BeginPayment(r.Context(), command.BeginPayment{CheckoutSessionID: chi.URLParam(r, "id")})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cs)
}

func (h *Handlers) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	var req completeCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	cs, err := h.cmdHandler.CompleteCheckout(r.Context(), command.CompleteCheckout{
		CheckoutSessionID: chi.URLParam(r, "id"),
		Buyer:             req.Buyer,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cs)
}

func (h *Handlers) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	cs, err := h.cmdHandler.CancelCheckout(r.Context(), command.CancelCheckout{CheckoutSessionID: chi.URLParam(r, "id")})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cs)
}

// Order Handlers

type placeOrderRequest struct {
	CustomerName *string        `json:"customer_name,omitempty"`
	ContactInfo  *string        `json:"contact_info,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type updateStatusRequest struct {
	Status      string  `json:"status"`
	Description *string `json:"description,omitempty"`
}

type cancelOrderRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// PlaceOrder answers 204 when the cart is empty.
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	view, err := h.cmdHandler.PlaceOrder(r.Context(), command.PlaceOrder{
		SessionID:    middleware.SessionID(r.Context()),
		CustomerName: req.CustomerName,
		ContactInfo:  req.ContactInfo,
		Metadata:     req.Metadata,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if view == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// ListOrders lists the calling session's orders only.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.ListFilter{
		SessionID: middleware.SessionID(r.Context()),
		Status:    order.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		respondError(w, err)
		return
	}
	if f.From, f.To, err = timeWindow(r); err != nil {
		respondError(w, err)
		return
	}

	orders, err := h.queryHandler.ListOrders(r.Context(), f)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": orders, "count": len(orders)})
}

func (h *Handlers) LatestOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.queryHandler.LatestOrder(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	if view == nil {
		respondError(w, order.ErrOrderNotFound.WithMessage("no orders for this session"))
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) Analytics(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeWindow(r)
	if err != nil {
		respondError(w, err)
		return
	}
	a, err := h.queryHandler.Analytics(r.Context(), order.AnalyticsFilter{
		SessionID: middleware.SessionID(r.Context()),
		From:      from,
		To:        to,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.queryHandler.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) GetOrderSummary(w http.ResponseWriter, r *http.Request) {
	view, err := h.queryHandler.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondText(w, http.StatusOK, view.Text)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	view, err := h.cmdHandler.UpdateOrderStatus(r.Context(), command.UpdateOrderStatus{
		OrderID:     chi.URLParam(r, "id"),
		Status:      req.Status,
		Description: req.Description,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	view, err := h.cmdHandler.CancelOrder(r.Context(), command.CancelOrder{
		OrderID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Helper functions

// variantParam prefers the ?variant= query parameter over the body.
func variantParam(r *http.Request, fromBody *string) *string {
	if v, ok := r.URL.Query()["variant"]; ok && len(v) > 0 {
		return &v[0]
	}
	return fromBody
}

func parseCatalogFilter(r *http.Request) (catalog.Filter, error) {
	q := r.URL.Query()
	f := catalog.Filter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Color:    q.Get("color"),
		Size:     q.Get("size"),
	}
	var err error
	if f.MinPrice, err = int64Param(q.Get("min_price"), "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = int64Param(q.Get("max_price"), "max_price"); err != nil {
		return f, err
	}
	if raw := q.Get("in_stock_only"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, apperr.Validation("invalid_parameter", "in_stock_only must be true or false", "in_stock_only")
		}
		f.InStockOnly = &b
	}
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("invalid_parameter", name+" must be an integer", name)
	}
	return n, nil
}

func int64Param(raw, name string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid_parameter", name+" must be an integer amount in minor units", name)
	}
	return &n, nil
}

// timeWindow reads optional RFC 3339 from/to query parameters.
func timeWindow(r *http.Request) (from, to *time.Time, err error) {
	parse := func(name string) (*time.Time, error) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, apperr.Validation("invalid_parameter", name+" must be an RFC 3339 timestamp", name)
		}
		return &t, nil
	}
	if from, err = parse("from"); err != nil {
		return nil, nil, err
	}
	if to, err = parse("to"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
