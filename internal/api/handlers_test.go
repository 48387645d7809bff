package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/agent-commerce/internal/api/middleware"
	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/auth"
	"github.com/example/agent-commerce/internal/command"
	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/catalog"
	"github.com/example/agent-commerce/internal/domain/checkout"
	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/domain/pricing"
	"github.com/example/agent-commerce/internal/infrastructure/store"
	"github.com/example/agent-commerce/internal/query"
	"github.com/example/agent-commerce/internal/readmodel"
	"github.com/example/agent-commerce/internal/session"
)

type testServer struct {
	router   http.Handler
	handlers *Handlers
	tokens   *auth.SessionTokens
	store    *store.SQLStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "commerce.db")
	require.NoError(t, store.Migrate(store.DriverSQLite, dsn))
	db, err := store.Open(context.Background(), store.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewSQLStore(db)

	cat, err := catalog.Default()
	require.NoError(t, err)
	recipes, err := catalog.LoadRecipes("", cat)
	require.NoError(t, err)
	locker := session.NewLocker()

	cartSvc, err := cart.NewService(cart.Deps{
		Store: st.Carts(), Catalog: cat, Recipes: recipes, Locker: locker, TaxRate: pricing.DefaultTaxRate,
	})
	require.NoError(t, err)
	orderSvc, err := order.NewService(order.Deps{Store: st.Orders(), Carts: cartSvc, Locker: locker})
	require.NoError(t, err)
	checkoutSvc, err := checkout.NewService(checkout.Deps{
		Store: checkout.NewMemoryStore(), Carts: cartSvc, Orders: orderSvc, TaxRate: pricing.DefaultTaxRate,
	})
	require.NoError(t, err)

	tokens := auth.NewSessionTokens("test-secret", time.Hour)
	handlers := NewHandlers(
		command.NewHandler(cartSvc, orderSvc, checkoutSvc, nil),
		query.NewHandler(cat, recipes, cartSvc, orderSvc, checkoutSvc, nil),
		tokens,
		nil,
	)
	return &testServer{router: NewRouter(handlers, tokens, nil), handlers: handlers, tokens: tokens, store: st}
}

func (s *testServer) do(t *testing.T, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(middleware.SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// ============================================
// System & Session Tests
// ============================================

func TestHealthAndInfo(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, rec)["status"])

	rec = srv.do(t, http.MethodGet, "/info", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "INR", decode[map[string]any](t, rec)["currency"])
}

func TestHealth_Checks(t *testing.T) {
	srv := newTestServer(t)
	srv.handlers.AddHealthCheck("database", srv.store.Ping)

	rec := srv.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, map[string]any{"database": "ok"}, body["checks"])

	srv.handlers.AddHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec = srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"database": "ok", "redis": "unavailable"}, body["checks"])
}

func TestIssueSession(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/sessions", "sess_abc", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[sessionResponse](t, rec)
	assert.Equal(t, "sess_abc", resp.SessionID)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	id, err := srv.tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "sess_abc", id)

	// The token alone addresses the same cart.
	srv.do(t, http.MethodPost, "/cart/items", "sess_abc", map[string]any{"catalog_id": "mug-001", "quantity": 1})
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[readmodel.CartReadModel](t, rec).Items, 1)
}

func TestIssueSession_BindsResolvedSession(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/sessions", "sess_mine", map[string]any{"session_id": "sess_someone_else"})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[sessionResponse](t, rec)
	assert.Equal(t, "sess_mine", resp.SessionID)

	id, err := srv.tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "sess_mine", id)
}

func TestSessionHeaderEchoed(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.SessionHeader))
}

// ============================================
// Catalog Tests
// ============================================

func TestCatalogEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/catalog?category=mugs&max_price=500", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[readmodel.ProductPage](t, rec)
	assert.Equal(t, 2, page.Total)

	rec = srv.do(t, http.MethodGet, "/catalog/mug-001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mug-001", decode[readmodel.ProductReadModel](t, rec).ID)

	rec = srv.do(t, http.MethodGet, "/catalog/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec)["categories"], "mug")

	rec = srv.do(t, http.MethodGet, "/recipes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalog_Errors(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/catalog/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "not_found", body.Type)
	assert.Equal(t, "product_not_found", body.Code)

	rec = srv.do(t, http.MethodGet, "/catalog?min_price=cheap", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "min_price", decode[ErrorResponse](t, rec).Param)
}

// ============================================
// Cart Tests
// ============================================

func TestCartLifecycle(t *testing.T) {
	srv := newTestServer(t)
	sid := "sess_cart"

	rec := srv.do(t, http.MethodPost, "/cart/items", sid, map[string]any{"catalog_id": "tshirt-001", "quantity": 2, "variant": "m"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPut, "/cart/items/tshirt-001?variant=M", sid, map[string]any{"quantity": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[readmodel.CartReadModel](t, rec)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)

	rec = srv.do(t, http.MethodPost, "/cart/recipes", sid, map[string]any{"recipe": "coffee"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[readmodel.CartReadModel](t, rec).Items, 2)

	rec = srv.do(t, http.MethodDelete, "/cart/items/tshirt-001?variant=M", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[readmodel.CartReadModel](t, rec).Items, 1)

	rec = srv.do(t, http.MethodDelete, "/cart", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[readmodel.CartReadModel](t, rec).Items)
}

func TestCart_Errors(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/cart", "s", map[string]any{"catalog_id": "tshirt-001", "variant": "XXXL"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_variant", decode[ErrorResponse](t, rec).Code)

	rec = srv.do(t, http.MethodPost, "/cart", "s", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "catalog_id", decode[ErrorResponse](t, rec).Param)

	rec = srv.do(t, http.MethodPut, "/cart/items/mug-001", "s", map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/cart", bytes.NewBufferString("{oops"))
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decode[ErrorResponse](t, rec).Code)
}

// ============================================
// Order Tests
// ============================================

func TestOrderEndpoints(t *testing.T) {
	srv := newTestServer(t)
	sid := "sess_order"

	rec := srv.do(t, http.MethodPost, "/orders", sid, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	srv.do(t, http.MethodPost, "/cart", sid, map[string]any{"catalog_id": "mug-001", "quantity": 2})
	rec = srv.do(t, http.MethodPost, "/orders", sid, map[string]any{"customer_name": "Asha"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[readmodel.OrderReadModel](t, rec)
	assert.Equal(t, int64(998), placed.Total)

	rec = srv.do(t, http.MethodGet, "/orders/latest", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, placed.ID, decode[readmodel.OrderReadModel](t, rec).ID)

	rec = srv.do(t, http.MethodGet, "/orders/"+placed.ID+"/summary", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "Customer: Asha")

	rec = srv.do(t, http.MethodPost, "/orders/"+placed.ID+"/status", sid, map[string]any{"status": "processing"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/orders/"+placed.ID+"/cancel", sid, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "state_conflict", decode[ErrorResponse](t, rec).Type)

	rec = srv.do(t, http.MethodGet, "/orders", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])

	rec = srv.do(t, http.MethodGet, "/orders/analytics", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[order.Analytics](t, rec).TotalOrders)

	rec = srv.do(t, http.MethodGet, "/orders/latest", "sess_nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodGet, "/orders?status=lost", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_ScopedToCallerSession(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodPost, "/cart", "sess_alice", map[string]any{"catalog_id": "mug-001", "quantity": 1})
	rec := srv.do(t, http.MethodPost, "/orders", "sess_alice", map[string]any{
		"customer_name": "Alice",
		"contact_info":  "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, path := range []string{"/orders", "/orders?session_id=sess_alice"} {
		rec = srv.do(t, http.MethodGet, path, "sess_mallory", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.EqualValues(t, 0, body["count"], path)
		assert.NotContains(t, rec.Body.String(), "alice@example.com")
	}

	rec = srv.do(t, http.MethodGet, "/orders/analytics", "sess_mallory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[order.Analytics](t, rec).TotalOrders)

	rec = srv.do(t, http.MethodGet, "/orders", "sess_alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])
}

// ============================================
// Checkout Tests
// ============================================

func TestCheckoutEndpoints(t *testing.T) {
	srv := newTestServer(t)
	sid := "sess_checkout"
	srv.do(t, http.MethodPost, "/cart", sid, map[string]any{"catalog_id": "mug-001", "quantity": 1})

	rec := srv.do(t, http.MethodPost, "/checkout_sessions", sid, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cs := decode[checkout.Session](t, rec)
	assert.Equal(t, checkout.StatusReadyForPayment, cs.Status)

	rec = srv.do(t, http.MethodPost, "/checkout_sessions/"+cs.ID, sid, map[string]any{
		"fulfillment_option_id": "fulfillment_express",
		"fulfillment_address":   map[string]any{"city": "Pune"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "fulfillment_address.line_one", decode[ErrorResponse](t, rec).Param)

	rec = srv.do(t, http.MethodPost, "/checkout_sessions/"+cs.ID, sid, map[string]any{"fulfillment_option_id": "fulfillment_express"})
	require.Equal(t, http.StatusOK, rec.Code)
	upd := decode[checkout.Session](t, rec)
	assert.Equal(t, int64(499+49+165), upd.Amount(checkout.TotalTotal))

	rec = srv.do(t, http.MethodPost, "/checkout_sessions/"+cs.ID+"/complete", sid, map[string]any{
		"buyer": map[string]any{"first_name": "Asha", "email": "asha@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[checkout.Session](t, rec)
	assert.Equal(t, checkout.StatusCompleted, done.Status)
	require.NotNil(t, done.Order)

	rec = srv.do(t, http.MethodGet, "/orders/"+done.Order.ID, sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(499+49+165), decode[readmodel.OrderReadModel](t, rec).Total)

	rec = srv.do(t, http.MethodPost, "/checkout_sessions/"+cs.ID+"/cancel", sid, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = srv.do(t, http.MethodGet, "/checkout_sessions/cs_missing", sid, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================
// Error Mapping Tests
// ============================================

func TestRespondError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperr.Validation("bad", "bad input", "x"), http.StatusBadRequest, "bad input"},
		{"not found", order.ErrOrderNotFound, http.StatusNotFound, "order not found"},
		{"conflict", checkout.ErrAlreadyCompleted, http.StatusMethodNotAllowed, checkout.ErrAlreadyCompleted.Message},
		{"storage", apperr.Storage("get cart", errors.New("disk on fire")), http.StatusInternalServerError, "storage unavailable"},
		{"unknown", errors.New("secret detail"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode[ErrorResponse](t, rec).Message)
		})
	}
}
