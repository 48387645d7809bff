package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/agent-commerce/internal/api/middleware"
	"github.com/example/agent-commerce/internal/auth"
	"github.com/example/agent-commerce/internal/observability"
)

const requestTimeout = 30 * time.Second

func NewRouter(handlers *Handlers, tokens *auth.SessionTokens, logger *zap.Logger) http.Handler {
	logger = observability.OrNop(logger)
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(chimw.Timeout(requestTimeout))

	// System
	r.Get("/health", handlers.Health)
	r.Get("/info", handlers.Info)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(tokens))

		r.Post("/sessions", handlers.IssueSession)

		// Catalog
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", handlers.ListCatalog)
			r.Get("/categories", handlers.GetCategories)
			r.Get("/colors", handlers.GetColors)
			r.Get("/{id}", handlers.GetCatalogItem)
		})
		r.Get("/recipes", handlers.GetRecipes)

		// Cart
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", handlers.GetCart)
			r.Post("/", handlers.AddToCart)
			r.Delete("/", handlers.ClearCart)
			r.Post("/items", handlers.AddToCart)
			r.Put("/items/{id}", handlers.UpdateCartItem)
			r.Delete("/items/{id}", handlers.RemoveFromCart)
			r.Post("/recipes", handlers.AddRecipe)
		})

		// Checkout
		r.Route("/checkout_sessions", func(r chi.Router) {
			r.Post("/", handlers.CreateCheckout)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetCheckout)
				r.Post("/", handlers.UpdateCheckout)
				r.Post("/begin_payment", handlers.BeginPayment)
				r.Post("/complete", handlers.CompleteCheckout)
				r.Post("/cancel", handlers.CancelCheckout)
			})
		})

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", handlers.ListOrders)
			r.Post("/", handlers.PlaceOrder)
			r.Get("/latest", handlers.LatestOrder)
			r.Get("/analytics", handlers.Analytics)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetOrder)
				r.Get("/summary", handlers.GetOrderSummary)
				r.Post("/status", handlers.UpdateOrderStatus)
				r.Post("/cancel", handlers.CancelOrder)
			})
		})
	})

	return r
}
