package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/agent-commerce/internal/api"
	"github.com/example/agent-commerce/internal/auth"
	"github.com/example/agent-commerce/internal/command"
	"github.com/example/agent-commerce/internal/config"
	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/catalog"
	"github.com/example/agent-commerce/internal/domain/checkout"
	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/domain/pricing"
	"github.com/example/agent-commerce/internal/infrastructure/cache"
	"github.com/example/agent-commerce/internal/infrastructure/kafka"
	"github.com/example/agent-commerce/internal/infrastructure/store"
	"github.com/example/agent-commerce/internal/observability"
	"github.com/example/agent-commerce/internal/query"
	"github.com/example/agent-commerce/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting api",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.Bool("cart_cache", cfg.RedisAddr != ""),
	)

	// Durable store
	if err := store.Migrate(cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		return err
	}
	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	sqlStore := store.NewSQLStore(db)

	// Catalog and recipes
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	recipes, err := catalog.LoadRecipes(cfg.RecipesPath, cat)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", zap.Int("items", cat.Len()), zap.Int("recipes", len(recipes.All())))

	// Optional event bus
	var publisher cart.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer producer.Close()
		publisher = producer
	}

	// Optional cart cache
	var (
		cartCache  cart.Cache
		redisCache *cache.RedisCartCache
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		redisCache = cache.NewRedisCartCache(client, cfg.CartCacheTTL)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, cart cache reads will fall back to the store", zap.Error(err))
		}
		cartCache = redisCache
	}

	// Domain services
	taxRate := pricing.TaxRate(cfg.TaxRateBps)
	locker := session.NewLocker()
	cartSvc, err := cart.NewService(cart.Deps{
		Store:     sqlStore.Carts(),
		Catalog:   cat,
		Recipes:   recipes,
		Locker:    locker,
		Cache:     cartCache,
		Publisher: publisher,
		TaxRate:   taxRate,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	orderSvc, err := order.NewService(order.Deps{
		Store:     sqlStore.Orders(),
		Carts:     cartSvc,
		Locker:    locker,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	checkoutSvc, err := checkout.NewService(checkout.Deps{
		Store:    checkout.NewMemoryStore(),
		Carts:    cartSvc,
		Orders:   orderSvc,
		TaxRate:  taxRate,
		Currency: cfg.Currency,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// HTTP
	tokens := auth.NewSessionTokens(cfg.JWTSecret, cfg.SessionTokenTTL)
	handlers := api.NewHandlers(
		command.NewHandler(cartSvc, orderSvc, checkoutSvc, logger),
		query.NewHandler(cat, recipes, cartSvc, orderSvc, checkoutSvc, logger),
		tokens,
		logger,
	)
	handlers.AddHealthCheck("database", sqlStore.Ping)
	if redisCache != nil {
		handlers.AddHealthCheck("redis", redisCache.Ping)
	}
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewRouter(handlers, tokens, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
