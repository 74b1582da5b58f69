package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-orders-inventory/internal/auth"
	"github.com/ariefcatur/go-orders-inventory/internal/config"
	"github.com/ariefcatur/go-orders-inventory/internal/httpx"
	"github.com/ariefcatur/go-orders-inventory/internal/inventory"
	kafkax "github.com/ariefcatur/go-orders-inventory/internal/kafka"
	"github.com/ariefcatur/go-orders-inventory/internal/observability"
	"github.com/ariefcatur/go-orders-inventory/internal/orders"
	"github.com/ariefcatur/go-orders-inventory/internal/outbox"
	"github.com/ariefcatur/go-orders-inventory/internal/postgres"
	"github.com/ariefcatur/go-orders-inventory/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	authn, err := auth.NewAuthenticator(cfg.JWTSecret)
	if err != nil {
		return err
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Service & handler
	svc, err := orders.NewService(orders.ServiceDeps{
		Store:       &orders.Repo{DB: db},
		Logger:      logger,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return err
	}

	router := httpx.NewRouter(logger, cfg.RequestTimeout)
	oh := &httpx.OrdersHandler{Service: svc, Cache: redisx.NewStatusCache(rdb), Logger: logger}
	ph := &httpx.ProductsHandler{Catalog: &inventory.Repo{DB: db}, Logger: logger}
	router.Group(func(r chi.Router) {
		r.Use(httpx.RequireAuth(authn))
		oh.Register(r)
		ph.Register(r)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           observability.HTTPHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Outbox relay -> Kafka
	if cfg.OutboxEnabled {
		prod := kafkax.NewProducer(cfg.KafkaBrokers)
		defer prod.Close()
		relay := &outbox.Relay{
			Store:     &outbox.Repo{DB: db},
			Publisher: prod,
			Interval:  cfg.OutboxInterval,
			Batch:     cfg.OutboxBatch,
			Logger:    logger.With(zap.String("component", "outbox-relay")),
		}
		g.Go(func() error { return relay.Run(gctx) })
	}

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
