package main

import (
	"context"
	"github.com/ariefcatur/go-orders-inventory/internal/config"
	kafkax "github.com/ariefcatur/go-orders-inventory/internal/kafka"
	"github.com/ariefcatur/go-orders-inventory/internal/observability"
	"github.com/ariefcatur/go-orders-inventory/internal/orders"
	"github.com/ariefcatur/go-orders-inventory/internal/projector"
	"github.com/ariefcatur/go-orders-inventory/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"os/signal"
	"syscall"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	service := cfg.ServiceName + "-projector"
	logger, err := observability.NewLogger(cfg.LogLevel, service)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	svc := &projector.Service{
		Cache:  redisx.NewStatusCache(rdb),
		Dedup:  redisx.NewDedup(rdb, "projector"),
		Logger: logger,
	}

	// Consumer: semua topic order dalam satu group
	topics := orders.Topics()
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, topics, cfg.ProjectorWorkers, logger)
	logger.Info("projector consumer started",
		zap.String("group", cfg.ProjectorGroup),
		zap.Strings("topics", topics),
		zap.Int("workers", cfg.ProjectorWorkers),
	)
	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		logger.Error("consumer exit", zap.Error(err))
		return
	}
	logger.Info("projector stopped")
}
