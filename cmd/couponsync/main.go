package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefw/go-shop-saga/internal/config"
	"github.com/ariefw/go-shop-saga/internal/coupon"
	"github.com/ariefw/go-shop-saga/internal/event"
	kafkax "github.com/ariefw/go-shop-saga/internal/kafka"
	"github.com/ariefw/go-shop-saga/internal/logging"
	"github.com/ariefw/go-shop-saga/internal/postgres"
	"github.com/ariefw/go-shop-saga/internal/redisx"
)

// couponsync trails the Redis coupon ledger and writes the durable
// mirror of issuances and redemptions into Postgres. It is reporting
// infrastructure, never consulted by the payment path.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.MustNew(cfg.ServiceName+"-couponsync", cfg.Env)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	syncer := &coupon.Syncer{
		Mirror: &coupon.MirrorRepo{DB: db},
		Redis:  rdb,
		Logger: logger,
	}

	group := getenv("COUPONSYNC_GROUP", "couponsync")
	workers := getint("COUPONSYNC_WORKERS", 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group,
		[]string{event.TopicCouponIssued, event.TopicCouponUsed}, workers)

	go func() {
		logger.Info("couponsync consumer started",
			zap.String("group", group), zap.Int("workers", workers))
		if err := cons.Start(ctx, syncer.Handle); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer...")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
