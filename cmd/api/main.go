package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ariefw/go-shop-saga/internal/balance"
	"github.com/ariefw/go-shop-saga/internal/config"
	"github.com/ariefw/go-shop-saga/internal/coupon"
	"github.com/ariefw/go-shop-saga/internal/event"
	"github.com/ariefw/go-shop-saga/internal/httpx"
	"github.com/ariefw/go-shop-saga/internal/inventory"
	kafkax "github.com/ariefw/go-shop-saga/internal/kafka"
	"github.com/ariefw/go-shop-saga/internal/logging"
	"github.com/ariefw/go-shop-saga/internal/metrics"
	"github.com/ariefw/go-shop-saga/internal/orders"
	"github.com/ariefw/go-shop-saga/internal/payment"
	"github.com/ariefw/go-shop-saga/internal/postgres"
	"github.com/ariefw/go-shop-saga/internal/reclaimer"
	"github.com/ariefw/go-shop-saga/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.MustNew(cfg.ServiceName, cfg.Env)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers: one per topic, fanned out behind one publisher
	pCompleted := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicOrderCompleted, 1024)
	pCompleted.Start(ctx)
	pExpired := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicOrderExpired, 1024)
	pExpired.Start(ctx)
	pIssued := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicCouponIssued, 1024)
	pIssued.Start(ctx)
	pUsed := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicCouponUsed, 1024)
	pUsed.Start(ctx)
	pub := kafkax.NewEventPublisher().
		Route(event.EventOrderCompleted, pCompleted).
		Route(event.EventOrderExpired, pExpired).
		Route(event.EventCouponIssued, pIssued).
		Route(event.EventCouponUsed, pUsed)

	// Metrics
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Ledgers
	orderStore := &orders.PGStore{DB: db}
	invStore := &inventory.PGStore{DB: db}
	couponLedger := &coupon.RedisLedger{RDB: rdb, Publisher: pub, Service: cfg.ServiceName}
	balanceLedger := &balance.Ledger{Store: &balance.PGStore{DB: db}, Logger: logger}

	// Saga
	saga := payment.NewSaga(orderStore, invStore, couponLedger, balanceLedger,
		&payment.RedisGuard{RDB: rdb}, pub, logger, m, cfg.ServiceName)

	// Expiration reclaimer
	rec := &reclaimer.Reclaimer{
		Orders:    orderStore,
		Interval:  cfg.ReclaimInterval,
		BatchSize: cfg.ReclaimBatch,
		Publisher: pub,
		Service:   cfg.ServiceName,
		Logger:    logger,
		Metrics:   m,
	}
	go rec.Run(ctx)

	// HTTP
	router := httpx.NewRouter(reg)
	h := &httpx.ShopHandler{
		Orders:  orderStore,
		Coupons: couponLedger,
		Balance: balanceLedger,
		Saga:    saga,
		Redis:   rdb,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// Stop the reclaimer and the producer loops first; the loops flush
	// whatever is buffered. Anything published during the drain is
	// dropped by the producer, not sent on a closed channel.
	cancel()
	for _, p := range []*kafkax.Producer{pCompleted, pExpired, pIssued, pUsed} {
		p.Close()
		p.WaitClosed()
	}
}
