package main

import (
	"context"
	"github.com/ariefcatur/go-audio-checkout/internal/catalog"
	"github.com/ariefcatur/go-audio-checkout/internal/config"
	"github.com/ariefcatur/go-audio-checkout/internal/inventory"
	kafkax "github.com/ariefcatur/go-audio-checkout/internal/kafka"
	"github.com/ariefcatur/go-audio-checkout/internal/logging"
	"github.com/ariefcatur/go-audio-checkout/internal/orders"
	"github.com/ariefcatur/go-audio-checkout/internal/postgres"
	"github.com/ariefcatur/go-audio-checkout/internal/promotion"
	"github.com/ariefcatur/go-audio-checkout/internal/redisx"
	"github.com/ariefcatur/go-audio-checkout/internal/worker"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"log"
	"os/signal"
	"syscall"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.New(cfg.ServiceName+"-worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis: dipakai untuk invalidasi cache order saat expire
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer: OrderExpired tetap dipublish dari worker
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, lg)
	prod.Start(ctx)

	inv := inventory.NewManager(db, lg.Named("inventory"))
	promoRepo := &promotion.Repo{DB: db}
	svc := orders.NewService(&catalog.Repo{DB: db}, promotion.NewEngine(promoRepo), inv,
		&orders.Repo{DB: db, Settler: inv}, lg.Named("orders"))
	svc.Orphans = inv
	svc.Events = prod
	svc.Cache = redisx.NewOrderCache(rdb)
	svc.Producer = cfg.ServiceName + "-worker"

	sweeper := &worker.Sweeper{
		Orders:     svc,
		HoldWindow: cfg.HoldWindow,
		Interval:   cfg.SweepInterval,
		Batch:      cfg.SweepBatch,
		Log:        lg.Named("sweeper"),
	}
	redemptions := &worker.Redemptions{Promotions: promoRepo, Log: lg.Named("redemptions")}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.TopicOrderEvents, cfg.WorkerCount, lg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("consumer started",
			zap.String("group", cfg.WorkerGroup), zap.String("topic", orders.TopicOrderEvents), zap.Int("workers", cfg.WorkerCount))
		return cons.Start(gctx, redemptions.Handle)
	})
	g.Go(func() error {
		lg.Info("sweeper started", zap.Duration("hold_window", cfg.HoldWindow), zap.Duration("interval", cfg.SweepInterval))
		return sweeper.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		lg.Error("worker exit", zap.Error(err))
	}

	lg.Info("shutting down worker")
	prod.Close()
	prod.WaitClosed()
}
