package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-audio-checkout/internal/catalog"
	"github.com/ariefcatur/go-audio-checkout/internal/config"
	"github.com/ariefcatur/go-audio-checkout/internal/httpx"
	"github.com/ariefcatur/go-audio-checkout/internal/inventory"
	kafkax "github.com/ariefcatur/go-audio-checkout/internal/kafka"
	"github.com/ariefcatur/go-audio-checkout/internal/logging"
	"github.com/ariefcatur/go-audio-checkout/internal/orders"
	"github.com/ariefcatur/go-audio-checkout/internal/payment"
	"github.com/ariefcatur/go-audio-checkout/internal/payment/hostedgw"
	"github.com/ariefcatur/go-audio-checkout/internal/postgres"
	"github.com/ariefcatur/go-audio-checkout/internal/promotion"
	"github.com/ariefcatur/go-audio-checkout/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			lg.Fatal("migrate", zap.Error(err))
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, lg)
	prod.Start(ctx)

	// Services
	inv := inventory.NewManager(db, lg.Named("inventory"))
	store := &orders.Repo{DB: db, Settler: inv}
	promos := promotion.NewEngine(&promotion.Repo{DB: db})

	svc := orders.NewService(&catalog.Repo{DB: db}, promos, inv, store, lg.Named("orders"))
	svc.Events = prod
	svc.Cache = redisx.NewOrderCache(rdb)
	svc.Producer = cfg.ServiceName
	svc.ShippingCents = cfg.ShippingFlatCents
	svc.Fanout = cfg.CatalogFanout

	gw := hostedgw.New(cfg.Gateway.Provider, cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.WebhookSecret)
	issuer := payment.NewIssuer(&payment.Repo{DB: db}, store, svc, lg.Named("payment"), gw)
	issuer.Dedup = redisx.NewDedup(rdb, cfg.ServiceName)
	issuer.IntentTTL = cfg.IntentTTL
	issuer.FailurePolicy = payment.FailurePolicy(cfg.FailurePolicy)

	// Router & handlers
	router := httpx.NewRouter(lg.Named("http"))
	(&httpx.OrdersHandler{Orders: svc, Log: lg}).Register(router)
	(&httpx.PaymentsHandler{Payments: issuer, Log: lg, WebhookErrorStatus: cfg.WebhookErrorStatus}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
	cancel()
}
