package main

import (
	"context"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/jemo-app/jemo-backend/api/routes"
	"github.com/jemo-app/jemo-backend/internal/delivery"
	"github.com/jemo-app/jemo-backend/internal/fees"
	"github.com/jemo-app/jemo-backend/internal/orders"
	"github.com/jemo-app/jemo-backend/internal/payments"
	"github.com/jemo-app/jemo-backend/internal/payouts"
	product "github.com/jemo-app/jemo-backend/internal/products"
	"github.com/jemo-app/jemo-backend/internal/wallets"
	mycoolpaywebhook "github.com/jemo-app/jemo-backend/internal/webhooks/mycoolpay"
	"github.com/jemo-app/jemo-backend/pkg/config"
	"github.com/jemo-app/jemo-backend/pkg/db"
	"github.com/jemo-app/jemo-backend/pkg/instance"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/metrics"
	"github.com/jemo-app/jemo-backend/pkg/migrate"
	"github.com/jemo-app/jemo-backend/pkg/mycoolpay"
	"github.com/jemo-app/jemo-backend/pkg/redis"
)

// orderFlow lets the delivery service drive order transitions without a
// construction cycle. Its target is assigned once the order service exists.
type orderFlow struct {
	svc orders.Service
}

func (f *orderFlow) MarkOrderInTransit(ctx context.Context, tx *gorm.DB, orderID, agencyID uuid.UUID) error {
	return f.svc.MarkOrderInTransit(ctx, tx, orderID, agencyID)
}

func (f *orderFlow) MarkOrderDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return f.svc.MarkOrderDelivered(ctx, tx, orderID)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	providerClient, err := mycoolpay.NewClient(context.Background(), cfg.MyCoolPay, logg, paymentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create mycoolpay client", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()

	productService, err := product.NewService(product.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	walletService, err := wallets.NewService(wallets.NewRepository(gdb), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	flow := &orderFlow{}
	deliveryService, err := delivery.NewService(delivery.NewRepository(gdb), dbClient, flow, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(
		payments.NewRepository(gdb), productService, deliveryService,
		providerClient, cfg.MyCoolPay, logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(
		orders.NewRepository(gdb), dbClient, productService, walletService,
		deliveryService, paymentService, fees.NewPolicy(cfg.Fees), logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}
	flow.svc = orderService

	payoutService, err := payouts.NewService(
		payouts.NewRepository(gdb), dbClient, walletService,
		providerClient, cfg.Payout, logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	webhookService, err := mycoolpaywebhook.NewService(mycoolpaywebhook.ServiceParams{
		Intents: paymentService,
		Payouts: payoutService,
		Dedupe:  redisClient,
		Metrics: paymentMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Products:   productService,
			Orders:     orderService,
			Deliveries: deliveryService,
			Wallets:    walletService,
			Payouts:    payoutService,
			Payments:   paymentService,
			Webhooks:   webhookService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
