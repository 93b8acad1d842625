package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jemo-app/jemo-backend/api/controllers"
	"github.com/jemo-app/jemo-backend/api/middleware"
	"github.com/jemo-app/jemo-backend/internal/delivery"
	"github.com/jemo-app/jemo-backend/internal/orders"
	"github.com/jemo-app/jemo-backend/internal/payments"
	"github.com/jemo-app/jemo-backend/internal/payouts"
	product "github.com/jemo-app/jemo-backend/internal/products"
	"github.com/jemo-app/jemo-backend/internal/wallets"
	mycoolpaywebhook "github.com/jemo-app/jemo-backend/internal/webhooks/mycoolpay"
	"github.com/jemo-app/jemo-backend/pkg/config"
	"github.com/jemo-app/jemo-backend/pkg/db"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. All services are required;
// the pingers may be nil, in which case readiness reports them unconfigured.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis *redis.Client

	Products   product.Service
	Orders     orders.Service
	Deliveries delivery.Service
	Wallets    wallets.Service
	Payouts    payouts.Service
	Payments   payments.Service
	Webhooks   *mycoolpaywebhook.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mycoolpay", controllers.MyCoolPayWebhook(deps.Webhooks, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity())

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListApprovedProducts(deps.Products, logg))
			r.Post("/", controllers.CreateProduct(deps.Products, logg))
			r.Get("/mine", controllers.ListVendorProducts(deps.Products, logg))
			r.Get("/{productID}", controllers.GetProduct(deps.Products, logg))
			r.Patch("/{productID}", controllers.UpdateProduct(deps.Products, logg))
			r.Post("/{productID}/moderate", controllers.ModerateProduct(deps.Products, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Orders, logg))
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderID}/confirm", controllers.ConfirmOrder(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Post("/{orderID}/in-transit", controllers.MarkOrderInTransit(deps.Orders, logg))
			r.Post("/{orderID}/received", controllers.MarkOrderReceived(deps.Orders, logg))
		})

		r.Route("/delivery", func(r chi.Router) {
			r.Get("/quote", controllers.QuoteDelivery(deps.Deliveries, logg))
			r.Route("/jobs", func(r chi.Router) {
				r.Get("/open", controllers.ListOpenJobs(deps.Deliveries, logg))
				r.Get("/{jobID}", controllers.GetJob(deps.Deliveries, logg))
				r.Get("/{jobID}/history", controllers.JobHistory(deps.Deliveries, logg))
				r.Post("/{jobID}/accept", controllers.AcceptJob(deps.Deliveries, logg))
				r.Post("/{jobID}/delivered", controllers.MarkJobDelivered(deps.Deliveries, logg))
			})
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.GetMyWallet(deps.Wallets, logg))
			r.Get("/transactions", controllers.ListWalletTransactions(deps.Wallets, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/", controllers.RequestPayout(deps.Payouts, logg))
			r.Get("/{payoutID}", controllers.GetPayout(deps.Payouts, logg))
			r.Post("/{payoutID}/poll", controllers.PollPayout(deps.Payouts, logg))
		})

		r.Route("/payment-intents", func(r chi.Router) {
			r.Post("/", controllers.InitiateIntent(deps.Payments, logg))
			r.Get("/", controllers.ListMyIntents(deps.Payments, logg))
			r.Get("/verify", controllers.VerifyIntent(deps.Payments, logg))
			r.Get("/{intentID}", controllers.GetIntent(deps.Payments, logg))
		})
	})

	return r
}
