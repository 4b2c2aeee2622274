package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

// NewRouter wires the storefront HTTP surface. redisClient may be nil, which
// disables response replay and drops Redis from the readiness probe.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions controllers.Sessions,
	receipts orders.ReceiptRepository,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["db"] = dbP
	}
	var idempotencyStore middleware.IdempotencyStore
	if redisClient != nil {
		readiness["redis"] = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Post("/session", controllers.SessionOpen(sessions, logg))
		r.Delete("/session", controllers.SessionClose(sessions, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(sessions, logg))
			r.Get("/events", controllers.CartEvents(sessions, logg))
			r.Post("/items", controllers.CartAddItem(sessions, cfg.Checkout.AddedNoticeTTL, logg))
			r.Post("/items/{productID}/increase", controllers.CartIncrease(sessions, logg))
			r.Post("/items/{productID}/decrease", controllers.CartDecrease(sessions, logg))
			r.Delete("/items/{productID}", controllers.CartRemoveItem(sessions, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", controllers.CheckoutBegin(sessions, logg))
			r.Get("/", controllers.CheckoutGet(sessions, logg))
			r.Delete("/", controllers.CheckoutAbandon(sessions, logg))
			r.Post("/review", controllers.CheckoutReview(sessions, logg))
			r.Post("/proceed", controllers.CheckoutProceed(sessions, logg))
			r.Put("/payment-method", controllers.CheckoutSelectPayment(sessions, logg))
			r.Post("/confirm", controllers.CheckoutConfirm(sessions, logg))
		})

		r.Get("/orders/receipts", controllers.ReceiptsList(receipts, logg))
	})

	return r
}
