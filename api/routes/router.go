package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	squarewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/square"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	gatherer prometheus.Gatherer,
	pingers map[string]controllers.Pinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	orderManager *orders.Manager,
	paymentPaths *payments.Registry,
	productService product.Service,
	squareWebhookService *squarewebhook.Service,
	squareWebhookGuard *squarewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.RateLimitPolicy{
		Name:   "checkout",
		Window: cfg.Checkout.RateLimitWindow,
		PerIP:  cfg.Checkout.RateLimitPerIP,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		signer := webhookcontrollers.SquareSigner{
			SignatureKey:    cfg.Square.WebhookSecret,
			NotificationURL: cfg.Square.WebhookURL,
		}
		r.Post("/square", webhookcontrollers.SquareWebhook(squareWebhookService, signer, squareWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.RateLimit(checkoutPolicy, redisClient, logg))
			r.Post("/offline", controllers.CheckoutOffline(checkoutService, cfg.Checkout.ProofMaxBytes, logg))
			r.Post("/hosted", controllers.CheckoutHosted(checkoutService, logg))
		})
		r.Get("/orders/{orderId}", controllers.OrderDetail(orderManager, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.StaffAuth(cfg.JWT, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderDetail(orderManager, logg))
			r.Post("/verify", controllers.AdminVerifyOrder(orderManager, paymentPaths, logg))
			r.Post("/transition", controllers.AdminTransitionOrder(orderManager, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/low-stock", controllers.AdminLowStock(productService, logg))
			r.Post("/{productId}/restock", controllers.AdminRestockProduct(productService, logg))
			r.With(middleware.RequireStaffRole(logg, enums.StaffRoleAdmin)).
				Post("/{productId}/stock", controllers.AdminCorrectStock(productService, logg))
		})
	})

	return r
}
