package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker func(ctx context.Context) error

func NewRouter(
	cfg RouterConfig,
	carts CartStore,
	orders OrderStore,
	auth *Authenticator,
	serverMetrics *metrics.ServerMetrics,
	log *zap.Logger,
	checks ...HealthChecker) http.Handler {

	cartHandler := NewCartHandler(carts, cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(orders, cfg.RequestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if serverMetrics != nil {
		r.Use(serverMetrics.Middleware)
	}
	if cfg.MaxRequestBodySize > 0 {
		r.Use(MaxBodySize(cfg.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if serverMetrics != nil {
		r.Method(http.MethodGet, "/metrics", serverMetrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/carts/{userId}", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Put("/", cartHandler.ReplaceCart)
			r.Delete("/", cartHandler.DeleteCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{productId}", cartHandler.UpdateQuantity)
			r.Delete("/items/{productId}", cartHandler.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordersHandler.CreateOrder)
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{id}", ordersHandler.GetOrder)
			r.Patch("/{id}/ship", ordersHandler.ShipOrder)
			r.Patch("/{id}/cancel", ordersHandler.CancelOrder)
			r.Patch("/{id}/deliver", ordersHandler.DeliverOrder)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
