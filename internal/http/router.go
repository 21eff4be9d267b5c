package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

type Handlers struct {
	Products *ProductHandler
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
}

func NewRouter(h Handlers, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}
	r.Use(middleware.Compress(5))
	r.Use(OwnerMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products.List)
			r.Get("/{product_id}", h.Products.Get)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Get("/availability", h.Cart.CheckAvailability)
			r.Post("/items", h.Cart.AddItem)
			r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
			r.Delete("/items/{product_id}", h.Cart.RemoveItem)
		})
		r.Post("/checkout", h.Checkout.Checkout)
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Orders.ListOrders)
			r.Route("/{order_id}", func(r chi.Router) {
				r.Get("/", h.Orders.GetOrder)
				r.Get("/payments", h.Orders.ListPayments)
				r.Post("/cancel", h.Checkout.CancelOrder)
				r.Post("/ship", h.Checkout.ShipOrder)
				r.Post("/deliver", h.Checkout.DeliverOrder)
				r.Post("/refund", h.Checkout.RefundOrder)
			})
		})
		r.Route("/payments/{payment_id}", func(r chi.Router) {
			r.Get("/", h.Orders.GetPayment)
			r.Get("/verify", h.Orders.VerifyPayment)
			r.Post("/refund", h.Checkout.RefundPayment)
		})
	})

	return otelhttp.NewHandler(r, "storefront.http")
}
