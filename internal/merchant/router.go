package merchant

import (
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/middleware"
	"checkout-proxy/internal/payment/webhook"

	"github.com/gorilla/mux"
)

// The merchant has no strict-tier routes.
var StrictPaths []string

// Paths only the Payment Service calls. Callbacks arrive in bursts from
// one peer address and are signed, so they share the internal tier.
var InternalPaths = []string{"/api/v1/payment-details", "/api/v1/callback"}

func NewRouter(h *Handler, callback *webhook.Handler, limiter *middleware.Limiter) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/v1/payment-details", h.PaymentDetailsHandler).Methods("POST")
	r.HandleFunc("/api/v1/callback", callback.CallbackHandler).Methods("POST")
	r.HandleFunc("/pay", h.PaymentPageHandler).Methods("GET")
	r.HandleFunc("/health", h.HealthHandler).Methods("GET")

	r.Use(logger.RequestIDMiddleware, middleware.LoggingMiddleware, limiter.Middleware)
	return r
}
