package paygate

import (
	"net/http"

	"checkout-proxy/internal/auth"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/middleware"

	"github.com/gorilla/mux"
)

// Paths limited with the strict tier.
var StrictPaths = []string{"/api/v1/webhook", "/process-payment"}

// Paths only the Merchant Service calls.
var InternalPaths = []string{"/api/v1/verify-3ds-session"}

func NewRouter(h *Handler, tokens *auth.FrameTokens, limiter *middleware.Limiter) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/frame", h.FrameHandler).Methods("GET")
	r.Handle("/process-payment", middleware.RequireFrameToken(tokens)(
		http.HandlerFunc(h.ProcessPaymentHandler),
	)).Methods("POST")
	r.HandleFunc("/api/v1/verify-3ds-session", h.VerifyHandler).Methods("POST")
	r.HandleFunc("/api/v1/webhook", h.WebhookHandler).Methods("POST")
	r.HandleFunc("/health", h.HealthHandler).Methods("GET")

	r.Use(logger.RequestIDMiddleware, middleware.LoggingMiddleware, limiter.Middleware)
	return r
}
