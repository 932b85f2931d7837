package middleware

import (
	"net/http"

	"checkout-proxy/internal/auth"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/utils"

	"go.uber.org/zap"
)

// RequireFrameToken rejects requests that do not carry a frame session
// issued by this service and stores its claims in the request context.
func RequireFrameToken(tokens *auth.FrameTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := tokens.Parse(auth.ExtractFrameToken(r))
			if err != nil {
				logger.FromCtx(r.Context()).Warn("frame token rejected",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				utils.WriteJSONError(w, "Payment session expired. Please reload the page.", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithFrameClaims(r.Context(), claims)))
		})
	}
}
