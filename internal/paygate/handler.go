package paygate

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"checkout-proxy/internal/auth"
	"checkout-proxy/internal/config"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/metrics"
	"checkout-proxy/internal/proxy"
	"checkout-proxy/internal/signature"
	"checkout-proxy/internal/utils"

	"go.uber.org/zap"
)

// ProviderSignatureHeader carries the HMAC-SHA256 of a provider webhook body.
const ProviderSignatureHeader = "Cko-Signature"

// ajaxResponse mirrors the envelope the card frame script expects.
type ajaxResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type messageData struct {
	Message string `json:"message"`
}

type redirectData struct {
	RedirectURL string `json:"redirectUrl"`
}

type processPaymentRequest struct {
	Token string `json:"token"`
}

type Handler struct {
	svc    Service
	cfg    config.GatewayConfig
	secret string
	ttlSec int
	reg    *metrics.Registry
}

func NewHandler(svc Service, cfg config.GatewayConfig, secret string, reg *metrics.Registry) *Handler {
	return &Handler{
		svc:    svc,
		cfg:    cfg,
		secret: secret,
		ttlSec: int(cfg.FrameTokenTTL.Seconds()),
		reg:    reg,
	}
}

// FrameHandler opens a card frame session for an entry.
func (h *Handler) FrameHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	entryID, err := utils.ParseEntryID(q.Get("entry_id"))
	if err != nil {
		utils.WriteJSONError(w, "Invalid request parameters.", http.StatusBadRequest)
		return
	}
	userID, _ := strconv.ParseInt(q.Get("user_id"), 10, 64)

	session, err := h.svc.OpenFrame(ctx, entryID, userID)
	switch {
	case errors.Is(err, ErrNotConfigured):
		utils.WriteJSONError(w, "Payment frame is not configured.", http.StatusServiceUnavailable)
		return
	case errors.Is(err, ErrAlreadyPaid):
		utils.WriteJSONError(w, "This application has already been paid.", http.StatusConflict)
		return
	case err != nil:
		utils.WriteJSONError(w, "Could not validate payment session. Please Refresh the page and try again.", http.StatusBadGateway)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.FrameTokenCookie,
		Value:    session.FrameToken,
		Path:     "/",
		MaxAge:   h.ttlSec,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	utils.WriteJSON(w, http.StatusOK, session)
}

// ProcessPaymentHandler charges the card token for the session in the
// frame token. It must run behind middleware.RequireFrameToken.
func (h *Handler) ProcessPaymentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := auth.FrameClaimsFrom(ctx)
	if !ok {
		writeAjaxError(w, "Payment session expired. Please reload the page.", http.StatusUnauthorized)
		return
	}

	var req processPaymentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, signature.MaxBodyBytes)).Decode(&req); err != nil {
		writeAjaxError(w, "Invalid request data or missing configuration.", http.StatusBadRequest)
		return
	}

	outcome, err := h.svc.Charge(ctx, claims, req.Token)
	switch {
	case errors.Is(err, ErrMissingCardToken):
		writeAjaxError(w, "Invalid request data or missing configuration.", http.StatusBadRequest)
		return
	case errors.Is(err, ErrNotConfigured):
		writeAjaxError(w, "Invalid request data or missing configuration.", http.StatusServiceUnavailable)
		return
	case errors.Is(err, Err3DSNotConfigured):
		writeAjaxError(w, "3DS is enabled but the Site A Payment Page URL is not configured.", http.StatusServiceUnavailable)
		return
	case err != nil:
		writeAjaxError(w, "Payment provider is unavailable. Please try again.", http.StatusBadGateway)
		return
	}

	switch {
	case outcome.RedirectURL != "":
		utils.WriteJSON(w, http.StatusOK, ajaxResponse{Success: true, Data: redirectData{RedirectURL: outcome.RedirectURL}})
	case outcome.Approved:
		utils.WriteJSON(w, http.StatusOK, ajaxResponse{Success: true})
	default:
		utils.WriteJSON(w, http.StatusOK, ajaxResponse{Data: messageData{Message: outcome.Message}})
	}
}

// VerifyHandler serves the 3DS Verification exchange. Responses are signed.
func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("layer", "handler"), zap.String("method", "Verify3DS"))

	body, err := signature.ReadVerified(r, h.secret)
	switch {
	case errors.Is(err, signature.ErrMissingSecret):
		log.Error("verification refused: proxy secret not configured")
		utils.WriteJSONError(w, "Server configuration error.", http.StatusServiceUnavailable)
		return
	case errors.Is(err, signature.ErrMissingSignature), errors.Is(err, signature.ErrInvalidSignature):
		log.Warn("invalid signature from merchant service", zap.Error(err))
		utils.WriteJSONError(w, "Invalid signature.", http.StatusForbidden)
		return
	case err != nil:
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var req proxy.VerifyRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Validate() != nil {
		proxy.WriteSigned(w, http.StatusBadRequest, proxy.Ack{Message: "Missing session ID."}, h.secret)
		return
	}

	raw, err := h.svc.VerifySession(ctx, req.SessionID)
	if errors.Is(err, ErrNotConfigured) {
		utils.WriteJSONError(w, "Payment provider is not configured.", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		proxy.WriteSigned(w, http.StatusOK, proxy.VerifyFailed(), h.secret)
		return
	}

	proxy.WriteSigned(w, http.StatusOK, proxy.VerifyResponse{Payment: raw}, h.secret)
}

// WebhookHandler authenticates a provider webhook and forwards it.
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("layer", "handler"), zap.String("method", "Webhook"))

	if h.cfg.WebhookSecret == "" || h.secret == "" || h.cfg.SiteACallbackURL == "" {
		log.Error("webhook handler not configured")
		utils.WriteJSONError(w, "Webhook handler not configured.", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, signature.MaxBodyBytes))
	if err != nil || len(body) == 0 {
		utils.WriteJSONError(w, "Missing webhook data.", http.StatusBadRequest)
		return
	}

	if !h.authentic(r, body) {
		log.Warn("invalid webhook signature", zap.String("remote_ip", r.RemoteAddr))
		utils.WriteJSONError(w, "Invalid webhook signature.", http.StatusForbidden)
		return
	}

	status, err := h.svc.ForwardWebhook(ctx, body)
	switch {
	case errors.Is(err, ErrMissingReference):
		utils.WriteJSONError(w, "Missing reference (entry_id).", http.StatusBadRequest)
		return
	case err != nil:
		utils.WriteJSONError(w, "Invalid webhook payload.", http.StatusBadRequest)
		return
	}

	utils.WriteJSON(w, http.StatusOK, proxy.Ack{Status: status})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"counters": h.reg.Snapshot(),
	})
}

// authentic checks the body HMAC and, when an authorization key is set,
// the Authorization header too.
func (h *Handler) authentic(r *http.Request, body []byte) bool {
	if !signature.Verify(r.Header.Get(ProviderSignatureHeader), body, h.cfg.WebhookSecret) {
		return false
	}
	if h.cfg.WebhookAuthKey == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.WebhookAuthKey)) == 1
}

func writeAjaxError(w http.ResponseWriter, message string, code int) {
	utils.WriteJSON(w, code, ajaxResponse{Data: messageData{Message: message}})
}
