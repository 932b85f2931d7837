package merchant

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"checkout-proxy/internal/config"
	"checkout-proxy/internal/entry"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/metrics"
	"checkout-proxy/internal/payment"
	"checkout-proxy/internal/proxy"
	"checkout-proxy/internal/signature"
	"checkout-proxy/internal/utils"

	"go.uber.org/zap"
)

// PageView is what the payment page renders when it shows the card frame.
type PageView struct {
	EntryID       int64  `json:"entry_id"`
	FrameURL      string `json:"frame_url"`
	PaymentStatus string `json:"payment_status"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

type Handler struct {
	svc    Service
	cfg    config.MerchantConfig
	secret string
	reg    *metrics.Registry
}

func NewHandler(svc Service, cfg config.MerchantConfig, secret string, reg *metrics.Registry) *Handler {
	return &Handler{svc: svc, cfg: cfg, secret: secret, reg: reg}
}

// PaymentDetailsHandler serves the Amount Lookup.
func (h *Handler) PaymentDetailsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("layer", "handler"), zap.String("method", "PaymentDetails"))

	body, err := signature.ReadVerified(r, h.secret)
	switch {
	case errors.Is(err, signature.ErrMissingSecret):
		log.Error("amount lookup refused: proxy secret not configured")
		utils.WriteJSONError(w, "Server configuration error.", http.StatusServiceUnavailable)
		return
	case errors.Is(err, signature.ErrMissingSignature), errors.Is(err, signature.ErrInvalidSignature):
		log.Warn("invalid signature from payment service", zap.Error(err))
		utils.WriteJSONError(w, "Invalid signature.", http.StatusForbidden)
		return
	case err != nil:
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var req proxy.AmountLookupRequest
	if err := json.Unmarshal(body, &req); err != nil {
		utils.WriteJSONError(w, "Invalid JSON payload.", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		utils.WriteJSONError(w, "Missing entry_id.", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.LookupAmount(ctx, req)
	switch {
	case errors.Is(err, entry.ErrEntryNotFound):
		proxy.WriteSigned(w, http.StatusNotFound, proxy.Ack{Message: "Entry not found."}, h.secret)
		return
	case errors.Is(err, ErrAlreadyPaid):
		proxy.WriteSigned(w, http.StatusConflict, proxy.Ack{Message: "This application has already been paid."}, h.secret)
		return
	case errors.Is(err, ErrAmountNotFound):
		proxy.WriteSigned(w, http.StatusNotFound, proxy.Ack{Message: "Payment Amount is not found."}, h.secret)
		return
	case err != nil:
		log.Error("amount lookup failed", zap.Int64("entry_id", req.EntryID), zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	proxy.WriteSigned(w, http.StatusOK, resp, h.secret)
}

// PaymentPageHandler drives the payment page: confirmation for paid
// entries, the 3DS return, or the card frame.
func (h *Handler) PaymentPageHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	entryID, err := utils.ParseEntryID(q.Get("entry_id"))
	if err != nil {
		utils.WriteJSONError(w, "No payment session specified.", http.StatusBadRequest)
		return
	}

	e, err := h.svc.OpenPaymentPage(ctx, entryID)
	if err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			utils.WriteJSONError(w, "Payment session not found.", http.StatusNotFound)
			return
		}
		logger.FromCtx(ctx).Error("failed to open payment page", zap.Int64("entry_id", entryID), zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch {
	case e.PaymentStatus == entry.StatusPaid, q.Get("payment_status") == "success":
		http.Redirect(w, r, h.confirmationURL(entryID), http.StatusSeeOther)
		return

	case q.Get("payment_status") == "failed":
		msg := q.Get("error_message")
		if msg == "" {
			msg = payment.GenericDeclineMessage
		}
		h.renderFrame(w, e, msg)
		return

	case q.Get("cko-session-id") != "":
		res, err := h.svc.VerifyReturn(ctx, entryID, q.Get("cko-session-id"))
		if errors.Is(err, ErrNotConfigured) {
			utils.WriteJSONError(w, "Gateway is not configured to handle this response.", http.StatusServiceUnavailable)
			return
		}
		if res.Success {
			http.Redirect(w, r, h.confirmationURL(entryID), http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, h.failureURL(entryID, res.ErrorMessage), http.StatusSeeOther)
		return
	}

	h.renderFrame(w, e, "")
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"counters": h.reg.Snapshot(),
	})
}

func (h *Handler) renderFrame(w http.ResponseWriter, e *entry.Entry, errorMessage string) {
	if h.cfg.ProxyFrameURL == "" {
		utils.WriteJSONError(w, "Proxy gateway is not configured.", http.StatusServiceUnavailable)
		return
	}

	params := url.Values{}
	params.Set("entry_id", strconv.FormatInt(e.ID, 10))
	if e.UserID > 0 {
		params.Set("user_id", strconv.FormatInt(e.UserID, 10))
	}

	utils.WriteJSON(w, http.StatusOK, PageView{
		EntryID:       e.ID,
		FrameURL:      withQuery(h.cfg.ProxyFrameURL, params),
		PaymentStatus: e.PaymentStatus.String(),
		ErrorMessage:  errorMessage,
	})
}

func (h *Handler) confirmationURL(entryID int64) string {
	if h.cfg.ConfirmationURL != "" {
		return withQuery(h.cfg.ConfirmationURL, url.Values{"entry_id": {strconv.FormatInt(entryID, 10)}})
	}
	return withQuery(h.cfg.HomeURL, url.Values{"payment_status": {"success"}})
}

func (h *Handler) failureURL(entryID int64, message string) string {
	if message == "" {
		message = "Unknown Error"
	}
	return withQuery(h.cfg.PaymentPageURL, url.Values{
		"entry_id":       {strconv.FormatInt(entryID, 10)},
		"payment_status": {"failed"},
		"error_message":  {message},
	})
}

// withQuery merges params into base, keeping any query base already has.
func withQuery(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}
