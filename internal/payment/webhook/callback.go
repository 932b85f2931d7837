package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"checkout-proxy/internal/entry"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/payment"
	"checkout-proxy/internal/proxy"
	"checkout-proxy/internal/signature"
	"checkout-proxy/internal/utils"

	"go.uber.org/zap"
)

type ActionApplier interface {
	Apply(ctx context.Context, a payment.Action) (payment.Outcome, error)
}

// Handler receives the Payment Callback forwarded by the Payment Service.
type Handler struct {
	Entries   entry.Repository
	Processor ActionApplier
	Builder   payment.ActionBuilder
	Secret    string
}

func NewCallbackHandler(entries entry.Repository, processor ActionApplier, builder payment.ActionBuilder, secret string) *Handler {
	return &Handler{
		Entries:   entries,
		Processor: processor,
		Builder:   builder,
		Secret:    secret,
	}
}

// CallbackHandler is the actual route handler
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("layer", "callback"))

	body, err := signature.ReadVerified(r, h.Secret)
	switch {
	case errors.Is(err, signature.ErrMissingSecret):
		log.Error("callback refused: proxy secret not configured")
		utils.WriteJSONError(w, "Server configuration error.", http.StatusServiceUnavailable)
		return
	case errors.Is(err, signature.ErrMissingSignature), errors.Is(err, signature.ErrInvalidSignature):
		log.Warn("callback rejected", zap.Error(err))
		utils.WriteJSONError(w, "Invalid signature.", http.StatusForbidden)
		return
	case err != nil:
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var payload proxy.CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.WriteJSONError(w, "Invalid JSON payload.", http.StatusBadRequest)
		return
	}
	if err := payload.Validate(); err != nil {
		utils.WriteJSONError(w, "Invalid payload.", http.StatusBadRequest)
		return
	}

	entryID, err := payload.EntryID()
	if err != nil {
		utils.WriteJSONError(w, "Invalid payload.", http.StatusBadRequest)
		return
	}
	log = log.With(
		zap.Int64("entry_id", entryID),
		zap.String("type", payload.Type),
		zap.String("transaction_id", payload.Data.ID),
	)

	e, err := h.Entries.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			log.Warn("callback for unknown entry")
			utils.WriteJSONError(w, "Entry not found.", http.StatusNotFound)
			return
		}
		log.Error("failed to load entry", zap.Error(err))
		utils.WriteJSONError(w, "failed to load entry", http.StatusInternalServerError)
		return
	}

	if e.PaymentStatus.IsTerminal() {
		log.Info("callback for settled entry", zap.String("status", string(e.PaymentStatus)))
		utils.WriteJSON(w, http.StatusOK, proxy.Ack{Status: "already_processed"})
		return
	}

	action, ok := h.Builder.FromCallback(entryID, payload)
	if !ok {
		log.Info("callback event ignored")
		utils.WriteJSON(w, http.StatusOK, proxy.Ack{Message: "Event type ignored."})
		return
	}

	outcome, err := h.Processor.Apply(ctx, action)
	if err != nil || !outcome.Succeeded() {
		// Non-2xx makes the Dispatcher retry; the ledger is untouched.
		utils.WriteJSONError(w, "failed to process callback", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, proxy.Ack{Status: string(outcome), Message: "Webhook processed."})
}
