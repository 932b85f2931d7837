package paygate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"checkout-proxy/internal/auth"
	"checkout-proxy/internal/checkout"
	"checkout-proxy/internal/config"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/proxy"

	"go.uber.org/zap"
)

// Poster performs a signed exchange with the Merchant Service.
type Poster interface {
	Post(ctx context.Context, endpoint string, in, out interface{}) error
}

// Enqueuer hands a callback body to the background Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, url string, body []byte) bool
}

// FrameSession is everything the card frame needs to render.
type FrameSession struct {
	PublicKey   string `json:"public_key"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	EntryID     int64  `json:"entry_id"`
	SiteAOrigin string `json:"site_a_origin"`
	FrameToken  string `json:"frame_token"`
}

type ChargeOutcome struct {
	Approved    bool
	RedirectURL string
	Message     string
}

type Service interface {
	OpenFrame(ctx context.Context, entryID, userID int64) (*FrameSession, error)
	Charge(ctx context.Context, claims *auth.FrameClaims, cardToken string) (*ChargeOutcome, error)
	VerifySession(ctx context.Context, sessionID string) (json.RawMessage, error)
	ForwardWebhook(ctx context.Context, body []byte) (string, error)
}

type service struct {
	cfg        config.GatewayConfig
	secret     string
	gateway    checkout.Gateway
	peer       Poster
	tokens     *auth.FrameTokens
	dispatcher Enqueuer
	now        func() time.Time
}

func NewService(
	cfg config.GatewayConfig,
	secret string,
	gateway checkout.Gateway,
	peer Poster,
	tokens *auth.FrameTokens,
	dispatcher Enqueuer,
) Service {
	return &service{
		cfg:        cfg,
		secret:     secret,
		gateway:    gateway,
		peer:       peer,
		tokens:     tokens,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// OpenFrame asks the Merchant Service what to charge and binds the answer
// to a frame token.
func (s *service) OpenFrame(ctx context.Context, entryID, userID int64) (*FrameSession, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "OpenFrame"),
		zap.Int64("entry_id", entryID),
	)

	if s.secret == "" || s.cfg.SiteAValidationURL == "" || s.cfg.PublicKey == "" ||
		s.cfg.SiteAHomeURL == "" || s.cfg.FrameTokenSecret == "" {
		log.Error("payment frame is not configured")
		return nil, ErrNotConfigured
	}

	var details proxy.AmountLookupResponse
	err := s.peer.Post(ctx, s.cfg.SiteAValidationURL, proxy.AmountLookupRequest{
		EntryID: entryID,
		UserID:  userID,
	}, &details)

	var statusErr *proxy.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict:
		log.Info("entry already paid")
		return nil, ErrAlreadyPaid
	case err != nil:
		log.Error("amount lookup failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	if err := details.Validate(); err != nil {
		log.Error("invalid amount lookup response", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(details.Currency))
	token, err := s.tokens.Issue(entryID, details.Amount, currency)
	if err != nil {
		return nil, err
	}

	return &FrameSession{
		PublicKey:   s.cfg.PublicKey,
		Amount:      details.Amount,
		Currency:    currency,
		EntryID:     entryID,
		SiteAOrigin: s.cfg.SiteAHomeURL,
		FrameToken:  token,
	}, nil
}

// Charge creates the provider payment for the amount bound in claims. A
// 3DS redirect sends no callback; every other result is reported to the
// Merchant Service in the background.
func (s *service) Charge(ctx context.Context, claims *auth.FrameClaims, cardToken string) (*ChargeOutcome, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Charge"),
		zap.Int64("entry_id", claims.EntryID),
	)

	if strings.TrimSpace(cardToken) == "" {
		return nil, ErrMissingCardToken
	}
	if s.cfg.SecretKey == "" || s.secret == "" || s.cfg.SiteACallbackURL == "" {
		log.Error("charge refused: missing configuration")
		return nil, ErrNotConfigured
	}
	if s.cfg.Enable3DS && s.cfg.SiteAPaymentPageURL == "" {
		return nil, Err3DSNotConfigured
	}

	reference := strconv.FormatInt(claims.EntryID, 10)
	req := checkout.PaymentRequest{
		Token:     cardToken,
		Amount:    claims.Amount,
		Currency:  claims.Currency,
		Reference: reference,
	}
	if s.cfg.Enable3DS {
		back := withEntryID(s.cfg.SiteAPaymentPageURL, reference)
		req.Enable3DS = true
		req.SuccessURL = back
		req.FailureURL = back
	}

	res, err := s.gateway.CreatePayment(ctx, req)
	var apiErr *checkout.APIError
	switch {
	case errors.As(err, &apiErr):
		log.Warn("provider rejected payment", zap.Int("status", apiErr.StatusCode), zap.Strings("error_codes", apiErr.ErrorCodes))
		res = &checkout.PaymentResult{Status: "Declined", ResponseSummary: apiErr.Summary()}
	case err != nil:
		log.Error("provider request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if res.RequiresRedirect() {
		log.Info("3DS redirect", zap.String("transaction_id", res.ID))
		return &ChargeOutcome{RedirectURL: res.RedirectURL}, nil
	}

	s.reportCharge(ctx, claims, res)

	if res.Approved {
		return &ChargeOutcome{Approved: true}, nil
	}
	msg := res.ResponseSummary
	if msg == "" {
		msg = "Payment was declined."
	}
	return &ChargeOutcome{Message: msg}, nil
}

func (s *service) reportCharge(ctx context.Context, claims *auth.FrameClaims, res *checkout.PaymentResult) {
	eventType := proxy.EventPaymentDeclined
	status := "Declined"
	if res.Approved {
		eventType = proxy.EventPaymentApproved
		status = "Authorized"
	}
	if res.Status != "" {
		status = res.Status
	}

	amount := res.Amount
	if amount == 0 && res.Approved {
		amount = claims.Amount
	}
	id := res.ID
	if id == "" {
		id = "N/A"
	}
	summary := res.ResponseSummary
	if summary == "" {
		summary = "Payment processed"
	}

	body, err := json.Marshal(proxy.CallbackPayload{
		Type: eventType,
		Data: proxy.CallbackData{
			ID:              id,
			Reference:       strconv.FormatInt(claims.EntryID, 10),
			Amount:          amount,
			Currency:        claims.Currency,
			Approved:        res.Approved,
			Status:          status,
			ResponseCode:    res.ResponseCode,
			ResponseSummary: summary,
		},
		CreatedOn: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.FromCtx(ctx).Error("failed to encode callback", zap.Error(err))
		return
	}
	s.dispatcher.Enqueue(ctx, s.cfg.SiteACallbackURL, body)
}

// VerifySession fetches the provider payment behind a 3DS session id.
func (s *service) VerifySession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	if s.cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}

	_, raw, err := s.gateway.GetPayment(ctx, sessionID)
	if err != nil {
		logger.FromCtx(ctx).Warn("3DS session lookup failed",
			zap.String("layer", "service"),
			zap.Error(err),
		)
		return nil, err
	}
	return raw, nil
}

var forwardedEvents = map[string]string{
	proxy.EventPaymentApproved: "Paid",
	proxy.EventPaymentCaptured: "Paid",
	proxy.EventPaymentDeclined: "Failed",
}

// ForwardWebhook passes an authenticated provider webhook on to the
// Merchant Service byte for byte. It returns the ack status.
func (s *service) ForwardWebhook(ctx context.Context, body []byte) (string, error) {
	var payload proxy.CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", proxy.ErrInvalidMessage, err)
	}

	summary, ok := forwardedEvents[payload.Type]
	if !ok {
		logger.FromCtx(ctx).Info("unhandled webhook event type", zap.String("type", payload.Type))
		return "ignored", nil
	}
	if strings.TrimSpace(payload.Data.Reference) == "" {
		return "", ErrMissingReference
	}

	logger.FromCtx(ctx).Info("forwarding provider webhook",
		zap.String("type", payload.Type),
		zap.String("reference", payload.Data.Reference),
		zap.String("transaction_id", payload.Data.ID),
		zap.String("summary", summary),
	)
	s.dispatcher.Enqueue(ctx, s.cfg.SiteACallbackURL, body)
	return "ok", nil
}

func withEntryID(base, entryID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("entry_id", entryID)
	u.RawQuery = q.Encode()
	return u.String()
}
