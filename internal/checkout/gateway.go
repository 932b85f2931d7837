package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkout-proxy/internal/logger"

	"go.uber.org/zap"
)

const (
	sandboxBaseURL = "https://api.sandbox.checkout.com"
	liveBaseURL    = "https://api.checkout.com"

	maxResponseBytes = 1 << 20
)

// Gateway talks to the card processor. It owns no state.
type Gateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	// GetPayment returns the parsed payment and the raw provider body.
	GetPayment(ctx context.Context, id string) (*Payment, json.RawMessage, error)
}

type Options struct {
	Environment         string
	SecretKey           string
	ProcessingChannelID string
	Timeout             time.Duration
}

type gateway struct {
	secretKey           string
	processingChannelID string
	baseURL             string
	httpClient          *http.Client
}

// ----------------- Constructor -----------------

func NewGateway(opts Options) Gateway {
	if opts.SecretKey == "" {
		logger.L().Warn("Checkout.com secret key is empty")
	}

	baseURL := sandboxBaseURL
	if opts.Environment == "live" {
		baseURL = liveBaseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &gateway{
		secretKey:           opts.SecretKey,
		processingChannelID: opts.ProcessingChannelID,
		baseURL:             baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ----------------- CreatePayment -----------------

func (g *gateway) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "checkout"),
		zap.String("reference", req.Reference),
		zap.Int64("amount", req.Amount),
		zap.String("currency", req.Currency),
		zap.Bool("3ds", req.Enable3DS),
	)

	if req.Token == "" || req.Amount <= 0 || req.Currency == "" || req.Reference == "" {
		return nil, ErrInvalidInput
	}

	body := createPaymentBody{
		Source:              paymentSource{Type: "token", Token: req.Token},
		Amount:              req.Amount,
		Currency:            strings.ToUpper(req.Currency),
		Reference:           req.Reference,
		ProcessingChannelID: g.processingChannelID,
	}
	if req.Enable3DS {
		body.ThreeDS = &threeDS{Enabled: true}
		body.SuccessURL = req.SuccessURL
		body.FailureURL = req.FailureURL
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	respBody, status, err := g.do(ctx, http.MethodPost, g.baseURL+"/payments", payload)
	if err != nil {
		log.Error("checkout request failed", zap.Error(err))
		return nil, err
	}

	if status >= 300 {
		apiErr := decodeAPIError(status, respBody)
		log.Warn("checkout rejected payment", zap.Int("status", status), zap.Error(apiErr))
		return nil, apiErr
	}

	var parsed createPaymentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		log.Error("failed to decode checkout response", zap.Error(err))
		return nil, fmt.Errorf("decode payment response: %w", err)
	}

	result := &PaymentResult{
		ID:              parsed.ID,
		Approved:        parsed.Approved,
		Status:          parsed.Status,
		Amount:          parsed.Amount,
		Currency:        parsed.Currency,
		ResponseCode:    parsed.ResponseCode,
		ResponseSummary: parsed.ResponseSummary,
	}
	if parsed.Links.Redirect != nil {
		result.RedirectURL = parsed.Links.Redirect.Href
	}

	log.Info("checkout payment created",
		zap.String("payment_id", result.ID),
		zap.String("status", result.Status),
		zap.Bool("approved", result.Approved),
		zap.Bool("redirect", result.RequiresRedirect()),
	)

	return result, nil
}

// ----------------- GetPayment -----------------

func (g *gateway) GetPayment(ctx context.Context, id string) (*Payment, json.RawMessage, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "checkout"),
		zap.String("payment_id", id),
	)

	if strings.TrimSpace(id) == "" {
		return nil, nil, ErrInvalidInput
	}

	respBody, status, err := g.do(ctx, http.MethodGet, g.baseURL+"/payments/"+url.PathEscape(id), nil)
	if err != nil {
		log.Error("checkout request failed", zap.Error(err))
		return nil, nil, err
	}

	if status >= 300 {
		apiErr := decodeAPIError(status, respBody)
		log.Warn("checkout payment lookup rejected", zap.Int("status", status), zap.Error(apiErr))
		return nil, nil, apiErr
	}

	var p Payment
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, nil, fmt.Errorf("decode payment: %w", err)
	}
	if p.Empty() {
		return nil, nil, ErrEmptyPayment
	}

	log.Info("checkout payment fetched", zap.String("status", p.Status))
	return &p, json.RawMessage(respBody), nil
}

func (g *gateway) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", g.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("checkout %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read checkout response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	_ = json.Unmarshal(body, apiErr)
	apiErr.StatusCode = status
	return apiErr
}
