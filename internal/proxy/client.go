package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/signature"

	"go.uber.org/zap"
)

// StatusError is a non-2xx answer from the peer service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("peer returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("peer returned status %d: %s", e.StatusCode, e.Message)
}

// Client performs signed JSON exchanges with the peer service and verifies
// the signature on successful responses.
type Client struct {
	secret     string
	httpClient *http.Client
}

func NewClient(secret string, timeout time.Duration) *Client {
	return &Client{
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Post signs in, sends it to endpoint and decodes the verified response into out.
func (c *Client) Post(ctx context.Context, endpoint string, in, out interface{}) error {
	if c.secret == "" {
		return signature.ErrMissingSecret
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, signature.Sign(body, c.secret))
	if reqID := logger.RequestIDFrom(ctx); reqID != "" {
		req.Header.Set(logger.RequestIDHeader, reqID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, signature.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ack Ack
		_ = json.Unmarshal(respBody, &ack)
		return &StatusError{StatusCode: resp.StatusCode, Message: ack.Message}
	}

	if err := signature.Check(resp.Header.Get(signature.HeaderName), respBody, c.secret); err != nil {
		logger.FromCtx(ctx).Warn("unsigned or tampered peer response",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("response from %s: %w", endpoint, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// WriteSigned writes v as JSON with the X-Proxy-Signature of the exact bytes sent.
func WriteSigned(w http.ResponseWriter, code int, v interface{}, secret string) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"message":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if secret != "" {
		w.Header().Set(signature.HeaderName, signature.Sign(body, secret))
	}
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
