package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper allows us to mock the HTTP response
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type MockRoundTripperWithError func(req *http.Request) (*http.Response, error)

func (f MockRoundTripperWithError) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func TestGateway_CreatePayment(t *testing.T) {
	gw := NewGateway(Options{
		Environment:         "sandbox",
		SecretKey:           "sk_test",
		ProcessingChannelID: "pc_123",
	}).(*gateway)

	req := PaymentRequest{
		Token:     "tok_abc",
		Amount:    2500,
		Currency:  "usd",
		Reference: "501",
	}

	t.Run("Approved", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "https://api.sandbox.checkout.com/payments", r.URL.String())
			assert.Equal(t, "sk_test", r.Header.Get("Authorization"))

			var sent map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			assert.Equal(t, "501", sent["reference"])
			assert.Equal(t, "USD", sent["currency"])
			assert.Equal(t, float64(2500), sent["amount"])
			assert.Equal(t, "pc_123", sent["processing_channel_id"])
			assert.Equal(t, map[string]interface{}{"type": "token", "token": "tok_abc"}, sent["source"])
			_, has3DS := sent["3ds"]
			assert.False(t, has3DS)

			return jsonResponse(http.StatusCreated, `{
				"id": "pay_123",
				"approved": true,
				"status": "Authorized",
				"amount": 2500,
				"currency": "USD",
				"response_code": "10000",
				"response_summary": "Approved"
			}`)
		})

		res, err := gw.CreatePayment(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.Approved)
		assert.Equal(t, "pay_123", res.ID)
		assert.Equal(t, Code("10000"), res.ResponseCode)
		assert.False(t, res.RequiresRedirect())
	})

	t.Run("3DS redirect", func(t *testing.T) {
		req3ds := req
		req3ds.Enable3DS = true
		req3ds.SuccessURL = "https://a.example/pay?entry_id=501"
		req3ds.FailureURL = "https://a.example/pay?entry_id=501"

		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			var sent map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			assert.Equal(t, map[string]interface{}{"enabled": true}, sent["3ds"])
			assert.Equal(t, "https://a.example/pay?entry_id=501", sent["success_url"])
			assert.Equal(t, "https://a.example/pay?entry_id=501", sent["failure_url"])

			return jsonResponse(http.StatusAccepted, `{
				"id": "pay_3ds",
				"status": "Pending",
				"_links": {"redirect": {"href": "https://3ds.example/challenge"}}
			}`)
		})

		res, err := gw.CreatePayment(context.Background(), req3ds)
		require.NoError(t, err)
		assert.True(t, res.RequiresRedirect())
		assert.Equal(t, "https://3ds.example/challenge", res.RedirectURL)
		assert.False(t, res.Approved)
	})

	t.Run("Declined", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusCreated, `{
				"id": "pay_dec",
				"approved": false,
				"status": "Declined",
				"response_code": 20051,
				"response_summary": "Insufficient Funds"
			}`)
		})

		res, err := gw.CreatePayment(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Approved)
		assert.Equal(t, Code("20051"), res.ResponseCode)
		assert.Equal(t, "Insufficient Funds", res.ResponseSummary)
	})

	t.Run("API error", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusUnprocessableEntity, `{
				"request_id": "req_1",
				"error_type": "request_invalid",
				"error_codes": ["token_invalid"]
			}`)
		})

		res, err := gw.CreatePayment(context.Background(), req)
		assert.Nil(t, res)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Equal(t, []string{"token_invalid"}, apiErr.ErrorCodes)
		assert.Equal(t, "token invalid", apiErr.Summary())
	})

	t.Run("Network error", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripperWithError(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset")
		})

		_, err := gw.CreatePayment(context.Background(), req)
		assert.Error(t, err)
		var apiErr *APIError
		assert.False(t, errors.As(err, &apiErr))
	})

	t.Run("Invalid input", func(t *testing.T) {
		_, err := gw.CreatePayment(context.Background(), PaymentRequest{Amount: 100, Currency: "USD"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestGateway_GetPayment(t *testing.T) {
	gw := NewGateway(Options{Environment: "live", SecretKey: "sk_live"}).(*gateway)

	t.Run("Success", func(t *testing.T) {
		raw := `{
			"id": "pay_123",
			"requested_on": "2024-05-01T10:00:00Z",
			"status": "Declined",
			"amount": 2500,
			"currency": "USD",
			"reference": "501",
			"actions": [{"id": "act_1", "type": "Authorization", "response_code": "20087", "response_summary": "Bad Track Data"}]
		}`
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, "GET", r.Method)
			assert.Equal(t, "https://api.checkout.com/payments/pay_123", r.URL.String())
			assert.Equal(t, "sk_live", r.Header.Get("Authorization"))
			return jsonResponse(http.StatusOK, raw)
		})

		p, body, err := gw.GetPayment(context.Background(), "pay_123")
		require.NoError(t, err)
		assert.Equal(t, StatusDeclined, p.PaymentStatus())
		assert.JSONEq(t, raw, string(body))

		act := p.FirstAction()
		require.NotNil(t, act)
		assert.Equal(t, Code("20087"), act.ResponseCode)

		id, ok := p.ReferenceID()
		assert.True(t, ok)
		assert.Equal(t, int64(501), id)
	})

	t.Run("Not found", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusNotFound, ``)
		})

		_, _, err := gw.GetPayment(context.Background(), "pay_missing")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})

	t.Run("Empty object", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, `{}`)
		})

		_, _, err := gw.GetPayment(context.Background(), "pay_empty")
		assert.ErrorIs(t, err, ErrEmptyPayment)
	})

	t.Run("Missing id", func(t *testing.T) {
		_, _, err := gw.GetPayment(context.Background(), " ")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestPaymentStatus(t *testing.T) {
	tests := []struct {
		in          string
		userSuccess bool
		completes   bool
		pending     bool
	}{
		{"Authorized", true, true, false},
		{"CAPTURED", true, true, false},
		{"Paid", true, true, false},
		{"Pending", true, false, true},
		{"Partially Captured", true, false, false},
		{"Deferred Capture", true, false, false},
		{"Card Verified", false, true, false},
		{"Declined", false, false, false},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := ParsePaymentStatus(tt.in)
			assert.Equal(t, tt.userSuccess, s.IsUserSuccess())
			assert.Equal(t, tt.completes, s.Completes())
			assert.Equal(t, tt.pending, s.IsPending())
		})
	}
}
