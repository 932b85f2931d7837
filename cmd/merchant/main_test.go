package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-proxy/internal/config"
	"checkout-proxy/internal/metrics"
	"checkout-proxy/internal/notify"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		AppPort:      "8080",
		AppEnv:       "test",
		SharedSecret: "proxy-secret",
		Merchant: config.MerchantConfig{
			PaymentPageURL: "https://a.example/pay",
			ProxyFrameURL:  "https://b.example/frame",
			VerifyURL:      "https://b.example/api/v1/verify-3ds-session",
			PaymentMethod:  "checkout-com-proxy",
		},
		Notify: config.NotifyConfig{Driver: "log"},
	}
}

func TestNewServer(t *testing.T) {
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	t.Run("Routes are wired", func(t *testing.T) {
		srv, err := newServer(testConfig(), database, metrics.NewRegistry())
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		srv.handler.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"ok"`)

		rr = httptest.NewRecorder()
		srv.handler.ServeHTTP(rr, httptest.NewRequest("POST", "/api/v1/callback", nil))
		assert.Equal(t, http.StatusForbidden, rr.Code)

		srv.shutdown()
	})

	t.Run("Unknown notify driver", func(t *testing.T) {
		cfg := testConfig()
		cfg.Notify.Driver = "pigeon"

		_, err := newServer(cfg, database, metrics.NewRegistry())
		assert.ErrorIs(t, err, notify.ErrUnknownDriver)
	})
}
