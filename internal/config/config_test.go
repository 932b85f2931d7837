package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	trequire "github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5433")
		t.Setenv("APP_PORT", "9090")
		t.Setenv("APP_ENV", "test")
		t.Setenv("PROXY_SHARED_SECRET", "shh")
		t.Setenv("CKO_ENABLE_3DS", "true")
		t.Setenv("CALLBACK_TIMEOUT", "5s")
		t.Setenv("CALLBACK_MAX_RETRIES", "7")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
		t.Setenv("NOTIFY_DRIVER", "Kafka")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5433", cfg.DBPort)
		assert.Equal(t, "9090", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "shh", cfg.SharedSecret)
		assert.True(t, cfg.Gateway.Enable3DS)
		assert.Equal(t, 5*time.Second, cfg.Dispatch.Timeout)
		assert.Equal(t, 7, cfg.Dispatch.MaxRetries)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
		assert.Equal(t, "kafka", cfg.Notify.Driver)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("APP_PORT", "")
		t.Setenv("CKO_ENVIRONMENT", "")
		t.Setenv("FRAME_TOKEN_TTL", "not-a-duration")
		t.Setenv("CALLBACK_WORKERS", "-1")
		t.Setenv("NOTIFY_DRIVER", "")

		cfg := LoadConfig()

		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "sandbox", cfg.Gateway.Environment)
		assert.Equal(t, 30*time.Minute, cfg.Gateway.FrameTokenTTL)
		assert.Equal(t, 60*time.Second, cfg.Gateway.LookupTimeout)
		assert.Equal(t, 15*time.Second, cfg.Merchant.VerifyTimeout)
		assert.Equal(t, 2, cfg.Dispatch.Workers)
		assert.Equal(t, "log", cfg.Notify.Driver)
		assert.Equal(t, "payment-events", cfg.Notify.KafkaTopic)
		assert.Equal(t, "checkout-com-proxy", cfg.Merchant.PaymentMethod)
	})
}

func validMerchant() *Config {
	return &Config{
		DBHost:       "localhost",
		SharedSecret: "shh",
		Merchant: MerchantConfig{
			PaymentPageURL: "https://a.example/pay",
			ProxyFrameURL:  "https://b.example/frame",
			VerifyURL:      "https://b.example/api/v1/verify-3ds-session",
		},
	}
}

func validGateway() *Config {
	return &Config{
		SharedSecret: "shh",
		Gateway: GatewayConfig{
			Environment:        "sandbox",
			SecretKey:          "sk_test",
			PublicKey:          "pk_test",
			SiteAHomeURL:       "https://a.example",
			SiteAValidationURL: "https://a.example/api/v1/payment-details",
			SiteACallbackURL:   "https://a.example/api/v1/callback",
			FrameTokenSecret:   "frame",
		},
	}
}

func TestValidateMerchant(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validMerchant().ValidateMerchant())
	})

	t.Run("DB_URL replaces DB_HOST", func(t *testing.T) {
		cfg := validMerchant()
		cfg.DBHost = ""
		cfg.DBURL = "postgres://localhost/db"
		assert.NoError(t, cfg.ValidateMerchant())
	})

	t.Run("Missing secret", func(t *testing.T) {
		cfg := validMerchant()
		cfg.SharedSecret = "  "

		err := cfg.ValidateMerchant()
		trequire.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingSetting))
		assert.Contains(t, err.Error(), "PROXY_SHARED_SECRET")
	})

	t.Run("Missing database", func(t *testing.T) {
		cfg := validMerchant()
		cfg.DBHost = ""

		err := cfg.ValidateMerchant()
		assert.ErrorIs(t, err, ErrMissingSetting)
		assert.Contains(t, err.Error(), "DB_HOST")
	})
}

func TestValidateGateway(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validGateway().ValidateGateway())
	})

	t.Run("Missing public key", func(t *testing.T) {
		cfg := validGateway()
		cfg.Gateway.PublicKey = ""

		err := cfg.ValidateGateway()
		assert.ErrorIs(t, err, ErrMissingSetting)
		assert.Contains(t, err.Error(), "CKO_PUBLIC_KEY")
	})

	t.Run("3DS requires payment page", func(t *testing.T) {
		cfg := validGateway()
		cfg.Gateway.Enable3DS = true

		err := cfg.ValidateGateway()
		assert.ErrorIs(t, err, ErrMissingSetting)
		assert.Contains(t, err.Error(), "SITE_A_PAYMENT_PAGE_URL")

		cfg.Gateway.SiteAPaymentPageURL = "https://a.example/pay"
		assert.NoError(t, cfg.ValidateGateway())
	})

	t.Run("Unknown environment", func(t *testing.T) {
		cfg := validGateway()
		cfg.Gateway.Environment = "staging"

		err := cfg.ValidateGateway()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "staging")
	})
}
