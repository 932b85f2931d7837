package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingSetting = errors.New("missing required setting")

type Config struct {
	AppEnv  string
	AppPort string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBURL      string

	// SharedSecret signs every Merchant <-> Payment Service exchange.
	SharedSecret string

	Merchant MerchantConfig
	Gateway  GatewayConfig
	Dispatch DispatchConfig
	Notify   NotifyConfig
}

// MerchantConfig is read by the Merchant Service (Site A).
type MerchantConfig struct {
	PaymentPageURL  string
	ProxyFrameURL   string
	VerifyURL       string
	ConfirmationURL string
	HomeURL         string
	PaymentMethod   string
	VerifyTimeout   time.Duration
}

// GatewayConfig is read by the Payment Service (Site B).
type GatewayConfig struct {
	Environment         string
	SecretKey           string
	PublicKey           string
	ProcessingChannelID string
	WebhookSecret       string
	WebhookAuthKey      string
	Enable3DS           bool

	SiteAHomeURL        string
	SiteAPaymentPageURL string
	SiteAValidationURL  string
	SiteACallbackURL    string

	FrameTokenSecret string
	FrameTokenTTL    time.Duration
	LookupTimeout    time.Duration
}

type DispatchConfig struct {
	Timeout    time.Duration
	MaxRetries int
	Workers    int
}

type NotifyConfig struct {
	Driver       string
	BrevoAPIKey  string
	BrevoDelay   time.Duration
	KafkaBrokers []string
	KafkaTopic   string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:       os.Getenv("APP_ENV"),
		AppPort:      getEnv("APP_PORT", "8080"),
		DBHost:       os.Getenv("DB_HOST"),
		DBUser:       os.Getenv("DB_USER"),
		DBPassword:   os.Getenv("DB_PASSWORD"),
		DBName:       os.Getenv("DB_NAME"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBURL:        os.Getenv("DB_URL"),
		SharedSecret: os.Getenv("PROXY_SHARED_SECRET"),
		Merchant: MerchantConfig{
			PaymentPageURL:  os.Getenv("PAYMENT_PAGE_URL"),
			ProxyFrameURL:   os.Getenv("SITE_B_PROXY_URL"),
			VerifyURL:       os.Getenv("SITE_B_VERIFY_URL"),
			ConfirmationURL: os.Getenv("CONFIRMATION_URL"),
			HomeURL:         getEnv("HOME_URL", "/"),
			PaymentMethod:   getEnv("PAYMENT_METHOD", "checkout-com-proxy"),
			VerifyTimeout:   getDuration("VERIFY_TIMEOUT", 15*time.Second),
		},
		Gateway: GatewayConfig{
			Environment:         getEnv("CKO_ENVIRONMENT", "sandbox"),
			SecretKey:           os.Getenv("CKO_SECRET_KEY"),
			PublicKey:           os.Getenv("CKO_PUBLIC_KEY"),
			ProcessingChannelID: os.Getenv("CKO_PROCESSING_CHANNEL_ID"),
			WebhookSecret:       os.Getenv("CKO_WEBHOOK_SECRET"),
			WebhookAuthKey:      os.Getenv("CKO_WEBHOOK_AUTH_KEY"),
			Enable3DS:           getBool("CKO_ENABLE_3DS", false),
			SiteAHomeURL:        os.Getenv("SITE_A_HOME_URL"),
			SiteAPaymentPageURL: os.Getenv("SITE_A_PAYMENT_PAGE_URL"),
			SiteAValidationURL:  os.Getenv("SITE_A_VALIDATION_URL"),
			SiteACallbackURL:    os.Getenv("SITE_A_CALLBACK_URL"),
			FrameTokenSecret:    os.Getenv("FRAME_TOKEN_SECRET"),
			FrameTokenTTL:       getDuration("FRAME_TOKEN_TTL", 30*time.Minute),
			LookupTimeout:       getDuration("LOOKUP_TIMEOUT", 60*time.Second),
		},
		Dispatch: DispatchConfig{
			Timeout:    getDuration("CALLBACK_TIMEOUT", 15*time.Second),
			MaxRetries: getInt("CALLBACK_MAX_RETRIES", 3),
			Workers:    getInt("CALLBACK_WORKERS", 2),
		},
		Notify: NotifyConfig{
			Driver:       strings.ToLower(getEnv("NOTIFY_DRIVER", "log")),
			BrevoAPIKey:  os.Getenv("BREVO_API_KEY"),
			BrevoDelay:   getDuration("BREVO_DELAY", 30*time.Minute),
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "payment-events"),
		},
	}
}

// ValidateMerchant reports the first setting Site A cannot run without.
func (c *Config) ValidateMerchant() error {
	if c.DBHost == "" && c.DBURL == "" {
		return missing("DB_HOST")
	}
	return require(map[string]string{
		"PROXY_SHARED_SECRET": c.SharedSecret,
		"PAYMENT_PAGE_URL":    c.Merchant.PaymentPageURL,
		"SITE_B_PROXY_URL":    c.Merchant.ProxyFrameURL,
		"SITE_B_VERIFY_URL":   c.Merchant.VerifyURL,
	})
}

// ValidateGateway reports the first setting Site B cannot run without.
func (c *Config) ValidateGateway() error {
	if err := require(map[string]string{
		"PROXY_SHARED_SECRET":   c.SharedSecret,
		"CKO_SECRET_KEY":        c.Gateway.SecretKey,
		"CKO_PUBLIC_KEY":        c.Gateway.PublicKey,
		"SITE_A_HOME_URL":       c.Gateway.SiteAHomeURL,
		"SITE_A_VALIDATION_URL": c.Gateway.SiteAValidationURL,
		"SITE_A_CALLBACK_URL":   c.Gateway.SiteACallbackURL,
		"FRAME_TOKEN_SECRET":    c.Gateway.FrameTokenSecret,
	}); err != nil {
		return err
	}
	if c.Gateway.Enable3DS && c.Gateway.SiteAPaymentPageURL == "" {
		return missing("SITE_A_PAYMENT_PAGE_URL")
	}
	if c.Gateway.Environment != "sandbox" && c.Gateway.Environment != "live" {
		return fmt.Errorf("CKO_ENVIRONMENT must be sandbox or live, got %q", c.Gateway.Environment)
	}
	return nil
}

func require(settings map[string]string) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	// stable error message
	sort.Strings(keys)
	for _, k := range keys {
		if strings.TrimSpace(settings[k]) == "" {
			return missing(k)
		}
	}
	return nil
}

func missing(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingSetting, name)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
