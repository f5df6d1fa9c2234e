package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string

	// PayU credentials and endpoints.
	PayUMerchantKey string
	PayUSalt        string
	PayUBaseURL     string
	PayUSandbox     bool

	// Browser-facing pages the payment flow redirects to.
	PublicBaseURL      string
	CheckoutSuccessURL string
	CheckoutErrorURL   string
	CheckoutPendingURL string

	AccessTokenTTL   time.Duration
	CatalogCacheTTL  time.Duration
	IdempotencyTTL   time.Duration
	WebhookReplayTTL time.Duration

	// Reconciliation waiter bounds.
	ReconcilePollInterval time.Duration
	ReconcileCeiling      time.Duration

	// Bounded wait for synchronous order materialisation inside the webhook
	// handler before the work is handed to the task queue.
	MaterializeTimeout time.Duration

	CatalogDefaultLimit int
	CatalogMaxLimit     int
	PricingTaxRateBPS   int
	CurrencyCode        string

	GatewayRateLimit  string
	LockTTL           time.Duration
	LockRetryBackoff  time.Duration
	WorkerConcurrency int
}

// Load reads configuration from environment variables, with an optional .env
// file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	get := envReader{k: k}

	cfg := &Config{
		AppEnv:             get.str("APP_ENV", "development"),
		Port:               get.str("PORT", "8080"),
		DatabaseURL:        get.str("DATABASE_URL", ""),
		RedisURL:           get.str("REDIS_URL", ""),
		JWTSecret:          get.str("JWT_SECRET", ""),
		CORSAllowedOrigins: get.list("CORS_ALLOWED_ORIGINS"),

		PayUMerchantKey: get.str("PAYU_MERCHANT_KEY", ""),
		PayUSalt:        get.str("PAYU_SALT", ""),
		PayUBaseURL:     get.str("PAYU_BASE_URL", ""),
		PayUSandbox:     get.boolean("PAYU_SANDBOX", true),

		PublicBaseURL:      get.str("PUBLIC_BASE_URL", "http://localhost:8080"),
		CheckoutSuccessURL: get.str("CHECKOUT_SUCCESS_URL", "/checkout/success"),
		CheckoutErrorURL:   get.str("CHECKOUT_ERROR_URL", "/checkout/error"),
		CheckoutPendingURL: get.str("CHECKOUT_PENDING_URL", "/checkout/pending"),

		AccessTokenTTL:   get.duration("ACCESS_TOKEN_TTL", 15*time.Minute),
		CatalogCacheTTL:  get.duration("CATALOG_CACHE_TTL", 5*time.Minute),
		IdempotencyTTL:   get.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		WebhookReplayTTL: get.duration("WEBHOOK_REPLAY_TTL", 48*time.Hour),

		ReconcilePollInterval: get.duration("RECONCILE_POLL_INTERVAL", 2*time.Second),
		ReconcileCeiling:      get.duration("RECONCILE_CEILING", 60*time.Second),
		MaterializeTimeout:    get.duration("MATERIALIZE_TIMEOUT", 5*time.Second),

		CatalogDefaultLimit: get.integer("CATALOG_DEFAULT_LIMIT", 20),
		CatalogMaxLimit:     get.integer("CATALOG_MAX_LIMIT", 100),
		PricingTaxRateBPS:   get.integer("PRICING_TAX_RATE_BPS", 1100),
		CurrencyCode:        get.str("CURRENCY_CODE", "IDR"),

		GatewayRateLimit:  get.str("GATEWAY_RATE_LIMIT", "120-M"),
		LockTTL:           get.duration("LOCK_TTL", 30*time.Second),
		LockRetryBackoff:  get.duration("LOCK_RETRY_BACKOFF", 50*time.Millisecond),
		WorkerConcurrency: get.integer("WORKER_CONCURRENCY", 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"DATABASE_URL":      c.DatabaseURL,
		"REDIS_URL":         c.RedisURL,
		"JWT_SECRET":        c.JWTSecret,
		"PAYU_MERCHANT_KEY": c.PayUMerchantKey,
		"PAYU_SALT":         c.PayUSalt,
	}
	for _, name := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET", "PAYU_MERCHANT_KEY", "PAYU_SALT"} {
		if required[name] == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	switch {
	case port == "":
		return ":8080"
	case strings.HasPrefix(port, ":"):
		return port
	default:
		return ":" + port
	}
}

// envReader reads typed values from the koanf environment snapshot, falling
// back on empty or malformed input.
type envReader struct {
	k *koanf.Koanf
}

func (e envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(e.k.String(key)); v != "" {
		return v
	}
	return fallback
}

func (e envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.k.String(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e envReader) boolean(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func (e envReader) duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(e.str(key, ""))
	if err != nil {
		return fallback
	}
	return d
}

func (e envReader) integer(key string, fallback int) int {
	n, err := strconv.Atoi(e.str(key, ""))
	if err != nil {
		return fallback
	}
	return n
}
