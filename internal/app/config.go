package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (COMMERCE_ prefix), flags, a .env file or YAML
// config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (COMMERCE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	VaultSecret  string `usage:"Secret the credential encryption key is derived from" flag:"vault-secret"`
	FX           FXConfig
	Shipping     ShippingConfig
	Notify       NotifyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// FXConfig configures the exchange rate provider and cache.
type FXConfig struct {
	BaseURL     string        `default:"https://economia.awesomeapi.com.br" usage:"Quote service base URL" flag:"fx-base-url"`
	Pair        string        `default:"USD-BRL" usage:"Quote currency pair"`
	Timeout     time.Duration `default:"5s" usage:"Quote request timeout"`
	Freshness   time.Duration `default:"1h" usage:"How long a fetched rate is served from cache"`
	DefaultRate string        `default:"5.00" usage:"Rate used when no rate was ever fetched" flag:"fx-default-rate"`

	defaultRate decimal.Decimal
}

// ShippingConfig is the flat shipping policy.
type ShippingConfig struct {
	FreeThreshold string `default:"299.00" usage:"Subtotal from which shipping is free" flag:"shipping-free-threshold"`
	FlatFee       string `default:"19.90" usage:"Shipping fee below the threshold" flag:"shipping-flat-fee"`

	freeThreshold decimal.Decimal
	flatFee       decimal.Decimal
}

// NotifyConfig configures order event delivery. Events are only logged
// when WebhookURL is empty.
type NotifyConfig struct {
	WebhookURL string        `usage:"URL order events are POSTed to" flag:"notify-webhook-url"`
	Timeout    time.Duration `default:"5s" usage:"Webhook request timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from .env, environment variables, YAML
// config files and flags, then validates it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "COMMERCE",
		Files:     []string{"config.yaml", "/etc/commerce/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set COMMERCE_DATABASE_URL or DATABASE_URL")
	}
	if c.VaultSecret == "" {
		return errors.New("vault secret is required: set COMMERCE_VAULT_SECRET")
	}

	for _, v := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"fx default rate", c.FX.DefaultRate, &c.FX.defaultRate},
		{"shipping free threshold", c.Shipping.FreeThreshold, &c.Shipping.freeThreshold},
		{"shipping flat fee", c.Shipping.FlatFee, &c.Shipping.flatFee},
	} {
		d, err := decimal.NewFromString(v.raw)
		if err != nil {
			return errors.Wrapf(err, "parse %s", v.name)
		}
		if d.IsNegative() {
			return errors.Errorf("%s must not be negative", v.name)
		}
		*v.dst = d
	}
	if !c.FX.defaultRate.IsPositive() {
		return errors.New("fx default rate must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's COMMERCE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
