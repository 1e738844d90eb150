package app

import (
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/coursehub/internal/gateway"
	"github.com/xenking/coursehub/internal/notify"
)

// EnvProduction is the Env value of live deployments.
const EnvProduction = "production"

// Config holds the complete application configuration, loadable from
// environment variables (COURSEHUB_ prefix), a .env file, flags, or YAML
// config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Env         string `default:"development" usage:"Deployment environment (development, staging, production)"`
	DatabaseURL string `usage:"PostgreSQL connection URL (COURSEHUB_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	BaseURL     string `default:"http://localhost:8080" usage:"Public base URL used for provider callbacks and mail links" flag:"base-url"`
	Auth        AuthConfig
	Gateway     GatewayConfig
	Webhook     WebhookConfig
	Payments    PaymentsConfig
	Mail        MailConfig
	Events      EventsConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls session token verification.
type AuthConfig struct {
	JWTSecret  string `env:"JWT_SECRET" flag:"jwt-secret" usage:"HMAC secret of session tokens"`
	CookieName string `default:"session" usage:"Cookie carrying the session token"`
}

// GatewayConfig holds payment provider credentials.
type GatewayConfig struct {
	BaseURL      string        `default:"https://sandbox.cashfree.com/pg" usage:"Provider API base URL"`
	ClientID     string        `usage:"Provider client id"`
	ClientSecret string        `usage:"Provider client secret"`
	APIVersion   string        `default:"2023-08-01" usage:"Provider API version header"`
	Timeout      time.Duration `default:"10s" usage:"Provider request timeout"`
	Provider     string        `default:"cashfree" usage:"Provider name recorded on orders"`
	Currency     string        `default:"INR" usage:"Checkout currency"`
}

// WebhookConfig controls webhook verification.
type WebhookConfig struct {
	Secret    string        `usage:"Webhook signing secret, defaults to the gateway client secret"`
	Tolerance time.Duration `default:"5m" usage:"Maximum webhook timestamp skew, 0 disables the check"`
}

// PaymentsConfig holds payment feature switches.
type PaymentsConfig struct {
	DevMock bool `default:"false" usage:"Mount the mock payment confirmation route (never in production)" flag:"dev-mock"`
}

// MailConfig configures enrollment confirmation mail. Mail is off without
// an API key.
type MailConfig struct {
	SendGridKey string `env:"SENDGRID_KEY" usage:"SendGrid API key"`
	FromName    string `default:"CourseHub" usage:"Sender name"`
	FromAddress string `default:"no-reply@coursehub.local" usage:"Sender address"`
}

// EventsConfig configures enrollment event publishing. Publishing is off
// without a broker URL.
type EventsConfig struct {
	AMQPURL  string `env:"AMQP_URL" usage:"RabbitMQ URL"`
	Exchange string `default:"coursehub.events" usage:"Fanout exchange for enrollment events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables"`
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

// LoadConfig loads and validates the server configuration, command line
// flags included.
func LoadConfig() (*Config, error) {
	cfg, err := load(aconfig.Config{})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvConfig loads configuration without parsing command line flags and
// without the server checks, for tools that own their flags and need only
// part of it.
func LoadEnvConfig() (*Config, error) {
	return load(aconfig.Config{SkipFlags: true})
}

func load(base aconfig.Config) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	base.EnvPrefix = "COURSEHUB"
	base.Files = []string{"config.yaml", "/etc/coursehub/config.yaml"}
	base.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	if err := aconfig.LoaderFor(&cfg, base).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's COURSEHUB_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Webhook.Secret == "" {
		c.Webhook.Secret = c.Gateway.ClientSecret
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set COURSEHUB_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set COURSEHUB_AUTH_JWT_SECRET")
	}
	if c.Payments.DevMock && c.isProduction() {
		return errors.New("the mock payment route cannot be enabled in production")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return errors.Wrap(err, "invalid base URL")
	}
	if c.Webhook.Tolerance < 0 {
		return errors.New("webhook tolerance must not be negative")
	}
	return nil
}

// GatewayClient returns the provider client configuration. Callbacks point
// back at this service.
func (c *Config) GatewayClient() gateway.Config {
	return gateway.Config{
		BaseURL:      c.Gateway.BaseURL,
		ClientID:     c.Gateway.ClientID,
		ClientSecret: c.Gateway.ClientSecret,
		APIVersion:   c.Gateway.APIVersion,
		Timeout:      c.Gateway.Timeout,
		ReturnURL:    c.BaseURL + "/payment/success?order_id={order_id}",
		NotifyURL:    c.BaseURL + "/api/payments/webhook",
	}
}

// Mailer returns the SendGrid configuration.
func (c *Config) Mailer() notify.MailConfig {
	return notify.MailConfig{
		APIKey:       c.Mail.SendGridKey,
		FromName:     c.Mail.FromName,
		FromAddress:  c.Mail.FromAddress,
		DashboardURL: c.BaseURL + "/dashboard",
	}
}

func (c *Config) isProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}
