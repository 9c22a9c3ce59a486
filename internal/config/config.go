// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Identity provider backends.
const (
	IdentityGoTrue = "gotrue"
	IdentityLocal  = "local"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the BFF HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// AppBaseURL is the SPA origin the browser is sent back to after OAuth.
	AppBaseURL string `mapstructure:"APP_BASE_URL"`
	// OAuthRedirectURL is where the identity provider sends the browser after OAuth. Defaults to
	// the BFF's own /auth/callback.
	OAuthRedirectURL string `mapstructure:"OAUTH_REDIRECT_URL"`
	// DefaultCountryCode is prefilled in the phone form (e.g. "+44").
	DefaultCountryCode string `mapstructure:"DEFAULT_COUNTRY_CODE"`

	// IdentityProvider selects the backend: "gotrue" or "local".
	IdentityProvider string `mapstructure:"IDENTITY_PROVIDER"`
	// GoTrueURL is the base URL of the GoTrue-compatible auth API (e.g. https://x.supabase.co/auth/v1).
	GoTrueURL string `mapstructure:"GOTRUE_URL"`
	// GoTrueAnonKey is sent as the apikey header on every GoTrue request.
	GoTrueAnonKey string `mapstructure:"GOTRUE_ANON_KEY"`
	// GoTrueJWTSecret is the HS256 secret access tokens are signed with. Optional; when empty
	// tokens are trusted as returned by the provider.
	GoTrueJWTSecret string `mapstructure:"GOTRUE_JWT_SECRET"`

	// ProfileDirectoryURL is the base URL of the profile webhook service.
	ProfileDirectoryURL string `mapstructure:"PROFILE_DIRECTORY_URL"`
	// ProfileDirectoryAPIKey is sent as a bearer token to the webhook. Optional.
	ProfileDirectoryAPIKey string `mapstructure:"PROFILE_DIRECTORY_API_KEY"`
	// ProfileDirectoryTimeout bounds each webhook call (e.g. "5s").
	ProfileDirectoryTimeout string `mapstructure:"PROFILE_DIRECTORY_TIMEOUT"`

	// FlowTTL is how long an idle browser flow is kept (e.g. "30m").
	FlowTTL string `mapstructure:"FLOW_TTL"`
	// CookieSecure marks the flow cookie Secure. Defaults to true outside development.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	// DatabaseURL is the Postgres DSN for the audit trail; empty disables persistence.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL enables the shared OTP rate limiter (e.g. redis://localhost:6379/0). Empty uses an
	// in-process limiter.
	RedisURL string `mapstructure:"REDIS_URL"`
	// OTPRateLimit is the number of OTP sends allowed per client per OTPRateWindow; 0 disables.
	OTPRateLimit int `mapstructure:"OTP_RATE_LIMIT"`
	// OTPRateWindow is the rate limit window (e.g. "10m").
	OTPRateWindow string `mapstructure:"OTP_RATE_WINDOW"`

	// SMSLocalAPIKey is the API key for SMS Local (local provider OTP delivery).
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// SMTP settings for email OTP delivery by the local provider.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// OTPReturnToClient when true enables dev OTP mode: nothing is delivered and codes are served
	// from GET /dev/otp. Must not be true when Env is production (rejected by Load).
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// OTLPEndpoint is the OpenTelemetry collector (e.g. localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTLPSampleRatio is the fraction of new traces kept (0 < r <= 1).
	OTLPSampleRatio float64 `mapstructure:"OTEL_TRACES_SAMPLER_ARG"`
	// ServiceName is reported as service.name in telemetry and logs.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_BASE_URL", "http://localhost:5173")
	v.SetDefault("OAUTH_REDIRECT_URL", "")
	v.SetDefault("DEFAULT_COUNTRY_CODE", "+44")
	v.SetDefault("IDENTITY_PROVIDER", IdentityLocal)
	v.SetDefault("GOTRUE_URL", "")
	v.SetDefault("GOTRUE_ANON_KEY", "")
	v.SetDefault("GOTRUE_JWT_SECRET", "")
	v.SetDefault("PROFILE_DIRECTORY_URL", "")
	v.SetDefault("PROFILE_DIRECTORY_API_KEY", "")
	v.SetDefault("PROFILE_DIRECTORY_TIMEOUT", "5s")
	v.SetDefault("FLOW_TTL", "30m")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("OTP_RATE_LIMIT", 5)
	v.SetDefault("OTP_RATE_WINDOW", "10m")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "accountability-auth")
	v.SetDefault("OTEL_TRACES_SAMPLER_ARG", 1.0)
	// COOKIE_SECURE has no static default; it follows APP_ENV unless set.
	v.SetDefault("COOKIE_SECURE", v.GetString("APP_ENV") != "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.OTPReturnToClient && cfg.IsProduction() {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	cfg.IdentityProvider = strings.ToLower(strings.TrimSpace(cfg.IdentityProvider))
	switch cfg.IdentityProvider {
	case IdentityGoTrue:
		if cfg.GoTrueURL == "" {
			return nil, errors.New("config: GOTRUE_URL must be set when IDENTITY_PROVIDER=gotrue")
		}
	case IdentityLocal:
		if cfg.IsProduction() {
			return nil, errors.New("config: IDENTITY_PROVIDER=local must not be used when APP_ENV=production")
		}
	default:
		return nil, errors.New("config: IDENTITY_PROVIDER must be gotrue or local")
	}
	if cfg.ProfileDirectoryURL == "" && cfg.IsProduction() {
		return nil, errors.New("config: PROFILE_DIRECTORY_URL must be set when APP_ENV=production")
	}
	if cfg.OTLPSampleRatio <= 0 || cfg.OTLPSampleRatio > 1 {
		return nil, errors.New("config: OTEL_TRACES_SAMPLER_ARG must be in (0, 1]")
	}
	if cfg.OTPRateLimit < 0 {
		return nil, errors.New("config: OTP_RATE_LIMIT must not be negative")
	}

	return &cfg, nil
}

// IsProduction reports whether Env is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// FlowIdleTTL parses FlowTTL. Returns 30m if unset or invalid.
func (c *Config) FlowIdleTTL() time.Duration {
	return parseDuration(c.FlowTTL, 30*time.Minute)
}

// DirectoryTimeout parses ProfileDirectoryTimeout. Returns 5s if unset or invalid.
func (c *Config) DirectoryTimeout() time.Duration {
	return parseDuration(c.ProfileDirectoryTimeout, 5*time.Second)
}

// RateWindow parses OTPRateWindow. Returns 10m if unset or invalid.
func (c *Config) RateWindow() time.Duration {
	return parseDuration(c.OTPRateWindow, 10*time.Minute)
}

// CallbackURL is the OAuth redirect target: OAuthRedirectURL if set, else the BFF's
// /auth/callback on HTTPAddr.
func (c *Config) CallbackURL() string {
	if c.OAuthRedirectURL != "" {
		return c.OAuthRedirectURL
	}
	host := c.HTTPAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/auth/callback"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
