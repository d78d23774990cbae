package main

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration, read from GROWTH_* variables.
type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	Addr      string `envconfig:"ADDR" default:":8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	DirectoryDriver string `envconfig:"DIRECTORY_DRIVER" default:"sqlite"`
	DirectoryDSN    string `envconfig:"DIRECTORY_DSN" default:"file:growth.db?cache=shared"`
	MongoURI        string `envconfig:"MONGO_URI" default:"mongodb://127.0.0.1:27017"`
	MongoDatabase   string `envconfig:"MONGO_DATABASE" default:"growth"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	LockTTL        time.Duration `envconfig:"LOCK_TTL" default:"10s"`
	RevocationKeep time.Duration `envconfig:"REVOCATION_RETENTION" default:"720h"`

	Verifier          string   `envconfig:"VERIFIER" default:"jwt"`
	Auth0Domain       string   `envconfig:"AUTH0_DOMAIN"`
	Auth0Audience     []string `envconfig:"AUTH0_AUDIENCE"`
	Auth0ClientID     string   `envconfig:"AUTH0_CLIENT_ID"`
	Auth0ClientSecret string   `envconfig:"AUTH0_CLIENT_SECRET"`
	Auth0ResultURL    string   `envconfig:"AUTH0_RESULT_URL"`
	JWTSigningKey     string   `envconfig:"JWT_SIGNING_KEY"`
	JWTIssuer         string   `envconfig:"JWT_ISSUER"`
	JWTAudience       []string `envconfig:"JWT_AUDIENCE"`
	JWKSURLs          []string `envconfig:"JWKS_URLS"`
	LinkBaseURL       string   `envconfig:"LINK_BASE_URL" default:"http://localhost:8080"`

	SessionCookie    string   `envconfig:"SESSION_COOKIE" default:"auth-token"`
	SignInPath       string   `envconfig:"SIGN_IN_PATH" default:"/auth"`
	UnauthorizedPath string   `envconfig:"UNAUTHORIZED_PATH" default:"/unauthorized"`
	PublicRoutes     []string `envconfig:"PUBLIC_ROUTES"`
	ProtectedRoutes  []string `envconfig:"PROTECTED_ROUTES"`
	ChromelessRoutes []string `envconfig:"CHROMELESS_ROUTES"`
	BypassPrefixes   []string `envconfig:"BYPASS_PREFIXES"`
	UnlistedRoutes   string   `envconfig:"UNLISTED_ROUTES" default:"deny"`

	APIPrefix       string        `envconfig:"API_PREFIX" default:"/api/auth"`
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"60"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// TrustedProxies are the peer addresses allowed to set ProxyHeader.
	// Requests from anyone else are keyed by their socket address.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
	ProxyHeader    string   `envconfig:"PROXY_HEADER" default:"X-Real-IP"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("GROWTH", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on combinations the server cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.DirectoryDriver) {
	case "sqlite", "postgres":
		if c.DirectoryDSN == "" {
			return errors.New("directory dsn must be provided")
		}
	case "mongo":
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return errors.New("mongo uri and database must be provided")
		}
	default:
		return errors.New("directory driver must be one of sqlite, postgres, mongo")
	}

	switch strings.ToLower(c.Verifier) {
	case "auth0":
		if c.Auth0Domain == "" {
			return errors.New("auth0 verifier requires a domain")
		}
		if len(c.Auth0Audience) == 0 {
			return errors.New("auth0 verifier requires an audience")
		}
	case "jwt":
		if c.JWTSigningKey == "" && len(c.JWKSURLs) == 0 {
			return errors.New("jwt verifier requires a signing key or jwks urls")
		}
	default:
		return errors.New("verifier must be one of auth0, jwt")
	}

	switch strings.ToLower(c.UnlistedRoutes) {
	case "deny", "allow":
	default:
		return errors.New("unlisted routes policy must be deny or allow")
	}

	if c.RateLimitMax <= 0 {
		return errors.New("rate limit max must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
