package auth0

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
)

// Config holds Auth0 configuration for token validation and the Management
// API client used for action links.
type Config struct {
	// Domain is the Auth0 tenant domain (e.g., "example.us.auth0.com").
	Domain string

	// Audience is the API identifier(s) to validate against.
	Audience []string

	// Issuer overrides the default issuer URL (optional).
	// Default: "https://{Domain}/".
	Issuer string

	// CacheTTL is how long to cache JWKS keys.
	// Default: 5 minutes.
	CacheTTL time.Duration

	// ClaimsMapper customizes claim mapping (optional).
	ClaimsMapper ClaimsMapper

	// CustomClaims defines custom claim types to extract.
	CustomClaims func() validator.CustomClaims

	// ContextFunc provides a context for JWKS fetch/validation when the
	// caller has none.
	// Default: context.Background.
	ContextFunc func() context.Context

	// ClientID and ClientSecret are the M2M credentials for the Management API.
	ClientID     string
	ClientSecret string

	// ResultURL is where users land after completing a ticket.
	ResultURL string
}

// Validate checks the settings needed to build a verifier.
func (c Config) Validate() error {
	if c.issuerURL() == "" {
		return fmt.Errorf("auth0: issuer or domain is required")
	}
	if len(c.Audience) == 0 {
		return fmt.Errorf("auth0: audience is required")
	}
	return nil
}

// managementDomain is the bare tenant host.
func (c Config) managementDomain() string {
	domain := strings.TrimSpace(c.Domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimSuffix(domain, "/")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(domain string, audience []string) Config {
	return Config{
		Domain:   domain,
		Audience: audience,
		CacheTTL: 5 * time.Minute,
	}
}

func (c Config) issuerURL() string {
	if c.Issuer != "" {
		return normalizeIssuer(c.Issuer)
	}

	domain := strings.TrimSpace(c.Domain)
	if domain == "" {
		return ""
	}

	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return normalizeIssuer(domain)
	}

	return fmt.Sprintf("https://%s/", strings.TrimSuffix(domain, "/"))
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return issuer
	}
	if strings.HasSuffix(issuer, "/") {
		return issuer
	}
	return issuer + "/"
}
