package auth0

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-growth-auth"
)

const providerName = "auth0"

// TokenValidator validates Auth0-issued JWTs using JWKS.
type TokenValidator struct {
	config       Config
	validator    *validator.Validator
	claimsMapper ClaimsMapper
}

// NewTokenValidator creates a new Auth0 token validator.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	issuer := cfg.issuerURL()
	if issuer == "" {
		return nil, fmt.Errorf("auth0: issuer or domain is required")
	}

	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("auth0: invalid issuer URL: %w", err)
	}
	if issuerURL.Scheme == "" || issuerURL.Host == "" {
		return nil, fmt.Errorf("auth0: invalid issuer URL: %s", issuer)
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	provider := jwks.NewCachingProvider(issuerURL, cacheTTL)

	customClaims := cfg.CustomClaims
	if customClaims == nil {
		customClaims = func() validator.CustomClaims {
			return &Auth0CustomClaims{}
		}
	}

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		cfg.Audience,
		validator.WithCustomClaims(customClaims),
	)
	if err != nil {
		return nil, fmt.Errorf("auth0: failed to create validator: %w", err)
	}

	mapper := cfg.ClaimsMapper
	if mapper == nil {
		mapper = &Auth0ClaimsMapper{}
	}

	return &TokenValidator{
		config:       cfg,
		validator:    jwtValidator,
		claimsMapper: mapper,
	}, nil
}

// Validate checks signature, issuer, audience and expiry and maps the claims.
func (v *TokenValidator) Validate(ctx context.Context, tokenString string) (*auth.Claim, error) {
	if ctx == nil {
		ctx = context.Background()
		if v.config.ContextFunc != nil {
			ctx = v.config.ContextFunc()
		}
	}

	token, err := v.validator.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	validatedClaims, ok := token.(*validator.ValidatedClaims)
	if !ok || validatedClaims == nil {
		return nil, auth.WithSource(auth.ErrTokenInvalid, nil, map[string]any{"provider": providerName})
	}

	claim, err := v.claimsMapper.Map(ctx, validatedClaims)
	if err != nil {
		return nil, err
	}
	if err := claim.Validate(); err != nil {
		return nil, err
	}
	return claim, nil
}

// normalizeValidationError classifies validator failures. The validator
// reports expiry through go-jose, so the message is checked as well.
func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	sentinel := auth.ErrTokenInvalid
	if stderrors.Is(err, jwt.ErrTokenExpired) || strings.Contains(err.Error(), "token is expired") {
		sentinel = auth.ErrTokenExpired
	}

	return auth.WithSource(sentinel, err, map[string]any{
		"provider": providerName,
		"cause":    err.Error(),
	})
}
