package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-growth-auth"
	"github.com/google/uuid"
)

const providerName = "jwt"

// Link modes, as used by the sign-in page action handler.
const (
	ModeResetPassword = "resetPassword"
	ModeVerifyEmail   = "verifyEmail"
)

// Config holds the verification and link settings.
type Config struct {
	// SigningKey enables HS256 verification and token minting.
	SigningKey []byte
	// JWKSURLs enables asymmetric verification against remote key sets.
	JWKSURLs []string
	Issuer   string
	Audience []string
	// TokenTTL is used by Mint.
	TokenTTL time.Duration
	// LinkBaseURL prefixes generated action links.
	LinkBaseURL string
}

// Validate checks that at least one key source is configured.
func (c Config) Validate() error {
	if len(c.SigningKey) == 0 && len(c.JWKSURLs) == 0 {
		return goerrors.New("jwt verifier requires a signing key or JWKS urls", goerrors.CategoryBadInput)
	}
	return nil
}

// Verifier implements auth.IdentityVerifier for self hosted JWT issuers.
// Revocation is a per subject "not before" mark in a RevocationStore and
// link generation resolves emails through the local directory.
type Verifier struct {
	cfg         Config
	keyFunc     jwt.Keyfunc
	sets        []*keyfunc.JWKS
	revocations auth.RevocationStore
	directory   auth.Directory
	logger      auth.Logger
	now         func() time.Time
}

var _ auth.IdentityVerifier = (*Verifier)(nil)

// Option customizes a Verifier.
type Option func(*Verifier)

// WithRevocations sets the revocation store, memory by default.
func WithRevocations(store auth.RevocationStore) Option {
	return func(v *Verifier) {
		if store != nil {
			v.revocations = store
		}
	}
}

// WithDirectory enables link generation.
func WithDirectory(directory auth.Directory) Option {
	return func(v *Verifier) {
		v.directory = directory
	}
}

// WithLogger overrides the logger.
func WithLogger(logger auth.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(v *Verifier) {
		if clock != nil {
			v.now = clock
		}
	}
}

// New builds a verifier. JWKS sets are fetched once up front and refreshed
// in the background until Close.
func New(cfg Config, opts ...Option) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}

	v := &Verifier{
		cfg:         cfg,
		revocations: auth.NewMemoryRevocations(),
		logger:      auth.NoopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	for _, u := range cfg.JWKSURLs {
		set, err := keyfunc.Get(u, keyfuncOptions(v.logger))
		if err != nil {
			v.Close()
			return nil, auth.Unreachable(fmt.Errorf("failed to get JWKS %s: %w", u, err), "jwks.get")
		}
		v.sets = append(v.sets, set)
	}

	v.keyFunc = v.resolveKey
	return v, nil
}

func keyfuncOptions(logger auth.Logger) keyfunc.Options {
	return keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to do a background refresh of JWT set", "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

func (v *Verifier) resolveKey(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.cfg.SigningKey) == 0 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.cfg.SigningKey, nil
	}

	var lastErr error = fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	for _, set := range v.sets {
		key, err := set.Keyfunc(t)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Close stops background JWKS refreshes.
func (v *Verifier) Close() {
	for _, set := range v.sets {
		set.EndBackground()
	}
}

func (v *Verifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	for _, aud := range v.cfg.Audience {
		opts = append(opts, jwt.WithAudience(aud))
	}
	return opts
}

// VerifyToken parses and checks token, then applies revocation.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (*auth.Claim, error) {
	if strings.TrimSpace(token) == "" {
		return nil, auth.ErrUnauthenticated
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, v.keyFunc, v.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, auth.WithSource(auth.ErrTokenExpired, err, map[string]any{"provider": providerName})
		}
		return nil, auth.WithSource(auth.ErrTokenInvalid, err, map[string]any{"provider": providerName})
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, auth.WithSource(auth.ErrTokenInvalid, nil, map[string]any{"provider": providerName})
	}

	claim := claims.ToClaim()
	if err := claim.Validate(); err != nil {
		return nil, err
	}

	revoked, err := auth.IsRevoked(ctx, v.revocations, claim.SubjectID, claim.IssuedAt)
	if err != nil {
		return nil, auth.Unreachable(err, "revocations.get")
	}
	if revoked {
		return nil, auth.WithSource(auth.ErrTokenInvalid, nil, map[string]any{
			"provider": providerName,
			"reason":   "token revoked",
		})
	}

	return claim, nil
}

// RevokeSessions voids every token issued before now.
func (v *Verifier) RevokeSessions(ctx context.Context, subjectID string) error {
	if err := v.revocations.RevokeAll(ctx, subjectID, v.now()); err != nil {
		return auth.Unreachable(err, "revocations.set")
	}
	return nil
}

// PasswordResetLink returns a reset link for a known email.
func (v *Verifier) PasswordResetLink(ctx context.Context, email string) (string, error) {
	return v.actionLink(ctx, email, ModeResetPassword)
}

// EmailVerificationLink returns a verification link for a known email.
func (v *Verifier) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	return v.actionLink(ctx, email, ModeVerifyEmail)
}

func (v *Verifier) actionLink(ctx context.Context, email, mode string) (string, error) {
	if v.directory == nil {
		return "", auth.WithSource(auth.ErrUnexpected, nil, map[string]any{
			"provider": providerName,
			"reason":   "link generation requires a directory",
		})
	}

	if _, err := v.directory.GetByEmail(ctx, email); err != nil {
		if auth.IsNotFound(err) {
			return "", auth.WithSource(auth.ErrSubjectNotFound, err, map[string]any{"provider": providerName})
		}
		return "", auth.Unreachable(err, "directory.get_by_email")
	}

	q := url.Values{}
	q.Set("mode", mode)
	q.Set("oobCode", uuid.NewString())

	return strings.TrimRight(v.cfg.LinkBaseURL, "/") + "/auth/action?" + q.Encode(), nil
}

// MintInput describes a development token.
type MintInput struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Provider      auth.Provider
}

// Mint signs an HS256 token. It exists for local development and tests.
func (v *Verifier) Mint(in MintInput) (string, error) {
	if len(v.cfg.SigningKey) == 0 {
		return "", goerrors.New("minting requires a signing key", goerrors.CategoryBadInput)
	}

	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.cfg.Issuer,
			Subject:   in.SubjectID,
			Audience:  jwt.ClaimStrings(v.cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.cfg.TokenTTL)),
			ID:        uuid.NewString(),
		},
		Email:         in.Email,
		EmailVerified: in.EmailVerified,
		Name:          in.Name,
		Picture:       in.Picture,
		Provider:      string(in.Provider),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.cfg.SigningKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}
