package auth0

import (
	"context"
	"strings"
	"time"

	"github.com/auth0/go-auth0/management"
	auth "github.com/goliatone/go-growth-auth"
)

// Verifier implements auth.IdentityVerifier for an Auth0 tenant.
type Verifier struct {
	tokens      *TokenValidator
	mgmt        ManagementAPI
	revocations auth.RevocationStore
	resultURL   string
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

// WithResultURL sets where ticket flows send users when done.
func WithResultURL(resultURL string) Option {
	return func(v *Verifier) {
		v.resultURL = strings.TrimSpace(resultURL)
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

// NewVerifier composes token validation with the management client.
func NewVerifier(tokens *TokenValidator, mgmt ManagementAPI, opts ...Option) *Verifier {
	v := &Verifier{
		tokens:      tokens,
		mgmt:        mgmt,
		revocations: auth.NewMemoryRevocations(),
		logger:      auth.NoopLogger(),
		now:         time.Now,
	}
	if tokens != nil {
		v.resultURL = tokens.config.ResultURL
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// VerifyToken validates token and rejects it when it predates the
// subject's revocation mark.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (*auth.Claim, error) {
	if strings.TrimSpace(token) == "" {
		return nil, auth.ErrUnauthenticated
	}

	claim, err := v.tokens.Validate(ctx, token)
	if err != nil {
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

// RevokeSessions marks every token issued so far as void.
func (v *Verifier) RevokeSessions(ctx context.Context, subjectID string) error {
	if err := v.revocations.RevokeAll(ctx, subjectID, v.now()); err != nil {
		return auth.Unreachable(err, "revocations.set")
	}
	v.logger.Debug("auth0 sessions revoked", "subject_id", subjectID)
	return nil
}

// PasswordResetLink creates a change password ticket.
func (v *Verifier) PasswordResetLink(ctx context.Context, email string) (string, error) {
	return v.ticket(ctx, email, "password_reset", v.mgmt.ChangePasswordTicket)
}

// EmailVerificationLink creates an email verification ticket.
func (v *Verifier) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	return v.ticket(ctx, email, "email_verification", v.mgmt.VerifyEmailTicket)
}

func (v *Verifier) ticket(ctx context.Context, email, op string, create func(context.Context, *management.Ticket) error) (string, error) {
	userID, err := v.userIDByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	t := newTicket(userID, v.resultURL)
	if err := create(ctx, t); err != nil {
		return "", auth.Unreachable(err, "auth0."+op)
	}

	link := t.GetTicket()
	if link == "" {
		return "", auth.WithSource(auth.ErrUnexpected, nil, map[string]any{
			"provider":  providerName,
			"operation": op,
			"reason":    "empty ticket",
		})
	}
	return link, nil
}

func (v *Verifier) userIDByEmail(ctx context.Context, email string) (string, error) {
	email = auth.NormalizeEmail(email)
	users, err := v.mgmt.ListUsersByEmail(ctx, email)
	if err != nil {
		return "", auth.Unreachable(err, "auth0.list_users_by_email")
	}
	for _, u := range users {
		if id := u.GetID(); id != "" {
			return id, nil
		}
	}
	return "", auth.WithSource(auth.ErrSubjectNotFound, nil, map[string]any{"provider": providerName})
}
