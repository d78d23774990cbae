package jwtverifier

import (
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-growth-auth"
)

// Claims is the token payload accepted and minted by the verifier. The
// firebase block is read so tokens from Firebase style issuers map their
// sign-in provider.
type Claims struct {
	jwt.RegisteredClaims
	Email         string          `json:"email"`
	EmailVerified bool            `json:"email_verified"`
	Name          string          `json:"name,omitempty"`
	Picture       string          `json:"picture,omitempty"`
	Provider      string          `json:"provider,omitempty"`
	Firebase      *FirebaseClaims `json:"firebase,omitempty"`
}

type FirebaseClaims struct {
	SignInProvider string `json:"sign_in_provider,omitempty"`
}

// ProviderHint returns the raw provider indication carried by the token.
func (c *Claims) ProviderHint() string {
	if c.Provider != "" {
		return c.Provider
	}
	if c.Firebase != nil {
		return c.Firebase.SignInProvider
	}
	return ""
}

// ToClaim maps the token payload to the verified claim.
func (c *Claims) ToClaim() *auth.Claim {
	claim := &auth.Claim{
		SubjectID:     c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		DisplayName:   c.Name,
		PhotoURL:      c.Picture,
		Provider:      auth.ParseProvider(c.ProviderHint()),
	}
	if c.IssuedAt != nil {
		claim.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		claim.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return claim
}
