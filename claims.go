package auth

import (
	"strings"
	"time"
)

// Claim is the decoded, verified payload of a bearer token.
type Claim struct {
	SubjectID     string    `json:"subject_id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	DisplayName   string    `json:"display_name,omitempty"`
	PhotoURL      string    `json:"photo_url,omitempty"`
	Provider      Provider  `json:"provider"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NormalizedEmail is the lowercased, trimmed email used for lookups.
func (c Claim) NormalizedEmail() string {
	return NormalizeEmail(c.Email)
}

// Validate checks the claim carries what reconciliation needs.
func (c Claim) Validate() error {
	if strings.TrimSpace(c.SubjectID) == "" {
		return WithSource(ErrTokenInvalid, nil, map[string]any{"reason": "missing subject"})
	}
	if err := ValidateEmail(c.Email); err != nil {
		return WithSource(ErrTokenInvalid, err, map[string]any{"reason": "missing or invalid email"})
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
