package auth0

import (
	"context"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	auth "github.com/goliatone/go-growth-auth"
)

// ClaimsMapper transforms validated Auth0 claims into an auth.Claim.
type ClaimsMapper interface {
	Map(ctx context.Context, validated *validator.ValidatedClaims) (*auth.Claim, error)
}

// Auth0ClaimsMapper maps Auth0 JWT claims. Access tokens usually carry
// profile data under a namespace added by an Auth0 Action, ID tokens carry
// it at the top level; both are read.
type Auth0ClaimsMapper struct {
	Namespace string

	EmailClaimKey    string
	ProviderClaimKey string
}

// Map implements ClaimsMapper.
func (m *Auth0ClaimsMapper) Map(ctx context.Context, validated *validator.ValidatedClaims) (*auth.Claim, error) {
	if validated == nil {
		return nil, auth.WithSource(auth.ErrTokenInvalid, nil, map[string]any{"provider": providerName})
	}

	custom, ok := validated.CustomClaims.(*Auth0CustomClaims)
	if !ok || custom == nil {
		custom = &Auth0CustomClaims{}
	}

	subject := validated.RegisteredClaims.Subject

	claim := &auth.Claim{
		SubjectID:     subject,
		Email:         firstNonEmpty(m.claimString(custom, m.emailClaimKeys()...), custom.Email),
		EmailVerified: custom.EmailVerified || m.claimBool(custom, m.namespacedKey("email_verified")),
		DisplayName:   firstNonEmpty(custom.Name, m.claimString(custom, m.namespacedKey("name")), custom.Nickname),
		PhotoURL:      firstNonEmpty(custom.Picture, m.claimString(custom, m.namespacedKey("picture"))),
		Provider:      m.provider(subject, custom),
	}

	if iat := validated.RegisteredClaims.IssuedAt; iat > 0 {
		claim.IssuedAt = time.Unix(iat, 0).UTC()
	}
	if exp := validated.RegisteredClaims.Expiry; exp > 0 {
		claim.ExpiresAt = time.Unix(exp, 0).UTC()
	}

	return claim, nil
}

// provider prefers an explicit claim and falls back to the connection
// prefix of the subject, e.g. "google-oauth2|1234".
func (m *Auth0ClaimsMapper) provider(subject string, claims *Auth0CustomClaims) auth.Provider {
	if hint := m.claimString(claims, m.providerClaimKeys()...); hint != "" {
		return auth.ParseProvider(hint)
	}
	if idx := strings.Index(subject, "|"); idx > 0 {
		return auth.ParseProvider(subject[:idx])
	}
	return auth.ProviderPassword
}

func (m *Auth0ClaimsMapper) emailClaimKeys() []string {
	return uniqueKeys(
		m.EmailClaimKey,
		m.namespacedKey("email"),
	)
}

func (m *Auth0ClaimsMapper) providerClaimKeys() []string {
	return uniqueKeys(
		m.ProviderClaimKey,
		m.namespacedKey("provider"),
	)
}

func (m *Auth0ClaimsMapper) claimString(claims *Auth0CustomClaims, keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val, ok := claimValue(claims, key); ok {
			if str, ok := val.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

func (m *Auth0ClaimsMapper) claimBool(claims *Auth0CustomClaims, key string) bool {
	if key == "" {
		return false
	}
	val, ok := claimValue(claims, key)
	if !ok {
		return false
	}
	b, _ := val.(bool)
	return b
}

func (m *Auth0ClaimsMapper) namespacePrefix() string {
	namespace := strings.TrimSpace(m.Namespace)
	if namespace == "" {
		return ""
	}
	if strings.HasSuffix(namespace, "/") || strings.HasSuffix(namespace, ":") {
		return namespace
	}
	return namespace + "/"
}

func (m *Auth0ClaimsMapper) namespacedKey(key string) string {
	if key == "" {
		return ""
	}
	prefix := m.namespacePrefix()
	if prefix == "" {
		return ""
	}
	return prefix + key
}

func claimValue(claims *Auth0CustomClaims, key string) (any, bool) {
	if claims == nil || key == "" {
		return nil, false
	}
	if claims.Raw != nil {
		if val, ok := claims.Raw[key]; ok {
			return val, true
		}
	}
	if claims.Metadata != nil {
		if val, ok := claims.Metadata[key]; ok {
			return val, true
		}
	}
	return nil, false
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func uniqueKeys(values ...string) []string {
	seen := map[string]struct{}{}
	keys := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		keys = append(keys, value)
	}
	return keys
}
