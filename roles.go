package auth

import "strings"

// Role is the authorization level stored on a UserRecord.
type Role string

const (
	// RoleStandard is assigned to every record on first sync.
	RoleStandard Role = "standard"
	// RoleAdministrator can reach administrative sections.
	RoleAdministrator Role = "administrator"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStandard, RoleAdministrator:
		return true
	default:
		return false
	}
}

// IsAdministrator only looks at the role itself.
func (r Role) IsAdministrator() bool {
	return r == RoleAdministrator
}

// ParseRole normalizes a stored or configured role, unknown values map to standard.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.IsValid() {
		return r
	}
	return RoleStandard
}

// RoleIn reports membership of r in roles.
func RoleIn(r Role, roles []Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

// Provider is how the subject authenticates at the identity authority.
type Provider string

const (
	ProviderPassword Provider = "password"
	ProviderGoogle   Provider = "federated-google"
)

// IsValid checks the closed provider set.
func (p Provider) IsValid() bool {
	return p == ProviderPassword || p == ProviderGoogle
}

// ParseProvider maps the provider hints found in tokens onto the closed set.
func ParseProvider(hint string) Provider {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "google", "google.com", "google-oauth2", string(ProviderGoogle):
		return ProviderGoogle
	default:
		return ProviderPassword
	}
}
