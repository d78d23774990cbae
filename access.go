package auth

import (
	"net/url"
	"sync"
)

// AccessRequirement is what a page declares about who may see it. An
// administrator or role requirement implies RequireAuth.
type AccessRequirement struct {
	RequireAuth          bool
	RequireAdministrator bool
	AllowedRoles         []Role
}

// IdentityState is the ambient identity as currently known.
type IdentityState struct {
	User    *UserRecord
	Loading bool
}

// AccessStatus is the coarse outcome of Decide.
type AccessStatus string

const (
	AccessLoading      AccessStatus = "loading"
	AccessAuthorized   AccessStatus = "authorized"
	AccessUnauthorized AccessStatus = "unauthorized"
)

// RedirectReason names the unmet condition behind a redirect.
type RedirectReason string

const (
	ReasonSignInRequired        RedirectReason = "sign_in_required"
	ReasonAdministratorRequired RedirectReason = "administrator_required"
	ReasonRoleNotAllowed        RedirectReason = "role_not_allowed"
)

// Human readable messages carried in the sign-in redirect.
var redirectMessages = map[RedirectReason]string{
	ReasonSignInRequired:        "Please sign in to access this page",
	ReasonAdministratorRequired: "Administrator access required",
	ReasonRoleNotAllowed:        "Your role does not allow access to this page",
}

// RedirectMessage returns the message attached to reason.
func RedirectMessage(reason RedirectReason) string {
	return redirectMessages[reason]
}

func (r AccessRequirement) needsAuth() bool {
	return r.RequireAuth || r.RequireAdministrator || len(r.AllowedRoles) > 0
}

// Redirect is a navigation the decision asks for.
type Redirect struct {
	Target string
	Reason RedirectReason
}

// AccessDecision is recomputed from scratch on every input change.
type AccessDecision struct {
	Status   AccessStatus
	Identity *UserRecord
	Redirect *Redirect
}

// Loading reports the loading state.
func (d AccessDecision) Loading() bool {
	return d.Status == AccessLoading
}

// Authorized reports the authorized state.
func (d AccessDecision) Authorized() bool {
	return d.Status == AccessAuthorized
}

// AccessPaths are the redirect destinations.
type AccessPaths struct {
	SignIn       string
	Unauthorized string
}

// DefaultAccessPaths returns /auth and /unauthorized.
func DefaultAccessPaths() AccessPaths {
	return AccessPaths{
		SignIn:       "/auth",
		Unauthorized: "/unauthorized",
	}
}

// SignInURL builds the sign-in redirect carrying the original location and
// a reason message.
func (p AccessPaths) SignInURL(location string, reason RedirectReason) string {
	q := url.Values{}
	if location != "" {
		q.Set("redirect", location)
	}
	if msg := RedirectMessage(reason); msg != "" {
		q.Set("reason", msg)
	}
	if len(q) == 0 {
		return p.SignIn
	}
	return p.SignIn + "?" + q.Encode()
}

// Decide evaluates, in order: loading, auth not required, signed out,
// administrator requirement, role set requirement. Administrator status is
// read from the record role only.
func Decide(state IdentityState, req AccessRequirement, location string, paths AccessPaths) AccessDecision {
	if state.Loading {
		return AccessDecision{Status: AccessLoading}
	}

	if !req.needsAuth() {
		return AccessDecision{Status: AccessAuthorized, Identity: state.User}
	}

	if state.User == nil {
		return AccessDecision{
			Status: AccessUnauthorized,
			Redirect: &Redirect{
				Target: paths.SignInURL(location, ReasonSignInRequired),
				Reason: ReasonSignInRequired,
			},
		}
	}

	if req.RequireAdministrator && !state.User.Role.IsAdministrator() {
		return AccessDecision{
			Status:   AccessUnauthorized,
			Identity: state.User,
			Redirect: &Redirect{Target: paths.Unauthorized, Reason: ReasonAdministratorRequired},
		}
	}

	if len(req.AllowedRoles) > 0 && !RoleIn(state.User.Role, req.AllowedRoles) {
		return AccessDecision{
			Status:   AccessUnauthorized,
			Identity: state.User,
			Redirect: &Redirect{Target: paths.Unauthorized, Reason: ReasonRoleNotAllowed},
		}
	}

	return AccessDecision{Status: AccessAuthorized, Identity: state.User}
}

// Navigator performs redirects.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(target string) {
	if f != nil {
		f(target)
	}
}

// AccessController re-derives the decision on every input change and
// triggers at most one redirect per unmet condition at a given location.
type AccessController struct {
	mu        sync.Mutex
	navigator Navigator
	paths     AccessPaths
	pending   string
}

// NewAccessController builds a controller.
func NewAccessController(navigator Navigator, paths AccessPaths) *AccessController {
	if paths.SignIn == "" || paths.Unauthorized == "" {
		def := DefaultAccessPaths()
		if paths.SignIn == "" {
			paths.SignIn = def.SignIn
		}
		if paths.Unauthorized == "" {
			paths.Unauthorized = def.Unauthorized
		}
	}
	return &AccessController{navigator: navigator, paths: paths}
}

// Evaluate recomputes the decision and navigates if a new redirect is due.
func (c *AccessController) Evaluate(state IdentityState, req AccessRequirement, location string) AccessDecision {
	decision := Decide(state, req, location, c.paths)

	c.mu.Lock()
	if decision.Redirect == nil {
		c.pending = ""
		c.mu.Unlock()
		return decision
	}

	key := string(decision.Redirect.Reason) + "|" + location
	if c.pending == key {
		c.mu.Unlock()
		return decision
	}
	c.pending = key
	c.mu.Unlock()

	if c.navigator != nil {
		c.navigator.Navigate(decision.Redirect.Target)
	}
	return decision
}
