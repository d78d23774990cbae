package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-growth-auth/middleware/jwtware"
	"github.com/goliatone/go-print"
)

// LocalsRecordKey is the fiber locals key RequireAccess stores the record under.
const LocalsRecordKey = "auth.record"

// Envelope is the JSON shape every account endpoint responds with.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	User    *UserRecord `json:"user,omitempty"`
	Error   string      `json:"error,omitempty"`
	Link    string      `json:"link,omitempty"`
	Data    any         `json:"data,omitempty"`
}

var kindMessages = map[ErrorKind]string{
	KindUnauthenticated: "Authentication required",
	KindTokenExpired:    "Your session has expired, please sign in again",
	KindTokenInvalid:    "Invalid authentication token",
	KindSubjectNotFound: "Account not found",
	KindNotFound:        "User not found",
	KindEmailConflict:   "This email is already associated with another account",
	KindValidation:      "The request is invalid",
}

const internalErrorMessage = "An unexpected error occurred"

// ErrorEnvelope maps err to a status and a non leaking envelope.
func ErrorEnvelope(err error) (int, Envelope) {
	kind := ErrorKindOf(err)
	status := StatusFor(err)

	msg, ok := kindMessages[kind]
	if !ok || status == http.StatusInternalServerError {
		return http.StatusInternalServerError, Envelope{
			Success: false,
			Message: internalErrorMessage,
			Error:   string(KindUnexpected),
		}
	}

	env := Envelope{Success: false, Message: msg, Error: string(kind)}
	if kind == KindValidation {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			if reason, ok := richErr.Metadata["reason"].(string); ok && reason != "" {
				env.Message = reason
			}
		}
	}
	return status, env
}

// WriteError logs err and writes the matching envelope.
func WriteError(c *fiber.Ctx, logger Logger, err error) error {
	status, env := ErrorEnvelope(err)

	args := []any{
		"path", c.Path(),
		"status", status,
		"kind", env.Error,
		"error", err,
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && len(richErr.Metadata) > 0 {
		args = append(args, "details", print.MaybePrettyJSON(richErr.Metadata))
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", args...)
	} else {
		logger.Debug("request rejected", args...)
	}

	return c.Status(status).JSON(env)
}

// classifyBearerError turns middleware failures into taxonomy errors.
func classifyBearerError(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	switch {
	case IsTokenExpiredError(err):
		return WithSource(ErrTokenExpired, err, nil)
	case IsMalformedError(err):
		return WithSource(ErrUnauthenticated, err, nil)
	default:
		return WithSource(ErrTokenInvalid, err, nil)
	}
}

// BearerMiddleware verifies the Authorization header and stores the Claim
// under LocalsClaimKey and in the user context. Listeners run after
// verification and may still reject the request.
func BearerMiddleware(verifier IdentityVerifier, logger Logger, listeners ...ValidationListener) fiber.Handler {
	logger = normalizeLogger(logger)
	cfg := jwtware.Config{
		ContextKey: LocalsClaimKey,
		Verify: func(ctx context.Context, token string) (any, error) {
			return verifier.VerifyToken(ctx, token)
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return WriteError(c, logger, classifyBearerError(err))
		},
		ContextEnricher: ClaimContextEnricher,
	}
	RegisterValidationListeners(&cfg, listeners...)
	return jwtware.New(cfg)
}

// SessionCookie describes the opaque session cookie the route guard checks.
type SessionCookie struct {
	Name     string
	Duration time.Duration
	Secure   bool
}

// DefaultSessionCookie returns the auth-token cookie.
func DefaultSessionCookie() SessionCookie {
	return SessionCookie{
		Name:     "auth-token",
		Duration: 24 * time.Hour,
		Secure:   true,
	}
}

// Set writes the cookie.
func (s SessionCookie) Set(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     s.Name,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.Duration),
		HTTPOnly: true,
		Secure:   s.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Clear expires the cookie.
func (s SessionCookie) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   s.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// PageAuthenticator evaluates access decisions for server rendered pages
// from the session cookie.
type PageAuthenticator struct {
	verifier  IdentityVerifier
	directory Directory
	cookie    SessionCookie
	paths     AccessPaths
	logger    Logger
	metrics   *Metrics
}

// PageAuthenticatorOption customizes a PageAuthenticator.
type PageAuthenticatorOption func(*PageAuthenticator)

// WithPageCookie overrides the session cookie.
func WithPageCookie(cookie SessionCookie) PageAuthenticatorOption {
	return func(p *PageAuthenticator) {
		if cookie.Name != "" {
			p.cookie = cookie
		}
	}
}

// WithPagePaths overrides the redirect targets.
func WithPagePaths(paths AccessPaths) PageAuthenticatorOption {
	return func(p *PageAuthenticator) {
		if paths.SignIn != "" {
			p.paths.SignIn = paths.SignIn
		}
		if paths.Unauthorized != "" {
			p.paths.Unauthorized = paths.Unauthorized
		}
	}
}

// WithPageLogger overrides the logger.
func WithPageLogger(logger Logger) PageAuthenticatorOption {
	return func(p *PageAuthenticator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPageMetrics sets the collectors.
func WithPageMetrics(metrics *Metrics) PageAuthenticatorOption {
	return func(p *PageAuthenticator) {
		p.metrics = metrics
	}
}

// NewPageAuthenticator builds the page access checker.
func NewPageAuthenticator(verifier IdentityVerifier, directory Directory, opts ...PageAuthenticatorOption) *PageAuthenticator {
	p := &PageAuthenticator{
		verifier:  verifier,
		directory: directory,
		cookie:    DefaultSessionCookie(),
		paths:     DefaultAccessPaths(),
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// RequireAccess enforces req for the wrapped routes. Authorized requests get
// the record in locals and in the user context.
func (p *PageAuthenticator) RequireAccess(req AccessRequirement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		record, err := p.currentRecord(c)
		if err != nil {
			return p.errorHandler(c, err)
		}

		decision := Decide(IdentityState{User: record}, req, c.OriginalURL(), p.paths)
		if decision.Redirect != nil {
			p.metrics.ObserveGuardRedirect(string(decision.Redirect.Reason))
			p.logger.Info("access denied, redirecting",
				"path", c.OriginalURL(),
				"reason", string(decision.Redirect.Reason),
				"target", decision.Redirect.Target,
			)
			return c.Redirect(decision.Redirect.Target, redirectStatus(c.Method()))
		}

		if decision.Identity != nil {
			c.Locals(LocalsRecordKey, decision.Identity)
			c.SetUserContext(WithRecordContext(c.UserContext(), decision.Identity))
		}
		return c.Next()
	}
}

// currentRecord resolves the cookie to an active record. Verification and
// lookup misses mean "signed out", store failures are errors.
func (p *PageAuthenticator) currentRecord(c *fiber.Ctx) (*UserRecord, error) {
	token := c.Cookies(p.cookie.Name)
	if token == "" {
		return nil, nil
	}

	ctx := RequestContext(c)
	claim, err := p.verifier.VerifyToken(ctx, token)
	if err != nil {
		if ErrorKindOf(err) == KindUnreachable {
			return nil, err
		}
		p.logger.Debug("session cookie rejected", "kind", string(ErrorKindOf(err)))
		p.cookie.Clear(c)
		return nil, nil
	}

	record, err := p.directory.GetBySubject(ctx, claim.SubjectID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !record.IsActive {
		return nil, nil
	}
	return record, nil
}

func (p *PageAuthenticator) errorHandler(c *fiber.Ctx, err error) error {
	p.logger.Error("page access check failed", "path", c.OriginalURL(), "error", err)
	return c.Status(http.StatusInternalServerError).SendString(internalErrorMessage)
}

// RecordFromFiber returns the record stored by RequireAccess.
func RecordFromFiber(c *fiber.Ctx) (*UserRecord, bool) {
	record, ok := c.Locals(LocalsRecordKey).(*UserRecord)
	return record, ok && record != nil
}

func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
