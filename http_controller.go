package auth

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-growth-auth/middleware/jwtware"
)

// RegisterAccountRoutes mounts the account API on router and returns the
// controller serving it.
func RegisterAccountRoutes(router fiber.Router, opts ...AccountControllerOption) *AccountController {
	controller := NewAccountController(opts...)

	bearer := BearerMiddleware(controller.Verifier, controller.Logger, controller.BearerListeners...)

	router.Post(controller.Routes.Sync, bearer, controller.Sync).Name("account.sync")
	router.Get(controller.Routes.Me, bearer, controller.Me).Name("account.me")
	router.Put(controller.Routes.Profile, bearer, controller.UpdateProfile).Name("account.profile")
	router.Delete(controller.Routes.Account, bearer, controller.DeleteAccount).Name("account.delete")
	router.Get(controller.Routes.Activity, bearer, controller.Activity).Name("account.activity")

	router.Post(controller.Routes.Logout, controller.Logout).Name("account.logout")
	router.Post(controller.Routes.PasswordReset, controller.PasswordReset).Name("account.password_reset")
	router.Post(controller.Routes.EmailVerification, controller.EmailVerification).Name("account.email_verification")

	return controller
}

type AccountControllerRoutes struct {
	Sync              string
	Me                string
	Profile           string
	Account           string
	Logout            string
	PasswordReset     string
	EmailVerification string
	Activity          string
}

type AccountController struct {
	// Debug echoes action links in responses. Never enable in production.
	Debug      bool
	Logger     Logger
	Engine     *SyncEngine
	Verifier   IdentityVerifier
	Terminator *SessionTerminator
	Links      *RequestAccountLinkHandler
	Cookie     SessionCookie
	Routes     *AccountControllerRoutes

	// FeedMapper shapes activity entries for the feed endpoint. Entries are
	// returned as stored when nil.
	FeedMapper func([]*ActivityLogEntry) any

	// BearerListeners run after token verification on bearer routes.
	BearerListeners []ValidationListener
}

type AccountControllerOption func(*AccountController) *AccountController

// WithAccountDebug toggles link echoing.
func WithAccountDebug(debug bool) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Debug = debug
		return a
	}
}

func WithAccountLogger(logger Logger) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		if logger != nil {
			a.Logger = logger
		}
		return a
	}
}

func WithAccountEngine(engine *SyncEngine) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Engine = engine
		return a
	}
}

func WithAccountVerifier(verifier IdentityVerifier) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Verifier = verifier
		return a
	}
}

func WithAccountTerminator(terminator *SessionTerminator) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Terminator = terminator
		return a
	}
}

func WithAccountLinks(links *RequestAccountLinkHandler) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Links = links
		return a
	}
}

func WithAccountCookie(cookie SessionCookie) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		if cookie.Name != "" {
			a.Cookie = cookie
		}
		return a
	}
}

func WithAccountFeedMapper(mapper func([]*ActivityLogEntry) any) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.FeedMapper = mapper
		return a
	}
}

func WithAccountBearerListeners(listeners ...ValidationListener) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.BearerListeners = append(a.BearerListeners, listeners...)
		return a
	}
}

func WithAccountRoutes(routes *AccountControllerRoutes) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		if routes != nil {
			a.Routes = routes
		}
		return a
	}
}

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger: defLogger{},
		Cookie: DefaultSessionCookie(),
		Routes: &AccountControllerRoutes{
			Sync:              "/sync",
			Me:                "/me",
			Profile:           "/profile",
			Account:           "/account",
			Logout:            "/logout",
			PasswordReset:     "/password-reset",
			EmailVerification: "/email-verification",
			Activity:          "/activity",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Engine == nil {
		panic("Missing SyncEngine in account controller...")
	}

	if c.Verifier == nil {
		panic("Missing IdentityVerifier in account controller...")
	}

	if c.Terminator == nil {
		c.Terminator = NewSessionTerminator(c.Verifier,
			WithTerminatorLogger(c.Logger),
			WithTerminatorActivityLog(c.Engine.activity),
			WithTerminatorMetrics(c.Engine.metrics),
		)
	}

	if c.Links == nil {
		c.Links = NewRequestAccountLinkHandler(c.Verifier, c.Engine.directory, c.Engine.activity, c.Logger).
			WithMetrics(c.Engine.metrics)
	}

	return c
}

// Sync reconciles the caller's claim into the directory and stamps the login.
func (a *AccountController) Sync(c *fiber.Ctx) error {
	claim, ok := ClaimFromFiber(c)
	if !ok {
		return WriteError(c, a.Logger, ErrUnauthenticated)
	}

	ctx := RequestContext(c)
	record, err := a.Engine.Reconcile(ctx, *claim)
	if err != nil {
		return WriteError(c, a.Logger, err)
	}

	a.Engine.TouchLogin(ctx, record.SubjectID)
	now := stamp(a.Engine.Now())
	record.LastLoginAt = &now

	return c.JSON(Envelope{
		Success: true,
		Message: "User synchronized",
		User:    record,
	})
}

// Me returns the caller's record.
func (a *AccountController) Me(c *fiber.Ctx) error {
	claim, ok := ClaimFromFiber(c)
	if !ok {
		return WriteError(c, a.Logger, ErrUnauthenticated)
	}

	record, err := a.Engine.directory.GetBySubject(RequestContext(c), claim.SubjectID)
	if err != nil {
		return WriteError(c, a.Logger, Unreachable(err, "directory.get"))
	}

	return c.JSON(Envelope{
		Success: true,
		Message: "User found",
		User:    record,
	})
}

// UpdateProfile changes display_name and profile fields.
func (a *AccountController) UpdateProfile(c *fiber.Ctx) error {
	claim, ok := ClaimFromFiber(c)
	if !ok {
		return WriteError(c, a.Logger, ErrUnauthenticated)
	}

	payload := ProfileUpdate{}
	if err := c.BodyParser(&payload); err != nil {
		return WriteError(c, a.Logger, WithSource(ErrValidation, err, map[string]any{
			"reason": "Failed to parse request body",
		}))
	}

	record, err := a.Engine.UpdateProfile(RequestContext(c), claim.SubjectID, payload)
	if err != nil {
		return WriteError(c, a.Logger, Unreachable(err, "directory.update_profile"))
	}

	return c.JSON(Envelope{
		Success: true,
		Message: "Profile updated",
		User:    record,
	})
}

// DeleteAccount removes the caller's account, then revokes their sessions
// best effort.
func (a *AccountController) DeleteAccount(c *fiber.Ctx) error {
	claim, ok := ClaimFromFiber(c)
	if !ok {
		return WriteError(c, a.Logger, ErrUnauthenticated)
	}

	ctx := RequestContext(c)
	if err := a.Engine.DeleteAccount(ctx, claim.SubjectID); err != nil {
		return WriteError(c, a.Logger, Unreachable(err, "sync.delete_account"))
	}

	res := a.Terminator.RevokeSubject(ctx, claim.SubjectID)
	if !res.Revoked() {
		a.Logger.Warn("account deleted but sessions were not revoked", "subject_id", claim.SubjectID)
	}

	a.Cookie.Clear(c)

	return c.JSON(Envelope{
		Success: true,
		Message: "Account deleted",
	})
}

// Logout always succeeds for the caller. The internal outcome is logged and
// counted by the terminator.
func (a *AccountController) Logout(c *fiber.Ctx) error {
	token, _ := jwtware.ExtractRawToken(c, jwtware.GetExtractors("header:"+fiber.HeaderAuthorization, "Bearer"))

	res := a.Terminator.Logout(RequestContext(c), token)
	a.Logger.Debug("logout", "outcome", string(res.Outcome))

	a.Cookie.Clear(c)

	return c.JSON(Envelope{
		Success: true,
		Message: "Signed out",
	})
}

// PasswordReset requests a password reset link.
func (a *AccountController) PasswordReset(c *fiber.Ctx) error {
	return a.requestLink(c, LinkPasswordReset, "If an account exists for this email, a password reset link has been sent")
}

// EmailVerification requests an email verification link.
func (a *AccountController) EmailVerification(c *fiber.Ctx) error {
	return a.requestLink(c, LinkEmailVerification, "If an account exists for this email, a verification link has been sent")
}

func (a *AccountController) requestLink(c *fiber.Ctx, kind AccountLinkKind, message string) error {
	payload := EmailRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return WriteError(c, a.Logger, WithSource(ErrValidation, err, map[string]any{
			"reason": "Failed to parse request body",
		}))
	}

	var res *RequestAccountLinkResponse
	msg := RequestAccountLinkMessage{
		Kind:  kind,
		Email: payload.Email,
		OnResponse: func(resp *RequestAccountLinkResponse) {
			res = resp
		},
	}

	if err := a.Links.Execute(RequestContext(c), msg); err != nil {
		return WriteError(c, a.Logger, err)
	}

	env := Envelope{Success: true, Message: message}
	if a.Debug && res != nil {
		env.Link = res.Link
	}
	return c.JSON(env)
}

// Activity lists the caller's own audit trail.
func (a *AccountController) Activity(c *fiber.Ctx) error {
	claim, ok := ClaimFromFiber(c)
	if !ok {
		return WriteError(c, a.Logger, ErrUnauthenticated)
	}

	limit := DefaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return WriteError(c, a.Logger, WithSource(ErrValidation, err, map[string]any{
				"reason": "limit must be a positive integer",
			}))
		}
		limit = min(n, maxActivityLimit)
	}

	entries, err := a.Engine.Activity(RequestContext(c), claim.SubjectID, limit)
	if err != nil {
		return WriteError(c, a.Logger, Unreachable(err, "activity.list"))
	}

	var data any = entries
	if a.FeedMapper != nil {
		data = a.FeedMapper(entries)
	}

	return c.JSON(Envelope{
		Success: true,
		Message: "Activity found",
		Data:    data,
	})
}
