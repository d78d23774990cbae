package routeguard

import (
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
)

const (
	// HeaderPathname carries the resolved path to downstream handlers.
	HeaderPathname = "X-Pathname"
	// HeaderChromeless is set to "1" on sections rendered without site chrome.
	HeaderChromeless = "X-Layout-Chromeless"

	// LocalsPathname is the fiber locals key for the resolved path.
	LocalsPathname = "pathname"
	// LocalsChromeless is the fiber locals key for the chrome flag.
	LocalsChromeless = "chromeless"
	// LocalsClassification holds the Classification.
	LocalsClassification = "route_classification"

	// ReasonSignInRequired is the redirect reason label for metrics.
	ReasonSignInRequired = "sign_in_required"

	defaultReasonMessage = "Please sign in to access this page"
)

// Config for the guard middleware.
type Config struct {
	Routes RouteTable

	// CookieName is the session cookie whose presence is required. Its value
	// is never inspected here.
	CookieName string

	// SignInPath is where unauthenticated requests are sent.
	SignInPath string

	// ReasonMessage is the human readable reason added to the redirect.
	ReasonMessage string

	// OnRedirect is called for every redirect issued, e.g. to count them.
	OnRedirect func(path, reason string)

	// Logger receives one debug line per redirect.
	Logger Logger
}

// Logger is the subset of the auth logger this package needs.
type Logger interface {
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// DefaultConfig returns the guard defaults.
func DefaultConfig() Config {
	return Config{
		Routes:        DefaultRouteTable(),
		CookieName:    "auth-token",
		SignInPath:    "/auth",
		ReasonMessage: defaultReasonMessage,
		Logger:        nopLogger{},
	}
}

func configDefault(config ...Config) Config {
	def := DefaultConfig()
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Routes.Public == nil && cfg.Routes.Protected == nil && cfg.Routes.Bypass == nil {
		cfg.Routes = def.Routes
	}
	if cfg.Routes.Unlisted == "" {
		cfg.Routes.Unlisted = UnlistedDeny
	}
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.SignInPath == "" {
		cfg.SignInPath = def.SignInPath
	}
	if cfg.ReasonMessage == "" {
		cfg.ReasonMessage = def.ReasonMessage
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return cfg
}

// New returns the guard. It checks cookie presence only; token validity is
// the protected handler's job.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		p := c.Path()
		class := cfg.Routes.Classify(p)

		if class == Bypass {
			return c.Next()
		}

		if class == Protected && c.Cookies(cfg.CookieName) == "" {
			target := RedirectURL(cfg.SignInPath, c.OriginalURL(), cfg.ReasonMessage)
			if cfg.OnRedirect != nil {
				cfg.OnRedirect(p, ReasonSignInRequired)
			}
			cfg.Logger.Debug("route guard redirect", "path", p, "target", target)
			return c.Redirect(target, redirectStatus(c.Method()))
		}

		annotate(c, p, cfg.Routes.IsChromeless(p), class)
		return c.Next()
	}
}

// RedirectURL builds the sign-in URL carrying the original location.
func RedirectURL(signIn, original, reason string) string {
	q := url.Values{}
	q.Set("redirect", original)
	if reason != "" {
		q.Set("reason", reason)
	}
	return signIn + "?" + q.Encode()
}

func annotate(c *fiber.Ctx, p string, chromeless bool, class Classification) {
	c.Request().Header.Set(HeaderPathname, p)
	c.Locals(LocalsPathname, p)
	c.Locals(LocalsClassification, class)
	if chromeless {
		c.Request().Header.Set(HeaderChromeless, "1")
		c.Locals(LocalsChromeless, true)
	}
}

func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
