package routeguard_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-growth-auth/middleware/routeguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	pathname   string
	chromeless bool
	headerPath string
	headerUI   string
}

func newApp(t *testing.T, cfg routeguard.Config) (*fiber.App, *seen) {
	t.Helper()

	s := &seen{}
	app := fiber.New()
	app.Use(routeguard.New(cfg))
	app.All("/*", func(c *fiber.Ctx) error {
		if v, ok := c.Locals(routeguard.LocalsPathname).(string); ok {
			s.pathname = v
		}
		if v, ok := c.Locals(routeguard.LocalsChromeless).(bool); ok {
			s.chromeless = v
		}
		s.headerPath = c.Get(routeguard.HeaderPathname)
		s.headerUI = c.Get(routeguard.HeaderChromeless)
		return c.SendString("ok")
	})
	return app, s
}

func TestGuard_ProtectedWithoutCookieRedirects(t *testing.T) {
	var redirects []string
	cfg := routeguard.DefaultConfig()
	cfg.OnRedirect = func(path, reason string) {
		redirects = append(redirects, path+"|"+reason)
	}
	app, _ := newApp(t, cfg)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/dashboard?tab=orders", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth", loc.Path)
	assert.Equal(t, "/dashboard?tab=orders", loc.Query().Get("redirect"))
	assert.Equal(t, "Please sign in to access this page", loc.Query().Get("reason"))
	assert.Equal(t, []string{"/dashboard|sign_in_required"}, redirects)
}

func TestGuard_NonGetRedirectUsesSeeOther(t *testing.T) {
	app, _ := newApp(t, routeguard.DefaultConfig())

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/settings", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestGuard_DashboardWithCookieIsChromeless(t *testing.T) {
	app, s := newApp(t, routeguard.DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "auth-token", Value: "anything"})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/dashboard", s.pathname)
	assert.Equal(t, "/dashboard", s.headerPath)
	assert.True(t, s.chromeless)
	assert.Equal(t, "1", s.headerUI)
}

func TestGuard_PublicPathIsAnnotated(t *testing.T) {
	app, s := newApp(t, routeguard.DefaultConfig())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/pricing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/pricing", s.pathname)
	assert.False(t, s.chromeless)
	assert.Empty(t, s.headerUI)
}

func TestGuard_BypassIsUntouched(t *testing.T) {
	app, s := newApp(t, routeguard.DefaultConfig())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, s.pathname)
	assert.Empty(t, s.headerPath)
}

func TestGuard_DottedProtectedPathsNeedCookie(t *testing.T) {
	app, _ := newApp(t, routeguard.DefaultConfig())

	for _, p := range []string{"/profile/jane.doe", "/dashboard/report.pdf", "/admin/users/v1.2", "/orders/ord.42"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, p, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, resp.StatusCode, p)
	}
}

func TestGuard_NoConfig(t *testing.T) {
	app := fiber.New()
	app.Use(routeguard.New())
	app.Get("/*", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth", loc.Path)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/about", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuard_UnlistedFollowsPolicy(t *testing.T) {
	deny, _ := newApp(t, routeguard.DefaultConfig())
	resp, err := deny.Test(httptest.NewRequest(http.MethodGet, "/mystery", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	cfg := routeguard.DefaultConfig()
	cfg.Routes.Unlisted = routeguard.UnlistedAllow
	allow, _ := newApp(t, cfg)
	resp, err = allow.Test(httptest.NewRequest(http.MethodGet, "/mystery", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuard_CustomCookieAndSignIn(t *testing.T) {
	app, _ := newApp(t, routeguard.Config{CookieName: "sid", SignInPath: "/login"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "x"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRedirectURL(t *testing.T) {
	got := routeguard.RedirectURL("/auth", "/orders/1", "")
	assert.Equal(t, "/auth?redirect=%2Forders%2F1", got)
}
