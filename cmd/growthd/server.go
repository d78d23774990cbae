package main

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	auth "github.com/goliatone/go-growth-auth"
	"github.com/goliatone/go-growth-auth/activitymap"
	"github.com/goliatone/go-growth-auth/middleware/routeguard"
	"github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type server struct {
	cfg      *Config
	logger   *glog.BaseLogger
	stores   *stores
	verifier auth.IdentityVerifier
	registry *prometheus.Registry
	metrics  *auth.Metrics
}

func (s *server) routeTable() routeguard.RouteTable {
	table := routeguard.DefaultRouteTable()
	if len(s.cfg.PublicRoutes) > 0 {
		table.Public = s.cfg.PublicRoutes
	}
	if len(s.cfg.ProtectedRoutes) > 0 {
		table.Protected = s.cfg.ProtectedRoutes
	}
	if len(s.cfg.ChromelessRoutes) > 0 {
		table.Chromeless = s.cfg.ChromelessRoutes
	}
	if len(s.cfg.BypassPrefixes) > 0 {
		table.Bypass = s.cfg.BypassPrefixes
	}
	table.Unlisted = routeguard.ParseUnlistedPolicy(s.cfg.UnlistedRoutes)
	return table
}

func (s *server) cookie() auth.SessionCookie {
	return auth.SessionCookie{
		Name:     s.cfg.SessionCookie,
		Duration: 24 * time.Hour,
		Secure:   s.cfg.IsProduction(),
	}
}

// fiberConfig only honours the proxy header when the peer is a configured
// proxy, so c.IP cannot be chosen by the client.
func (s *server) fiberConfig() fiber.Config {
	cfg := fiber.Config{
		AppName:                 "growthd",
		DisableStartupMessage:   s.cfg.IsProduction(),
		EnableTrustedProxyCheck: true,
		TrustedProxies:          s.cfg.TrustedProxies,
		EnableIPValidation:      true,
	}
	if len(s.cfg.TrustedProxies) > 0 {
		cfg.ProxyHeader = s.cfg.ProxyHeader
	}
	return cfg
}

// rateLimitKey keys the limiter on the resolved peer address. ClientOrigin
// reads client supplied headers and is only fit for the audit trail.
func rateLimitKey(c *fiber.Ctx) string {
	return c.IP()
}

func (s *server) build() *fiber.App {
	app := fiber.New(s.fiberConfig())

	app.Use(recover.New())
	app.Use(requestid.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	guardLogger := s.logger.GetLogger("guard")
	app.Use(routeguard.New(routeguard.Config{
		Routes:     s.routeTable(),
		CookieName: s.cfg.SessionCookie,
		SignInPath: s.cfg.SignInPath,
		OnRedirect: func(_ string, reason string) {
			s.metrics.ObserveGuardRedirect(reason)
		},
		Logger: guardLogger,
	}))

	syncLogger := s.logger.GetLogger("sync")
	httpLogger := s.logger.GetLogger("http")

	engine := auth.NewSyncEngine(s.stores.directory, s.stores.activity,
		auth.WithSyncLocker(s.stores.locker),
		auth.WithSyncLogger(syncLogger),
		auth.WithSyncMetrics(s.metrics),
	)

	terminator := auth.NewSessionTerminator(s.verifier,
		auth.WithTerminatorLogger(s.logger.GetLogger("logout")),
		auth.WithTerminatorMetrics(s.metrics),
		auth.WithTerminatorActivityLog(s.stores.activity),
	)

	links := auth.NewRequestAccountLinkHandler(s.verifier, s.stores.directory, s.stores.activity, s.logger.GetLogger("links")).
		WithMetrics(s.metrics)

	api := app.Group(s.cfg.APIPrefix, limiter.New(limiter.Config{
		Max:          s.cfg.RateLimitMax,
		Expiration:   s.cfg.RateLimitWindow,
		KeyGenerator: rateLimitKey,
	}))

	auth.RegisterAccountRoutes(api,
		auth.WithAccountDebug(!s.cfg.IsProduction()),
		auth.WithAccountLogger(httpLogger),
		auth.WithAccountEngine(engine),
		auth.WithAccountVerifier(s.verifier),
		auth.WithAccountTerminator(terminator),
		auth.WithAccountLinks(links),
		auth.WithAccountCookie(s.cookie()),
		auth.WithAccountBearerListeners(auth.RejectInactiveRecords(s.stores.directory)),
		auth.WithAccountFeedMapper(func(entries []*auth.ActivityLogEntry) any {
			return activitymap.NormalizeAll(entries)
		}),
	)

	pages := auth.NewPageAuthenticator(s.verifier, s.stores.directory,
		auth.WithPageCookie(s.cookie()),
		auth.WithPagePaths(auth.AccessPaths{
			SignIn:       s.cfg.SignInPath,
			Unauthorized: s.cfg.UnauthorizedPath,
		}),
		auth.WithPageLogger(guardLogger),
		auth.WithPageMetrics(s.metrics),
	)

	member := pages.RequireAccess(auth.AccessRequirement{RequireAuth: true})
	admin := pages.RequireAccess(auth.AccessRequirement{RequireAuth: true, RequireAdministrator: true})

	for _, p := range []string{"/dashboard", "/dashboard/*", "/profile", "/settings", "/orders"} {
		app.Get(p, member, pageState)
	}
	app.Get("/admin", admin, pageState)
	app.Get("/admin/*", admin, pageState)

	app.Get(s.cfg.UnauthorizedPath, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusForbidden).JSON(auth.Envelope{
			Success: false,
			Message: "You do not have access to this page",
		})
	})

	return app
}

// pageState reports what a server rendered page would receive from the
// guard and the access check.
func pageState(c *fiber.Ctx) error {
	record, _ := auth.RecordFromFiber(c)
	chromeless, _ := c.Locals(routeguard.LocalsChromeless).(bool)

	data := fiber.Map{
		"pathname":   c.Locals(routeguard.LocalsPathname),
		"chromeless": chromeless,
	}
	if identity, ok := auth.IdentityFromContext(c.UserContext()); ok {
		data["role"] = identity.Role()
	}

	return c.JSON(auth.Envelope{
		Success: true,
		User:    record,
		Data:    data,
	})
}
