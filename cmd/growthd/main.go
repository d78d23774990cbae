// Command growthd serves the account API, the route guard and the page
// access checks for the growth site.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-growth-auth"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *Config) *glog.BaseLogger {
	if cfg.IsProduction() || cfg.LogFormat != "pretty" {
		return glog.NewLogger(
			glog.WithName("growthd"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}

	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("growthd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lgr := newLogger(cfg)
	logger := lgr.GetLogger("app")
	logger.Debug("configuration loaded", "routes", print.MaybePrettyJSON(map[string]any{
		"public":     cfg.PublicRoutes,
		"protected":  cfg.ProtectedRoutes,
		"chromeless": cfg.ChromelessRoutes,
		"bypass":     cfg.BypassPrefixes,
		"unlisted":   cfg.UnlistedRoutes,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, lgr.GetLogger("stores"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("close stores", "error", err)
		}
	}()

	verifier, err := newVerifier(ctx, cfg, st, lgr.GetLogger("verifier"))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &server{
		cfg:      cfg,
		logger:   lgr,
		stores:   st,
		verifier: verifier,
		registry: registry,
		metrics:  auth.NewMetrics(registry),
	}
	app := srv.build()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Addr, "directory", cfg.DirectoryDriver, "verifier", cfg.Verifier)
		return app.Listen(cfg.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
