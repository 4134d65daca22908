package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"golang.org/x/time/rate"

	"reelstream/internal/catalog"
	"reelstream/internal/client"
	"reelstream/internal/config"
	"reelstream/internal/credentials"
	"reelstream/internal/handler"
	"reelstream/internal/identity"
	"reelstream/internal/metrics"
	"reelstream/internal/middleware"
	"reelstream/internal/resolver"
	"reelstream/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("reelstream"),
		kong.Description("Video catalog API with a range-aware streaming proxy."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newEcho,
			newIdentity,
			newResolver,
			newCatalog,
			credentials.NewProvisioner,
			client.NewUpstreamClient,
			newStreamService,
			handler.NewStreamHandler,
			handler.NewVideosHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, registerMetrics, warnConfigPermissions, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 30 * time.Second
	// Media responses run as long as the client keeps watching, so writes
	// are never timed out; the request context ends them instead.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.SecurityHeaders())

	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func newIdentity(cfg *config.Config) (identity.Identity, error) {
	return identity.New(cfg.Resolver.Identity, cfg.Resolver.UserAgent)
}

// newResolver builds the one resolver this deployment uses.
func newResolver(cfg *config.Config, id identity.Identity, logger *slog.Logger) (resolver.Resolver, error) {
	switch cfg.Resolver.Strategy {
	case config.StrategyPresign:
		return resolver.NewPresign(cfg, logger)
	default:
		return resolver.NewYTDLP(cfg, id, resolver.ExecRunner{}, logger), nil
	}
}

func newStreamService(
	cfg *config.Config,
	creds *credentials.Provisioner,
	r resolver.Resolver,
	upstream *client.UpstreamClient,
	m *metrics.Metrics,
	logger *slog.Logger,
) *service.StreamService {
	logger.Info("stream proxy configured",
		"strategy", cfg.Resolver.Strategy,
		"identity", cfg.Resolver.Identity,
	)
	return service.NewStreamService(creds, r, upstream, service.Strategy(cfg.Resolver.Strategy), service.NewResolutionObserver(m), logger)
}

func newCatalog(lc fx.Lifecycle, cfg *config.Config) (*catalog.Store, error) {
	store, err := catalog.NewStore(cfg.Catalog.DBPath)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func registerMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
