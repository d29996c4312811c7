package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ehr/healthbridge/internal/config"
	"github.com/ehr/healthbridge/internal/domain/healthrecord"
	"github.com/ehr/healthbridge/internal/platform/auth"
	"github.com/ehr/healthbridge/internal/platform/channel"
	"github.com/ehr/healthbridge/internal/platform/db"
	"github.com/ehr/healthbridge/internal/platform/middleware"
	"github.com/ehr/healthbridge/internal/platform/websocket"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openStore builds the configured store. The pool is nil for the memory store.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (healthrecord.Store, *pgxpool.Pool, error) {
	version, err := cfg.Platform()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		store, err := healthrecord.NewPGStore(ctx, pool, version, cfg.HealthDataAvailable)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().Str("platform", version.String()).Msg("using postgres store")
		return store, pool, nil

	default:
		var store *healthrecord.MemoryStore
		if cfg.FixtureFile != "" {
			store, err = healthrecord.LoadFixture(cfg.FixtureFile, version)
			if err != nil {
				return nil, nil, err
			}
		} else {
			store = healthrecord.NewMemoryStore(version)
		}
		if !cfg.HealthDataAvailable {
			store.SetAvailable(false)
		}
		logger.Info().
			Str("platform", store.PlatformVersion().String()).
			Str("fixture", cfg.FixtureFile).
			Msg("using memory store")
		return store, nil, nil
	}
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		Schema:   cfg.DBSchema,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}

// newRouter wires the health record methods onto a channel router.
func newRouter(cfg *config.Config, store healthrecord.Store, logger zerolog.Logger, metrics *healthrecord.Metrics) *channel.Router {
	router := channel.NewRouter(cfg.ChannelName, logger)
	handler := healthrecord.NewHandler(
		store,
		healthrecord.NewNegotiator(store, logger, metrics),
		healthrecord.NewOrchestrator(store, logger, metrics),
	)
	handler.RegisterMethods(router)
	return router
}

type server struct {
	echo   *echo.Echo
	router *channel.Router
	loop   *channel.Loop
	hub    *websocket.Hub
}

// newServer assembles the HTTP surface. pinger may be nil when no database is
// in use. The returned loop must be started with Run before serving.
func newServer(cfg *config.Config, store healthrecord.Store, pinger db.Pinger, logger zerolog.Logger, reg *prometheus.Registry) *server {
	metrics := healthrecord.NewMetrics(reg)
	router := newRouter(cfg, store, logger, metrics)
	loop := channel.NewLoop(256)
	hub := websocket.NewHub()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Infrastructure endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":              "ok",
			"channel":             router.Name(),
			"healthDataAvailable": store.IsHealthDataAvailable(),
			"platformVersion":     store.PlatformVersion().String(),
			"websocketClients":    hub.ClientCount(),
		})
	})
	if pinger != nil {
		e.GET("/health/db", db.HealthHandler(pinger))
	}
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	scope := auth.RequireScope(auth.ScopeReadHealth)

	channel.NewHTTPHandler(router, loop, cfg.ReplyTimeout).
		RegisterRoutes(e.Group("/channel", scope, rateLimit))
	websocket.NewHandler(hub, router, logger).
		RegisterRoutes(e.Group(""), scope, rateLimit)

	return &server{echo: e, router: router, loop: loop, hub: hub}
}

// newRegistry returns a registry with the Go runtime and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (s *server) shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	err := s.echo.Shutdown(ctx)
	s.loop.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
