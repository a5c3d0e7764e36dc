package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubscout/hubscout/config"
	"github.com/hubscout/hubscout/internal/store"
	"github.com/hubscout/hubscout/internal/telemetry"
)

// Run starts the HTTP API and, when configured, the recurring-run
// scheduler. It blocks until the listener stops.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	registry := prometheus.NewRegistry()
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics(registry)
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	broker := telemetry.NewBroker()

	ctx := context.Background()
	var st *store.Store
	if dsn, err := cfg.Storage.Postgres.DSN(); err == nil {
		if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
			baseLogger.Printf("warn: migrations failed: %v", err)
		}
		st, err = store.NewWithDSN(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer st.Close()
	} else {
		baseLogger.Printf("warn: postgres not configured, persistence disabled: %v", err)
	}

	svcLogger := log.New(log.Writer(), "[HOST] ", log.LstdFlags)
	svc, err := NewPlannerService(cfg, st, metrics, broker, svcLogger)
	if err != nil {
		return err
	}

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	auth := &AuthHandler{Store: st, Secret: []byte(cfg.Server.JWTSecret)}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	protected := api.Group("", auth.Middleware())
	plans := &PlanHandler{Service: svc}
	plans.Register(protected)

	if cfg.Schedule.Enabled {
		sched := &Scheduler{
			Cfg:     cfg,
			Service: svc,
			Store:   st,
			Rdb:     RedisClient(cfg.Storage.Redis),
			Logger:  log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
			Stop:    make(chan struct{}),
		}
		sched.Start()
		defer close(sched.Stop)
	}

	return e.Start(cfg.Server.Address)
}
