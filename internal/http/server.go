package http

import (
	"context"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/peoplehub/integration-gateway/internal/auth"
	"github.com/peoplehub/integration-gateway/internal/config"
	"github.com/peoplehub/integration-gateway/internal/emitter"
	"github.com/peoplehub/integration-gateway/internal/http/middleware"
	"github.com/peoplehub/integration-gateway/internal/metrics"
	"github.com/peoplehub/integration-gateway/internal/ratelimit"
	"github.com/peoplehub/integration-gateway/internal/repository"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	eventsRepo := repository.NewEventsRepository(mysqlDB)
	subsRepo := repository.NewSubscriptionsRepository(mysqlDB)
	deliveriesRepo := repository.NewDeliveriesRepository(mysqlDB)
	credsRepo := repository.NewCredentialsRepository(mysqlDB)

	// repos (ClickHouse)
	chAttemptsRepo := repository.NewCHAttemptsRepository(clickhouseDB)

	// services
	emitSvc := emitter.New(eventsRepo, subsRepo, deliveriesRepo)
	authn := auth.NewAuthenticator(credsRepo)
	limiter := ratelimit.New(rds, cfg.RateLimit.Window, "rl:key:")

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(authn)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Limiter:      limiter,
		DefaultLimit: cfg.RateLimit.DefaultLimit,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/events", emitEventHandler(emitSvc))
	v1.GET("/deliveries", listDeliveriesHandler(deliveriesRepo, subsRepo))
	v1.GET("/reports/deliveries", deliveryReportHandler(chAttemptsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
