package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/florrin/calagenda/api/swagger"
	"github.com/florrin/calagenda/internal/handler"
	"github.com/florrin/calagenda/internal/middleware"
	"github.com/florrin/calagenda/internal/nip52"
	"github.com/florrin/calagenda/internal/publisher"
	"github.com/florrin/calagenda/internal/repository"
	"github.com/florrin/calagenda/internal/service"
	"github.com/florrin/calagenda/pkg/cache"
	"github.com/florrin/calagenda/pkg/config"
	"github.com/florrin/calagenda/pkg/database"
	"github.com/florrin/calagenda/pkg/logger"
	corsmiddleware "github.com/florrin/calagenda/pkg/middleware/cors"
	reqidmiddleware "github.com/florrin/calagenda/pkg/middleware/requestid"
)

// @title Calagenda API
// @version 0.1.0
// @description Calendar record reconciliation and agenda service
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The agenda serves from the in-memory engine either way, redis
		// only backs the response cache and readiness probe.
		logr.Sugar().Warnw("redis unavailable, response cache disabled", "error", err)
		redisClient = nil
	}

	recordRepo := repository.NewRecordRepository(db)
	metricsSvc := service.NewMetricsService()

	syncSvc := service.NewSyncService(recordRepo, metricsSvc, logr, service.SyncConfig{
		PollInterval: cfg.Sync.PollInterval,
		BatchSize:    cfg.Sync.BatchSize,
		FetchLimit:   cfg.Sync.FetchLimit,
	})
	if err := syncSvc.Start(ctx); err != nil {
		logr.Sugar().Fatalw("failed to load record store", "error", err)
	}
	defer syncSvc.Stop()

	relay := publisher.NewHTTPPublisher(cfg.Publish.Endpoint, logr)
	publishSvc := service.NewPublishService(relay, service.PublishConfig{
		Workers:    cfg.Publish.Workers,
		MaxRetries: cfg.Publish.MaxRetries,
		RetryDelay: cfg.Publish.RetryDelay,
	}, logr)
	publishSvc.Start(ctx)
	defer publishSvc.Stop()

	validate := validator.New()

	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		Secret:         cfg.JWT.Secret,
		Expiry:         cfg.JWT.Expiration,
		OperatorPubkey: cfg.Operator.Pubkey,
		PasswordHash:   cfg.Operator.PasswordHash,
	})
	agendaSvc := service.NewAgendaService(syncSvc, recordRepo, publishSvc, nip52.NewHTTPNIP05Resolver(), validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	agendaHandler := handler.NewAgendaHandler(agendaSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	reads := api.Group("")
	if cfg.Agenda.CacheEnabled && redisClient != nil {
		reads.Use(middleware.ResponseCache(redisClient, syncSvc, metricsSvc, logr, middleware.CacheConfig{
			TTL: cfg.Agenda.CacheTTL,
		}))
	}
	reads.GET("/events", agendaHandler.ListEvents)
	reads.GET("/events/:id", agendaHandler.GetEvent)
	reads.GET("/events/:id/rsvps/:pubkey", agendaHandler.GetAttendeeRsvp)
	reads.GET("/calendars", agendaHandler.ListCalendars)
	reads.GET("/calendars/:coordinate", agendaHandler.GetCalendar)

	writes := api.Group("")
	writes.Use(middleware.JWT(authSvc))
	writes.POST("/events", agendaHandler.CreateEvent)
	writes.POST("/calendars", agendaHandler.CreateCalendar)
	writes.POST("/events/:id/rsvp", agendaHandler.SubmitRsvp)

	if cfg.Exports.Enabled {
		exportSvc := service.NewExportService(service.ExportConfig{
			CalendarName: cfg.Exports.CalendarName,
		}, logr, nil, nil)
		exportHandler := handler.NewExportHandler(agendaSvc, exportSvc)
		api.GET("/agenda/export", exportHandler.Export)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
