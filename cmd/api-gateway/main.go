package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendance-correction-api/api/swagger"
	"github.com/noah-isme/attendance-correction-api/internal/handler"
	"github.com/noah-isme/attendance-correction-api/internal/middleware"
	"github.com/noah-isme/attendance-correction-api/internal/repository"
	"github.com/noah-isme/attendance-correction-api/internal/service"
	"github.com/noah-isme/attendance-correction-api/pkg/cache"
	"github.com/noah-isme/attendance-correction-api/pkg/config"
	"github.com/noah-isme/attendance-correction-api/pkg/database"
	"github.com/noah-isme/attendance-correction-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-correction-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-correction-api/pkg/middleware/requestid"
)

// @title Attendance Correction API
// @version 1.0.0
// @description Employees request corrections to attendance punches, administrators decide on them.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	var (
		store      service.CorrectionStore
		attendance service.AttendanceGateway
		db         *sqlx.DB
	)
	switch cfg.Corrections.Store {
	case config.StoreMemory:
		logr.Warn("using in-memory correction store, data is lost on restart")
		records, err := repository.LoadAttendanceSeed(cfg.Corrections.SeedFile)
		if err != nil {
			logr.Fatal("failed to load attendance seed", zap.String("file", cfg.Corrections.SeedFile), zap.Error(err))
		}
		logr.Info("attendance seed loaded", zap.String("file", cfg.Corrections.SeedFile), zap.Int("records", len(records)))
		store = repository.NewMemoryCorrectionStore(nil)
		attendance = repository.NewMemoryAttendanceStore(nil, records...)
	default:
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()
		applied, err := repository.Migrate(ctx, db)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		if len(applied) > 0 {
			logr.Info("migrations applied", zap.Strings("files", applied))
		}
		store = repository.NewCorrectionRequestRepository(db, repository.WithQueryObserver(metrics))
		attendance = repository.NewAttendanceRecordRepository(db)
		checks["database"] = db.PingContext
	}

	opts := []service.CorrectionServiceOption{service.WithDecisionMetrics(metrics)}

	if cfg.Audit.Enabled && db != nil {
		dispatcher := service.NewAuditDispatcher(repository.NewAuditRepository(db), service.AuditDispatcherConfig{
			Workers:    cfg.Audit.Workers,
			MaxRetries: cfg.Audit.MaxRetries,
			RetryDelay: cfg.Audit.RetryDelay,
		}, logr)
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
		opts = append(opts, service.WithCorrectionAudit(dispatcher))
	}

	var queryOpts []service.CorrectionQueryOption
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, pending counts are not cached", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, repository.CacheNamespace)
			defer cacheRepo.Close() //nolint:errcheck
			cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, true)
			opts = append(opts, service.WithCorrectionCache(cacheSvc))
			queryOpts = append(queryOpts, service.WithPendingCountCache(cacheSvc, cfg.Cache.TTL))
			checks["redis"] = cacheRepo.Ping
		}
	}

	policy := service.NewCorrectionPolicy(cfg.Corrections)
	approval := service.NewCorrectionApprovalService(store, attendance, policy, logr, opts...)
	correctionHandler := handler.NewCorrectionHandler(handler.CorrectionServices{
		Registration: service.NewCorrectionRegistrationService(store, attendance, validator.New(), policy, logr, opts...),
		Approval:     approval,
		Cancellation: service.NewCorrectionCancellationService(store, policy, logr, opts...),
		Bulk:         service.NewCorrectionBulkService(approval, policy, logr),
		Query:        service.NewCorrectionQueryService(store, policy, logr, queryOpts...),
	})
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr,
		logger.SkipPaths("/health", "/ready", "/metrics"),
		logger.WithFields(middleware.LogFields),
	))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(metrics))
		r.GET("/metrics", metricsHandler.Prometheus)
		r.GET("/metrics/summary", metricsHandler.Summary)
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	correctionHandler.Register(r.Group(cfg.APIPrefix), middleware.JWT(tokens))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Corrections.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
