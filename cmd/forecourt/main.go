package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forecourt-io/forecourt/internal/app"
	"github.com/forecourt-io/forecourt/internal/auth"
	"github.com/forecourt-io/forecourt/internal/calc"
	"github.com/forecourt-io/forecourt/internal/ledger"
	"github.com/forecourt-io/forecourt/internal/observability"
	"github.com/forecourt-io/forecourt/internal/platform/cache"
	"github.com/forecourt-io/forecourt/internal/platform/db"
	"github.com/forecourt-io/forecourt/internal/products"
	"github.com/forecourt-io/forecourt/internal/pumps"
	"github.com/forecourt-io/forecourt/internal/readings"
	"github.com/forecourt-io/forecourt/internal/shared"
	"github.com/forecourt-io/forecourt/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	location, err := time.LoadLocation(cfg.StationTimezone)
	if err != nil {
		logger.Error("load station timezone", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "forecourt_session", cfg.SessionSecret, cfg.SessionTTL)
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)
	authMiddleware := auth.Middleware{Sessions: sessionManager, Logger: logger}

	productRepo := products.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)

	pumpRepo := pumps.NewRepository(pool)
	pumpService := pumps.NewService(pumpRepo, productRepo, auditLogger)
	pumpHandler := pumps.NewHandler(logger, pumpService)

	recalcClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := recalcClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	windowGuard := readings.NewWindowGuard(cfg.WindowCutoffHour, location)
	readingRepo := readings.NewRepository(pool)
	readingService := readings.NewService(readingRepo, pumpRepo, windowGuard, auditLogger, recalcClient, logger)
	readingHandler := readings.NewHandler(logger, readingService)

	thresholds := calc.Thresholds{
		Moderate: cfg.DeviationModeratePct,
		High:     cfg.DeviationHighPct,
		Critical: cfg.DeviationCriticalPct,
	}
	calcRepo := calc.NewRepository(pool)
	estimator := calc.NewEstimator(ledgerRepo, cfg.EstimationSampleSize, cfg.DeviationLookbackDays)
	engine := calc.NewEngine(calcRepo, readingRepo, pumpRepo, productRepo, estimator,
		cfg.EstimationSampleSize, cfg.DeviationLookbackDays, metrics, logger)
	calcService := calc.NewService(engine, calcRepo, pumpRepo, thresholds,
		cfg.DeviationLookbackDays, cfg.EstimationSampleSize, auditLogger, logger)
	calcHandler := calc.NewHandler(logger, calcService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Config:         cfg,
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		PumpHandler:    pumpHandler,
		ReadingHandler: readingHandler,
		CalcHandler:    calcHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
