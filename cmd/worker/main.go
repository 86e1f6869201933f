package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forecourt-io/forecourt/internal/app"
	"github.com/forecourt-io/forecourt/internal/calc"
	"github.com/forecourt-io/forecourt/internal/ledger"
	"github.com/forecourt-io/forecourt/internal/observability"
	"github.com/forecourt-io/forecourt/internal/platform/db"
	"github.com/forecourt-io/forecourt/internal/products"
	"github.com/forecourt-io/forecourt/internal/pumps"
	"github.com/forecourt-io/forecourt/internal/readings"
	"github.com/forecourt-io/forecourt/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	metrics := observability.NewMetrics()
	thresholds := calc.Thresholds{
		Moderate: cfg.DeviationModeratePct,
		High:     cfg.DeviationHighPct,
		Critical: cfg.DeviationCriticalPct,
	}

	productRepo := products.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	pumpRepo := pumps.NewRepository(pool)
	readingRepo := readings.NewRepository(pool)
	calcRepo := calc.NewRepository(pool)
	estimator := calc.NewEstimator(ledgerRepo, cfg.EstimationSampleSize, cfg.DeviationLookbackDays)
	engine := calc.NewEngine(calcRepo, readingRepo, pumpRepo, productRepo, estimator,
		cfg.EstimationSampleSize, cfg.DeviationLookbackDays, metrics, logger)

	recalcJob := jobs.NewRecalcJob(engine, logger, metrics)
	scanJob := jobs.NewDeviationScanJob(pool, thresholds, cfg.DeviationLookbackDays, logger)

	scanTask, err := jobs.NewDeviationScanTask(jobs.DeviationScanPayload{})
	if err != nil {
		logger.Error("build deviation scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Location:  location,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecalcDaily, Handler: recalcJob.Handle},
			{Type: jobs.TaskDeviationScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			// After the 06:00 edit cutoff the day's figures are settled.
			{Spec: "30 6 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
