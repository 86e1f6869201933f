package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forecourt-io/forecourt/internal/calc"
)

// DeviationScanJob sweeps recent daily calculations and surfaces the ones
// breaching the deviation bands into the logs, so a quiet station with a
// drifting pump gets noticed without anyone opening the dashboard.
type DeviationScanJob struct {
	Pool       *pgxpool.Pool
	Thresholds calc.Thresholds
	Lookback   int
	Logger     *slog.Logger
	clock      func() time.Time
}

// NewDeviationScanJob initialises the nightly deviation sweep.
func NewDeviationScanJob(pool *pgxpool.Pool, thresholds calc.Thresholds, lookbackDays int, logger *slog.Logger) *DeviationScanJob {
	return &DeviationScanJob{
		Pool:       pool,
		Thresholds: thresholds,
		Lookback:   lookbackDays,
		Logger:     logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the deviation sweep.
func (j *DeviationScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("deviation scan: handler not configured")
	}
	var payload DeviationScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.LookbackDays <= 0 {
		payload.LookbackDays = j.Lookback
	}
	if payload.ThresholdPct <= 0 {
		payload.ThresholdPct = j.Thresholds.Moderate
	}

	now := j.now()
	from := now.AddDate(0, 0, -payload.LookbackDays)
	logger := j.log().With(
		slog.Int("lookback_days", payload.LookbackDays),
		slog.Float64("threshold_pct", payload.ThresholdPct),
	)
	logger.Info("starting deviation scan")

	rows, err := j.Pool.Query(ctx, `
		SELECT p.station_id, dc.pump_id, p.label, dc.calculation_date,
		       dc.volume_dispensed::text, dc.deviation_from_average, dc.is_estimated
		FROM daily_calculations dc
		JOIN pumps p ON p.id = dc.pump_id
		WHERE dc.calculation_date BETWEEN $1 AND $2
		  AND ABS(dc.deviation_from_average) >= $3
		ORDER BY ABS(dc.deviation_from_average) DESC`,
		from.Format("2006-01-02"), now.Format("2006-01-02"), payload.ThresholdPct)
	if err != nil {
		logger.Error("scan query failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	flagged := 0
	for rows.Next() {
		var stationID, pumpID int64
		var label, volume string
		var date time.Time
		var deviation float64
		var estimated bool
		if err := rows.Scan(&stationID, &pumpID, &label, &date, &volume, &deviation, &estimated); err != nil {
			return err
		}
		flagged++
		logger.Warn("volume deviation detected",
			slog.Int64("station_id", stationID),
			slog.Int64("pump_id", pumpID),
			slog.String("pump", label),
			slog.String("date", date.Format("2006-01-02")),
			slog.String("volume", volume),
			slog.Float64("deviation_pct", deviation),
			slog.String("severity", j.Thresholds.Severity(deviation)),
			slog.Bool("estimated", estimated),
		)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	logger.Info("completed deviation scan",
		slog.Int("flagged", flagged),
		slog.Duration("duration", time.Since(now)),
	)
	return nil
}

func (j *DeviationScanJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDeviationScan))
	}
	return slog.Default().With(slog.String("job", TaskDeviationScan))
}

func (j *DeviationScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
