package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forecourt-io/forecourt/internal/calc"
	"github.com/forecourt-io/forecourt/internal/observability"
)

// systemActorID marks rows written by background jobs rather than a user.
const systemActorID = 0

// RecalcJob recomputes a station day in the background. It runs with system
// identity; authorization happened on the request that enqueued it.
type RecalcJob struct {
	Engine  *calc.Engine
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewRecalcJob initialises the recalculation handler.
func NewRecalcJob(engine *calc.Engine, logger *slog.Logger, metrics *observability.Metrics) *RecalcJob {
	return &RecalcJob{Engine: engine, Logger: logger, Metrics: metrics}
}

// Handle executes one recalculation task.
func (j *RecalcJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("recalc: handler not configured")
	}
	var payload RecalcPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.Metrics.ObserveRecalcJob("bad_payload")
		return asynq.SkipRetry
	}
	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil || payload.StationID <= 0 {
		j.Metrics.ObserveRecalcJob("bad_payload")
		return asynq.SkipRetry
	}

	logger := j.log().With(
		slog.Int64("station_id", payload.StationID),
		slog.String("date", payload.Date),
	)

	start := time.Now()
	result, err := j.Engine.Calculate(ctx, payload.StationID, date, payload.Force, systemActorID)
	if err != nil {
		j.Metrics.ObserveRecalcJob("error")
		logger.Error("recalculation failed", slog.Any("error", err))
		return err
	}

	j.Metrics.ObserveRecalcJob("ok")
	logger.Info("recalculation completed",
		slog.Int("calculated", result.CalculatedCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *RecalcJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRecalcDaily))
	}
	return slog.Default().With(slog.String("job", TaskRecalcDaily))
}
