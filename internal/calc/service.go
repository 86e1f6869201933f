package calc

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/forecourt-io/forecourt/internal/pumps"
	"github.com/forecourt-io/forecourt/internal/shared"
)

// Service fronts the engine with authorization, the rollover confirmation
// flow, and the approval workflow.
type Service struct {
	engine     *Engine
	calcs      Repository
	pumps      pumps.Repository
	thresholds Thresholds
	lookback   int
	sampleSize int
	audit      shared.AuditStore
	logger     *slog.Logger
	clock      func() time.Time
}

// NewService wires the calculation service.
func NewService(engine *Engine, calcs Repository, pumpRepo pumps.Repository,
	thresholds Thresholds, lookbackDays, sampleSize int, audit shared.AuditStore, logger *slog.Logger) *Service {
	return &Service{
		engine:     engine,
		calcs:      calcs,
		pumps:      pumpRepo,
		thresholds: thresholds,
		lookback:   lookbackDays,
		sampleSize: sampleSize,
		audit:      audit,
		logger:     logger,
		clock:      time.Now,
	}
}

// Engine exposes the underlying engine for background workers, which run
// without an authenticated actor.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Run triggers a calculation run for a station and date on behalf of an
// authenticated caller. Directors hold a read-only role and are refused.
func (s *Service) Run(ctx context.Context, actor *shared.Actor, stationID int64, date time.Time, force bool) (*RunResult, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: authentication required", shared.ErrAuthorization)
	}
	if !actor.Role.CanRecordReadings() {
		return nil, fmt.Errorf("%w: role %s cannot trigger calculations", shared.ErrAuthorization, actor.Role)
	}
	if !actor.CanAccessStation(stationID) {
		return nil, fmt.Errorf("%w: station %d outside actor scope", shared.ErrAuthorization, stationID)
	}

	result, err := s.engine.Calculate(ctx, stationID, date, force, actor.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   shared.AuditCalculationRun,
		Entity:   "station",
		EntityID: strconv.FormatInt(stationID, 10),
		Meta: map[string]any{
			"date":       date.Format("2006-01-02"),
			"force":      force,
			"calculated": result.CalculatedCount,
			"skipped":    result.SkippedCount,
		},
	}); err != nil {
		s.log().Warn("record audit", slog.String("action", shared.AuditCalculationRun), slog.Any("error", err))
	}
	return result, nil
}

// List returns one page of a station's calculations over a date range.
func (s *Service) List(ctx context.Context, actor *shared.Actor, stationID int64, from, to time.Time, page, perPage int) ([]DailyCalculation, shared.Pagination, error) {
	if actor == nil {
		return nil, shared.Pagination{}, fmt.Errorf("%w: authentication required", shared.ErrAuthorization)
	}
	if !actor.CanAccessStation(stationID) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: station %d outside actor scope", shared.ErrAuthorization, stationID)
	}
	total, err := s.calcs.Count(ctx, stationID, from, to)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pg := shared.NewPagination(page, perPage, total)
	list, err := s.calcs.List(ctx, stationID, from, to, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, pg, nil
}

// Deviations returns calculations whose deviation magnitude meets the
// threshold, annotated with severity bands, largest first. A zero threshold
// falls back to the configured moderate band.
func (s *Service) Deviations(ctx context.Context, actor *shared.Actor, stationID int64, thresholdPct float64, lookbackDays int) ([]Deviation, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: authentication required", shared.ErrAuthorization)
	}
	if !actor.CanAccessStation(stationID) {
		return nil, fmt.Errorf("%w: station %d outside actor scope", shared.ErrAuthorization, stationID)
	}
	if thresholdPct < 0 {
		return nil, fmt.Errorf("%w: threshold must not be negative", shared.ErrValidation)
	}
	if thresholdPct == 0 {
		thresholdPct = s.thresholds.Moderate
	}
	if lookbackDays <= 0 {
		lookbackDays = s.lookback
	}

	to := s.clock()
	from := to.AddDate(0, 0, -lookbackDays)
	rows, err := s.calcs.FindDeviations(ctx, stationID, thresholdPct, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Deviation, 0, len(rows))
	for _, row := range rows {
		out = append(out, Deviation{DailyCalculation: row, Severity: s.thresholds.Severity(row.DeviationPct)})
	}
	return out, nil
}

// ConfirmRollover records the supervisor-confirmed wrap point for a rollover
// day and recomputes volume and revenue from it. A rollover is confirmed at
// most once, and only a single meter wrap per pump per day is representable.
func (s *Service) ConfirmRollover(ctx context.Context, actor *shared.Actor, calcID int64, conf RolloverConfirmation, notes string) (*DailyCalculation, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: authentication required", shared.ErrAuthorization)
	}
	if !actor.Role.CanRecordReadings() {
		return nil, fmt.Errorf("%w: role %s cannot confirm rollovers", shared.ErrAuthorization, actor.Role)
	}

	calc, err := s.calcs.Get(ctx, calcID)
	if err != nil {
		return nil, err
	}
	pump, err := s.pumps.Get(ctx, calc.PumpID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessStation(pump.StationID) {
		return nil, fmt.Errorf("%w: station %d outside actor scope", shared.ErrAuthorization, pump.StationID)
	}
	if !calc.HasRollover {
		return nil, fmt.Errorf("%w: calculation %d has no rollover to confirm", shared.ErrState, calcID)
	}
	if calc.RolloverValue != nil {
		return nil, fmt.Errorf("%w: rollover already confirmed for calculation %d", shared.ErrState, calcID)
	}
	if err := conf.Validate(calc.OpeningReading, pump.MeterCapacity); err != nil {
		return nil, err
	}

	volume := conf.Volume(calc.OpeningReading)
	revenue := volume.Mul(calc.UnitPrice)

	// The stored deviation still reflects the provisional volume; recompute
	// it from the confirmed figure so deviation reports stay consistent.
	avg, count, err := s.calcs.AverageActualVolume(ctx, calc.PumpID, calc.CalculationDate, s.lookback, s.sampleSize)
	if err != nil {
		return nil, err
	}
	deviation := DeviationPct(volume, avg, count)

	if err := s.calcs.ConfirmRollover(ctx, calcID, conf.RolloverValue, conf.NewClosing, volume, revenue, deviation); err != nil {
		return nil, err
	}

	meta := map[string]any{
		"rollover_value": conf.RolloverValue.String(),
		"new_closing":    conf.NewClosing.String(),
		"volume":         volume.String(),
	}
	if notes != "" {
		meta["notes"] = notes
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   shared.AuditRolloverConfirmed,
		Entity:   "daily_calculation",
		EntityID: strconv.FormatInt(calcID, 10),
		Meta:     meta,
	}); err != nil {
		s.log().Warn("record audit", slog.String("action", shared.AuditRolloverConfirmed), slog.Any("error", err))
	}
	return s.calcs.Get(ctx, calcID)
}

// Decide records a manager's approval or rejection of an estimated
// calculation. The row stays estimated either way; the decision is the
// manager's sign-off on the figure, not a reclassification.
func (s *Service) Decide(ctx context.Context, actor *shared.Actor, calcID int64, approved *bool, notes string) (*DailyCalculation, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: authentication required", shared.ErrAuthorization)
	}
	if !actor.Role.CanApprove() {
		return nil, fmt.Errorf("%w: manager role required to decide calculations", shared.ErrAuthorization)
	}
	if approved == nil {
		return nil, fmt.Errorf("%w: approved flag is required", shared.ErrValidation)
	}

	calc, err := s.calcs.Get(ctx, calcID)
	if err != nil {
		return nil, err
	}
	pump, err := s.pumps.Get(ctx, calc.PumpID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessStation(pump.StationID) {
		return nil, fmt.Errorf("%w: station %d outside actor scope", shared.ErrAuthorization, pump.StationID)
	}
	if !calc.IsEstimated {
		return nil, fmt.Errorf("%w: only estimated calculations take an approval decision", shared.ErrState)
	}

	if err := s.calcs.Decide(ctx, calcID, actor.UserID, s.clock()); err != nil {
		return nil, err
	}

	outcome := "rejected"
	if *approved {
		outcome = "approved"
	}
	meta := map[string]any{"outcome": outcome}
	if notes != "" {
		meta["notes"] = notes
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   shared.AuditCalculationDecided,
		Entity:   "daily_calculation",
		EntityID: strconv.FormatInt(calcID, 10),
		Meta:     meta,
	}); err != nil {
		s.log().Warn("record audit", slog.String("action", shared.AuditCalculationDecided), slog.Any("error", err))
	}
	return s.calcs.Get(ctx, calcID)
}

// AuditTrail returns the recorded history of a calculation, oldest first.
func (s *Service) AuditTrail(ctx context.Context, actor *shared.Actor, calcID int64) ([]shared.AuditLog, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: authentication required", shared.ErrAuthorization)
	}
	calc, err := s.calcs.Get(ctx, calcID)
	if err != nil {
		return nil, err
	}
	pump, err := s.pumps.Get(ctx, calc.PumpID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessStation(pump.StationID) {
		return nil, fmt.Errorf("%w: station %d outside actor scope", shared.ErrAuthorization, pump.StationID)
	}
	if s.audit == nil {
		return nil, fmt.Errorf("%w: audit trail not available", shared.ErrState)
	}
	return s.audit.List(ctx, "daily_calculation", strconv.FormatInt(calcID, 10))
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
