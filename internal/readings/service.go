package readings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forecourt-io/forecourt/internal/pumps"
	"github.com/forecourt-io/forecourt/internal/shared"
)

// RecalcEnqueuer submits a background recalculation for a station/date.
// Implemented by the asynq job client; a no-op stand-in is fine in tests.
type RecalcEnqueuer interface {
	EnqueueRecalc(ctx context.Context, stationID int64, date time.Time) error
}

// RecordInput carries a new reading write.
type RecordInput struct {
	PumpID int64
	Date   time.Time
	Type   ReadingType
	Value  decimal.Decimal
	Notes  *string
}

// UpdateInput carries an edit to an existing reading.
type UpdateInput struct {
	ReadingID int64
	Value     decimal.Decimal
	Notes     *string
	// Override carries the manager justification for editing past the
	// cutoff; nil means a regular in-window edit.
	Override *Override
}

// Override is a manager's authorization to edit past the window cutoff.
type Override struct {
	Reason string
}

// BulkResult reports the outcome of one entry in a bulk write.
type BulkResult struct {
	Index   int           `json:"index"`
	Reading *MeterReading `json:"reading,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Service owns the MeterReading lifecycle.
type Service struct {
	repo     Repository
	pumpRepo pumps.Repository
	guard    *WindowGuard
	audit    shared.AuditStore
	recalc   RecalcEnqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the reading service.
func NewService(repo Repository, pumpRepo pumps.Repository, guard *WindowGuard, audit shared.AuditStore, recalc RecalcEnqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		pumpRepo: pumpRepo,
		guard:    guard,
		audit:    audit,
		recalc:   recalc,
		logger:   logger,
		now:      time.Now,
	}
}

// Record persists a new reading and, when the opening/closing pair for the
// pump/date is now complete, enqueues the daily calculation. The enqueue is
// fire-and-forget: its failure is logged and never surfaced to the writer.
func (s *Service) Record(ctx context.Context, actor *shared.Actor, input RecordInput) (*MeterReading, error) {
	pump, err := s.authorizeWrite(ctx, actor, input.PumpID)
	if err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown reading type %q", shared.ErrValidation, input.Type)
	}
	if input.Value.Sign() < 0 {
		return nil, fmt.Errorf("%w: meter value must be >= 0", shared.ErrValidation)
	}
	if input.Value.GreaterThan(pump.MeterCapacity) {
		return nil, fmt.Errorf("%w: value %s is above pump capacity %s",
			shared.ErrCapacity, input.Value, pump.MeterCapacity)
	}

	reading := MeterReading{
		PumpID:      input.PumpID,
		ReadingDate: input.Date,
		ReadingType: input.Type,
		MeterValue:  input.Value,
		RecordedBy:  actor.UserID,
		RecordedAt:  s.now(),
		Notes:       input.Notes,
	}
	id, err := s.repo.Insert(ctx, reading)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, shared.AuditReadingRecorded, stored, nil)
	s.maybeEnqueueRecalc(ctx, pump, input.Date)
	return stored, nil
}

// BulkRecord processes many readings individually; one bad entry never
// aborts the rest.
func (s *Service) BulkRecord(ctx context.Context, actor *shared.Actor, inputs []RecordInput) []BulkResult {
	results := make([]BulkResult, 0, len(inputs))
	for i, input := range inputs {
		reading, err := s.Record(ctx, actor, input)
		result := BulkResult{Index: i, Reading: reading}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// Update edits a reading subject to the modification window.
func (s *Service) Update(ctx context.Context, actor *shared.Actor, input UpdateInput) (*MeterReading, error) {
	current, err := s.repo.Get(ctx, input.ReadingID)
	if err != nil {
		return nil, err
	}
	pump, err := s.authorizeWrite(ctx, actor, current.PumpID)
	if err != nil {
		return nil, err
	}
	if input.Value.Sign() < 0 {
		return nil, fmt.Errorf("%w: meter value must be >= 0", shared.ErrValidation)
	}
	if input.Value.GreaterThan(pump.MeterCapacity) {
		return nil, fmt.Errorf("%w: value %s is above pump capacity %s",
			shared.ErrCapacity, input.Value, pump.MeterCapacity)
	}

	modifiedAt, open := s.guard.Evaluate(current.ReadingDate)
	notes := input.Notes
	action := shared.AuditReadingModified
	if !open {
		if input.Override == nil {
			return nil, fmt.Errorf("%w: cutoff was %s", shared.ErrWindowExpired,
				s.guard.CutoffFor(current.ReadingDate).Format(time.RFC3339))
		}
		if !actor.Role.CanOverrideWindow() {
			return nil, fmt.Errorf("%w: manager role required for override", shared.ErrAuthorization)
		}
		if strings.TrimSpace(input.Override.Reason) == "" {
			return nil, fmt.Errorf("%w: override reason is required", shared.ErrValidation)
		}
		base := ""
		if notes != nil {
			base = *notes
		} else if current.Notes != nil {
			base = *current.Notes
		}
		overridden := strings.TrimSpace(base + " [MANAGER OVERRIDE: " + input.Override.Reason + "]")
		notes = &overridden
		action = shared.AuditReadingOverridden
	}

	if err := s.repo.ApplyEdit(ctx, current.ID, input.Value, current.MeterValue, notes, actor.UserID, modifiedAt); err != nil {
		return nil, err
	}
	updated, err := s.repo.Get(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, action, updated, &current.MeterValue)
	s.maybeEnqueueRecalc(ctx, pump, current.ReadingDate)
	return updated, nil
}

// List returns one page of readings for a station and date range.
func (s *Service) List(ctx context.Context, actor *shared.Actor, stationID int64, from, to time.Time, pumpID *int64, page, perPage int) ([]MeterReading, shared.Pagination, error) {
	if actor == nil {
		return nil, shared.Pagination{}, fmt.Errorf("%w: authentication required", shared.ErrAuthorization)
	}
	if !actor.CanAccessStation(stationID) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: station %d", shared.ErrAuthorization, stationID)
	}
	total, err := s.repo.Count(ctx, stationID, from, to, pumpID)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pg := shared.NewPagination(page, perPage, total)
	list, err := s.repo.List(ctx, stationID, from, to, pumpID, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, pg, nil
}

func (s *Service) authorizeWrite(ctx context.Context, actor *shared.Actor, pumpID int64) (*pumps.Pump, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: authentication required", shared.ErrAuthorization)
	}
	if !actor.Role.CanRecordReadings() {
		return nil, fmt.Errorf("%w: role %q cannot record readings", shared.ErrAuthorization, actor.Role)
	}
	pump, err := s.pumpRepo.Get(ctx, pumpID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessStation(pump.StationID) {
		return nil, fmt.Errorf("%w: station %d", shared.ErrAuthorization, pump.StationID)
	}
	if !pump.IsActive || pump.Status != pumps.PumpStatusActive {
		return nil, fmt.Errorf("%w: pump %q is not active", shared.ErrAuthorization, pump.Label)
	}
	return pump, nil
}

func (s *Service) maybeEnqueueRecalc(ctx context.Context, pump *pumps.Pump, date time.Time) {
	if s.recalc == nil {
		return
	}
	pair, err := s.repo.Pair(ctx, pump.ID, date)
	if err != nil {
		s.log().Error("load reading pair", slog.Any("error", err))
		return
	}
	if !pair.Complete() {
		return
	}
	if err := s.recalc.EnqueueRecalc(ctx, pump.StationID, date); err != nil {
		s.log().Error("enqueue recalculation",
			slog.Int64("station_id", pump.StationID),
			slog.String("date", date.Format("2006-01-02")),
			slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Actor, action string, reading *MeterReading, previous *decimal.Decimal) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"pump_id":      reading.PumpID,
		"reading_date": reading.ReadingDate.Format("2006-01-02"),
		"reading_type": string(reading.ReadingType),
		"meter_value":  reading.MeterValue.String(),
	}
	if previous != nil {
		meta["previous_value"] = previous.String()
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "meter_reading",
		EntityID: strconv.FormatInt(reading.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.log().Warn("record audit", slog.Any("error", err))
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
