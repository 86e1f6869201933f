package pumps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/forecourt-io/forecourt/internal/products"
	"github.com/forecourt-io/forecourt/internal/shared"
)

// Service wraps pump registry business rules.
type Service struct {
	repo        Repository
	productRepo products.Repository
	audit       shared.AuditStore
}

// NewService constructs a pump service.
func NewService(repo Repository, productRepo products.Repository, audit shared.AuditStore) *Service {
	return &Service{repo: repo, productRepo: productRepo, audit: audit}
}

// Get loads a single pump.
func (s *Service) Get(ctx context.Context, id int64) (*Pump, error) {
	return s.repo.Get(ctx, id)
}

// List returns pumps for a station with product context.
func (s *Service) List(ctx context.Context, actor *shared.Actor, stationID int64) ([]PumpWithDetails, error) {
	if actor == nil || !actor.CanAccessStation(stationID) {
		return nil, fmt.Errorf("%w: station %d", shared.ErrAuthorization, stationID)
	}
	return s.repo.ListByStation(ctx, stationID)
}

// Create registers a new pump. Managers only.
func (s *Service) Create(ctx context.Context, actor *shared.Actor, pump Pump) (*Pump, error) {
	if actor == nil || !actor.Role.CanManagePumps() {
		return nil, fmt.Errorf("%w: manager role required", shared.ErrAuthorization)
	}
	if !actor.CanAccessStation(pump.StationID) {
		return nil, fmt.Errorf("%w: station %d", shared.ErrAuthorization, pump.StationID)
	}
	if !pump.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown pump status %q", shared.ErrValidation, pump.Status)
	}
	if pump.MeterCapacity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: meter capacity must be positive", shared.ErrValidation)
	}
	if _, err := s.productRepo.Get(ctx, pump.ProductID); err != nil {
		return nil, fmt.Errorf("verify product: %w", err)
	}

	id, err := s.repo.Create(ctx, pump)
	if err != nil {
		return nil, fmt.Errorf("create pump: %w", err)
	}
	created, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditPumpCreated, created)
	return created, nil
}

// Update edits pump configuration. Capacity is immutable once readings
// reference the pump; changing it would invalidate historical rollover math.
func (s *Service) Update(ctx context.Context, actor *shared.Actor, pump Pump) (*Pump, error) {
	if actor == nil || !actor.Role.CanManagePumps() {
		return nil, fmt.Errorf("%w: manager role required", shared.ErrAuthorization)
	}
	current, err := s.repo.Get(ctx, pump.ID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessStation(current.StationID) {
		return nil, fmt.Errorf("%w: station %d", shared.ErrAuthorization, current.StationID)
	}
	if !pump.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown pump status %q", shared.ErrValidation, pump.Status)
	}
	if !pump.MeterCapacity.Equal(current.MeterCapacity) {
		hasReadings, err := s.repo.HasReadings(ctx, pump.ID)
		if err != nil {
			return nil, err
		}
		if hasReadings {
			return nil, fmt.Errorf("%w: meter capacity is immutable once readings exist", shared.ErrState)
		}
	}

	if err := s.repo.Update(ctx, pump); err != nil {
		return nil, fmt.Errorf("update pump: %w", err)
	}
	updated, err := s.repo.Get(ctx, pump.ID)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, shared.AuditPumpUpdated, updated)
	return updated, nil
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Actor, action string, pump *Pump) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "pump",
		EntityID: strconv.FormatInt(pump.ID, 10),
		Meta: map[string]any{
			"station_id": pump.StationID,
			"label":      pump.Label,
			"status":     string(pump.Status),
		},
	})
}
