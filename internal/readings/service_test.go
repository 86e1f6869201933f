package readings

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/forecourt-io/forecourt/internal/pumps"
	"github.com/forecourt-io/forecourt/internal/shared"
	_ "github.com/forecourt-io/forecourt/testing"
)

type readingKey struct {
	pumpID int64
	date   string
	rtype  ReadingType
}

type memoryReadingRepo struct {
	readings map[int64]*MeterReading
	byKey    map[readingKey]int64
	nextID   int64
}

func newMemoryReadingRepo() *memoryReadingRepo {
	return &memoryReadingRepo{readings: make(map[int64]*MeterReading), byKey: make(map[readingKey]int64)}
}

func (r *memoryReadingRepo) key(m MeterReading) readingKey {
	return readingKey{pumpID: m.PumpID, date: m.ReadingDate.Format("2006-01-02"), rtype: m.ReadingType}
}

func (r *memoryReadingRepo) Get(ctx context.Context, id int64) (*MeterReading, error) {
	m, ok := r.readings[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memoryReadingRepo) Insert(ctx context.Context, reading MeterReading) (int64, error) {
	if _, exists := r.byKey[r.key(reading)]; exists {
		return 0, shared.ErrConflict
	}
	r.nextID++
	reading.ID = r.nextID
	r.readings[reading.ID] = &reading
	r.byKey[r.key(reading)] = reading.ID
	return reading.ID, nil
}

func (r *memoryReadingRepo) ApplyEdit(ctx context.Context, id int64, value, original decimal.Decimal, notes *string, modifiedBy int64, modifiedAt time.Time) error {
	m, ok := r.readings[id]
	if !ok {
		return shared.ErrNotFound
	}
	m.MeterValue = value
	if m.OriginalValue == nil {
		copied := original
		m.OriginalValue = &copied
	}
	if notes != nil {
		m.Notes = notes
	}
	m.IsModified = true
	m.ModifiedBy = &modifiedBy
	m.ModifiedAt = &modifiedAt
	return nil
}

func (r *memoryReadingRepo) Pair(ctx context.Context, pumpID int64, date time.Time) (ReadingPair, error) {
	var pair ReadingPair
	for _, m := range r.readings {
		if m.PumpID == pumpID && m.ReadingDate.Format("2006-01-02") == date.Format("2006-01-02") {
			copied := *m
			switch m.ReadingType {
			case ReadingTypeOpening:
				pair.Opening = &copied
			case ReadingTypeClosing:
				pair.Closing = &copied
			}
		}
	}
	return pair, nil
}

func (r *memoryReadingRepo) matching(from, to time.Time, pumpID *int64) []MeterReading {
	var out []MeterReading
	for _, m := range r.readings {
		if pumpID != nil && m.PumpID != *pumpID {
			continue
		}
		if m.ReadingDate.Before(from) || m.ReadingDate.After(to) {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryReadingRepo) List(ctx context.Context, stationID int64, from, to time.Time, pumpID *int64, limit, offset int) ([]MeterReading, error) {
	out := r.matching(from, to, pumpID)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryReadingRepo) Count(ctx context.Context, stationID int64, from, to time.Time, pumpID *int64) (int, error) {
	return len(r.matching(from, to, pumpID)), nil
}

type stubPumpRepo struct {
	pumps map[int64]*pumps.Pump
}

func (s *stubPumpRepo) Get(ctx context.Context, id int64) (*pumps.Pump, error) {
	p, ok := s.pumps[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *stubPumpRepo) ListByStation(ctx context.Context, stationID int64) ([]pumps.PumpWithDetails, error) {
	return nil, nil
}

func (s *stubPumpRepo) ListActivePMS(ctx context.Context, stationID int64) ([]pumps.Pump, error) {
	return nil, nil
}

func (s *stubPumpRepo) Create(ctx context.Context, pump pumps.Pump) (int64, error) { return 0, nil }

func (s *stubPumpRepo) Update(ctx context.Context, pump pumps.Pump) error { return nil }

func (s *stubPumpRepo) HasReadings(ctx context.Context, pumpID int64) (bool, error) {
	return false, nil
}

type recordingEnqueuer struct {
	calls []string
}

func (e *recordingEnqueuer) EnqueueRecalc(ctx context.Context, stationID int64, date time.Time) error {
	e.calls = append(e.calls, date.Format("2006-01-02"))
	return nil
}

type fixture struct {
	service  *Service
	repo     *memoryReadingRepo
	enqueuer *recordingEnqueuer
	guard    *WindowGuard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryReadingRepo()
	pumpRepo := &stubPumpRepo{pumps: map[int64]*pumps.Pump{
		1: {
			ID: 1, StationID: 1, ProductID: 1, Label: "Pump 1",
			MeterCapacity: decimal.RequireFromString("999999.9"),
			Status:        pumps.PumpStatusActive, IsActive: true,
		},
		2: {
			ID: 2, StationID: 1, ProductID: 1, Label: "Pump 2",
			MeterCapacity: decimal.RequireFromString("999999.9"),
			Status:        pumps.PumpStatusMaintenance, IsActive: false,
		},
	}}
	guard := NewWindowGuard(6, time.UTC)
	enqueuer := &recordingEnqueuer{}
	service := NewService(repo, pumpRepo, guard, nil, enqueuer, nil)
	return &fixture{service: service, repo: repo, enqueuer: enqueuer, guard: guard}
}

func staffActor() *shared.Actor {
	return &shared.Actor{UserID: 3, Role: shared.RoleStaff, Stations: []int64{1}}
}

func managerActor() *shared.Actor {
	return &shared.Actor{UserID: 9, Role: shared.RoleManager, Stations: []int64{1}}
}

func monday() time.Time {
	return time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
}

func TestRecordRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Record(ctx, staffActor(), RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeOpening,
		Value: decimal.RequireFromString("14000.0"),
	})
	require.NoError(t, err)

	stored, err := f.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, stored.MeterValue.Equal(decimal.RequireFromString("14000.0")))
	require.Equal(t, int64(3), stored.RecordedBy)
}

func TestRecordDuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := RecordInput{PumpID: 1, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100)}
	_, err := f.service.Record(ctx, staffActor(), input)
	require.NoError(t, err)

	_, err = f.service.Record(ctx, staffActor(), input)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestRecordCapacityBound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Record(context.Background(), staffActor(), RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeOpening,
		Value: decimal.RequireFromString("1000000.0"),
	})
	require.ErrorIs(t, err, shared.ErrCapacity)
}

func TestRecordDirectorDenied(t *testing.T) {
	f := newFixture(t)

	director := &shared.Actor{UserID: 1, Role: shared.RoleDirector, Stations: []int64{1}}
	_, err := f.service.Record(context.Background(), director, RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, shared.ErrAuthorization)
}

func TestRecordInactivePumpDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Record(context.Background(), staffActor(), RecordInput{
		PumpID: 2, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, shared.ErrAuthorization)
}

func TestRecalcEnqueuedOnlyWhenPairCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Record(ctx, staffActor(), RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.Empty(t, f.enqueuer.calls, "half a pair must not trigger calculation")

	_, err = f.service.Record(ctx, staffActor(), RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeClosing, Value: decimal.NewFromInt(250),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"2025-06-02"}, f.enqueuer.calls)
}

func TestBulkRecordIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Record(ctx, staffActor(), RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	results := f.service.BulkRecord(ctx, staffActor(), []RecordInput{
		{PumpID: 1, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100)},
		{PumpID: 1, Date: monday(), Type: ReadingTypeClosing, Value: decimal.NewFromInt(250)},
		{PumpID: 2, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(10)},
	})
	require.Len(t, results, 3)

	// The duplicate opening fails; the closing that follows still lands.
	require.NotEmpty(t, results[0].Error)
	require.Nil(t, results[0].Reading)
	require.Empty(t, results[1].Error)
	require.NotNil(t, results[1].Reading)

	// The inactive pump fails without undoing the earlier success.
	require.NotEmpty(t, results[2].Error)
	require.Nil(t, results[2].Reading)

	// The successful closing completed the pair and triggered the recalc.
	require.Equal(t, []string{"2025-06-02"}, f.enqueuer.calls)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for day := 0; day < 3; day++ {
		_, err := f.service.Record(ctx, staffActor(), RecordInput{
			PumpID: 1, Date: monday().AddDate(0, 0, day), Type: ReadingTypeOpening,
			Value: decimal.NewFromInt(int64(100 + day)),
		})
		require.NoError(t, err)
	}

	first, pg, err := f.service.List(ctx, staffActor(), 1, monday(), monday().AddDate(0, 0, 7), nil, 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 3, pg.Total)
	require.Equal(t, 2, pg.TotalPages)

	second, pg, err := f.service.List(ctx, staffActor(), 1, monday(), monday().AddDate(0, 0, 7), nil, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 2, pg.Page)
	require.True(t, second[0].MeterValue.Equal(decimal.NewFromInt(102)))
}

func TestUpdateWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Record(ctx, staffActor(), RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	// Monday reading may be edited until Tuesday 06:00.
	f.guard.clock = func() time.Time { return time.Date(2025, time.June, 3, 5, 59, 59, 0, time.UTC) }

	updated, err := f.service.Update(ctx, staffActor(), UpdateInput{
		ReadingID: created.ID, Value: decimal.NewFromInt(120),
	})
	require.NoError(t, err)
	require.True(t, updated.IsModified)
	require.True(t, updated.MeterValue.Equal(decimal.NewFromInt(120)))
	require.NotNil(t, updated.OriginalValue)
	require.True(t, updated.OriginalValue.Equal(decimal.NewFromInt(100)))
}

func TestUpdateAfterCutoffRequiresOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Record(ctx, staffActor(), RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	f.guard.clock = func() time.Time { return time.Date(2025, time.June, 3, 6, 0, 1, 0, time.UTC) }

	_, err = f.service.Update(ctx, staffActor(), UpdateInput{
		ReadingID: created.ID, Value: decimal.NewFromInt(120),
	})
	require.ErrorIs(t, err, shared.ErrWindowExpired)

	// A non-manager supplying an override is refused by role, not window.
	_, err = f.service.Update(ctx, staffActor(), UpdateInput{
		ReadingID: created.ID, Value: decimal.NewFromInt(120),
		Override: &Override{Reason: "late ticket"},
	})
	require.ErrorIs(t, err, shared.ErrAuthorization)
	require.Contains(t, err.Error(), "manager")

	updated, err := f.service.Update(ctx, managerActor(), UpdateInput{
		ReadingID: created.ID, Value: decimal.NewFromInt(120),
		Override: &Override{Reason: "late ticket"},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	require.Contains(t, *updated.Notes, "[MANAGER OVERRIDE: late ticket]")
	require.Equal(t, int64(9), *updated.ModifiedBy)
}

func TestOriginalValueCapturedOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Record(ctx, staffActor(), RecordInput{
		PumpID: 1, Date: monday(), Type: ReadingTypeOpening, Value: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	f.guard.clock = func() time.Time { return time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC) }

	_, err = f.service.Update(ctx, staffActor(), UpdateInput{ReadingID: created.ID, Value: decimal.NewFromInt(110)})
	require.NoError(t, err)
	second, err := f.service.Update(ctx, staffActor(), UpdateInput{ReadingID: created.ID, Value: decimal.NewFromInt(130)})
	require.NoError(t, err)

	require.True(t, second.OriginalValue.Equal(decimal.NewFromInt(100)),
		"original value must keep the pristine first value across edits")
}
