package calc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forecourt-io/forecourt/internal/readings"
	"github.com/forecourt-io/forecourt/internal/shared"
)

func estimatedRow(t *testing.T, f *fixture) DailyCalculation {
	t.Helper()
	f.readings.add(1, monday(), readings.ReadingTypeOpening, "100.0")
	result, err := f.engine.Calculate(context.Background(), 1, monday(), false, 3)
	require.NoError(t, err)
	require.Len(t, result.Calculations, 1)
	return result.Calculations[0]
}

func rolloverRow(t *testing.T, f *fixture) DailyCalculation {
	t.Helper()
	f.readings.add(1, monday(), readings.ReadingTypeOpening, "14000.0")
	f.readings.add(1, monday(), readings.ReadingTypeClosing, "100.5")
	result, err := f.engine.Calculate(context.Background(), 1, monday(), false, 3)
	require.NoError(t, err)
	require.Len(t, result.Calculations, 1)
	return result.Calculations[0]
}

func TestDecideRequiresManager(t *testing.T) {
	f := newFixture(t)
	row := estimatedRow(t, f)
	approved := true

	_, err := f.service.Decide(context.Background(), staffActor(), row.ID, &approved, "")
	require.ErrorIs(t, err, shared.ErrAuthorization)

	_, err = f.service.Decide(context.Background(), directorActor(), row.ID, &approved, "")
	require.ErrorIs(t, err, shared.ErrAuthorization)
}

func TestDecideRequiresEstimatedRow(t *testing.T) {
	f := newFixture(t)
	f.readings.add(1, monday(), readings.ReadingTypeOpening, "100.0")
	f.readings.add(1, monday(), readings.ReadingTypeClosing, "250.0")
	result, err := f.engine.Calculate(context.Background(), 1, monday(), false, 3)
	require.NoError(t, err)

	approved := true
	_, err = f.service.Decide(context.Background(), managerActor(), result.Calculations[0].ID, &approved, "")
	require.ErrorIs(t, err, shared.ErrState)
}

func TestDecideRequiresExplicitFlag(t *testing.T) {
	f := newFixture(t)
	row := estimatedRow(t, f)

	_, err := f.service.Decide(context.Background(), managerActor(), row.ID, nil, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecideApprove(t *testing.T) {
	f := newFixture(t)
	row := estimatedRow(t, f)
	approved := true

	decided, err := f.service.Decide(context.Background(), managerActor(), row.ID, &approved, "")
	require.NoError(t, err)
	require.NotNil(t, decided.ApprovedBy)
	require.Equal(t, int64(9), *decided.ApprovedBy)
	require.NotNil(t, decided.ApprovedAt)
	require.True(t, decided.IsEstimated, "a decision never reclassifies the row")
	require.Equal(t, "decided", decided.ApprovalState())
}

func TestDecideRejectionIsRecorded(t *testing.T) {
	f := newFixture(t)
	row := estimatedRow(t, f)
	approved := false

	decided, err := f.service.Decide(context.Background(), managerActor(), row.ID, &approved, "")
	require.NoError(t, err)
	require.NotNil(t, decided.ApprovedBy)
	require.NotNil(t, decided.ApprovedAt)
	require.True(t, decided.IsEstimated)
}

func TestConfirmRolloverRecomputesVolume(t *testing.T) {
	f := newFixture(t)
	row := rolloverRow(t, f)

	confirmed, err := f.service.ConfirmRollover(context.Background(), staffActor(), row.ID,
		RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("100.5")}, "")
	require.NoError(t, err)
	require.NotNil(t, confirmed.RolloverValue)
	require.True(t, confirmed.RolloverValue.Equal(d("999999.9")))
	require.True(t, confirmed.VolumeDispensed.Equal(d("986100.4")))
	// 986100.4 litres at 230.50
	require.True(t, confirmed.TotalRevenue.Equal(d("227296142.2")), "got %s", confirmed.TotalRevenue)
}

func TestConfirmRolloverRecomputesDeviation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		f.repo.seedActual(1, monday().AddDate(0, 0, -i), "100.0")
	}
	row := rolloverRow(t, f)
	// The provisional volume dwarfs the 100L trailing average.
	require.InDelta(t, 986000.4, row.DeviationPct, 0.01)

	confirmed, err := f.service.ConfirmRollover(ctx, staffActor(), row.ID,
		RolloverConfirmation{RolloverValue: d("20000.0"), NewClosing: d("100.5")}, "")
	require.NoError(t, err)
	require.True(t, confirmed.VolumeDispensed.Equal(d("6100.5")))
	// ((20000 - 14000) + 100.5 - 100) / 100 * 100
	require.InDelta(t, 6000.5, confirmed.DeviationPct, 0.01)
}

func TestConfirmRolloverOnlyOnce(t *testing.T) {
	f := newFixture(t)
	row := rolloverRow(t, f)
	conf := RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("100.5")}

	_, err := f.service.ConfirmRollover(context.Background(), staffActor(), row.ID, conf, "")
	require.NoError(t, err)

	_, err = f.service.ConfirmRollover(context.Background(), staffActor(), row.ID, conf, "")
	require.ErrorIs(t, err, shared.ErrState)
}

func TestConfirmRolloverValidatesAgainstPump(t *testing.T) {
	f := newFixture(t)
	row := rolloverRow(t, f)

	_, err := f.service.ConfirmRollover(context.Background(), staffActor(), row.ID,
		RolloverConfirmation{RolloverValue: d("13000.0"), NewClosing: d("100.5")}, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.ConfirmRollover(context.Background(), staffActor(), row.ID,
		RolloverConfirmation{RolloverValue: d("1000001.0"), NewClosing: d("100.5")}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestConfirmRolloverRequiresRolloverRow(t *testing.T) {
	f := newFixture(t)
	f.readings.add(1, monday(), readings.ReadingTypeOpening, "100.0")
	f.readings.add(1, monday(), readings.ReadingTypeClosing, "250.0")
	result, err := f.engine.Calculate(context.Background(), 1, monday(), false, 3)
	require.NoError(t, err)

	_, err = f.service.ConfirmRollover(context.Background(), staffActor(), result.Calculations[0].ID,
		RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("100.5")}, "")
	require.ErrorIs(t, err, shared.ErrState)
}

func TestConfirmRolloverDeniesDirector(t *testing.T) {
	f := newFixture(t)
	row := rolloverRow(t, f)

	_, err := f.service.ConfirmRollover(context.Background(), directorActor(), row.ID,
		RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("100.5")}, "")
	require.ErrorIs(t, err, shared.ErrAuthorization)
}

func TestListPaginatesCalculations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		f.repo.seedActual(1, monday().AddDate(0, 0, -i), "100.0")
	}

	first, pg, err := f.service.List(ctx, staffActor(), 1, monday().AddDate(0, 0, -7), monday(), 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 3, pg.Total)
	require.Equal(t, 2, pg.TotalPages)

	second, pg, err := f.service.List(ctx, staffActor(), 1, monday().AddDate(0, 0, -7), monday(), 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 2, pg.Page)
}

func TestAuditTrailRecordsDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	row := estimatedRow(t, f)
	approved := true

	_, err := f.service.Decide(ctx, managerActor(), row.ID, &approved, "spot checked against tickets")
	require.NoError(t, err)

	trail, err := f.service.AuditTrail(ctx, managerActor(), row.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, shared.AuditCalculationDecided, trail[0].Action)
	require.Equal(t, "approved", trail[0].Meta["outcome"])
	require.Equal(t, "spot checked against tickets", trail[0].Meta["notes"])
}

func TestDeviationsAnnotatedWithSeverity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		f.repo.seedActual(1, monday().AddDate(0, 0, -i), "100.0")
	}
	f.readings.add(1, monday(), readings.ReadingTypeOpening, "1000.0")
	f.readings.add(1, monday(), readings.ReadingTypeClosing, "1250.0")
	_, err := f.engine.Calculate(ctx, 1, monday(), false, 3)
	require.NoError(t, err)

	// 150% deviation clears the default threshold.
	list, err := f.service.Deviations(ctx, staffActor(), 1, 20, 30)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, SeverityCritical, list[0].Severity)

	// A threshold above the deviation filters it out.
	list, err = f.service.Deviations(ctx, staffActor(), 1, 200, 30)
	require.NoError(t, err)
	require.Empty(t, list)
}
