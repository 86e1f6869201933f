package calc

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/forecourt-io/forecourt/internal/platform/db"
	"github.com/forecourt-io/forecourt/internal/shared"
)

// Repository defines persistence operations for daily calculations.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*DailyCalculation, error)
	// LockPumpDay loads the row for (pump, date) under FOR UPDATE so a
	// manual recalculation racing the auto-trigger serialises on the key.
	// Returns nil when no row exists yet.
	LockPumpDay(ctx context.Context, pumpID int64, date time.Time) (*DailyCalculation, error)
	// Upsert writes the (pump, date) row. Approval fields survive the
	// rewrite unless the dispensed volume materially changed.
	Upsert(ctx context.Context, calc DailyCalculation) (*DailyCalculation, error)
	// AverageActualVolume returns the mean volume of the pump's most recent
	// non-estimated calculations strictly before the date, capped at limit
	// rows inside the lookback window. The count reports how many rows fed
	// the average.
	AverageActualVolume(ctx context.Context, pumpID int64, before time.Time, lookbackDays, limit int) (decimal.Decimal, int, error)
	List(ctx context.Context, stationID int64, from, to time.Time, limit, offset int) ([]DailyCalculation, error)
	Count(ctx context.Context, stationID int64, from, to time.Time) (int, error)
	// FindDeviations returns station calculations whose absolute deviation
	// meets the threshold, largest magnitude first, approval state ignored.
	FindDeviations(ctx context.Context, stationID int64, thresholdPct float64, from, to time.Time) ([]DailyCalculation, error)
	ConfirmRollover(ctx context.Context, id int64, rolloverValue, newClosing, volume, revenue decimal.Decimal, deviationPct float64) error
	Decide(ctx context.Context, id int64, managerID int64, at time.Time) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL calculation repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const calcColumns = `id, pump_id, calculation_date, opening_reading, closing_reading, volume_dispensed,
unit_price, total_revenue, has_rollover, rollover_value, deviation_from_average, is_estimated,
calculation_method, calculated_by, calculated_at, approved_by, approved_at`

func scanCalculation(row pgx.Row) (*DailyCalculation, error) {
	var c DailyCalculation
	var method string
	err := row.Scan(&c.ID, &c.PumpID, &c.CalculationDate, &c.OpeningReading, &c.ClosingReading,
		&c.VolumeDispensed, &c.UnitPrice, &c.TotalRevenue, &c.HasRollover, &c.RolloverValue,
		&c.DeviationPct, &c.IsEstimated, &method, &c.CalculatedBy, &c.CalculatedAt,
		&c.ApprovedBy, &c.ApprovedAt)
	if err != nil {
		return nil, err
	}
	c.Method = CalculationMethod(method)
	return &c, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*DailyCalculation, error) {
	calc, err := scanCalculation(r.db.QueryRow(ctx, `SELECT `+calcColumns+` FROM daily_calculations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return calc, nil
}

func (r *repository) LockPumpDay(ctx context.Context, pumpID int64, date time.Time) (*DailyCalculation, error) {
	calc, err := scanCalculation(r.db.QueryRow(ctx, `SELECT `+calcColumns+`
FROM daily_calculations WHERE pump_id = $1 AND calculation_date = $2 FOR UPDATE`,
		pumpID, date.Format("2006-01-02")))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return calc, nil
}

func (r *repository) Upsert(ctx context.Context, calc DailyCalculation) (*DailyCalculation, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO daily_calculations (pump_id, calculation_date, opening_reading, closing_reading,
		        volume_dispensed, unit_price, total_revenue, has_rollover, rollover_value,
		        deviation_from_average, is_estimated, calculation_method, calculated_by, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (pump_id, calculation_date) DO UPDATE SET
		        opening_reading = EXCLUDED.opening_reading,
		        closing_reading = EXCLUDED.closing_reading,
		        volume_dispensed = EXCLUDED.volume_dispensed,
		        unit_price = EXCLUDED.unit_price,
		        total_revenue = EXCLUDED.total_revenue,
		        has_rollover = EXCLUDED.has_rollover,
		        rollover_value = EXCLUDED.rollover_value,
		        deviation_from_average = EXCLUDED.deviation_from_average,
		        is_estimated = EXCLUDED.is_estimated,
		        calculation_method = EXCLUDED.calculation_method,
		        calculated_by = EXCLUDED.calculated_by,
		        calculated_at = NOW(),
		        approved_by = CASE WHEN daily_calculations.volume_dispensed = EXCLUDED.volume_dispensed
		                THEN daily_calculations.approved_by ELSE NULL END,
		        approved_at = CASE WHEN daily_calculations.volume_dispensed = EXCLUDED.volume_dispensed
		                THEN daily_calculations.approved_at ELSE NULL END
		RETURNING `+calcColumns,
		calc.PumpID, calc.CalculationDate.Format("2006-01-02"), calc.OpeningReading, calc.ClosingReading,
		calc.VolumeDispensed, calc.UnitPrice, calc.TotalRevenue, calc.HasRollover, calc.RolloverValue,
		calc.DeviationPct, calc.IsEstimated, string(calc.Method), calc.CalculatedBy)
	return scanCalculation(row)
}

func (r *repository) AverageActualVolume(ctx context.Context, pumpID int64, before time.Time, lookbackDays, limit int) (decimal.Decimal, int, error) {
	var avg *decimal.Decimal
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT AVG(volume_dispensed), COUNT(*) FROM (
			SELECT volume_dispensed
			FROM daily_calculations
			WHERE pump_id = $1
			  AND NOT is_estimated
			  AND calculation_date < $2
			  AND calculation_date >= $2::date - $3::int
			ORDER BY calculation_date DESC
			LIMIT $4
		) recent`,
		pumpID, before.Format("2006-01-02"), lookbackDays, limit).Scan(&avg, &count)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if avg == nil {
		return decimal.Zero, 0, nil
	}
	return *avg, count, nil
}

func (r *repository) List(ctx context.Context, stationID int64, from, to time.Time, limit, offset int) ([]DailyCalculation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dc.id, dc.pump_id, dc.calculation_date, dc.opening_reading, dc.closing_reading, dc.volume_dispensed,
		       dc.unit_price, dc.total_revenue, dc.has_rollover, dc.rollover_value, dc.deviation_from_average,
		       dc.is_estimated, dc.calculation_method, dc.calculated_by, dc.calculated_at, dc.approved_by, dc.approved_at
		FROM daily_calculations dc
		JOIN pumps p ON p.id = dc.pump_id
		WHERE p.station_id = $1 AND dc.calculation_date BETWEEN $2 AND $3
		ORDER BY dc.calculation_date, dc.pump_id
		LIMIT $4 OFFSET $5`,
		stationID, from.Format("2006-01-02"), to.Format("2006-01-02"), limit, offset)
	if err != nil {
		return nil, err
	}
	return collectCalculations(rows)
}

func (r *repository) Count(ctx context.Context, stationID int64, from, to time.Time) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM daily_calculations dc
		JOIN pumps p ON p.id = dc.pump_id
		WHERE p.station_id = $1 AND dc.calculation_date BETWEEN $2 AND $3`,
		stationID, from.Format("2006-01-02"), to.Format("2006-01-02")).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) FindDeviations(ctx context.Context, stationID int64, thresholdPct float64, from, to time.Time) ([]DailyCalculation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dc.id, dc.pump_id, dc.calculation_date, dc.opening_reading, dc.closing_reading, dc.volume_dispensed,
		       dc.unit_price, dc.total_revenue, dc.has_rollover, dc.rollover_value, dc.deviation_from_average,
		       dc.is_estimated, dc.calculation_method, dc.calculated_by, dc.calculated_at, dc.approved_by, dc.approved_at
		FROM daily_calculations dc
		JOIN pumps p ON p.id = dc.pump_id
		WHERE p.station_id = $1
		  AND dc.calculation_date BETWEEN $2 AND $3
		  AND ABS(dc.deviation_from_average) >= $4
		ORDER BY ABS(dc.deviation_from_average) DESC`,
		stationID, from.Format("2006-01-02"), to.Format("2006-01-02"), thresholdPct)
	if err != nil {
		return nil, err
	}
	return collectCalculations(rows)
}

func (r *repository) ConfirmRollover(ctx context.Context, id int64, rolloverValue, newClosing, volume, revenue decimal.Decimal, deviationPct float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE daily_calculations
		SET rollover_value = $2, closing_reading = $3, volume_dispensed = $4, total_revenue = $5,
		    deviation_from_average = $6
		WHERE id = $1`,
		id, rolloverValue, newClosing, volume, revenue, deviationPct)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Decide(ctx context.Context, id int64, managerID int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE daily_calculations SET approved_by = $2, approved_at = $3 WHERE id = $1`,
		id, managerID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func collectCalculations(rows pgx.Rows) ([]DailyCalculation, error) {
	defer rows.Close()
	var out []DailyCalculation
	for rows.Next() {
		calc, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *calc)
	}
	return out, rows.Err()
}
