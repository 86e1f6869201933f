package readings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/forecourt-io/forecourt/internal/shared"
)

const uniqueViolation = "23505"

// Repository defines persistence operations for meter readings.
type Repository interface {
	Get(ctx context.Context, id int64) (*MeterReading, error)
	// Insert persists a new reading; a duplicate (pump, date, type) key
	// surfaces as shared.ErrConflict so concurrent writers never silently
	// overwrite each other.
	Insert(ctx context.Context, reading MeterReading) (int64, error)
	// ApplyEdit updates the meter value while capturing the original value
	// exactly once across any number of edits.
	ApplyEdit(ctx context.Context, id int64, value, original decimal.Decimal, notes *string, modifiedBy int64, modifiedAt time.Time) error
	Pair(ctx context.Context, pumpID int64, date time.Time) (ReadingPair, error)
	List(ctx context.Context, stationID int64, from, to time.Time, pumpID *int64, limit, offset int) ([]MeterReading, error)
	Count(ctx context.Context, stationID int64, from, to time.Time, pumpID *int64) (int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL reading repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const readingColumns = `id, pump_id, reading_date, reading_type, meter_value, recorded_by, recorded_at,
is_estimated, estimation_method, notes, is_modified, original_value, modified_by, modified_at`

func scanReading(row pgx.Row) (*MeterReading, error) {
	var m MeterReading
	var rtype string
	err := row.Scan(&m.ID, &m.PumpID, &m.ReadingDate, &rtype, &m.MeterValue, &m.RecordedBy, &m.RecordedAt,
		&m.IsEstimated, &m.EstimationMethod, &m.Notes, &m.IsModified, &m.OriginalValue, &m.ModifiedBy, &m.ModifiedAt)
	if err != nil {
		return nil, err
	}
	m.ReadingType = ReadingType(rtype)
	return &m, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*MeterReading, error) {
	reading, err := scanReading(r.pool.QueryRow(ctx, `SELECT `+readingColumns+` FROM meter_readings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return reading, nil
}

func (r *repository) Insert(ctx context.Context, reading MeterReading) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO meter_readings (pump_id, reading_date, reading_type, meter_value, recorded_by, recorded_at,
		                            is_estimated, estimation_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		reading.PumpID, reading.ReadingDate.Format("2006-01-02"), string(reading.ReadingType),
		reading.MeterValue, reading.RecordedBy, reading.RecordedAt,
		reading.IsEstimated, reading.EstimationMethod, reading.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%w: pump %d %s on %s", shared.ErrConflict,
				reading.PumpID, reading.ReadingType, reading.ReadingDate.Format("2006-01-02"))
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) ApplyEdit(ctx context.Context, id int64, value, original decimal.Decimal, notes *string, modifiedBy int64, modifiedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE meter_readings
		SET meter_value = $2,
		    original_value = COALESCE(original_value, $3),
		    is_modified = TRUE,
		    notes = COALESCE($4, notes),
		    modified_by = $5,
		    modified_at = $6
		WHERE id = $1`,
		id, value, original, notes, modifiedBy, modifiedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Pair(ctx context.Context, pumpID int64, date time.Time) (ReadingPair, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+readingColumns+`
FROM meter_readings WHERE pump_id = $1 AND reading_date = $2`, pumpID, date.Format("2006-01-02"))
	if err != nil {
		return ReadingPair{}, err
	}
	defer rows.Close()

	var pair ReadingPair
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return ReadingPair{}, err
		}
		switch reading.ReadingType {
		case ReadingTypeOpening:
			pair.Opening = reading
		case ReadingTypeClosing:
			pair.Closing = reading
		}
	}
	return pair, rows.Err()
}

func (r *repository) List(ctx context.Context, stationID int64, from, to time.Time, pumpID *int64, limit, offset int) ([]MeterReading, error) {
	query := `
		SELECT mr.id, mr.pump_id, mr.reading_date, mr.reading_type, mr.meter_value, mr.recorded_by, mr.recorded_at,
		       mr.is_estimated, mr.estimation_method, mr.notes, mr.is_modified, mr.original_value, mr.modified_by, mr.modified_at
		FROM meter_readings mr
		JOIN pumps p ON p.id = mr.pump_id
		WHERE p.station_id = $1 AND mr.reading_date BETWEEN $2 AND $3`
	args := []interface{}{stationID, from.Format("2006-01-02"), to.Format("2006-01-02")}
	if pumpID != nil {
		query += ` AND mr.pump_id = $4`
		args = append(args, *pumpID)
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY mr.reading_date, mr.pump_id, mr.reading_type LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MeterReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reading)
	}
	return out, rows.Err()
}

func (r *repository) Count(ctx context.Context, stationID int64, from, to time.Time, pumpID *int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM meter_readings mr
		JOIN pumps p ON p.id = mr.pump_id
		WHERE p.station_id = $1 AND mr.reading_date BETWEEN $2 AND $3`
	args := []interface{}{stationID, from.Format("2006-01-02"), to.Format("2006-01-02")}
	if pumpID != nil {
		query += ` AND mr.pump_id = $4`
		args = append(args, *pumpID)
	}
	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
