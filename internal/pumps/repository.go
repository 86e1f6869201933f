package pumps

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forecourt-io/forecourt/internal/shared"
)

// Repository defines persistence operations for pumps.
type Repository interface {
	Get(ctx context.Context, id int64) (*Pump, error)
	ListByStation(ctx context.Context, stationID int64) ([]PumpWithDetails, error)
	// ListActivePMS returns active pumps assigned to PMS products; the set
	// the calculation engine iterates for a station.
	ListActivePMS(ctx context.Context, stationID int64) ([]Pump, error)
	Create(ctx context.Context, pump Pump) (int64, error)
	Update(ctx context.Context, pump Pump) error
	HasReadings(ctx context.Context, pumpID int64) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL pump repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const pumpColumns = `id, station_id, product_id, label, meter_capacity, install_date, status, is_active, created_at, updated_at`

func scanPump(row pgx.Row, p *Pump) error {
	var status string
	if err := row.Scan(&p.ID, &p.StationID, &p.ProductID, &p.Label, &p.MeterCapacity,
		&p.InstallDate, &status, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	p.Status = PumpStatus(status)
	return nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Pump, error) {
	var p Pump
	err := scanPump(r.pool.QueryRow(ctx, `SELECT `+pumpColumns+` FROM pumps WHERE id = $1`, id), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListByStation(ctx context.Context, stationID int64) ([]PumpWithDetails, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.station_id, p.product_id, p.label, p.meter_capacity,
		       p.install_date, p.status, p.is_active, p.created_at, p.updated_at,
		       fp.name, fp.is_pms,
		       (SELECT MAX(reading_date) FROM meter_readings mr WHERE mr.pump_id = p.id)
		FROM pumps p
		JOIN fuel_products fp ON fp.id = p.product_id
		WHERE p.station_id = $1
		ORDER BY p.label`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PumpWithDetails
	for rows.Next() {
		var p PumpWithDetails
		var status string
		if err := rows.Scan(&p.ID, &p.StationID, &p.ProductID, &p.Label, &p.MeterCapacity,
			&p.InstallDate, &status, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
			&p.ProductName, &p.ProductIsPMS, &p.LastReadingDate); err != nil {
			return nil, err
		}
		p.Status = PumpStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) ListActivePMS(ctx context.Context, stationID int64) ([]Pump, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.station_id, p.product_id, p.label, p.meter_capacity,
		       p.install_date, p.status, p.is_active, p.created_at, p.updated_at
		FROM pumps p
		JOIN fuel_products fp ON fp.id = p.product_id
		WHERE p.station_id = $1 AND p.is_active AND p.status = 'active' AND fp.is_pms
		ORDER BY p.id`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pump
	for rows.Next() {
		var p Pump
		var status string
		if err := rows.Scan(&p.ID, &p.StationID, &p.ProductID, &p.Label, &p.MeterCapacity,
			&p.InstallDate, &status, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Status = PumpStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, pump Pump) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO pumps (station_id, product_id, label, meter_capacity, install_date, status, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id`,
		pump.StationID, pump.ProductID, pump.Label, pump.MeterCapacity,
		pump.InstallDate, string(pump.Status), pump.IsActive).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, pump Pump) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pumps
		SET product_id = $2, label = $3, meter_capacity = $4, status = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1`,
		pump.ID, pump.ProductID, pump.Label, pump.MeterCapacity, string(pump.Status), pump.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) HasReadings(ctx context.Context, pumpID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM meter_readings WHERE pump_id = $1)`, pumpID).Scan(&exists)
	return exists, err
}
