// Package ledger reads the legacy PMS sales-transaction records used as the
// first estimation fallback when meter readings are missing.
package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository sums transaction quantities from the legacy ledger.
type Repository interface {
	SumQuantity(ctx context.Context, stationID int64, date time.Time) (decimal.Decimal, bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a read-only ledger repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// SumQuantity returns the summed litres sold for a station on a date. The
// boolean reports whether any transaction rows existed at all; a day with
// rows summing to zero is still transaction-backed.
func (r *repository) SumQuantity(ctx context.Context, stationID int64, date time.Time) (decimal.Decimal, bool, error) {
	var total decimal.Decimal
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0), COUNT(*)
FROM pms_transactions WHERE station_id = $1 AND sold_at = $2`, stationID, date.Format("2006-01-02")).Scan(&total, &count)
	if err != nil {
		return decimal.Zero, false, err
	}
	return total, count > 0, nil
}
