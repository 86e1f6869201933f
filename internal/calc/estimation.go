package calc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forecourt-io/forecourt/internal/ledger"
)

// Estimate is the outcome of the fallback chain for a day with a missing
// opening or closing reading.
type Estimate struct {
	Volume decimal.Decimal
	Method CalculationMethod
}

// Estimator derives a day's volume when meter readings are incomplete.
//
// The fallback order is fixed: summed PMS transactions for the station and
// date, then the trailing average of the pump's recent actual calculations,
// then zero. Whatever the tier, the result is marked estimated and left
// unapproved.
type Estimator struct {
	ledger     ledger.Repository
	sampleSize int
	lookback   int
}

// NewEstimator builds an estimator. sampleSize caps how many actual
// calculations feed the trailing average; lookbackDays bounds how far back
// they may come from.
func NewEstimator(ledgerRepo ledger.Repository, sampleSize, lookbackDays int) *Estimator {
	return &Estimator{ledger: ledgerRepo, sampleSize: sampleSize, lookback: lookbackDays}
}

// Estimate runs the fallback chain for one pump day. The repo argument is the
// calculation repository scoped to the surrounding transaction.
func (e *Estimator) Estimate(ctx context.Context, repo Repository, stationID, pumpID int64, date time.Time) (Estimate, error) {
	sum, hasTransactions, err := e.ledger.SumQuantity(ctx, stationID, date)
	if err != nil {
		return Estimate{}, err
	}
	if hasTransactions {
		return Estimate{Volume: sum, Method: MethodTransactionBased}, nil
	}

	avg, count, err := repo.AverageActualVolume(ctx, pumpID, date, e.lookback, e.sampleSize)
	if err != nil {
		return Estimate{}, err
	}
	if count > 0 {
		return Estimate{Volume: avg, Method: MethodEstimated}, nil
	}

	// No transactions and no history. The row still gets written so the
	// day shows up for operator attention instead of silently missing.
	return Estimate{Volume: decimal.Zero, Method: MethodEstimated}, nil
}
