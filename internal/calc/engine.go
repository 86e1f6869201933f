package calc

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/forecourt-io/forecourt/internal/observability"
	"github.com/forecourt-io/forecourt/internal/pumps"
	"github.com/forecourt-io/forecourt/internal/readings"
)

// pumpConcurrency caps how many pump transactions a single run opens at once.
const pumpConcurrency = 4

// Engine computes and persists daily calculations. Each pump day is written
// inside its own repeatable-read transaction with a row lock on the
// (pump, date) key, so a manual run racing the auto-trigger cannot interleave
// partial writes.
type Engine struct {
	calcs     Repository
	readings  readings.Repository
	pumps     pumps.Repository
	prices    PriceSource
	estimator *Estimator

	sampleSize int
	lookback   int

	metrics *observability.Metrics
	logger  *slog.Logger
}

// PriceSource yields the current unit price for a product.
type PriceSource interface {
	CurrentUnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
}

// NewEngine wires the calculation engine.
func NewEngine(calcs Repository, readingRepo readings.Repository, pumpRepo pumps.Repository,
	prices PriceSource, estimator *Estimator, sampleSize, lookbackDays int,
	metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		calcs:      calcs,
		readings:   readingRepo,
		pumps:      pumpRepo,
		prices:     prices,
		estimator:  estimator,
		sampleSize: sampleSize,
		lookback:   lookbackDays,
		metrics:    metrics,
		logger:     logger,
	}
}

// Calculate runs the engine for every active PMS pump of a station on a date.
// Existing non-estimated rows are skipped unless force is set; estimated rows
// are always recomputed so late readings replace estimates.
func (e *Engine) Calculate(ctx context.Context, stationID int64, date time.Time, force bool, calculatedBy int64) (*RunResult, error) {
	pumpList, err := e.pumps.ListActivePMS(ctx, stationID)
	if err != nil {
		return nil, err
	}

	result := &RunResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pumpConcurrency)
	for _, pump := range pumpList {
		pump := pump
		g.Go(func() error {
			calc, skipped, err := e.calculatePump(gctx, pump, date, force, calculatedBy)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if skipped {
				result.SkippedCount++
				return nil
			}
			result.CalculatedCount++
			result.TotalVolume = result.TotalVolume.Add(calc.VolumeDispensed)
			result.TotalRevenue = result.TotalRevenue.Add(calc.TotalRevenue)
			result.Calculations = append(result.Calculations, *calc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Calculations, func(i, j int) bool {
		return result.Calculations[i].PumpID < result.Calculations[j].PumpID
	})
	return result, nil
}

func (e *Engine) calculatePump(ctx context.Context, pump pumps.Pump, date time.Time, force bool, calculatedBy int64) (*DailyCalculation, bool, error) {
	var saved *DailyCalculation
	var skipped bool
	err := e.calcs.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.LockPumpDay(ctx, pump.ID, date)
		if err != nil {
			return err
		}
		if existing != nil && !existing.IsEstimated && !force {
			skipped = true
			return nil
		}

		row, err := e.buildCalculation(ctx, repo, pump, date, existing, calculatedBy)
		if err != nil {
			return err
		}
		saved, err = repo.Upsert(ctx, *row)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if skipped {
		return nil, true, nil
	}

	e.metrics.ObserveCalculation(string(saved.Method))
	if saved.HasRollover {
		e.metrics.ObserveRollover()
	}
	e.log().Info("daily calculation persisted",
		slog.Int64("pump_id", pump.ID),
		slog.String("date", date.Format("2006-01-02")),
		slog.String("method", string(saved.Method)),
		slog.String("volume", saved.VolumeDispensed.String()))
	return saved, false, nil
}

func (e *Engine) buildCalculation(ctx context.Context, repo Repository, pump pumps.Pump, date time.Time, prior *DailyCalculation, calculatedBy int64) (*DailyCalculation, error) {
	unitPrice, err := e.prices.CurrentUnitPrice(ctx, pump.ProductID)
	if err != nil {
		return nil, err
	}

	pair, err := e.readings.Pair(ctx, pump.ID, date)
	if err != nil {
		return nil, err
	}

	row := DailyCalculation{
		PumpID:          pump.ID,
		CalculationDate: date,
		UnitPrice:       unitPrice,
		CalculatedBy:    calculatedBy,
	}

	if pair.Complete() {
		opening := pair.Opening.MeterValue
		closing := pair.Closing.MeterValue
		row.OpeningReading = opening
		row.ClosingReading = closing
		row.Method = MethodMeterActual
		if closing.LessThan(opening) {
			row.HasRollover = true
			if prior != nil && prior.HasRollover && prior.RolloverValue != nil && prior.OpeningReading.Equal(opening) {
				// The confirmed wrap point carries more information than the
				// raw readings; keep it unless the opening itself was edited.
				confirmed := *prior.RolloverValue
				row.RolloverValue = &confirmed
				row.ClosingReading = prior.ClosingReading
				row.VolumeDispensed = confirmed.Sub(opening).Add(prior.ClosingReading)
			} else {
				row.VolumeDispensed = ProvisionalRolloverVolume(opening, closing, pump.MeterCapacity)
			}
		} else {
			row.VolumeDispensed = closing.Sub(opening)
		}
	} else {
		est, err := e.estimator.Estimate(ctx, repo, pump.StationID, pump.ID, date)
		if err != nil {
			return nil, err
		}
		if pair.Opening != nil {
			row.OpeningReading = pair.Opening.MeterValue
		}
		if pair.Closing != nil {
			row.ClosingReading = pair.Closing.MeterValue
		}
		row.VolumeDispensed = est.Volume
		row.Method = est.Method
		row.IsEstimated = true
	}

	row.TotalRevenue = row.VolumeDispensed.Mul(unitPrice)

	avg, count, err := repo.AverageActualVolume(ctx, pump.ID, date, e.lookback, e.sampleSize)
	if err != nil {
		return nil, err
	}
	row.DeviationPct = DeviationPct(row.VolumeDispensed, avg, count)
	return &row, nil
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}
