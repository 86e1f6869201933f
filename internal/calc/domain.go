// Package calc owns the DailyCalculation lifecycle: converting meter
// readings into daily volume and revenue, detecting counter rollover,
// estimating through ordered fallbacks, scoring deviation against trailing
// history, and the manager approval workflow over estimated results.
package calc

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculationMethod records how a day's volume was derived.
type CalculationMethod string

const (
	// MethodMeterActual means both readings existed and the volume came
	// straight from the meter delta.
	MethodMeterActual CalculationMethod = "meter_actual"
	// MethodEstimated means the volume came from the historical-average or
	// manual fallback tiers.
	MethodEstimated CalculationMethod = "estimated"
	// MethodTransactionBased means the volume was summed from legacy PMS
	// sales transactions; reporting uses this to avoid double-counting.
	MethodTransactionBased CalculationMethod = "transaction_based"
)

// DailyCalculation is the persisted daily result for one pump. At most one
// row exists per (pump, date).
type DailyCalculation struct {
	ID              int64             `json:"id"`
	PumpID          int64             `json:"pump_id"`
	CalculationDate time.Time         `json:"calculation_date"`
	OpeningReading  decimal.Decimal   `json:"opening_reading"`
	ClosingReading  decimal.Decimal   `json:"closing_reading"`
	VolumeDispensed decimal.Decimal   `json:"volume_dispensed"`
	UnitPrice       decimal.Decimal   `json:"unit_price"`
	TotalRevenue    decimal.Decimal   `json:"total_revenue"`
	HasRollover     bool              `json:"has_rollover"`
	RolloverValue   *decimal.Decimal  `json:"rollover_value,omitempty"`
	DeviationPct    float64           `json:"deviation_from_average"`
	IsEstimated     bool              `json:"is_estimated"`
	Method          CalculationMethod `json:"calculation_method"`
	CalculatedBy    int64             `json:"calculated_by"`
	CalculatedAt    time.Time         `json:"calculated_at"`
	ApprovedBy      *int64            `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
}

// ApprovalState derives the workflow state from the row.
func (c *DailyCalculation) ApprovalState() string {
	switch {
	case !c.IsEstimated:
		return "not_applicable"
	case c.ApprovedBy == nil:
		return "pending"
	default:
		return "decided"
	}
}

// RunResult summarises one calculation run over a station.
type RunResult struct {
	CalculatedCount int                `json:"calculated_count"`
	SkippedCount    int                `json:"skipped_count"`
	TotalVolume     decimal.Decimal    `json:"total_volume"`
	TotalRevenue    decimal.Decimal    `json:"total_revenue"`
	Calculations    []DailyCalculation `json:"calculations"`
}

// Severity labels for deviation bands.
const (
	SeverityNormal   = "normal"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Thresholds configures the deviation severity bands, in percent.
type Thresholds struct {
	Moderate float64
	High     float64
	Critical float64
}

// DefaultThresholds matches the operational bands stations run with.
func DefaultThresholds() Thresholds {
	return Thresholds{Moderate: 20, High: 30, Critical: 50}
}

// Severity maps an absolute deviation percentage onto a band.
func (t Thresholds) Severity(deviationPct float64) string {
	abs := deviationPct
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= t.Critical:
		return SeverityCritical
	case abs >= t.High:
		return SeverityHigh
	case abs >= t.Moderate:
		return SeverityModerate
	default:
		return SeverityNormal
	}
}

// Deviation is a calculation annotated with its severity band.
type Deviation struct {
	DailyCalculation
	Severity string `json:"severity"`
}
