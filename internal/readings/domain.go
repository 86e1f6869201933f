package readings

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReadingType distinguishes the business-day start and end readings.
type ReadingType string

const (
	ReadingTypeOpening ReadingType = "opening"
	ReadingTypeClosing ReadingType = "closing"
)

// Valid reports whether the reading type is known.
func (t ReadingType) Valid() bool {
	return t == ReadingTypeOpening || t == ReadingTypeClosing
}

// MeterReading is a cumulative meter value recorded for a pump on a calendar
// day. At most one reading exists per (pump, date, type); the database
// enforces the constraint.
type MeterReading struct {
	ID          int64           `json:"id"`
	PumpID      int64           `json:"pump_id"`
	ReadingDate time.Time       `json:"reading_date"`
	ReadingType ReadingType     `json:"reading_type"`
	MeterValue  decimal.Decimal `json:"meter_value"`
	RecordedBy  int64           `json:"recorded_by"`
	RecordedAt  time.Time       `json:"recorded_at"`

	IsEstimated      bool    `json:"is_estimated"`
	EstimationMethod *string `json:"estimation_method,omitempty"`
	Notes            *string `json:"notes,omitempty"`

	// OriginalValue holds the pristine first value once the reading has been
	// edited; it is written exactly once and never overwritten afterwards.
	IsModified    bool             `json:"is_modified"`
	OriginalValue *decimal.Decimal `json:"original_value,omitempty"`
	ModifiedBy    *int64           `json:"modified_by,omitempty"`
	ModifiedAt    *time.Time       `json:"modified_at,omitempty"`
}

// ReadingPair groups the opening and closing readings for a pump/date.
// Either side may be nil when not yet recorded.
type ReadingPair struct {
	Opening *MeterReading
	Closing *MeterReading
}

// Complete reports whether both sides exist.
func (p ReadingPair) Complete() bool {
	return p.Opening != nil && p.Closing != nil
}
