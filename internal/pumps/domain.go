package pumps

import (
	"time"

	"github.com/shopspring/decimal"
)

// PumpStatus enumerates pump lifecycle states.
type PumpStatus string

const (
	PumpStatusActive      PumpStatus = "active"
	PumpStatusMaintenance PumpStatus = "maintenance"
	PumpStatusRetired     PumpStatus = "retired"
)

// Valid reports whether the status is one of the known values.
func (s PumpStatus) Valid() bool {
	switch s {
	case PumpStatusActive, PumpStatusMaintenance, PumpStatusRetired:
		return true
	}
	return false
}

// Pump is a dispenser with a cumulative meter. MeterCapacity is the value at
// which the physical counter wraps; changing it after readings exist breaks
// historical rollover math, so updates refuse it once readings reference the
// pump.
type Pump struct {
	ID            int64           `json:"id"`
	StationID     int64           `json:"station_id"`
	ProductID     int64           `json:"product_id"`
	Label         string          `json:"label"`
	MeterCapacity decimal.Decimal `json:"meter_capacity"`
	InstallDate   time.Time       `json:"install_date"`
	Status        PumpStatus      `json:"status"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PumpWithDetails augments a pump with catalog and activity context.
type PumpWithDetails struct {
	Pump
	ProductName     string     `json:"product_name"`
	ProductIsPMS    bool       `json:"product_is_pms"`
	LastReadingDate *time.Time `json:"last_reading_date,omitempty"`
}
