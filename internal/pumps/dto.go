package pumps

import "time"

// CreatePumpRequest is the payload for registering a pump.
type CreatePumpRequest struct {
	StationID     int64      `json:"station_id" validate:"required,gt=0"`
	ProductID     int64      `json:"product_id" validate:"required,gt=0"`
	Label         string     `json:"label" validate:"required,max=50"`
	MeterCapacity string     `json:"meter_capacity" validate:"required"`
	InstallDate   *time.Time `json:"install_date,omitempty"`
	Status        string     `json:"status" validate:"omitempty,oneof=active maintenance retired"`
}

// UpdatePumpRequest is the payload for editing a pump.
type UpdatePumpRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	Label         string `json:"label" validate:"required,max=50"`
	MeterCapacity string `json:"meter_capacity" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=active maintenance retired"`
	IsActive      bool   `json:"is_active"`
}
