package readings

// CreateReadingRequest is the payload for recording a reading.
type CreateReadingRequest struct {
	PumpID      int64   `json:"pump_id" validate:"required,gt=0"`
	ReadingDate string  `json:"reading_date" validate:"required,datetime=2006-01-02"`
	ReadingType string  `json:"reading_type" validate:"required,oneof=opening closing"`
	MeterValue  string  `json:"meter_value" validate:"required"`
	Notes       *string `json:"notes,omitempty"`
}

// BulkCreateRequest wraps multiple reading writes.
type BulkCreateRequest struct {
	Readings []CreateReadingRequest `json:"readings" validate:"required,min=1,max=100,dive"`
}

// UpdateReadingRequest is the payload for editing a reading. The override
// fields are only honored past the cutoff and only for managers.
type UpdateReadingRequest struct {
	MeterValue     string  `json:"meter_value" validate:"required"`
	Notes          *string `json:"notes,omitempty"`
	Override       bool    `json:"override,omitempty"`
	OverrideReason string  `json:"override_reason,omitempty"`
}
