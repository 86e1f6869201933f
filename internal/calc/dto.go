package calc

// RunRequest triggers a calculation run for a station and date.
type RunRequest struct {
	StationID int64  `json:"station_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Force     bool   `json:"force,omitempty"`
}

// ConfirmRolloverRequest records the confirmed wrap point for a rollover day.
type ConfirmRolloverRequest struct {
	RolloverValue string `json:"rollover_value" validate:"required"`
	NewClosing    string `json:"new_closing" validate:"required"`
	Notes         string `json:"notes,omitempty"`
}

// DecisionRequest carries a manager's approval decision. Approved is a
// pointer so an absent field is distinguishable from an explicit false.
type DecisionRequest struct {
	Approved *bool  `json:"approved" validate:"required"`
	Notes    string `json:"notes,omitempty"`
}
