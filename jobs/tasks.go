package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecalcDaily recomputes a station's daily calculations for a date.
	// Enqueued after an opening/closing pair completes and available for
	// manual re-runs.
	TaskRecalcDaily = "calc:recalc_daily"
	// TaskDeviationScan walks recent calculations and logs the ones breaching
	// the deviation bands. Registered on the nightly cron.
	TaskDeviationScan = "calc:deviation_scan"
)

// RecalcPayload identifies the station day to recompute.
type RecalcPayload struct {
	StationID int64  `json:"station_id"`
	Date      string `json:"date"`
	Force     bool   `json:"force,omitempty"`
}

// NewRecalcTask constructs an Asynq task for a station-day recalculation.
func NewRecalcTask(payload RecalcPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecalcDaily, data), nil
}

// DeviationScanPayload tunes the nightly deviation sweep. Zero values fall
// back to the configured defaults.
type DeviationScanPayload struct {
	LookbackDays int     `json:"lookback_days,omitempty"`
	ThresholdPct float64 `json:"threshold_pct,omitempty"`
}

// NewDeviationScanTask constructs the nightly deviation sweep task.
func NewDeviationScanTask(payload DeviationScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeviationScan, data), nil
}
