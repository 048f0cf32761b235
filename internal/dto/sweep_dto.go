package dto

import "time"

// Sweep stages used in SweepItemError.Stage.
const (
	SweepStagePublish  = "publish"
	SweepStageClose    = "close"
	SweepStageReminder = "reminder"
	SweepStageDispatch = "dispatch"
)

// SweepItemError is a non-fatal failure on a single entity during a sweep.
type SweepItemError struct {
	Stage    string `json:"stage"`
	EntityID uint   `json:"entity_id"`
	Error    string `json:"error"`
}

// SweepSummary reports the outcome of one sweep cycle.
type SweepSummary struct {
	RunToken   uint64           `json:"run_token"`
	Skipped    bool             `json:"skipped"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Published  int              `json:"published"`
	Closed     int              `json:"closed"`
	Reminded   int              `json:"reminded"`
	Errors     []SweepItemError `json:"errors"`
}
