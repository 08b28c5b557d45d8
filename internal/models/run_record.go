package models

import "time"

// CaptureRunRecord is the persisted view of a capture run, stored by the
// service layer so callers can poll long-running captures.
type CaptureRunRecord struct {
	ID string `json:"id" db:"id"`

	// Input
	TargetLat float64 `json:"target_lat" db:"target_lat"`
	TargetLon float64 `json:"target_lon" db:"target_lon"`

	// Lifecycle: pending, running, then the pipeline's terminal status
	// (success, partial, error).
	Status      string `json:"status" db:"status"`
	FailureKind string `json:"failure_kind,omitempty" db:"failure_kind"`

	// Result
	ResultJSON   string `json:"result_json,omitempty" db:"result_json"` // serialized BuildingCaptureRun
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
	ExecutionMS  int64  `json:"execution_ms" db:"execution_ms"`

	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Record lifecycle constants (pre-terminal).
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
)

// IsTerminal reports whether the run has finished executing.
func (r *CaptureRunRecord) IsTerminal() bool {
	switch r.Status {
	case StatusSuccess, StatusPartial, StatusError:
		return true
	}
	return false
}
