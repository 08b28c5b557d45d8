package models

import "time"

// TargetLocation is the immutable input of a capture run.
type TargetLocation struct {
	Lat float64 `json:"latitude" db:"target_lat"`
	Lon float64 `json:"longitude" db:"target_lon"`
}

// RoadPosition is a point snapped onto a drivable road near the target.
// SegmentID identifies the physical road segment; two positions with the
// same id are the same segment and only the first is kept.
type RoadPosition struct {
	Lat       float64 `json:"latitude"`
	Lon       float64 `json:"longitude"`
	SegmentID string  `json:"segment_id"`
}

// Camera parameter bounds. Every Viewpoint satisfies these at all times;
// adjustments that would leave the range are clamped, not rejected.
const (
	MinPitch    = -15.0
	MaxPitch    = 55.0
	MinFOV      = 30.0
	MaxFOV      = 90.0
	MinDistance = 8.0
	MaxDistance = 65.0
)

// Viewpoint describes camera placement and orientation for one capture.
type Viewpoint struct {
	CameraLat float64 `json:"camera_latitude"`
	CameraLon float64 `json:"camera_longitude"`
	Heading   float64 `json:"heading_degrees"` // [0,360), clockwise from north
	Pitch     float64 `json:"pitch_degrees"`   // [-15,55]
	FOV       float64 `json:"fov_degrees"`     // [30,90]
	Distance  float64 `json:"distance_meters"` // [8,65], camera to target
}

// Clamp returns a copy of the viewpoint with every field forced into its
// bound range and the heading normalized to [0,360).
func (v Viewpoint) Clamp() Viewpoint {
	v.Heading = NormalizeHeading(v.Heading)
	v.Pitch = clampFloat(v.Pitch, MinPitch, MaxPitch)
	v.FOV = clampFloat(v.FOV, MinFOV, MaxFOV)
	v.Distance = clampFloat(v.Distance, MinDistance, MaxDistance)
	return v
}

// NormalizeHeading maps any angle onto [0,360).
func NormalizeHeading(deg float64) float64 {
	deg = deg - 360*float64(int(deg/360))
	if deg < 0 {
		deg += 360
	}
	return deg
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// CaptureCandidate is a viewpoint after the coverage check. Candidates
// without coverage are dropped before screening; Diagnostic explains why.
type CaptureCandidate struct {
	Viewpoint         Viewpoint `json:"viewpoint"`
	ImageRef          string    `json:"image_reference,omitempty"`
	PanoID            string    `json:"pano_id,omitempty"`
	CoverageAvailable bool      `json:"coverage_available"`
	Diagnostic        string    `json:"diagnostic,omitempty"`
}

// Clarity is the oracle's coarse readability judgment of an image.
type Clarity string

const (
	ClarityExcellent  Clarity = "excellent"
	ClarityGood       Clarity = "good"
	ClarityAcceptable Clarity = "acceptable"
	ClarityPoor       Clarity = "poor"
)

// ScreeningResult is the oracle's verdict for one candidate, plus the
// group bookkeeping computed by the quality gate. GroupID partitions
// surviving candidates believed to show the same facade; exactly one
// member per group is primary.
type ScreeningResult struct {
	Candidate        CaptureCandidate `json:"candidate"`
	IsValidFrontFace bool             `json:"is_valid_front_face"`
	Confidence       float64          `json:"confidence"` // [0,1]
	Clarity          Clarity          `json:"clarity"`
	NeedsRefinement  bool             `json:"needs_refinement"`
	Quality          int              `json:"quality"` // opaque oracle scale
	IsFullView       bool             `json:"is_full_view"`
	GroupID          string           `json:"group_id,omitempty"`
	IsPrimaryInGroup bool             `json:"is_primary_in_group"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`
}

// RefinementDelta is one oracle-proposed parameter adjustment. Per-step
// magnitudes are bounded before application; the resulting viewpoint is
// additionally clamped to the absolute bounds.
type RefinementDelta struct {
	DistanceChange float64 `json:"distance_change"` // meters, |x| <= 10
	PitchChange    float64 `json:"pitch_change"`    // degrees, |x| <= 15
	FOVChange      float64 `json:"fov_change"`      // degrees, |x| <= 15
}

// Per-step delta bounds.
const (
	MaxStepDistance = 10.0
	MaxStepPitch    = 15.0
	MaxStepFOV      = 15.0
)

// ClampStep bounds each component of the delta to its per-step limit.
func (d RefinementDelta) ClampStep() RefinementDelta {
	d.DistanceChange = clampFloat(d.DistanceChange, -MaxStepDistance, MaxStepDistance)
	d.PitchChange = clampFloat(d.PitchChange, -MaxStepPitch, MaxStepPitch)
	d.FOVChange = clampFloat(d.FOVChange, -MaxStepFOV, MaxStepFOV)
	return d
}

// Halve returns the delta at half magnitude, used by the oscillation guard.
func (d RefinementDelta) Halve() RefinementDelta {
	return RefinementDelta{
		DistanceChange: d.DistanceChange / 2,
		PitchChange:    d.PitchChange / 2,
		FOVChange:      d.FOVChange / 2,
	}
}

// IsZero reports whether the delta proposes no change at all.
func (d RefinementDelta) IsZero() bool {
	return d.DistanceChange == 0 && d.PitchChange == 0 && d.FOVChange == 0
}

// RefinementStep records one iteration of the refinement loop. Steps are
// append-only; the history is never rewritten.
type RefinementStep struct {
	Iteration int             `json:"iteration"`
	Prior     Viewpoint       `json:"prior_viewpoint"`
	Delta     RefinementDelta `json:"proposed_delta"`
	Result    Viewpoint       `json:"resulting_viewpoint"`
	Screening ScreeningResult `json:"resulting_screening"`
}

// Refinement outcome constants.
const (
	OutcomeConverged = "converged"
	OutcomeExhausted = "exhausted"
)

// CaptureResult is the terminal artifact of one primary candidate's
// refinement.
type CaptureResult struct {
	Viewpoint       Viewpoint        `json:"final_viewpoint"`
	ImageRef        string           `json:"final_image_reference"`
	History         []RefinementStep `json:"refinement_history,omitempty"`
	TotalIterations int              `json:"total_iterations"`
	Outcome         string           `json:"outcome"` // converged, exhausted
	Confidence      float64          `json:"confidence"`
	Quality         int              `json:"quality"`
	Diagnostic      string           `json:"diagnostic,omitempty"`
}

// Establishment is a business identified on the captured facade.
type Establishment struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// BuildingAnalysis is the analysis collaborator's payload for the final
// capture(s).
type BuildingAnalysis struct {
	UsageSummary      string            `json:"building_usage_summary"`
	VisualDescription map[string]string `json:"visual_description,omitempty"` // floors, style, color, condition
	Establishments    []Establishment   `json:"establishments,omitempty"`
	Address           string            `json:"address,omitempty"`
}

// Run status constants.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// BuildingCaptureRun owns everything produced by one pipeline invocation.
// The core holds it in memory only; persistence belongs to the caller.
type BuildingCaptureRun struct {
	Target        TargetLocation     `json:"target"`
	RefinedTarget TargetLocation     `json:"refined_target"`
	RoadPositions []RoadPosition     `json:"road_positions,omitempty"`
	Candidates    []CaptureCandidate `json:"capture_candidates,omitempty"`
	Results       []CaptureResult    `json:"capture_results,omitempty"`
	Analysis      *BuildingAnalysis  `json:"analysis,omitempty"`
	Status        string             `json:"status"` // success, partial, error
	FailureKind   string             `json:"failure_kind,omitempty"`
	Diagnostics   []string           `json:"diagnostics,omitempty"`
	ExecutionTime time.Duration      `json:"execution_time_ns"`
}
