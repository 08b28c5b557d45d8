package models

import "time"

// CaptureOptions are the recognized per-run options of the capture entry
// point. Zero values are replaced by defaults in Normalize.
type CaptureOptions struct {
	RoadSearchRadiusM          float64       `json:"road_search_radius_m,omitempty"`
	RoadSampleCount            int           `json:"road_sample_count,omitempty"`
	MaxRefinementIterations    int           `json:"max_refinement_iterations,omitempty"`
	RefinementQualityThreshold int           `json:"refinement_quality_threshold,omitempty"`
	OverallTimeout             time.Duration `json:"overall_timeout_s,omitempty"`
	MaxFanout                  int           `json:"max_fanout,omitempty"`
}

// Option defaults.
const (
	DefaultRoadSearchRadiusM          = 50.0
	DefaultRoadSampleCount            = 8
	DefaultMaxRefinementIterations    = 3
	DefaultRefinementQualityThreshold = 8
	DefaultOverallTimeout             = 120 * time.Second
	DefaultMaxFanout                  = 4
)

// Normalize fills unset fields with defaults and floors nonsensical values.
func (o CaptureOptions) Normalize() CaptureOptions {
	if o.RoadSearchRadiusM <= 0 {
		o.RoadSearchRadiusM = DefaultRoadSearchRadiusM
	}
	if o.RoadSampleCount <= 0 {
		o.RoadSampleCount = DefaultRoadSampleCount
	}
	if o.MaxRefinementIterations <= 0 {
		o.MaxRefinementIterations = DefaultMaxRefinementIterations
	}
	if o.RefinementQualityThreshold <= 0 {
		o.RefinementQualityThreshold = DefaultRefinementQualityThreshold
	}
	if o.OverallTimeout <= 0 {
		o.OverallTimeout = DefaultOverallTimeout
	}
	if o.MaxFanout <= 0 {
		o.MaxFanout = DefaultMaxFanout
	}
	return o
}
