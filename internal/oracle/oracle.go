package oracle

import (
	"context"

	"github.com/sathizz7/streetview-capturing-sys/internal/models"
)

// Judge is the vision-judgment collaborator. Implementations are fallible,
// latent and non-deterministic; callers never assume two calls with the
// same input agree. A stub implementation backs deterministic tests.
type Judge interface {
	// SupportsBatch reports whether Screen accepts more than one request
	// per call. When false, the quality gate issues one call per candidate.
	SupportsBatch() bool

	// Screen judges candidate images. The response slice carries one entry
	// per judged candidate, matched by CandidateIndex.
	Screen(ctx context.Context, reqs []ScreenRequest) ([]ScreenResponse, error)

	// ProposeRefinement asks for a parameter adjustment given the
	// refinement history so far.
	ProposeRefinement(ctx context.Context, req RefinementRequest) (models.RefinementDelta, error)

	// Analyze produces the building analysis for the final capture images.
	Analyze(ctx context.Context, req AnalyzeRequest) (models.BuildingAnalysis, error)
}

// ScreenRequest is one candidate image submitted for screening.
type ScreenRequest struct {
	CandidateIndex int              `json:"candidate_index"`
	ImageRef       string           `json:"image_url"`
	Viewpoint      models.Viewpoint `json:"viewpoint"`
}

// ScreenResponse is the oracle's verdict for one candidate. GroupID is
// optional; when the oracle provides none for the whole batch, the quality
// gate falls back to geometric grouping.
type ScreenResponse struct {
	CandidateIndex   int            `json:"candidate_index"`
	IsValidFrontFace bool           `json:"is_valid_front_face"`
	Confidence       float64        `json:"confidence"`
	Clarity          models.Clarity `json:"clarity_assessment"`
	NeedsRefinement  bool           `json:"needs_refinement"`
	Quality          int            `json:"overall_quality"`
	IsFullView       bool           `json:"is_full_view"`
	GroupID          string         `json:"group_id,omitempty"`
	Suggestions      string         `json:"suggestions,omitempty"`
}

// RefinementRequest carries the current framing and the full step history
// so the oracle can avoid repeating adjustments.
type RefinementRequest struct {
	ImageRef  string                  `json:"image_url"`
	Viewpoint models.Viewpoint        `json:"viewpoint"`
	History   []models.RefinementStep `json:"history,omitempty"`
}

// AnalyzeRequest carries the final capture images for building analysis.
type AnalyzeRequest struct {
	ImageRefs []string              `json:"image_urls"`
	Target    models.TargetLocation `json:"target"`
}
