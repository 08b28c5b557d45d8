package pipeline_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// --- Mock mapping collaborator ---

type mockMaps struct {
	mu sync.Mutex

	snapFn     func(ctx context.Context, pt spatial.Point) (models.RoadPosition, error)
	metadataFn func(ctx context.Context, vp models.Viewpoint) (maps.Metadata, error)
	renderFn   func(ctx context.Context, vp models.Viewpoint, panoID string) (string, error)
	geocodeFn  func(ctx context.Context, target models.TargetLocation) (models.TargetLocation, error)
	reverseFn  func(ctx context.Context, target models.TargetLocation) (string, error)

	snapCalls     int
	metadataCalls int
	renderCalls   int
}

func (m *mockMaps) SnapToRoad(ctx context.Context, pt spatial.Point) (models.RoadPosition, error) {
	m.mu.Lock()
	m.snapCalls++
	m.mu.Unlock()
	if m.snapFn != nil {
		return m.snapFn(ctx, pt)
	}
	// Default: every sample snaps onto its own segment at the sample point.
	return models.RoadPosition{
		Lat:       pt.Lat,
		Lon:       pt.Lon,
		SegmentID: fmt.Sprintf("seg-%.6f-%.6f", pt.Lat, pt.Lon),
	}, nil
}

func (m *mockMaps) ImageryMetadata(ctx context.Context, vp models.Viewpoint) (maps.Metadata, error) {
	m.mu.Lock()
	m.metadataCalls++
	m.mu.Unlock()
	if m.metadataFn != nil {
		return m.metadataFn(ctx, vp)
	}
	return maps.Metadata{Available: true, PanoID: "pano-1"}, nil
}

func (m *mockMaps) RenderImage(ctx context.Context, vp models.Viewpoint, panoID string) (string, error) {
	m.mu.Lock()
	m.renderCalls++
	m.mu.Unlock()
	if m.renderFn != nil {
		return m.renderFn(ctx, vp, panoID)
	}
	return fmt.Sprintf("https://img.example/%s?h=%.1f&p=%.1f&f=%.1f&d=%.1f",
		panoID, vp.Heading, vp.Pitch, vp.FOV, vp.Distance), nil
}

func (m *mockMaps) GeocodeRefine(ctx context.Context, target models.TargetLocation) (models.TargetLocation, error) {
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, target)
	}
	return target, nil
}

func (m *mockMaps) ReverseGeocode(ctx context.Context, target models.TargetLocation) (string, error) {
	if m.reverseFn != nil {
		return m.reverseFn(ctx, target)
	}
	return "1 Example Street", nil
}

// --- Mock vision-judgment oracle ---

type mockJudge struct {
	mu sync.Mutex

	batch     bool
	screenFn  func(ctx context.Context, reqs []oracle.ScreenRequest) ([]oracle.ScreenResponse, error)
	refineFn  func(ctx context.Context, req oracle.RefinementRequest) (models.RefinementDelta, error)
	analyzeFn func(ctx context.Context, req oracle.AnalyzeRequest) (models.BuildingAnalysis, error)

	screenCalls int
	refineCalls int
}

func (m *mockJudge) SupportsBatch() bool { return m.batch }

func (m *mockJudge) Screen(ctx context.Context, reqs []oracle.ScreenRequest) ([]oracle.ScreenResponse, error) {
	m.mu.Lock()
	m.screenCalls++
	m.mu.Unlock()
	if m.screenFn != nil {
		return m.screenFn(ctx, reqs)
	}
	// Default: everything is a valid, already-acceptable front face.
	out := make([]oracle.ScreenResponse, len(reqs))
	for i, r := range reqs {
		out[i] = oracle.ScreenResponse{
			CandidateIndex:   r.CandidateIndex,
			IsValidFrontFace: true,
			Confidence:       0.9,
			Clarity:          models.ClarityGood,
			NeedsRefinement:  false,
			Quality:          8,
			IsFullView:       true,
		}
	}
	return out, nil
}

func (m *mockJudge) ProposeRefinement(ctx context.Context, req oracle.RefinementRequest) (models.RefinementDelta, error) {
	m.mu.Lock()
	m.refineCalls++
	m.mu.Unlock()
	if m.refineFn != nil {
		return m.refineFn(ctx, req)
	}
	return models.RefinementDelta{}, nil
}

func (m *mockJudge) Analyze(ctx context.Context, req oracle.AnalyzeRequest) (models.BuildingAnalysis, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, req)
	}
	return models.BuildingAnalysis{
		UsageSummary:      "two-storey commercial building",
		VisualDescription: map[string]string{"floors": "2", "style": "modern"},
	}, nil
}
