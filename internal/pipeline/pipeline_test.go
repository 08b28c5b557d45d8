package pipeline_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
	"github.com/sathizz7/streetview-capturing-sys/internal/pipeline"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

func TestRunHappyPath(t *testing.T) {
	m := &mockMaps{}
	j := &mockJudge{batch: true}
	p := newPipeline(m, j, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusSuccess, run.Status)
	assert.Empty(t, run.FailureKind)
	assert.Len(t, run.RoadPositions, models.DefaultRoadSampleCount)
	assert.Len(t, run.Candidates, models.DefaultRoadSampleCount)
	require.NotEmpty(t, run.Results)
	assert.Greater(t, run.ExecutionTime, time.Duration(0))

	for _, res := range run.Results {
		assert.Equal(t, models.OutcomeConverged, res.Outcome)
		assert.NotEmpty(t, res.ImageRef)
		vp := res.Viewpoint
		assert.GreaterOrEqual(t, vp.Pitch, models.MinPitch)
		assert.LessOrEqual(t, vp.Pitch, models.MaxPitch)
		assert.GreaterOrEqual(t, vp.FOV, models.MinFOV)
		assert.LessOrEqual(t, vp.FOV, models.MaxFOV)
		assert.GreaterOrEqual(t, vp.Distance, models.MinDistance)
		assert.LessOrEqual(t, vp.Distance, models.MaxDistance)
	}

	require.NotNil(t, run.Analysis)
	assert.Equal(t, "two-storey commercial building", run.Analysis.UsageSummary)
	assert.Equal(t, "1 Example Street", run.Analysis.Address)
}

func TestRunInvalidCoordinate(t *testing.T) {
	p := newPipeline(&mockMaps{}, &mockJudge{}, models.CaptureOptions{})

	run := p.Run(context.Background(), models.TargetLocation{Lat: 91, Lon: 200})

	assert.Equal(t, models.StatusError, run.Status)
	assert.Equal(t, pipeline.KindInvalidCoordinate, run.FailureKind)
	assert.Empty(t, run.RoadPositions)
}

func TestRunNoRoadsFound(t *testing.T) {
	m := &mockMaps{
		snapFn: func(_ context.Context, _ spatial.Point) (models.RoadPosition, error) {
			return models.RoadPosition{}, maps.ErrNotFound
		},
	}
	p := newPipeline(m, &mockJudge{}, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusError, run.Status)
	assert.Equal(t, pipeline.KindNoRoadsFound, run.FailureKind)
}

func TestRunNoCoverageAnywhere(t *testing.T) {
	// Roads exist but no viewpoint has imagery: the run ends as an error
	// carrying the candidates it checked.
	m := &mockMaps{
		metadataFn: func(_ context.Context, _ models.Viewpoint) (maps.Metadata, error) {
			return maps.Metadata{Available: false}, nil
		},
	}
	p := newPipeline(m, &mockJudge{}, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusError, run.Status)
	assert.Equal(t, pipeline.KindNoCoverage, run.FailureKind)
	assert.Len(t, run.Candidates, models.DefaultRoadSampleCount)
	require.NotEmpty(t, run.Diagnostics)
	assert.Contains(t, run.Diagnostics[len(run.Diagnostics)-1], "viewpoints")
}

func TestRunAllCandidatesRejected(t *testing.T) {
	j := &mockJudge{
		batch: true,
		screenFn: func(_ context.Context, reqs []oracle.ScreenRequest) ([]oracle.ScreenResponse, error) {
			out := make([]oracle.ScreenResponse, len(reqs))
			for i, r := range reqs {
				out[i] = oracle.ScreenResponse{
					CandidateIndex: r.CandidateIndex,
					Suggestions:    "occluded by trees",
				}
			}
			return out, nil
		},
	}
	p := newPipeline(&mockMaps{}, j, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusError, run.Status)
	assert.Equal(t, pipeline.KindAllCandidatesRejected, run.FailureKind)
	// Rejection reasons survive in the run diagnostics.
	assert.True(t, anyDiagnostic(run, "occluded by trees"))
}

func TestRunCollaboratorFatal(t *testing.T) {
	m := &mockMaps{
		snapFn: func(_ context.Context, _ spatial.Point) (models.RoadPosition, error) {
			return models.RoadPosition{}, maps.ErrFatal
		},
	}
	p := newPipeline(m, &mockJudge{}, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusError, run.Status)
	assert.Equal(t, pipeline.KindCollaboratorFatal, run.FailureKind)
}

func TestRunPartialOnBudgetExhaustion(t *testing.T) {
	p := newPipeline(&mockMaps{}, &mockJudge{}, models.CaptureOptions{
		OverallTimeout: time.Nanosecond,
	})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusPartial, run.Status)
	assert.Empty(t, run.FailureKind)
	// Discovered roads are kept even though later stages never ran.
	assert.NotEmpty(t, run.RoadPositions)
	require.NotEmpty(t, run.Diagnostics)
	assert.Contains(t, run.Diagnostics[len(run.Diagnostics)-1], "road discovery")
}

func TestRunBudgetExpiryKeepsInFlightWork(t *testing.T) {
	// Snaps outlive the budget but honor cancellation: they must be allowed
	// to finish, and the run must degrade to partial with the completed
	// snaps retained instead of reporting a stage failure.
	m := &mockMaps{
		snapFn: func(ctx context.Context, pt spatial.Point) (models.RoadPosition, error) {
			select {
			case <-ctx.Done():
				return models.RoadPosition{}, ctx.Err()
			case <-time.After(80 * time.Millisecond):
			}
			return models.RoadPosition{Lat: pt.Lat, Lon: pt.Lon, SegmentID: "seg-main"}, nil
		},
	}
	p := newPipeline(m, &mockJudge{}, models.CaptureOptions{
		RoadSampleCount: 4,
		OverallTimeout:  40 * time.Millisecond,
	})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusPartial, run.Status)
	assert.Empty(t, run.FailureKind)
	require.Len(t, run.RoadPositions, 1)
	assert.Equal(t, "seg-main", run.RoadPositions[0].SegmentID)
	assert.Equal(t, 4, m.snapCalls)
	require.NotEmpty(t, run.Diagnostics)
	assert.Contains(t, run.Diagnostics[len(run.Diagnostics)-1], "road discovery")
}

func TestRunGeocodeRefineBestEffort(t *testing.T) {
	m := &mockMaps{
		geocodeFn: func(_ context.Context, _ models.TargetLocation) (models.TargetLocation, error) {
			return models.TargetLocation{}, assert.AnError
		},
	}
	p := newPipeline(m, &mockJudge{batch: true}, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	// A transient geocode failure must not sink the run.
	assert.Equal(t, models.StatusSuccess, run.Status)
	assert.Equal(t, testTarget, run.RefinedTarget)
	assert.True(t, anyDiagnostic(run, "geocode refine skipped"))
}

func TestRunGeocodeRefineSnapsTarget(t *testing.T) {
	snapped := models.TargetLocation{Lat: 17.40805, Lon: 78.45102}
	m := &mockMaps{
		geocodeFn: func(_ context.Context, _ models.TargetLocation) (models.TargetLocation, error) {
			return snapped, nil
		},
	}
	p := newPipeline(m, &mockJudge{batch: true}, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusSuccess, run.Status)
	assert.Equal(t, snapped, run.RefinedTarget)
	assert.Equal(t, testTarget, run.Target)
}

func TestRunAnalysisFailureDegradesToPartial(t *testing.T) {
	j := &mockJudge{
		batch: true,
		analyzeFn: func(_ context.Context, _ oracle.AnalyzeRequest) (models.BuildingAnalysis, error) {
			return models.BuildingAnalysis{}, assert.AnError
		},
	}
	p := newPipeline(&mockMaps{}, j, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusPartial, run.Status)
	assert.Nil(t, run.Analysis)
	require.NotEmpty(t, run.Results)
	assert.True(t, anyDiagnostic(run, "analysis unavailable"))
}

func TestRunAnalysisFatalFailsRun(t *testing.T) {
	j := &mockJudge{
		batch: true,
		analyzeFn: func(_ context.Context, _ oracle.AnalyzeRequest) (models.BuildingAnalysis, error) {
			return models.BuildingAnalysis{}, oracle.ErrFatal
		},
	}
	p := newPipeline(&mockMaps{}, j, models.CaptureOptions{})

	run := p.Run(context.Background(), testTarget)

	assert.Equal(t, models.StatusError, run.Status)
	assert.Equal(t, pipeline.KindCollaboratorFatal, run.FailureKind)
}

func anyDiagnostic(run *models.BuildingCaptureRun, sub string) bool {
	for _, d := range run.Diagnostics {
		if strings.Contains(d, sub) {
			return true
		}
	}
	return false
}
