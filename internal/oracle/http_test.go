package oracle_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
)

func newTestJudge(t *testing.T, handler http.Handler) *oracle.HTTPJudge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return oracle.NewHTTPJudge(oracle.HTTPJudgeConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Batch:      true,
		MaxRetries: 2,
	})
}

func TestScreenDecodesVerdicts(t *testing.T) {
	j := newTestJudge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/screen", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var payload struct {
			Candidates []oracle.ScreenRequest `json:"candidates"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Len(t, payload.Candidates, 2)

		fmt.Fprint(w, `{"faces":[
			{"candidate_index":0,"is_valid_front_face":true,"confidence":0.85,"clarity_assessment":"good","needs_refinement":true,"overall_quality":6,"group_id":"north"},
			{"candidate_index":1,"is_valid_front_face":false,"suggestions":"rear elevation"}
		]}`)
	}))

	out, err := j.Screen(context.Background(), []oracle.ScreenRequest{
		{CandidateIndex: 0, ImageRef: "https://img/a"},
		{CandidateIndex: 1, ImageRef: "https://img/b"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.True(t, out[0].IsValidFrontFace)
	assert.Equal(t, 0.85, out[0].Confidence)
	assert.Equal(t, models.ClarityGood, out[0].Clarity)
	assert.Equal(t, "north", out[0].GroupID)

	assert.False(t, out[1].IsValidFrontFace)
	assert.Equal(t, "rear elevation", out[1].Suggestions)
}

func TestProposeRefinementDecodesAdjustments(t *testing.T) {
	j := newTestJudge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refine", r.URL.Path)
		fmt.Fprint(w, `{"parameter_adjustments":{"distance_change":-5,"pitch_change":10,"fov_change":0}}`)
	}))

	delta, err := j.ProposeRefinement(context.Background(), oracle.RefinementRequest{
		ImageRef: "https://img/a",
	})
	require.NoError(t, err)
	assert.Equal(t, -5.0, delta.DistanceChange)
	assert.Equal(t, 10.0, delta.PitchChange)
	assert.Equal(t, 0.0, delta.FOVChange)
}

func TestAnalyzeDecodesBuildingAnalysis(t *testing.T) {
	j := newTestJudge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		fmt.Fprint(w, `{
			"building_usage_summary":"retail with offices above",
			"visual_description":{"floors":"3"},
			"establishments":[{"name":"Corner Cafe","type":"restaurant"}]
		}`)
	}))

	analysis, err := j.Analyze(context.Background(), oracle.AnalyzeRequest{
		ImageRefs: []string{"https://img/a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "retail with offices above", analysis.UsageSummary)
	assert.Equal(t, "3", analysis.VisualDescription["floors"])
	require.Len(t, analysis.Establishments, 1)
	assert.Equal(t, "Corner Cafe", analysis.Establishments[0].Name)
}

func TestPostJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	j := newTestJudge(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"faces":[]}`)
	}))

	_, err := j.Screen(context.Background(), []oracle.ScreenRequest{{ImageRef: "https://img/a"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPostJSONUnauthorizedIsFatal(t *testing.T) {
	var calls int32
	j := newTestJudge(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := j.Screen(context.Background(), []oracle.ScreenRequest{{ImageRef: "https://img/a"}})
	assert.ErrorIs(t, err, oracle.ErrFatal)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
