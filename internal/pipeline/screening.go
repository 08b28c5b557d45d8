package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// Geometric fallback grouping thresholds, used only when the oracle
// provides no grouping signal for the batch.
const (
	groupHeadingToleranceDeg = 20.0
	groupPositionToleranceM  = 15.0
)

// Screen submits covered candidates to the vision-judgment oracle and
// retains the ones judged a valid front facade, grouped per facade with
// one primary elected per group. The second return value lists rejection
// reasons for the candidates that did not survive.
func (p *Pipeline) Screen(ctx context.Context, candidates []models.CaptureCandidate) ([]models.ScreeningResult, []string, error) {
	var covered []models.CaptureCandidate
	for _, c := range candidates {
		if c.CoverageAvailable {
			covered = append(covered, c)
		}
	}
	if len(covered) == 0 {
		return nil, nil, fmt.Errorf("quality gate: %w", ErrNoCoverage)
	}

	reqs := make([]oracle.ScreenRequest, len(covered))
	for i, c := range covered {
		reqs[i] = oracle.ScreenRequest{
			CandidateIndex: i,
			ImageRef:       c.ImageRef,
			Viewpoint:      c.Viewpoint,
		}
	}

	responses, err := p.screenRequests(ctx, reqs)
	if err != nil {
		return nil, nil, fmt.Errorf("quality gate: %w", err)
	}

	byIndex := make(map[int]oracle.ScreenResponse, len(responses))
	for _, r := range responses {
		byIndex[r.CandidateIndex] = r
	}

	var survivors []models.ScreeningResult
	var rejections []string
	for i, c := range covered {
		resp, ok := byIndex[i]
		if !ok {
			rejections = append(rejections, fmt.Sprintf("candidate %d: no oracle verdict", i))
			continue
		}
		if !resp.IsValidFrontFace {
			reason := resp.Suggestions
			if reason == "" {
				reason = "not a valid front facade"
			}
			rejections = append(rejections, fmt.Sprintf("candidate %d: %s", i, reason))
			continue
		}
		survivors = append(survivors, models.ScreeningResult{
			Candidate:        c,
			IsValidFrontFace: true,
			Confidence:       resp.Confidence,
			Clarity:          resp.Clarity,
			NeedsRefinement:  resp.NeedsRefinement,
			Quality:          resp.Quality,
			IsFullView:       resp.IsFullView,
			GroupID:          resp.GroupID,
		})
	}

	if len(survivors) == 0 {
		return nil, rejections, fmt.Errorf("quality gate: %w: %s",
			ErrAllCandidatesRejected, strings.Join(rejections, "; "))
	}

	assignGroups(survivors)
	electPrimaries(survivors)

	log.Printf("quality gate: %d/%d candidates valid in %d groups",
		len(survivors), len(covered), countGroups(survivors))
	return survivors, rejections, nil
}

// screenRequests issues one batched call when the oracle supports it, else
// fans out one call per candidate bounded by the fan-out limit, joining
// results back into request order.
func (p *Pipeline) screenRequests(ctx context.Context, reqs []oracle.ScreenRequest) ([]oracle.ScreenResponse, error) {
	if p.judge.SupportsBatch() {
		return p.judge.Screen(ctx, reqs)
	}

	responses := make([]oracle.ScreenResponse, len(reqs))
	found := make([]bool, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxFanout)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			out, err := p.judge.Screen(gctx, []oracle.ScreenRequest{req})
			if err != nil {
				return err
			}
			if len(out) > 0 {
				r := out[0]
				r.CandidateIndex = req.CandidateIndex
				responses[i] = r
				found[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var joined []oracle.ScreenResponse
	for i := range responses {
		if found[i] {
			joined = append(joined, responses[i])
		}
	}
	return joined, nil
}

// assignGroups partitions survivors into facade groups. Oracle-provided
// group ids win; the geometric fallback only applies when the whole batch
// came back ungrouped. The partition is total: every survivor ends up in
// exactly one group.
func assignGroups(results []models.ScreeningResult) {
	anyGrouped := false
	for _, r := range results {
		if r.GroupID != "" {
			anyGrouped = true
			break
		}
	}

	if anyGrouped {
		for i := range results {
			if results[i].GroupID == "" {
				results[i].GroupID = uuid.NewString()
			}
		}
		return
	}

	// Fallback: same facade when headings are within 20 degrees and the
	// underlying road positions within 15 meters.
	for i := range results {
		for k := 0; k < i; k++ {
			if sameFacade(results[i], results[k]) {
				results[i].GroupID = results[k].GroupID
				break
			}
		}
		if results[i].GroupID == "" {
			results[i].GroupID = uuid.NewString()
		}
	}
}

func sameFacade(a, b models.ScreeningResult) bool {
	if spatial.AngleDiff(a.Candidate.Viewpoint.Heading, b.Candidate.Viewpoint.Heading) >= groupHeadingToleranceDeg {
		return false
	}
	pa := spatial.Point{Lat: a.Candidate.Viewpoint.CameraLat, Lon: a.Candidate.Viewpoint.CameraLon}
	pb := spatial.Point{Lat: b.Candidate.Viewpoint.CameraLat, Lon: b.Candidate.Viewpoint.CameraLon}
	return spatial.HaversineDistance(pa, pb) < groupPositionToleranceM
}

// electPrimaries marks the highest-confidence member of each group as
// primary, breaking ties by lowest camera distance.
func electPrimaries(results []models.ScreeningResult) {
	best := make(map[string]int)
	for i, r := range results {
		j, ok := best[r.GroupID]
		if !ok || better(r, results[j]) {
			best[r.GroupID] = i
		}
	}
	for i := range results {
		results[i].IsPrimaryInGroup = best[results[i].GroupID] == i
	}
}

func better(a, b models.ScreeningResult) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Candidate.Viewpoint.Distance < b.Candidate.Viewpoint.Distance
}

func countGroups(results []models.ScreeningResult) int {
	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.GroupID] = true
	}
	return len(seen)
}
