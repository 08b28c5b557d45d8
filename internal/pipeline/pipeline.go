// Package pipeline implements the street-view building capture pipeline:
// road discovery, viewpoint synthesis, coverage validation, oracle
// screening and bounded iterative refinement, sequenced by an
// orchestrator that always returns a structured run outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// Pipeline runs capture pipelines against injected collaborators. It holds
// no per-run mutable state; one Pipeline value serves concurrent runs.
type Pipeline struct {
	maps  maps.Client
	judge oracle.Judge
	opts  models.CaptureOptions

	defaultPitch float64
}

// New creates a pipeline with normalized options.
func New(mapsClient maps.Client, judge oracle.Judge, opts models.CaptureOptions) *Pipeline {
	return &Pipeline{
		maps:         mapsClient,
		judge:        judge,
		opts:         opts.Normalize(),
		defaultPitch: defaultPitch,
	}
}

// Run executes the full pipeline for one target. It never returns an
// error: every failure kind is carried as data in the run so callers can
// render partial results and see exactly which stage degraded.
func (p *Pipeline) Run(ctx context.Context, target models.TargetLocation) *models.BuildingCaptureRun {
	start := time.Now()
	run := &models.BuildingCaptureRun{
		Target:        target,
		RefinedTarget: target,
	}
	defer func() { run.ExecutionTime = time.Since(start) }()

	if err := (spatial.Point{Lat: target.Lat, Lon: target.Lon}).Validate(); err != nil {
		return fail(run, err)
	}

	// The budget never cancels collaborator calls: expiry is observed at
	// stage and iteration boundaries and completed work is kept.
	ctx = withBudget(ctx, start.Add(p.opts.OverallTimeout))

	// Home-center snapping: best effort, the raw target works as fallback.
	if refined, err := p.maps.GeocodeRefine(ctx, target); err != nil {
		if errors.Is(err, maps.ErrFatal) {
			return fail(run, err)
		}
		run.Diagnostics = append(run.Diagnostics, fmt.Sprintf("geocode refine skipped: %v", err))
	} else {
		run.RefinedTarget = refined
	}

	// Stage 1: road discovery.
	roads, err := p.FindRoads(ctx, run.RefinedTarget)
	if err != nil {
		return fail(run, err)
	}
	run.RoadPositions = roads
	if budgetExpired(ctx) {
		return partial(run, "road discovery")
	}

	// Stage 2: viewpoint synthesis.
	viewpoints := p.SynthesizeAll(roads, run.RefinedTarget)

	// Stage 3: coverage validation.
	candidates, err := p.ValidateCoverage(ctx, viewpoints)
	if err != nil {
		return fail(run, err)
	}
	run.Candidates = candidates
	if !anyCovered(candidates) {
		return fail(run, fmt.Errorf("%w: checked %d viewpoints within %.0fm",
			ErrNoCoverage, len(candidates), p.opts.RoadSearchRadiusM))
	}
	if budgetExpired(ctx) {
		return partial(run, "coverage validation")
	}

	// Stage 4: quality gate.
	screened, rejections, err := p.Screen(ctx, candidates)
	run.Diagnostics = append(run.Diagnostics, rejections...)
	if err != nil {
		return fail(run, err)
	}
	if budgetExpired(ctx) {
		return partial(run, "quality gate")
	}

	// Stage 5: refinement, one independent state machine per primary.
	var primaries []models.ScreeningResult
	for _, s := range screened {
		if s.IsPrimaryInGroup {
			primaries = append(primaries, s)
		}
	}

	results := make([]models.CaptureResult, len(primaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxFanout)
	for i, primary := range primaries {
		i, primary := i, primary
		g.Go(func() error {
			res, err := p.Refine(gctx, run.RefinedTarget, primary)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(run, err)
	}
	run.Results = results
	for _, res := range results {
		if res.Diagnostic != "" {
			run.Diagnostics = append(run.Diagnostics,
				fmt.Sprintf("refinement (%s): %s", res.Outcome, res.Diagnostic))
		}
	}
	if budgetExpired(ctx) {
		return partial(run, "refinement")
	}

	// Stage 6: building analysis, best effort.
	if err := p.analyze(ctx, run); err != nil {
		if errors.Is(err, oracle.ErrFatal) || errors.Is(err, maps.ErrFatal) {
			return fail(run, err)
		}
		run.Diagnostics = append(run.Diagnostics, fmt.Sprintf("analysis unavailable: %v", err))
		run.Status = models.StatusPartial
		return run
	}

	run.Status = models.StatusSuccess
	return run
}

// analyze submits the final images to the analysis collaborator and
// attaches the address when reverse geocoding can supply one.
func (p *Pipeline) analyze(ctx context.Context, run *models.BuildingCaptureRun) error {
	refs := make([]string, 0, len(run.Results))
	for _, res := range run.Results {
		if res.ImageRef != "" {
			refs = append(refs, res.ImageRef)
		}
	}
	if len(refs) == 0 {
		return fmt.Errorf("no capture images to analyze")
	}

	analysis, err := p.judge.Analyze(ctx, oracle.AnalyzeRequest{
		ImageRefs: refs,
		Target:    run.RefinedTarget,
	})
	if err != nil {
		return err
	}

	if analysis.Address == "" {
		if addr, err := p.maps.ReverseGeocode(ctx, run.RefinedTarget); err == nil {
			analysis.Address = addr
		} else if errors.Is(err, maps.ErrFatal) {
			return err
		}
	}

	run.Analysis = &analysis
	return nil
}

// The run budget travels as a context value, not a context deadline, so
// checking it never aborts in-flight collaborator calls.
type budgetKey struct{}

func withBudget(ctx context.Context, deadline time.Time) context.Context {
	return context.WithValue(ctx, budgetKey{}, deadline)
}

// budgetExpired reports whether the run's wall-clock budget has elapsed
// or the caller's context is gone. Checked at stage and iteration
// boundaries only; in-flight collaborator calls are allowed to finish.
func budgetExpired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Value(budgetKey{}).(time.Time)
	return ok && time.Now().After(deadline)
}

func anyCovered(candidates []models.CaptureCandidate) bool {
	for _, c := range candidates {
		if c.CoverageAvailable {
			return true
		}
	}
	return false
}

func fail(run *models.BuildingCaptureRun, err error) *models.BuildingCaptureRun {
	run.Status = models.StatusError
	run.FailureKind = failureKind(err)
	run.Diagnostics = append(run.Diagnostics, err.Error())
	log.Printf("pipeline failed (%s): %v", run.FailureKind, err)
	return run
}

func partial(run *models.BuildingCaptureRun, stage string) *models.BuildingCaptureRun {
	run.Status = models.StatusPartial
	run.Diagnostics = append(run.Diagnostics,
		fmt.Sprintf("wall-clock budget exhausted after %s, returning partial results", stage))
	log.Printf("pipeline budget exhausted after %s", stage)
	return run
}
