package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// Oscillation guard tolerances: a proposed viewpoint matching a previously
// visited one within these margins is treated as a revisit.
const (
	revisitPositionToleranceM = 1.0
	revisitAngleToleranceDeg  = 2.0
)

// visit pairs a viewpoint with the screening that judged it, for
// best-seen election.
type visit struct {
	viewpoint models.Viewpoint
	imageRef  string
	screening models.ScreeningResult
}

// Refine runs the refinement state machine for one primary candidate:
// Evaluating -> {Refining -> Evaluating}* -> {Converged | Exhausted}.
// Only fatal collaborator errors are returned; every other outcome
// degrades gracefully to the best capture seen so far.
func (p *Pipeline) Refine(ctx context.Context, target models.TargetLocation, primary models.ScreeningResult) (models.CaptureResult, error) {
	current := primary.Candidate.Viewpoint
	currentImage := primary.Candidate.ImageRef
	currentScreen := primary

	var history []models.RefinementStep
	visited := []visit{{viewpoint: current, imageRef: currentImage, screening: currentScreen}}

	for iteration := 0; ; iteration++ {
		// Evaluating.
		if !currentScreen.NeedsRefinement ||
			(currentScreen.Quality >= p.opts.RefinementQualityThreshold && currentScreen.IsFullView) {
			return converged(current, currentImage, currentScreen, history, ""), nil
		}
		if iteration >= p.opts.MaxRefinementIterations {
			return exhausted(primary, history), nil
		}
		if budgetExpired(ctx) {
			res := bestSeen(visited, history)
			res.Diagnostic = "refinement stopped: wall-clock budget exhausted"
			return res, nil
		}

		// Refining: ask the oracle for a delta, bounded per step.
		delta, err := p.judge.ProposeRefinement(ctx, oracle.RefinementRequest{
			ImageRef:  currentImage,
			Viewpoint: current,
			History:   history,
		})
		if err != nil {
			if errors.Is(err, oracle.ErrFatal) {
				return models.CaptureResult{}, err
			}
			res := bestSeen(visited, history)
			res.Diagnostic = fmt.Sprintf("refinement stopped: %v", err)
			return res, nil
		}
		delta = delta.ClampStep()

		next := applyDelta(current, target, delta)

		// Oscillation guard: a revisited viewpoint gets the delta halved
		// once; a second match ends the search on the best seen so far.
		if revisits(next, visited) {
			delta = delta.Halve()
			next = applyDelta(current, target, delta)
			if revisits(next, visited) {
				log.Printf("refinement: oscillation detected at iteration %d, settling on best seen", iteration+1)
				return bestSeen(visited, history), nil
			}
		}

		imageRef, screen, err := p.renderAndScreen(ctx, next, primary.Candidate.PanoID)
		if err != nil {
			if errors.Is(err, maps.ErrFatal) || errors.Is(err, oracle.ErrFatal) {
				return models.CaptureResult{}, err
			}
			res := bestSeen(visited, history)
			res.Diagnostic = fmt.Sprintf("refinement stopped: %v", err)
			return res, nil
		}

		history = append(history, models.RefinementStep{
			Iteration: iteration + 1,
			Prior:     current,
			Delta:     delta,
			Result:    next,
			Screening: screen,
		})
		visited = append(visited, visit{viewpoint: next, imageRef: imageRef, screening: screen})

		current, currentImage, currentScreen = next, imageRef, screen
	}
}

// renderAndScreen re-renders the adjusted viewpoint and re-screens it as a
// single-candidate batch.
func (p *Pipeline) renderAndScreen(ctx context.Context, vp models.Viewpoint, panoID string) (string, models.ScreeningResult, error) {
	imageRef, err := p.maps.RenderImage(ctx, vp, panoID)
	if err != nil {
		return "", models.ScreeningResult{}, err
	}

	out, err := p.judge.Screen(ctx, []oracle.ScreenRequest{{ImageRef: imageRef, Viewpoint: vp}})
	if err != nil {
		return "", models.ScreeningResult{}, err
	}
	if len(out) == 0 {
		return "", models.ScreeningResult{}, fmt.Errorf("oracle returned no verdict")
	}

	resp := out[0]
	return imageRef, models.ScreeningResult{
		Candidate: models.CaptureCandidate{
			Viewpoint:         vp,
			ImageRef:          imageRef,
			PanoID:            panoID,
			CoverageAvailable: true,
		},
		IsValidFrontFace: resp.IsValidFrontFace,
		Confidence:       resp.Confidence,
		Clarity:          resp.Clarity,
		NeedsRefinement:  resp.NeedsRefinement,
		Quality:          resp.Quality,
		IsFullView:       resp.IsFullView,
	}, nil
}

// applyDelta moves the camera along the target-to-camera axis by the
// distance change, adjusts pitch and fov, and clamps the result to the
// absolute bounds. The heading is recomputed so the camera keeps facing
// the target.
func applyDelta(current models.Viewpoint, target models.TargetLocation, delta models.RefinementDelta) models.Viewpoint {
	tgt := spatial.Point{Lat: target.Lat, Lon: target.Lon}

	next := current
	next.Distance = current.Distance + delta.DistanceChange
	next.Pitch = current.Pitch + delta.PitchChange
	next.FOV = current.FOV + delta.FOVChange
	next = next.Clamp()

	if next.Distance != current.Distance {
		back := models.NormalizeHeading(current.Heading + 180)
		cam := spatial.DestinationPoint(tgt, back, next.Distance)
		next.CameraLat = cam.Lat
		next.CameraLon = cam.Lon
		next.Heading = spatial.Bearing(cam, tgt)
	}
	return next.Clamp()
}

// revisits reports whether vp matches any previously visited viewpoint
// within the guard tolerances.
func revisits(vp models.Viewpoint, visited []visit) bool {
	for _, v := range visited {
		if sameViewpoint(vp, v.viewpoint) {
			return true
		}
	}
	return false
}

func sameViewpoint(a, b models.Viewpoint) bool {
	pa := spatial.Point{Lat: a.CameraLat, Lon: a.CameraLon}
	pb := spatial.Point{Lat: b.CameraLat, Lon: b.CameraLon}
	if spatial.HaversineDistance(pa, pb) >= revisitPositionToleranceM {
		return false
	}
	return spatial.AngleDiff(a.Heading, b.Heading) < revisitAngleToleranceDeg &&
		spatial.AngleDiff(a.Pitch, b.Pitch) < revisitAngleToleranceDeg &&
		spatial.AngleDiff(a.FOV, b.FOV) < revisitAngleToleranceDeg
}

func converged(vp models.Viewpoint, imageRef string, screen models.ScreeningResult, history []models.RefinementStep, diagnostic string) models.CaptureResult {
	return models.CaptureResult{
		Viewpoint:       vp,
		ImageRef:        imageRef,
		History:         history,
		TotalIterations: len(history),
		Outcome:         models.OutcomeConverged,
		Confidence:      screen.Confidence,
		Quality:         screen.Quality,
		Diagnostic:      diagnostic,
	}
}

// exhausted elects the best-scoring screening across the recorded history
// by confidence, breaking ties toward the earliest iteration. Not an
// error: a graceful-degradation outcome carried in diagnostics.
func exhausted(seed models.ScreeningResult, history []models.RefinementStep) models.CaptureResult {
	best := -1
	for i, step := range history {
		if best < 0 || step.Screening.Confidence > history[best].Screening.Confidence {
			best = i
		}
	}

	res := models.CaptureResult{
		History:         history,
		TotalIterations: len(history),
		Outcome:         models.OutcomeExhausted,
		Diagnostic:      "iteration cap reached without convergence",
	}
	if best < 0 {
		res.Viewpoint = seed.Candidate.Viewpoint
		res.ImageRef = seed.Candidate.ImageRef
		res.Confidence = seed.Confidence
		res.Quality = seed.Quality
		return res
	}
	step := history[best]
	res.Viewpoint = step.Result
	res.ImageRef = step.Screening.Candidate.ImageRef
	res.Confidence = step.Screening.Confidence
	res.Quality = step.Screening.Quality
	return res
}

// bestSeen elects the best-scoring visited viewpoint, breaking ties toward
// the most recent visit.
func bestSeen(visited []visit, history []models.RefinementStep) models.CaptureResult {
	best := 0
	for i := 1; i < len(visited); i++ {
		if visited[i].screening.Confidence >= visited[best].screening.Confidence {
			best = i
		}
	}
	v := visited[best]
	return models.CaptureResult{
		Viewpoint:       v.viewpoint,
		ImageRef:        v.imageRef,
		History:         history,
		TotalIterations: len(history),
		Outcome:         models.OutcomeConverged,
		Confidence:      v.screening.Confidence,
		Quality:         v.screening.Quality,
	}
}
