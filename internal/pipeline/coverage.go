package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/models"
)

// ValidateCoverage checks imagery availability for each viewpoint and
// renders an image reference for the covered ones. Output preserves input
// order, one candidate per viewpoint. A viewpoint whose metadata call keeps
// failing after the client's retries is recorded as uncovered with a
// diagnostic; it never aborts evaluation of the others. Fatal collaborator
// errors (bad credentials) do abort, since every remaining call would fail
// the same way.
func (p *Pipeline) ValidateCoverage(ctx context.Context, vps []models.Viewpoint) ([]models.CaptureCandidate, error) {
	candidates := make([]models.CaptureCandidate, len(vps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxFanout)

	for i, vp := range vps {
		i, vp := i, vp
		g.Go(func() error {
			meta, err := p.maps.ImageryMetadata(gctx, vp)
			if err != nil {
				if errors.Is(err, maps.ErrFatal) {
					return err
				}
				candidates[i] = models.CaptureCandidate{
					Viewpoint:  vp,
					Diagnostic: fmt.Sprintf("metadata check failed: %v", err),
				}
				return nil
			}
			if !meta.Available {
				candidates[i] = models.CaptureCandidate{
					Viewpoint:  vp,
					Diagnostic: "no imagery at viewpoint",
				}
				return nil
			}

			imageRef, err := p.maps.RenderImage(gctx, vp, meta.PanoID)
			if err != nil {
				if errors.Is(err, maps.ErrFatal) {
					return err
				}
				candidates[i] = models.CaptureCandidate{
					Viewpoint:  vp,
					Diagnostic: fmt.Sprintf("render failed: %v", err),
				}
				return nil
			}

			candidates[i] = models.CaptureCandidate{
				Viewpoint:         vp,
				ImageRef:          imageRef,
				PanoID:            meta.PanoID,
				CoverageAvailable: true,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("coverage validation: %w", err)
	}

	covered := 0
	for _, c := range candidates {
		if c.CoverageAvailable {
			covered++
		}
	}
	log.Printf("coverage validation: %d/%d viewpoints covered", covered, len(vps))
	return candidates, nil
}
