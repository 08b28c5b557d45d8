package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// FindRoads samples a ring of points around the target and snaps each to
// the nearest drivable road. Snaps run concurrently up to the fan-out
// limit; each goroutine writes only its own slot and results are joined in
// angular order before deduplication by segment id.
func (p *Pipeline) FindRoads(ctx context.Context, target models.TargetLocation) ([]models.RoadPosition, error) {
	pt := spatial.Point{Lat: target.Lat, Lon: target.Lon}
	if err := pt.Validate(); err != nil {
		return nil, err
	}

	count := p.opts.RoadSampleCount
	radius := p.opts.RoadSearchRadiusM

	snapped := make([]*models.RoadPosition, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxFanout)

	for i := 0; i < count; i++ {
		i := i
		bearing := 360.0 / float64(count) * float64(i)
		sample := spatial.DestinationPoint(pt, bearing, radius)

		g.Go(func() error {
			pos, err := p.maps.SnapToRoad(gctx, sample)
			if err != nil {
				if errors.Is(err, maps.ErrFatal) {
					return err
				}
				// Failed or empty snaps just drop the sample.
				log.Printf("road discovery: sample %d (bearing %.0f) dropped: %v", i, bearing, err)
				return nil
			}
			snapped[i] = &pos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("road discovery: %w", err)
	}

	// Dedupe by segment id, keeping the first occurrence in angular order.
	seen := make(map[string]bool, count)
	var roads []models.RoadPosition
	for _, pos := range snapped {
		if pos == nil || seen[pos.SegmentID] {
			continue
		}
		seen[pos.SegmentID] = true
		roads = append(roads, *pos)
	}

	if len(roads) == 0 {
		return nil, fmt.Errorf("%w: sampled %d points at %.0fm", ErrNoRoadsFound, count, radius)
	}

	log.Printf("road discovery: %d samples -> %d unique road segments", count, len(roads))
	return roads, nil
}
