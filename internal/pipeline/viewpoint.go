package pipeline

import (
	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// Default camera orientation for freshly synthesized viewpoints.
const (
	defaultPitch = 0.0
	defaultFOV   = 90.0
)

// Synthesize converts a road position and target into a camera descriptor
// aimed at the target. Deterministic: identical inputs always yield an
// identical viewpoint.
func Synthesize(road models.RoadPosition, target models.TargetLocation, pitch float64) models.Viewpoint {
	cam := spatial.Point{Lat: road.Lat, Lon: road.Lon}
	tgt := spatial.Point{Lat: target.Lat, Lon: target.Lon}

	vp := models.Viewpoint{
		CameraLat: road.Lat,
		CameraLon: road.Lon,
		Heading:   spatial.Bearing(cam, tgt),
		Pitch:     pitch,
		FOV:       defaultFOV,
		Distance:  spatial.HaversineDistance(cam, tgt),
	}
	return vp.Clamp()
}

// SynthesizeAll maps every road position to a viewpoint, preserving order.
func (p *Pipeline) SynthesizeAll(roads []models.RoadPosition, target models.TargetLocation) []models.Viewpoint {
	vps := make([]models.Viewpoint, len(roads))
	for i, road := range roads {
		vps[i] = Synthesize(road, target, p.defaultPitch)
	}
	return vps
}
