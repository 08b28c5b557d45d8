package spatial_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		point spatial.Point
		valid bool
	}{
		{"origin", spatial.Point{Lat: 0, Lon: 0}, true},
		{"hyderabad", spatial.Point{Lat: 17.408, Lon: 78.451}, true},
		{"pole", spatial.Point{Lat: 90, Lon: 180}, true},
		{"latitude too high", spatial.Point{Lat: 90.1, Lon: 0}, false},
		{"latitude too low", spatial.Point{Lat: -91, Lon: 0}, false},
		{"longitude too high", spatial.Point{Lat: 0, Lon: 180.5}, false},
		{"nan latitude", spatial.Point{Lat: math.NaN(), Lon: 0}, false},
		{"inf longitude", spatial.Point{Lat: 0, Lon: math.Inf(1)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.point.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, spatial.ErrInvalidCoordinate)
			}
		})
	}
}

func TestHaversineDistance(t *testing.T) {
	// One degree of latitude is about 111.2km.
	a := spatial.Point{Lat: 17.0, Lon: 78.451}
	b := spatial.Point{Lat: 18.0, Lon: 78.451}
	assert.InDelta(t, 111195, spatial.HaversineDistance(a, b), 200)

	assert.Equal(t, 0.0, spatial.HaversineDistance(a, a))
}

func TestBearingCardinalDirections(t *testing.T) {
	origin := spatial.Point{Lat: 17.408, Lon: 78.451}

	north := spatial.Point{Lat: 17.409, Lon: 78.451}
	east := spatial.Point{Lat: 17.408, Lon: 78.452}
	south := spatial.Point{Lat: 17.407, Lon: 78.451}
	west := spatial.Point{Lat: 17.408, Lon: 78.450}

	assert.InDelta(t, 0, spatial.Bearing(origin, north), 0.1)
	assert.InDelta(t, 90, spatial.Bearing(origin, east), 0.5)
	assert.InDelta(t, 180, spatial.Bearing(origin, south), 0.1)
	assert.InDelta(t, 270, spatial.Bearing(origin, west), 0.5)
}

func TestDestinationPointRoundTrip(t *testing.T) {
	start := spatial.Point{Lat: 17.408, Lon: 78.451}

	for _, bearing := range []float64{0, 45, 135, 250} {
		dest := spatial.DestinationPoint(start, bearing, 50)
		assert.InDelta(t, 50, spatial.HaversineDistance(start, dest), 0.1)
		assert.InDelta(t, bearing, spatial.Bearing(start, dest), 0.5)
	}
}

func TestAngleDiff(t *testing.T) {
	assert.Equal(t, 0.0, spatial.AngleDiff(90, 90))
	assert.Equal(t, 20.0, spatial.AngleDiff(10, 350))
	assert.Equal(t, 180.0, spatial.AngleDiff(0, 180))
	assert.Equal(t, 10.0, spatial.AngleDiff(355, 5))
}
