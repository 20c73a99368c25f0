package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKnownDistances(t *testing.T) {
	// One degree of latitude on a 6371 km sphere.
	d, err := DistanceKm(Point{Lat: 0, Lng: 0}, Point{Lat: 1, Lng: 0})
	require.NoError(t, err)
	assert.InDelta(t, 111.195, d, 0.001)

	// Nagpur depot to a bin roughly 5.8 km north-east.
	d, err = DistanceKm(Point{Lat: 21.1458, Lng: 79.0882}, Point{Lat: 21.1800, Lng: 79.1300})
	require.NoError(t, err)
	assert.InDelta(t, 5.77, d, 0.02)
}

func TestHaversineSymmetricAndZero(t *testing.T) {
	pts := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 21.1458, Lng: 79.0882},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 89.9, Lng: -179.9},
		{Lat: -90, Lng: 180},
	}
	for _, a := range pts {
		assert.Equal(t, 0.0, Haversine(a, a), "distance to self for %v", a)
		for _, b := range pts {
			assert.Equal(t, Haversine(a, b), Haversine(b, a), "symmetry %v %v", a, b)
			if a != b {
				assert.Greater(t, Haversine(a, b), 0.0)
			}
		}
	}
}

func TestDistanceRejectsInvalidCoordinates(t *testing.T) {
	cases := []Point{
		{Lat: 91, Lng: 0},
		{Lat: -90.5, Lng: 0},
		{Lat: 0, Lng: 180.01},
		{Lat: 0, Lng: -181},
		{Lat: math.NaN(), Lng: 0},
		{Lat: 0, Lng: math.Inf(1)},
	}
	for _, p := range cases {
		_, err := DistanceKm(Point{}, p)
		assert.ErrorIs(t, err, ErrInvalidCoordinate, "point %v", p)
		_, err = NewPoint(p.Lat, p.Lng)
		assert.ErrorIs(t, err, ErrInvalidCoordinate, "point %v", p)
	}
}

func TestNewPointBoundaries(t *testing.T) {
	for _, p := range []Point{{90, 180}, {-90, -180}, {0, 0}} {
		got, err := NewPoint(p.Lat, p.Lng)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}
