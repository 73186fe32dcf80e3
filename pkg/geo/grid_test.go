package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGridShape(t *testing.T) {
	centerLat, centerLng := 26.4615, -80.0728
	radius := 1.0

	for _, size := range ValidGridSizes {
		points, err := Generate(centerLat, centerLng, radius, size)
		require.NoError(t, err)
		assert.Len(t, points, size*size)

		// Row 0 shares the northernmost latitude, col 0 the westernmost longitude
		north := points[0].Lat
		west := points[0].Lng
		for _, p := range points {
			assert.LessOrEqual(t, p.Lat, north)
			assert.GreaterOrEqual(t, p.Lng, west)
			if p.Row == 0 {
				assert.Equal(t, north, p.Lat)
			}
			if p.Col == 0 {
				assert.Equal(t, west, p.Lng)
			}
		}

		// North-south span equals 2r/69 degrees
		south := points[len(points)-1].Lat
		assert.InDelta(t, 2*radius/MilesPerDegreeLat, north-south, 1e-6)
	}
}

func TestGenerateGridOrdering(t *testing.T) {
	points, err := Generate(40.0, -74.0, 2.0, 3)
	require.NoError(t, err)

	// Row-major from the northwest corner
	idx := 0
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			assert.Equal(t, row, points[idx].Row)
			assert.Equal(t, col, points[idx].Col)
			idx++
		}
	}

	// Latitude decreases with row, longitude increases with col
	assert.Greater(t, points[0].Lat, points[6].Lat)
	assert.Less(t, points[0].Lng, points[2].Lng)
}

func TestGenerateGridCenterPoint(t *testing.T) {
	centerLat, centerLng := 26.4615, -80.0728
	points, err := Generate(centerLat, centerLng, 1.0, 3)
	require.NoError(t, err)

	// Odd grids keep the requested center as the middle cell
	mid := points[4]
	assert.Equal(t, 1, mid.Row)
	assert.Equal(t, 1, mid.Col)
	assert.InDelta(t, centerLat, mid.Lat, 1e-6)
	assert.InDelta(t, centerLng, mid.Lng, 1e-6)
}

func TestGenerateRejectsInvalidSizes(t *testing.T) {
	for _, size := range []int{0, 1, 2, 4, 6, 8, 10} {
		_, err := Generate(40.0, -74.0, 1.0, size)
		assert.Error(t, err, "grid size %d should be rejected", size)
	}

	_, err := Generate(40.0, -74.0, 0, 3)
	assert.Error(t, err)
}

func TestCoordinatePrecision(t *testing.T) {
	points, err := Generate(26.4615, -80.0728, 1.0, 5)
	require.NoError(t, err)

	for _, p := range points {
		assert.Equal(t, p.Lat, math.Round(p.Lat*1e7)/1e7)
		assert.Equal(t, p.Lng, math.Round(p.Lng*1e7)/1e7)
	}
}

func TestDistanceMeters(t *testing.T) {
	// Same point
	assert.Zero(t, DistanceMeters(40.0, -74.0, 40.0, -74.0))

	// One degree of latitude is roughly 111 km
	d := DistanceMeters(40.0, -74.0, 41.0, -74.0)
	assert.InDelta(t, 111000, d, 1000)

	// Points ~50m apart stay under the matcher proximity threshold
	d = DistanceMeters(40.0, -74.0, 40.0004, -74.0)
	assert.Less(t, d, 50.0)
}
