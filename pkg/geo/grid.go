// Package geo generates the sampling grids scans are run over and provides
// the distance helpers used for business proximity matching.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

const (
	// Miles per degree of latitude. Longitude shrinks by cos(lat).
	MilesPerDegreeLat = 69.0

	coordPrecision = 1e7
)

// ValidGridSizes are the supported grid side lengths.
var ValidGridSizes = []int{3, 5, 7, 9}

// IsValidGridSize reports whether n is a supported grid side length.
func IsValidGridSize(n int) bool {
	for _, v := range ValidGridSizes {
		if v == n {
			return true
		}
	}
	return false
}

// GridPoint is one cell of the sampling grid. Row 0 is the north edge,
// col 0 the west edge.
type GridPoint struct {
	Row int
	Col int
	Lat float64
	Lng float64
}

// Point returns the orb representation in (lon, lat) order.
func (p GridPoint) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Generate builds a gridSize×gridSize grid covering a square of side
// 2·radiusMiles centered at (centerLat, centerLng). Points are evenly spaced
// with the edges inclusive, ordered row-major from the northwest corner.
// Coordinates are rounded to seven decimal places.
func Generate(centerLat, centerLng, radiusMiles float64, gridSize int) ([]GridPoint, error) {
	if !IsValidGridSize(gridSize) {
		return nil, fmt.Errorf("unsupported grid size %d, must be one of %v", gridSize, ValidGridSizes)
	}
	if radiusMiles <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %f", radiusMiles)
	}

	latSpan := 2 * radiusMiles / MilesPerDegreeLat
	lngSpan := 2 * radiusMiles / (MilesPerDegreeLat * math.Cos(centerLat*math.Pi/180))

	north := centerLat + latSpan/2
	west := centerLng - lngSpan/2

	latStep := latSpan / float64(gridSize-1)
	lngStep := lngSpan / float64(gridSize-1)

	points := make([]GridPoint, 0, gridSize*gridSize)
	for row := 0; row < gridSize; row++ {
		for col := 0; col < gridSize; col++ {
			points = append(points, GridPoint{
				Row: row,
				Col: col,
				Lat: roundCoord(north - float64(row)*latStep),
				Lng: roundCoord(west + float64(col)*lngStep),
			})
		}
	}
	return points, nil
}

// DistanceMeters returns the haversine distance between two coordinates.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return orbgeo.Distance(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
}

func roundCoord(v float64) float64 {
	return math.Round(v*coordPrecision) / coordPrecision
}
