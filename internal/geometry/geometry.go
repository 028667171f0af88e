// Package geometry converts drawing-tool polygons into the boundary format
// sent to the analysis service.
//
// The drawing tool reports points latitude-first, the analysis service
// expects longitude-first pairs. Normalize is the single place where that
// axis order is flipped.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when a drawn ring cannot be used as a boundary.
var ErrInvalidGeometry = errors.New("invalid geometry")

// MinRingPoints is the smallest number of points accepted for a ring.
const MinRingPoints = 3

// LatLng is a point as emitted by the map drawing tool.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Coordinate is a longitude/latitude pair in wire order.
type Coordinate struct {
	Lon float64
	Lat float64
}

// Ring is an ordered closed sequence of coordinates. The first point is not
// repeated at the end.
type Ring []Coordinate

// Normalize converts a drawn ring into a Ring with every point reordered to
// (longitude, latitude).
func Normalize(points []LatLng) (Ring, error) {
	if len(points) < MinRingPoints {
		return nil, fmt.Errorf("%w: ring needs at least %d points, got %d", ErrInvalidGeometry, MinRingPoints, len(points))
	}

	ring := make(Ring, len(points))
	for i, p := range points {
		if err := validatePoint(p); err != nil {
			return nil, fmt.Errorf("%w: point %d: %v", ErrInvalidGeometry, i, err)
		}
		ring[i] = Coordinate{Lon: p.Lng, Lat: p.Lat}
	}

	return ring, nil
}

func validatePoint(p LatLng) error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return errors.New("coordinates must be finite")
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	return nil
}

// Pairs returns the ring as [lon, lat] pairs, the shape used on the wire.
func (r Ring) Pairs() [][]float64 {
	pairs := make([][]float64, len(r))
	for i, c := range r {
		pairs[i] = []float64{c.Lon, c.Lat}
	}
	return pairs
}

// Boundary is the user-selected farm area. It always holds exactly one ring.
// A Boundary is never modified after construction; accessors hand out copies.
type Boundary struct {
	rings []Ring
}

// NewBoundary wraps a normalized ring into a Boundary.
func NewBoundary(ring Ring) Boundary {
	cp := make(Ring, len(ring))
	copy(cp, ring)
	return Boundary{rings: []Ring{cp}}
}

// IsEmpty reports whether the boundary holds no ring.
func (b Boundary) IsEmpty() bool {
	return len(b.rings) == 0
}

// Ring returns a copy of the outer ring.
func (b Boundary) Ring() Ring {
	if b.IsEmpty() {
		return nil
	}
	cp := make(Ring, len(b.rings[0]))
	copy(cp, b.rings[0])
	return cp
}

// Coordinates returns the boundary in the wire format: a list of rings, each
// a list of [lon, lat] pairs.
func (b Boundary) Coordinates() [][][]float64 {
	coords := make([][][]float64, len(b.rings))
	for i, r := range b.rings {
		coords[i] = r.Pairs()
	}
	return coords
}

// Equal reports whether two boundaries hold the same points in the same order.
func (b Boundary) Equal(other Boundary) bool {
	if len(b.rings) != len(other.rings) {
		return false
	}
	for i := range b.rings {
		if len(b.rings[i]) != len(other.rings[i]) {
			return false
		}
		for j := range b.rings[i] {
			if b.rings[i][j] != other.rings[i][j] {
				return false
			}
		}
	}
	return true
}
