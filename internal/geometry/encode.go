package geometry

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// SRID of every boundary. Drawing tools report WGS84 degrees.
const SRID = 4326

// Polygon returns the boundary as a closed go-geom polygon.
func (b Boundary) Polygon() (*geom.Polygon, error) {
	if b.IsEmpty() {
		return nil, fmt.Errorf("%w: boundary is empty", ErrInvalidGeometry)
	}

	rings := make([][]geom.Coord, 0, len(b.rings))
	for _, r := range b.rings {
		coords := make([]geom.Coord, 0, len(r)+1)
		for _, c := range r {
			coords = append(coords, geom.Coord{c.Lon, c.Lat})
		}
		if first, last := r[0], r[len(r)-1]; first != last {
			coords = append(coords, geom.Coord{first.Lon, first.Lat})
		}
		rings = append(rings, coords)
	}

	p, err := geom.NewPolygon(geom.XY).SetCoords(rings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return p.SetSRID(SRID), nil
}

// GeoJSON encodes the boundary as a GeoJSON Polygon geometry.
func (b Boundary) GeoJSON() (*geojson.Geometry, error) {
	p, err := b.Polygon()
	if err != nil {
		return nil, err
	}
	g, err := geojson.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode boundary as GeoJSON: %w", err)
	}
	return g, nil
}

// BBox returns the bounding box of the boundary as [west, south, east, north].
func (b Boundary) BBox() ([]float64, error) {
	p, err := b.Polygon()
	if err != nil {
		return nil, err
	}
	bounds := p.Bounds()
	return []float64{bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)}, nil
}

// WKT returns the boundary as a WKT POLYGON string.
func (b Boundary) WKT() (string, error) {
	p, err := b.Polygon()
	if err != nil {
		return "", err
	}
	s, err := wkt.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode boundary as WKT: %w", err)
	}
	return s, nil
}
