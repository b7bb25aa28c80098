package inzone

import (
	"math"

	"github.com/pkg/errors"
)

// Point is a position expressed as latitude and longitude in degrees.
// Coordinates are treated as plain planar values, there is no wrapping at
// the antimeridian and no special handling of the poles.
type Point struct {
	Lat float64
	Lng float64
}

// IsFinite returns false if any coordinate is NaN or infinite.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// Ring is a closed sequence of vertices, the edge from the last vertex back
// to the first is implicit so the first point does not need to be repeated.
type Ring []Point

// Contains reports whether p is strictly inside the ring using the even-odd
// rule: a ray cast from p crossing an odd number of edges means inside.
// A point exactly on an edge or vertex may report either true or false,
// but always reports the same answer for the same ring and point.
// Non finite coordinates never match.
func (r Ring) Contains(p Point) bool {
	if len(r) < 3 {
		return false
	}

	in := false
	for i, j := 0, len(r)-1; i < len(r); j, i = i, i+1 {
		a, b := r[j], r[i]
		// the straddle test rejects horizontal edges before the division
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lng < (b.Lng-a.Lng)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lng {
			in = !in
		}
	}

	return in
}

// FlatCoords returns the vertices as interleaved lng, lat pairs, the layout
// used by the on disk storage.
func (r Ring) FlatCoords() []float64 {
	c := make([]float64, 0, len(r)*2)
	for _, p := range r {
		c = append(c, p.Lng, p.Lat)
	}
	return c
}

// bound is an axis aligned rectangle around a ring, used to reject most
// points before running the edge scan.
type bound struct {
	minLat, minLng float64
	maxLat, maxLng float64
}

func boundFromRing(r Ring) bound {
	b := bound{
		minLat: math.Inf(1), minLng: math.Inf(1),
		maxLat: math.Inf(-1), maxLng: math.Inf(-1),
	}
	for _, p := range r {
		b.minLat = math.Min(b.minLat, p.Lat)
		b.minLng = math.Min(b.minLng, p.Lng)
		b.maxLat = math.Max(b.maxLat, p.Lat)
		b.maxLng = math.Max(b.maxLng, p.Lng)
	}
	return b
}

func (b bound) contains(p Point) bool {
	return p.Lat >= b.minLat && p.Lat <= b.maxLat &&
		p.Lng >= b.minLng && p.Lng <= b.maxLng
}

// Polygon is an exterior ring with optional holes cut out of it.
type Polygon struct {
	Exterior Ring
	Holes    []Ring

	bbox *bound
}

// NewPolygon validates the rings and returns a Polygon, the exterior bounding
// box is precomputed to speed up queries.
func NewPolygon(exterior Ring, holes []Ring) (*Polygon, error) {
	p := &Polygon{Exterior: exterior, Holes: holes}
	if err := p.validate(); err != nil {
		return nil, err
	}
	b := boundFromRing(exterior)
	p.bbox = &b
	return p, nil
}

func (po *Polygon) validate() error {
	if len(po.Exterior) < 3 {
		return errors.Errorf("invalid exterior ring: got %d points, need at least 3", len(po.Exterior))
	}
	for i, h := range po.Holes {
		if len(h) < 3 {
			return errors.Errorf("invalid hole ring %d: got %d points, need at least 3", i, len(h))
		}
	}
	return nil
}

// Contains reports whether p is inside the exterior ring and outside every
// hole. Points on a boundary follow the same edge rule as Ring.Contains.
func (po *Polygon) Contains(p Point) bool {
	if po.bbox != nil && !po.bbox.contains(p) {
		return false
	}
	if !po.Exterior.Contains(p) {
		return false
	}
	for _, h := range po.Holes {
		if h.Contains(p) {
			return false
		}
	}
	return true
}

// Zone is one registered polygon together with the properties carried by its
// source feature.
type Zone struct {
	Polygon    *Polygon
	Properties map[string]interface{}
}
