package inzone

import (
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const (
	zonePrefix = 'Z'
	infoKey    = 'i'
)

// ZoneFromGeoJSON decodes a single zone from a GeoJSON payload.
// The payload can be a bare Polygon geometry, a Feature or a
// FeatureCollection holding exactly one feature, anything else is rejected
// rather than silently flattened.
func ZoneFromGeoJSON(payload []byte) (*Zone, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Wrap(err, "can't decode geojson")
	}

	switch env.Type {
	case "FeatureCollection":
		fc := &geojson.FeatureCollection{}
		if err := json.Unmarshal(payload, fc); err != nil {
			return nil, errors.Wrap(err, "can't decode feature collection")
		}
		if len(fc.Features) != 1 {
			return nil, errors.Errorf("expecting exactly one feature, got %d", len(fc.Features))
		}
		return ZoneFromFeature(fc.Features[0])
	case "Feature":
		f := &geojson.Feature{}
		if err := json.Unmarshal(payload, f); err != nil {
			return nil, errors.Wrap(err, "can't decode feature")
		}
		return ZoneFromFeature(f)
	case "":
		return nil, errors.New("missing geojson type")
	default:
		var g geom.T
		if err := geojson.Unmarshal(payload, &g); err != nil {
			return nil, errors.Wrap(err, "can't decode geometry")
		}
		poly, err := PolygonFromGeom(g)
		if err != nil {
			return nil, err
		}
		return &Zone{Polygon: poly}, nil
	}
}

// ZoneFromFeature converts a decoded feature into a Zone.
func ZoneFromFeature(f *geojson.Feature) (*Zone, error) {
	if f.Geometry == nil {
		return nil, errors.New("invalid geometry")
	}

	poly, err := PolygonFromGeom(f.Geometry)
	if err != nil {
		return nil, err
	}

	return &Zone{Polygon: poly, Properties: f.Properties}, nil
}

// PolygonFromGeom converts a simple polygon geometry, the first linear ring
// is the exterior, any further rings are holes.
// MultiPolygon and non areal types are not supported.
func PolygonFromGeom(g geom.T) (*Polygon, error) {
	p, ok := g.(*geom.Polygon)
	if !ok {
		return nil, errors.Errorf("unsupported data type %T, expecting a single polygon", g)
	}
	if p.NumLinearRings() == 0 {
		return nil, errors.New("invalid polygon: no rings")
	}

	rings := make([]Ring, p.NumLinearRings())
	for i := range rings {
		r, err := ringFromLinearRing(p.LinearRing(i))
		if err != nil {
			return nil, errors.Wrapf(err, "can't read ring %d", i)
		}
		rings[i] = r
	}

	return NewPolygon(rings[0], rings[1:])
}

// ringFromLinearRing flattens the ring coordinates to lng, lat pairs,
// dropping altitude when the source has one.
func ringFromLinearRing(lr *geom.LinearRing) (Ring, error) {
	flat := lr.FlatCoords()
	stride := lr.Stride()
	if stride == 2 {
		return RingFromCoordinates(flat)
	}

	c := make([]float64, 0, (len(flat)/stride)*2)
	for i := 0; i+1 < len(flat); i += stride {
		c = append(c, flat[i], flat[i+1])
	}
	return RingFromCoordinates(c)
}

// RingFromCoordinates creates a Ring from a list of interleaved lng, lat.
func RingFromCoordinates(c []float64) (Ring, error) {
	if len(c)%2 != 0 {
		return nil, errors.New("invalid ring: odd coordinates number")
	}
	if len(c) < 2*3 {
		return nil, errors.New("invalid ring: not enough coordinates for a closed ring")
	}

	points := make(Ring, len(c)/2)
	for i := 0; i < len(c); i += 2 {
		points[i/2] = Point{Lat: c[i+1], Lng: c[i]}
	}

	if points[0] == points[len(points)-1] {
		// remove last item if same as 1st
		points = points[:len(points)-1]
	}
	if len(points) < 3 {
		return nil, errors.New("invalid ring: not enough distinct points")
	}

	return points, nil
}

// Geometry converts the zone polygon back to a geom polygon, lng lat order.
func (z *Zone) Geometry() *geom.Polygon {
	flat := z.Polygon.Exterior.FlatCoords()
	flat = append(flat, flat[0], flat[1])
	ends := []int{len(flat)}
	for _, h := range z.Polygon.Holes {
		hflat := h.FlatCoords()
		flat = append(flat, hflat...)
		flat = append(flat, hflat[0], hflat[1])
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// ZonePrefix is the key prefix used for zone entries.
func ZonePrefix() byte {
	return zonePrefix
}

// ZoneKey returns the storage key of a zone.
func ZoneKey(id uint32) []byte {
	k := make([]byte, 1+4)
	k[0] = zonePrefix
	binary.BigEndian.PutUint32(k[1:], id)
	return k
}

// InfoKey returns the storage key of the index metadata.
func InfoKey() []byte {
	return []byte{infoKey}
}
