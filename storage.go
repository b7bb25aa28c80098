package inzone

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Store provides read access to a compiled zone database.
type Store interface {
	LoadZone(id uint32) (*Zone, error)
	LoadAllZones(add func(*ZoneStorage, uint32) error) error
	LoadIndexInfos() (*IndexInfos, error)
}

// ZoneIndexer writes a compiled zone database, one zone per feature in
// feature order.
type ZoneIndexer interface {
	Index(fc *geojson.FeatureCollection, fileName, version string) error
}

// ZoneStorage on disk storage of a zone.
type ZoneStorage struct {
	Properties map[string]interface{}

	// Rings as interleaved lng, lat pairs, the first ring is the exterior,
	// any further rings are holes.
	Rings [][]float64
}

// IndexInfos used to store information about the index in DB.
type IndexInfos struct {
	Filename       string
	IndexTime      time.Time
	IndexerVersion string
	ZoneCount      uint32
}

func (infos *IndexInfos) String() string {
	return fmt.Sprintf("Filename: %s\nIndexTime: %s\nIndexerVersion: %s\nZoneCount %d\n",
		infos.Filename,
		infos.IndexTime,
		infos.IndexerVersion,
		infos.ZoneCount,
	)
}

// Storage returns the on disk form of the zone.
func (z *Zone) Storage() *ZoneStorage {
	rings := make([][]float64, 0, 1+len(z.Polygon.Holes))
	rings = append(rings, z.Polygon.Exterior.FlatCoords())
	for _, h := range z.Polygon.Holes {
		rings = append(rings, h.FlatCoords())
	}

	return &ZoneStorage{
		Properties: z.Properties,
		Rings:      rings,
	}
}

// Zone rebuilds the in memory zone from its storage form.
// Rings and properties are copied so the storage struct can be recycled.
func (zs *ZoneStorage) Zone() (*Zone, error) {
	if len(zs.Rings) == 0 {
		return nil, errors.New("invalid zone storage: no rings")
	}

	exterior, err := RingFromCoordinates(zs.Rings[0])
	if err != nil {
		return nil, errors.Wrap(err, "can't read exterior ring")
	}

	var holes []Ring
	for i, c := range zs.Rings[1:] {
		h, err := RingFromCoordinates(c)
		if err != nil {
			return nil, errors.Wrapf(err, "can't read hole ring %d", i)
		}
		holes = append(holes, h)
	}

	poly, err := NewPolygon(exterior, holes)
	if err != nil {
		return nil, err
	}

	var props map[string]interface{}
	if zs.Properties != nil {
		props = make(map[string]interface{}, len(zs.Properties))
		for k, v := range zs.Properties {
			props[k] = v
		}
	}

	return &Zone{Polygon: poly, Properties: props}, nil
}
