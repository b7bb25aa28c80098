package leveldb

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"testing"

	log "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/shiplytics/inzone"
)

func TestStorage_LoadIndexInfos(t *testing.T) {
	storage, clean := setup(t)
	defer clean()

	infos, err := storage.LoadIndexInfos()
	require.NoError(t, err)
	require.Equal(t, "zones.geojson", infos.Filename)
	require.Equal(t, "unittest", infos.IndexerVersion)
	require.Equal(t, uint32(2), infos.ZoneCount)
	require.False(t, infos.IndexTime.IsZero())
}

func TestStorage_LoadZone(t *testing.T) {
	storage, clean := setup(t)
	defer clean()

	z, err := storage.LoadZone(0)
	require.NoError(t, err)
	require.Equal(t, "harbor", z.Properties["name"])
	require.Len(t, z.Polygon.Holes, 1)
	require.True(t, z.Polygon.Contains(inzone.Point{Lat: 1, Lng: 1}))
	require.False(t, z.Polygon.Contains(inzone.Point{Lat: 5, Lng: 5}))

	z, err = storage.LoadZone(1)
	require.NoError(t, err)
	require.Equal(t, "anchorage", z.Properties["name"])

	_, err = storage.LoadZone(42)
	require.Error(t, err)
}

func TestStorage_LoadAllZones(t *testing.T) {
	storage, clean := setup(t)
	defer clean()

	var ids []uint32
	err := storage.LoadAllZones(func(zs *inzone.ZoneStorage, id uint32) error {
		ids = append(ids, id)

		z, err := zs.Zone()
		require.NoError(t, err)
		require.NotNil(t, z.Polygon)

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1}, ids)
}

func TestNewEngineFromStore(t *testing.T) {
	storage, clean := setup(t)
	defer clean()

	engine, err := inzone.NewEngineFromStore(storage, inzone.Options{})
	require.NoError(t, err)
	require.Equal(t, 2, engine.Len())

	require.Equal(t, int32(0), engine.Query(1, 1))
	require.Equal(t, inzone.NoMatch, engine.Query(5, 5))
	require.Equal(t, int32(1), engine.Query(25, 25))
	require.Equal(t, inzone.NoMatch, engine.Query(50, 50))
}

func TestStorage_IndexInvalidFeature(t *testing.T) {
	logger := log.NewNopLogger()

	tmpDir, err := ioutil.TempDir(os.TempDir(), "inzone-test-")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	storage, sclose, err := NewStorage(tmpDir, logger)
	require.NoError(t, err)
	defer sclose()

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{
		{Geometry: geom.NewPointFlat(geom.XY, []float64{5, 5})},
	}}

	err = storage.Index(fc, "zones.geojson", "unittest")
	require.Error(t, err)

	// a failed index must leave nothing behind
	_, err = storage.LoadIndexInfos()
	require.Error(t, err)
}

func setup(t *testing.T) (*Storage, func()) {
	t.Helper()

	logger := log.NewNopLogger()

	tmpDir, err := ioutil.TempDir(os.TempDir(), "inzone-test-")
	require.NoError(t, err)
	wstorage, wclose, err := NewStorage(tmpDir, logger)
	require.NoError(t, err)

	var fc geojson.FeatureCollection

	file, err := os.Open("../testdata/zones.geojson")
	require.NoError(t, err)
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(&fc)
	require.NoError(t, err)

	err = wstorage.Index(&fc, "zones.geojson", "unittest")
	require.NoError(t, err)

	err = wclose()
	require.NoError(t, err)

	// RO storage
	storage, sclose, err := NewROStorage(tmpDir, logger)
	require.NoError(t, err)

	return storage, func() {
		sclose()
		os.RemoveAll(tmpDir)
	}
}
