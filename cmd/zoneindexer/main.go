package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/namsral/flag"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/shiplytics/inzone"
	"github.com/shiplytics/inzone/storage/badger"
	"github.com/shiplytics/inzone/storage/bbolt"
	"github.com/shiplytics/inzone/storage/leveldb"
)

const appName = "zoneindexer"

var (
	version = "no version from LDFLAGS"

	geojsonPath    = flag.String("geojsonPath", "./zones.geojson", "FeatureCollection to index, one zone per feature")
	dbPath         = flag.String("dbPath", "./zones.db", "db path out")
	storageBackend = flag.String("storageBackend", "leveldb", "Storage backend: leveldb|bbolt|badger")
)

func main() {
	flag.Parse()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "caller", log.Caller(5), "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)
	logger = level.NewFilter(logger, level.AllowAll())

	level.Info(logger).Log("msg", "Starting app", "version", version)

	file, err := os.Open(*geojsonPath)
	if err != nil {
		level.Error(logger).Log("msg", "can't open geojson file", "error", err, "geojson_path", *geojsonPath)
		os.Exit(2)
	}
	defer file.Close()

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(file).Decode(&fc); err != nil {
		level.Error(logger).Log("msg", "can't decode geojson", "error", err, "geojson_path", *geojsonPath)
		os.Exit(2)
	}

	var (
		idx   inzone.ZoneIndexer
		clean func() error
	)

	switch *storageBackend {
	case "bbolt":
		idx, clean, err = bbolt.NewStorage(*dbPath, logger)
	case "leveldb":
		idx, clean, err = leveldb.NewStorage(*dbPath, logger)
	case "badger":
		idx, clean, err = badger.NewStorage(*dbPath, logger)
	default:
		level.Error(logger).Log("msg", "unknown storage backend", "backend", *storageBackend)
		os.Exit(2)
	}
	if err != nil {
		level.Error(logger).Log("msg", "can't open DB", "error", err, "db_path", *dbPath)
		os.Exit(2)
	}
	defer clean()

	if err := idx.Index(&fc, filepath.Base(*geojsonPath), version); err != nil {
		level.Error(logger).Log("msg", "failed to index zones", "error", err)
		os.Exit(2)
	}

	level.Info(logger).Log("msg", "indexed zones",
		"zone_count", len(fc.Features),
		"db_path", *dbPath,
	)
}
