package main

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	stdlog "log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/namsral/flag"

	"github.com/shiplytics/inzone"
	"github.com/shiplytics/inzone/loglevel"
)

const appName = "aistag"

var (
	logLevel  = flag.String("logLevel", "INFO", "DEBUG|INFO|WARN|ERROR")
	csvPath   = flag.String("csvPath", "./ais.csv", "AIS positions CSV, gzip supported")
	outPath   = flag.String("outPath", "", "write the tagged CSV here, empty means counts only")
	zonesPath = flag.String("zonesPath", "./zones", "directory of GeoJSON zone files, one zone per file")
	latCol    = flag.String("latCol", "lat", "latitude column name")
	lngCol    = flag.String("lngCol", "lon", "longitude column name")
	workers   = flag.Int("workers", 0, "batch query workers, 0 means all CPUs")
)

func main() {
	flag.Parse()

	exitcode := 0
	defer func() { os.Exit(exitcode) }()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "caller", log.Caller(5), "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)
	logger = loglevel.NewLevelFilterFromString(logger, *logLevel)

	stdlog.SetOutput(log.NewStdlibAdapter(logger))

	payloads, err := readZonePayloads(*zonesPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to read zones", "error", err, "zones_path", *zonesPath)

		exitcode = 1

		return
	}

	engine, err := inzone.NewEngine(payloads, inzone.Options{Workers: *workers})
	if err != nil {
		level.Error(logger).Log("msg", "failed to build engine", "error", err)

		exitcode = 1

		return
	}

	level.Info(logger).Log("msg", "built zone engine",
		"zone_count", engine.Len(),
		"workers", engine.Workers(),
	)

	header, records, lats, lngs, err := readPositions(*csvPath, *latCol, *lngCol)
	if err != nil {
		level.Error(logger).Log("msg", "failed to read positions", "error", err, "csv_path", *csvPath)

		exitcode = 1

		return
	}

	t := time.Now()

	results, err := engine.QueryBatchParallel(lats, lngs)
	if err != nil {
		level.Error(logger).Log("msg", "failed to tag positions", "error", err)

		exitcode = 1

		return
	}

	elapsed := time.Since(t)
	level.Info(logger).Log("msg", "tagged positions",
		"position_count", len(results),
		"duration", elapsed,
		"positions_per_sec", fmt.Sprintf("%.0f", float64(len(results))/elapsed.Seconds()),
	)

	// counts per zone, analysts read these before touching the CSV
	counts := make(map[int32]int)
	for _, id := range results {
		counts[id]++
	}

	for id := int32(0); int(id) < engine.Len(); id++ {
		var name string
		if z, ok := engine.Zone(id); ok {
			name, _ = z.Properties["name"].(string)
		}
		level.Info(logger).Log("msg", "zone count",
			"zone_id", id,
			"zone_name", name,
			"count", counts[id],
		)
	}
	level.Info(logger).Log("msg", "zone count", "zone_id", inzone.NoMatch, "count", counts[inzone.NoMatch])

	if *outPath == "" {
		return
	}

	if err := writeTagged(*outPath, header, records, results); err != nil {
		level.Error(logger).Log("msg", "failed to write tagged CSV", "error", err, "out_path", *outPath)

		exitcode = 1

		return
	}

	level.Info(logger).Log("msg", "wrote tagged CSV", "out_path", *outPath)
}

// readPositions loads the CSV and parses the position columns.
// Positions that do not parse are kept as NaN so they tag as no zone
// instead of failing the whole file.
func readPositions(path, latCol, lngCol string) ([]string, [][]string, []float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		defer gz.Close()
		r = gz
	}

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("can't read CSV header: %w", err)
	}

	latIdx, lngIdx := -1, -1
	for i, name := range header {
		switch name {
		case latCol:
			latIdx = i
		case lngCol:
			lngIdx = i
		}
	}
	if latIdx < 0 || lngIdx < 0 {
		return nil, nil, nil, nil, fmt.Errorf("missing %q or %q column in %v", latCol, lngCol, header)
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("can't read CSV records: %w", err)
	}

	lats := make([]float64, len(records))
	lngs := make([]float64, len(records))
	for i, rec := range records {
		lats[i] = parseCoord(rec[latIdx])
		lngs[i] = parseCoord(rec[lngIdx])
	}

	return header, records, lats, lngs, nil
}

func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// writeTagged writes the records back with a zone column appended.
func writeTagged(path string, header []string, records [][]string, results []int32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write(append(header, "zone")); err != nil {
		return err
	}
	for i, rec := range records {
		if err := w.Write(append(rec, strconv.Itoa(int(results[i])))); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// readZonePayloads loads every .geojson file in dir, one zone per file,
// in lexical order so zone ids are reproducible.
func readZonePayloads(dir string) ([][]byte, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.geojson"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .geojson files found in %s", dir)
	}

	payloads := make([][]byte, 0, len(files))
	for _, f := range files {
		b, err := ioutil.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("can't read %s: %w", f, err)
		}
		payloads = append(payloads, b)
	}

	return payloads, nil
}
