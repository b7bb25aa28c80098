package inzone

import (
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// NoMatch is the result for a point outside every registered zone.
const NoMatch int32 = -1

// Options configures an Engine.
type Options struct {
	// Workers is the number of goroutines used by QueryBatchParallel,
	// 0 or less means runtime.GOMAXPROCS(0).
	Workers int
}

// Engine answers point in zone queries over a fixed set of zones.
// The zone index is the position of its payload at construction time and
// queries scan in that order, so results are stable for the lifetime of
// the engine. An Engine is immutable once built and safe for concurrent
// use without locking.
type Engine struct {
	zones   []Zone
	workers int
}

// NewEngine builds an Engine from GeoJSON payloads, one zone per payload.
// Any malformed payload fails the whole construction with a
// *GeometryError, a partial engine is never returned.
func NewEngine(payloads [][]byte, opts Options) (*Engine, error) {
	zones := make([]Zone, 0, len(payloads))
	for i, payload := range payloads {
		z, err := ZoneFromGeoJSON(payload)
		if err != nil {
			return nil, &GeometryError{Payload: i, Err: err}
		}
		zones = append(zones, *z)
	}

	return NewEngineFromZones(zones, opts)
}

// NewEngineFromZones builds an Engine from already decoded zones.
// The zones slice is owned by the engine afterwards and must not be
// modified by the caller.
func NewEngineFromZones(zones []Zone, opts Options) (*Engine, error) {
	// ids are int32 so they can cross typed array boundaries
	if len(zones) > math.MaxInt32 {
		return nil, &GeometryError{Payload: -1, Err: errors.Errorf("too many zones: %d", len(zones))}
	}
	for i := range zones {
		if zones[i].Polygon == nil {
			return nil, &GeometryError{Payload: i, Err: errors.New("zone without polygon")}
		}
		if err := zones[i].Polygon.validate(); err != nil {
			return nil, &GeometryError{Payload: i, Err: err}
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Engine{zones: zones, workers: workers}, nil
}

// NewEngineFromStore rebuilds an Engine from a compiled zone database,
// zones keep the ids they were indexed with.
func NewEngineFromStore(store Store, opts Options) (*Engine, error) {
	infos, err := store.LoadIndexInfos()
	if err != nil {
		return nil, err
	}

	zones := make([]Zone, infos.ZoneCount)
	err = store.LoadAllZones(func(zs *ZoneStorage, id uint32) error {
		if id >= infos.ZoneCount {
			return errors.Errorf("zone id %d out of range, index says %d zones", id, infos.ZoneCount)
		}
		z, err := zs.Zone()
		if err != nil {
			return errors.Wrapf(err, "can't load zone %d", id)
		}
		zones[id] = *z
		return nil
	})
	if err != nil {
		return nil, err
	}

	return NewEngineFromZones(zones, opts)
}

// Query returns the index of the first zone containing the point, scanning
// in registration order, or NoMatch when no zone contains it.
// Overlapping zones resolve to the lowest index. Non finite coordinates
// never match.
func (e *Engine) Query(lat, lng float64) int32 {
	p := Point{Lat: lat, Lng: lng}
	if !p.IsFinite() {
		return NoMatch
	}

	for i := range e.zones {
		if e.zones[i].Polygon.Contains(p) {
			return int32(i)
		}
	}

	return NoMatch
}

// QueryBatch runs Query over parallel coordinate slices, lats[i] pairing
// with lngs[i]. The slices must have the same length or a
// *LengthMismatchError is returned and nothing is evaluated.
func (e *Engine) QueryBatch(lats, lngs []float64) ([]int32, error) {
	if len(lats) != len(lngs) {
		return nil, &LengthMismatchError{Lats: len(lats), Lngs: len(lngs)}
	}

	results := make([]int32, len(lats))
	for i := range lats {
		results[i] = e.Query(lats[i], lngs[i])
	}

	return results, nil
}

// batchEntry carries one result back to the collector, pos is the position
// in the input slices.
type batchEntry struct {
	pos  int
	zone int32
}

// QueryBatchParallel is QueryBatch fanned out over the engine worker count.
// Input positions are split in contiguous chunks, each worker sends back
// (position, result) pairs and the collector scatters them into a result
// slice prefilled with NoMatch. Whatever the worker count, results are
// identical to QueryBatch.
func (e *Engine) QueryBatchParallel(lats, lngs []float64) ([]int32, error) {
	if len(lats) != len(lngs) {
		return nil, &LengthMismatchError{Lats: len(lats), Lngs: len(lngs)}
	}

	results := make([]int32, len(lats))
	for i := range results {
		results[i] = NoMatch
	}
	if len(lats) == 0 {
		return results, nil
	}

	workers := e.workers
	if workers > len(lats) {
		workers = len(lats)
	}
	chunk := (len(lats) + workers - 1) / workers

	entries := make(chan batchEntry, workers)

	var wg sync.WaitGroup
	for start := 0; start < len(lats); start += chunk {
		end := start + chunk
		if end > len(lats) {
			end = len(lats)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				entries <- batchEntry{pos: i, zone: e.Query(lats[i], lngs[i])}
			}
		}(start, end)
	}

	go func() {
		wg.Wait()
		close(entries)
	}()

	for entry := range entries {
		results[entry.pos] = entry.zone
	}

	return results, nil
}

// Zone returns the zone registered at index id.
func (e *Engine) Zone(id int32) (*Zone, bool) {
	if id < 0 || int(id) >= len(e.zones) {
		return nil, false
	}
	return &e.zones[id], true
}

// Len returns the number of registered zones.
func (e *Engine) Len() int {
	return len(e.zones)
}

// Workers returns the parallel batch worker count.
func (e *Engine) Workers() int {
	return e.workers
}
