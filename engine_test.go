package inzone

import (
	"errors"
	"math"
	"math/rand"
	"runtime"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	// square harbor zone with a triangular exclusion cut out around (5, 5)
	harborPayload = `{"type": "Feature", "properties": {"name": "harbor"}, "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]],[[4,4],[6,4],[5,6],[4,4]]]}}`
	// disjoint square zone spanning 30..40
	anchoragePayload = `{"type": "Feature", "properties": {"name": "anchorage"}, "geometry": {"type": "Polygon", "coordinates": [[[30,30],[40,30],[40,40],[30,40],[30,30]]]}}`
)

func testEngine(t *testing.T, opts Options) *Engine {
	t.Helper()

	engine, err := NewEngine([][]byte{
		[]byte(harborPayload),
		[]byte(anchoragePayload),
	}, opts)
	require.NoError(t, err)

	return engine
}

func TestEngine_Query(t *testing.T) {
	engine := testEngine(t, Options{})

	tests := []struct {
		name     string
		lat, lng float64
		want     int32
	}{
		{"inside first zone", 1, 1, 0},
		{"inside the hole", 5, 5, NoMatch},
		{"between zones", 20, 20, NoMatch},
		{"inside second zone", 35, 35, 1},
		{"outside everything", 50, 50, NoMatch},
		{"nan lat", math.NaN(), 5, NoMatch},
		{"nan lng", 5, math.NaN(), NoMatch},
		{"inf lat", math.Inf(1), 5, NoMatch},
		{"neg inf lng", 5, math.Inf(-1), NoMatch},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := engine.Query(tt.lat, tt.lng); got != tt.want {
				t.Errorf("Query() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_QueryFirstMatch(t *testing.T) {
	small, err := NewPolygon(squareRing(), nil)
	require.NoError(t, err)
	big, err := NewPolygon(Ring{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 20},
		{Lat: 20, Lng: 20},
		{Lat: 20, Lng: 0},
	}, nil)
	require.NoError(t, err)

	engine, err := NewEngineFromZones([]Zone{
		{Polygon: small},
		{Polygon: big},
	}, Options{})
	require.NoError(t, err)

	// overlapping zones resolve to the lowest index
	if got := engine.Query(5, 5); got != 0 {
		t.Errorf("Query() got = %v, want 0", got)
	}
	if got := engine.Query(15, 15); got != 1 {
		t.Errorf("Query() got = %v, want 1", got)
	}
}

func TestEngine_QueryBatch(t *testing.T) {
	engine := testEngine(t, Options{})

	got, err := engine.QueryBatch(
		[]float64{1, 5, 20},
		[]float64{1, 5, 20},
	)
	require.NoError(t, err)
	if want := []int32{0, NoMatch, NoMatch}; !cmp.Equal(got, want) {
		t.Errorf("QueryBatch() got = %v, want %v", got, want)
	}
}

func TestEngine_QueryBatchEmpty(t *testing.T) {
	engine := testEngine(t, Options{})

	got, err := engine.QueryBatch(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got, 0)

	got, err = engine.QueryBatchParallel([]float64{}, []float64{})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got, 0)
}

func TestEngine_QueryBatchLengthMismatch(t *testing.T) {
	engine := testEngine(t, Options{})

	_, err := engine.QueryBatch([]float64{1, 2}, []float64{1, 2, 3})
	var lerr *LengthMismatchError
	require.True(t, errors.As(err, &lerr))
	require.Equal(t, 2, lerr.Lats)
	require.Equal(t, 3, lerr.Lngs)

	_, err = engine.QueryBatchParallel([]float64{1, 2}, []float64{1, 2, 3})
	require.True(t, errors.As(err, &lerr))
}

func TestEngine_QueryBatchParallel(t *testing.T) {
	engine := testEngine(t, Options{})

	got, err := engine.QueryBatchParallel(
		[]float64{1, 5, 20},
		[]float64{1, 5, 20},
	)
	require.NoError(t, err)
	if want := []int32{0, NoMatch, NoMatch}; !cmp.Equal(got, want) {
		t.Errorf("QueryBatchParallel() got = %v, want %v", got, want)
	}
}

func TestEngine_QueryBatchParallelMatchesSequential(t *testing.T) {
	// deterministic point cloud over and around both zones
	rnd := rand.New(rand.NewSource(42))
	n := 512
	lats := make([]float64, n)
	lngs := make([]float64, n)
	for i := range lats {
		lats[i] = rnd.Float64()*60 - 10
		lngs[i] = rnd.Float64()*60 - 10
	}
	lats[7], lngs[7] = math.NaN(), 5
	lats[13], lngs[13] = 5, math.Inf(1)
	lats[21], lngs[21] = math.Inf(-1), math.Inf(-1)

	for _, workers := range []int{1, 2, 3, 8, 33} {
		workers := workers
		t.Run(strconv.Itoa(workers)+" workers", func(t *testing.T) {
			engine := testEngine(t, Options{Workers: workers})

			want, err := engine.QueryBatch(lats, lngs)
			require.NoError(t, err)

			got, err := engine.QueryBatchParallel(lats, lngs)
			require.NoError(t, err)
			if !cmp.Equal(got, want) {
				t.Errorf("QueryBatchParallel() diverges from QueryBatch() with %d workers", workers)
			}

			// and stays stable across runs
			again, err := engine.QueryBatchParallel(lats, lngs)
			require.NoError(t, err)
			if !cmp.Equal(got, again) {
				t.Errorf("QueryBatchParallel() not deterministic with %d workers", workers)
			}
		})
	}
}

func TestNewEngine_InvalidPayload(t *testing.T) {
	_, err := NewEngine([][]byte{
		[]byte(harborPayload),
		[]byte(`{"type": "Point", "coordinates": [5,5]}`),
	}, Options{})

	var gerr *GeometryError
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, 1, gerr.Payload)
}

func TestNewEngineFromZones_Invalid(t *testing.T) {
	poly, err := NewPolygon(squareRing(), nil)
	require.NoError(t, err)

	_, err = NewEngineFromZones([]Zone{{Polygon: poly}, {}}, Options{})

	var gerr *GeometryError
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, 1, gerr.Payload)
}

func TestNewEngine_Empty(t *testing.T) {
	engine, err := NewEngine(nil, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, engine.Len())
	require.Equal(t, NoMatch, engine.Query(5, 5))
}

func TestEngine_Zone(t *testing.T) {
	engine := testEngine(t, Options{})

	z, ok := engine.Zone(0)
	require.True(t, ok)
	require.Equal(t, "harbor", z.Properties["name"])

	z, ok = engine.Zone(1)
	require.True(t, ok)
	require.Equal(t, "anchorage", z.Properties["name"])

	_, ok = engine.Zone(NoMatch)
	require.False(t, ok)
	_, ok = engine.Zone(int32(engine.Len()))
	require.False(t, ok)
}

func TestEngine_Workers(t *testing.T) {
	engine := testEngine(t, Options{Workers: 3})
	require.Equal(t, 3, engine.Workers())

	engine = testEngine(t, Options{})
	require.Equal(t, runtime.GOMAXPROCS(0), engine.Workers())
}

func benchEngine(b *testing.B) *Engine {
	b.Helper()

	engine, err := NewEngine([][]byte{
		[]byte(harborPayload),
		[]byte(anchoragePayload),
	}, Options{})
	if err != nil {
		b.Fatal(err)
	}

	return engine
}

func benchPoints(n int) ([]float64, []float64) {
	rnd := rand.New(rand.NewSource(42))
	lats := make([]float64, n)
	lngs := make([]float64, n)
	for i := range lats {
		lats[i] = rnd.Float64()*60 - 10
		lngs[i] = rnd.Float64()*60 - 10
	}

	return lats, lngs
}

func BenchmarkEngine_Query(b *testing.B) {
	engine := benchEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Query(5, 5)
	}
}

func BenchmarkEngine_QueryBatch(b *testing.B) {
	engine := benchEngine(b)
	lats, lngs := benchPoints(10000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.QueryBatch(lats, lngs); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngine_QueryBatchParallel(b *testing.B) {
	engine := benchEngine(b)
	lats, lngs := benchPoints(10000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.QueryBatchParallel(lats, lngs); err != nil {
			b.Fatal(err)
		}
	}
}
