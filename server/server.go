package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/opentracing/opentracing-go"
	slog "github.com/opentracing/opentracing-go/log"
	"github.com/twpayne/go-geom/encoding/geojson"
	"google.golang.org/grpc/health"

	"github.com/shiplytics/inzone"
)

// ZoneIDProperty is the property key carrying the zone id in responses.
const ZoneIDProperty = "zone_id"

// ErrZoneNotFound is returned when no zone contains the queried position.
var ErrZoneNotFound = errors.New("no zone found at this location")

// Server exposes the zone engine.
type Server struct {
	engine       *inzone.Engine
	logger       log.Logger
	cache        *ristretto.Cache
	healthServer *health.Server
}

// New returns a Server wired to engine. Responses for hot zones are kept
// in a cache since the GeoJSON body of a zone never changes.
func New(engine *inzone.Engine, logger log.Logger, healthServer *health.Server) (*Server, error) {
	logger = log.With(logger, "component", "server")

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,     // number of keys to track frequency
		MaxCost:     1 << 27, // 128M
		BufferItems: 64,      // number of keys per Get buffer.
	})
	if err != nil {
		return nil, fmt.Errorf("cache error: %w", err)
	}

	return &Server{
		engine:       engine,
		logger:       logger,
		cache:        cache,
		healthServer: healthServer,
	}, nil
}

// Within returns the first zone containing the position as an encoded
// GeoJSON feature collection, or ErrZoneNotFound.
func (s *Server) Within(ctx context.Context, lat, lng float64) (body []byte, terr error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Within")
	defer span.Finish()

	defer func() { s.handleError(terr, span) }()

	span.LogFields(
		slog.Float64("lat", lat),
		slog.Float64("lng", lng),
	)

	id := s.engine.Query(lat, lng)

	level.Debug(s.logger).Log("msg", "querying within",
		"lat", lat,
		"lng", lng,
		"zone_id", id,
	)

	if id == inzone.NoMatch {
		return nil, ErrZoneNotFound
	}

	return s.zoneBody(id)
}

// Batch resolves whole position arrays at once on the engine worker pool.
func (s *Server) Batch(ctx context.Context, lats, lngs []float64) (results []int32, terr error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Batch")
	defer span.Finish()

	defer func() { s.handleError(terr, span) }()

	span.LogFields(
		slog.Int("batch_size", len(lats)),
	)

	return s.engine.QueryBatchParallel(lats, lngs)
}

// zoneBody fetches the encoded zone from cache or builds it.
func (s *Server) zoneBody(id int32) ([]byte, error) {
	if v, found := s.cache.Get(id); found {
		zoneHitCounter.Inc()

		return v.([]byte), nil
	}

	z, ok := s.engine.Zone(id)
	if !ok {
		return nil, ErrZoneNotFound
	}

	props := make(map[string]interface{}, len(z.Properties)+1)
	for k, v := range z.Properties {
		props[k] = v
	}
	props[ZoneIDProperty] = float64(id)

	fc := &geojson.FeatureCollection{
		Features: []*geojson.Feature{{
			Geometry:   z.Geometry(),
			Properties: props,
		}},
	}

	body, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("can't encode zone %d: %w", id, err)
	}

	s.cache.Set(id, body, 1)
	zoneMissCounter.Inc()

	return body, nil
}

func (s *Server) handleError(terr error, span opentracing.Span) {
	if terr != nil {
		// do not log not found as error
		if errors.Is(terr, ErrZoneNotFound) {
			level.Debug(s.logger).Log("error", terr)

			return
		}

		errorCounter.Inc()
		span.LogFields(
			slog.String("error", terr.Error()),
		)
		span.SetTag("error", true)

		level.Error(s.logger).Log("error", terr)
	}
}
