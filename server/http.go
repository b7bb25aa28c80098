package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/opentracing/opentracing-go"

	"github.com/shiplytics/inzone"
)

// BatchRequest is the JSON body accepted by BatchHandler, positions are
// parallel arrays where lats[i] pairs with lngs[i].
type BatchRequest struct {
	Lats []float64 `json:"lats"`
	Lngs []float64 `json:"lngs"`
}

// BatchResponse carries one zone id per input position, -1 when no zone
// contains the position.
type BatchResponse struct {
	Zones []int32 `json:"zones"`
}

// WithinHandler HTTP 1.1 Handler to query the zone at lat lng, returns GeoJSON
func (s *Server) WithinHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	span, ctx := opentracing.StartSpanFromContext(ctx, "WithinHandler")
	defer span.Finish()

	vars := mux.Vars(r)

	lat, err := strconv.ParseFloat(vars["lat"], 64)
	if err != nil {
		http.Error(w, "invalid parameter lat", 400)
		return
	}
	lng, err := strconv.ParseFloat(vars["lng"], 64)
	if err != nil {
		http.Error(w, "invalid parameter lng", 400)
		return
	}

	body, err := s.Within(ctx, lat, lng)
	if errors.Is(err, ErrZoneNotFound) {
		http.Error(w, "{\"msg\": \"no zone found at this location\"}", 404)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// BatchHandler HTTP 1.1 Handler resolving arrays of positions in one call
func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	span, ctx := opentracing.StartSpanFromContext(ctx, "BatchHandler")
	defer span.Finish()

	req := &BatchRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "invalid json body", 400)
		return
	}

	results, err := s.Batch(ctx, req.Lats, req.Lngs)
	if err != nil {
		var lerr *inzone.LengthMismatchError
		if errors.As(err, &lerr) {
			http.Error(w, lerr.Error(), 400)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(BatchResponse{Zones: results}); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
}

// ZoneHandler HTTP 1.1 Handler returning a registered zone by id
func (s *Server) ZoneHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	id, err := strconv.ParseInt(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "invalid parameter id", 400)
		return
	}

	body, err := s.zoneBody(int32(id))
	if errors.Is(err, ErrZoneNotFound) {
		http.Error(w, "{\"msg\": \"unknown zone id\"}", 404)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
