package debug

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/golang/geo/s2"
)

// CellResponse describes the s2 cell containing a position.
type CellResponse struct {
	Token    string       `json:"token"`
	Level    int          `json:"level"`
	Center   [2]float64   `json:"center"`
	Vertices [][2]float64 `json:"vertices"`
}

// S2CellQueryHandler returns the s2 cell containing a position, useful to
// eyeball zone coverage from a browser.
// Query parameters are lat, lng and an optional level defaulting to 15.
func S2CellQueryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		http.Error(w, "invalid parameter lat", 400)
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		http.Error(w, "invalid parameter lng", 400)
		return
	}

	clevel := 15
	if l := q.Get("level"); l != "" {
		clevel, err = strconv.Atoi(l)
		if err != nil || clevel < 0 || clevel > 30 {
			http.Error(w, "invalid parameter level", 400)
			return
		}
	}

	c := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(clevel)
	cell := s2.CellFromCellID(c)

	center := s2.LatLngFromPoint(cell.Center())
	resp := &CellResponse{
		Token:  c.ToToken(),
		Level:  clevel,
		Center: [2]float64{center.Lat.Degrees(), center.Lng.Degrees()},
	}
	for i := 0; i < 4; i++ {
		v := s2.LatLngFromPoint(cell.Vertex(i))
		resp.Vertices = append(resp.Vertices, [2]float64{v.Lat.Degrees(), v.Lng.Degrees()})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
}
