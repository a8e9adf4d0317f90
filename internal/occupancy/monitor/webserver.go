// Package monitor serves HTTP endpoints for inspecting the occupancy grid:
// JSON metadata and statistics for tools, and quick-look heatmaps for
// humans.
package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/occupancy.map/internal/httputil"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pipeline"
	"github.com/banshee-data/occupancy.map/internal/occupancy/snapshot"
)

// Source is what the monitor reads from. *pipeline.Processor satisfies it.
type Source interface {
	Latest() *snapshot.Snapshot
	Stats() pipeline.Stats
	Probability(wx, wy float64) (float64, bool)
}

// WebServer holds the handlers. It never mutates the source.
type WebServer struct {
	source Source
	extras map[string]func() interface{}
}

// NewWebServer creates a monitor over source.
func NewWebServer(source Source) *WebServer {
	return &WebServer{source: source, extras: make(map[string]func() interface{})}
}

// AddStats includes fn's result under name in the stats response. Call
// before RegisterRoutes.
func (ws *WebServer) AddStats(name string, fn func() interface{}) {
	ws.extras[name] = fn
}

// RegisterRoutes attaches the monitor endpoints to mux.
func (ws *WebServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/occupancy/latest", ws.handleLatest)
	mux.HandleFunc("/api/occupancy/stats", ws.handleStats)
	mux.HandleFunc("/api/occupancy/probability", ws.handleProbability)
	mux.HandleFunc("/debug/occupancy/heatmap", ws.handleHeatmap)
	mux.HandleFunc("/debug/occupancy/grid.png", ws.handleGridPNG)
}

// Origin is a map-frame position in metres.
type Origin struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Summary is the JSON form of a snapshot served by /api/occupancy/latest.
type Summary struct {
	Sequence   uint64          `json:"sequence"`
	Stamp      time.Time       `json:"stamp"`
	FrameID    string          `json:"frame_id"`
	Mode       string          `json:"mode"`
	Resolution float64         `json:"resolution"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Origin     Origin          `json:"origin"`
	Counts     snapshot.Counts `json:"counts"`
	Data       []int8          `json:"data,omitempty"`
}

// handleLatest returns the latest snapshot's metadata. Query params:
//   - data=true includes the row-major cost array
func (ws *WebServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s := ws.source.Latest()
	if s == nil {
		httputil.NotFound(w, "no snapshot published yet")
		return
	}
	out := Summary{
		Sequence:   s.Sequence,
		Stamp:      s.Stamp,
		FrameID:    s.FrameID,
		Mode:       s.Mode,
		Resolution: s.Resolution,
		Width:      s.Width,
		Height:     s.Height,
		Origin:     Origin{X: s.OriginX, Y: s.OriginY, Z: s.OriginZ},
		Counts:     s.Counts(),
	}
	if withData, _ := strconv.ParseBool(r.URL.Query().Get("data")); withData {
		out.Data = s.Data
	}
	httputil.WriteJSONOK(w, out)
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	out := map[string]interface{}{"pipeline": ws.source.Stats()}
	for name, fn := range ws.extras {
		out[name] = fn()
	}
	httputil.WriteJSONOK(w, out)
}

// handleProbability reports the fused probability at a world position.
// Query params: x, y (metres, map frame).
func (ws *WebServer) handleProbability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		httputil.BadRequest(w, "x and y must be numbers")
		return
	}
	p, ok := ws.source.Probability(x, y)
	if !ok {
		httputil.WriteJSONOK(w, map[string]interface{}{"x": x, "y": y, "known": false})
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"x": x, "y": y, "known": true, "probability": p})
}
