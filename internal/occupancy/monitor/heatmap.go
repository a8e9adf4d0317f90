package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/occupancy.map/internal/httputil"
	"github.com/banshee-data/occupancy.map/internal/occupancy/costvalue"
	"github.com/banshee-data/occupancy.map/internal/occupancy/snapshot"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var costColors = []string{"#1a9850", "#66bd63", "#a6d96a", "#d9ef8b", "#ffffbf", "#fee08b", "#fdae61", "#f46d43", "#d73027"}

// handleHeatmap renders the latest snapshot as an interactive heatmap.
// Unknown cells are left blank. Query params:
//   - max_cells (optional; default 40000) downsamples large grids by stride
func (ws *WebServer) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	s := ws.source.Latest()
	if s == nil {
		httputil.NotFound(w, "no snapshot published yet")
		return
	}

	maxCells := 40000
	if mc := r.URL.Query().Get("max_cells"); mc != "" {
		if v, err := strconv.Atoi(mc); err == nil && v >= 100 && v <= 1000000 {
			maxCells = v
		}
	}
	stride := 1
	if n := s.Width * s.Height; n > maxCells {
		stride = int(math.Ceil(math.Sqrt(float64(n) / float64(maxCells))))
	}

	xs := make([]string, 0, s.Width/stride+1)
	for x := 0; x < s.Width; x += stride {
		xs = append(xs, fmt.Sprintf("%.1f", s.OriginX+(float64(x)+0.5)*s.Resolution))
	}
	ys := make([]string, 0, s.Height/stride+1)
	for y := 0; y < s.Height; y += stride {
		ys = append(ys, fmt.Sprintf("%.1f", s.OriginY+(float64(y)+0.5)*s.Resolution))
	}

	data := heatmapData(s, stride)

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy Grid", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy Grid", Subtitle: fmt.Sprintf("seq=%d mode=%s %dx%d@%gm stride=%d", s.Sequence, s.Mode, s.Width, s.Height, s.Resolution, stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        100,
			InRange:    &opts.VisualMapInRange{Color: costColors},
		}),
	)
	hm.SetXAxis(xs).AddSeries("cost", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// heatmapData samples every stride-th cell in each axis, skipping unknown
// cells. Values are [column, row, cost] in sampled coordinates.
func heatmapData(s *snapshot.Snapshot, stride int) []opts.HeatMapData {
	data := make([]opts.HeatMapData, 0, (s.Width/stride+1)*(s.Height/stride+1))
	for y, row := 0, 0; y < s.Height; y, row = y+stride, row+1 {
		for x, col := 0, 0; x < s.Width; x, col = x+stride, col+1 {
			v := s.Data[y*s.Width+x]
			if v == costvalue.UnknownCost {
				continue
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{col, row, int(v)}})
		}
	}
	return data
}

// gridXYZ adapts a snapshot to plotter.GridXYZ. Unknown cells are NaN.
type gridXYZ struct{ s *snapshot.Snapshot }

func (g gridXYZ) Dims() (c, r int) { return g.s.Width, g.s.Height }
func (g gridXYZ) X(c int) float64  { return g.s.OriginX + (float64(c)+0.5)*g.s.Resolution }
func (g gridXYZ) Y(r int) float64  { return g.s.OriginY + (float64(r)+0.5)*g.s.Resolution }
func (g gridXYZ) Z(c, r int) float64 {
	v := g.s.Data[r*g.s.Width+c]
	if v == costvalue.UnknownCost {
		return math.NaN()
	}
	return float64(v)
}

// renderPNG draws the snapshot with gonum/plot. Unknown cells are grey.
func renderPNG(s *snapshot.Snapshot, size vg.Length) ([]byte, error) {
	if s.Width < 2 || s.Height < 2 {
		return nil, fmt.Errorf("grid %dx%d too small to plot", s.Width, s.Height)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Occupancy seq=%d (%s)", s.Sequence, s.Mode)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(gridXYZ{s}, palette.Heat(32, 1))
	hm.Min, hm.Max = 0, 100
	hm.NaN = color.Gray{Y: 96}
	p.Add(hm)

	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return nil, fmt.Errorf("create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render png: %w", err)
	}
	return buf.Bytes(), nil
}

func (ws *WebServer) handleGridPNG(w http.ResponseWriter, r *http.Request) {
	s := ws.source.Latest()
	if s == nil {
		httputil.NotFound(w, "no snapshot published yet")
		return
	}
	b, err := renderPNG(s, 8*vg.Inch)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(b)
}
