package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/haptable/haptable/internal/httputil"
)

// echartsAssetsPrefix is where chart pages load the echarts runtime from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// trailDepth is how many recent cycles the scene views draw as a
// fingertip trail.
const trailDepth = 200

// AttachDebugRoutes mounts the monitor's pages under /debug/ on mux.
func (m *Monitor) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("haptics", "haptics debug dashboard", m.handleDashboard)
	debug.HandleFunc("charts/intensity", "motor intensity timeline", m.handleIntensityChart)
	debug.HandleFunc("charts/scene", "top-down scene chart", m.handleSceneChart)
	debug.HandleFunc("scene.png", "top-down scene render (PNG)", m.handleScenePNG)
	debug.HandleSilentFunc("cycles/tail", m.handleCycleTail)
	debug.HandleSilentFunc("cycles/recent", m.handleRecentCycles)
}

// handleIntensityChart renders the recent per-motor levels as a line
// chart. Query param cycles limits the window (default 200).
func (m *Monitor) handleIntensityChart(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("cycles"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= DefaultRingDepth {
			limit = parsed
		}
	}
	cycles := m.Recent(limit)
	if len(cycles) == 0 {
		http.Error(w, "no cycles recorded yet", http.StatusNotFound)
		return
	}

	motors := 0
	for _, c := range cycles {
		if len(c.Levels) > motors {
			motors = len(c.Levels)
		}
	}

	x := make([]string, len(cycles))
	series := make([][]opts.LineData, motors)
	for i := range series {
		series[i] = make([]opts.LineData, len(cycles))
	}
	for i, c := range cycles {
		x[i] = strconv.FormatUint(c.Seq, 10)
		for motor := 0; motor < motors; motor++ {
			level := 0
			if motor < len(c.Levels) {
				level = c.Levels[motor]
			}
			series[motor][i] = opts.LineData{Value: level}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "HapTable Intensity", Theme: "dark", Width: "1400px", Height: "640px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Motor Intensity", Subtitle: fmt.Sprintf("cycles=%d motors=%d", len(cycles), motors)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Cycle"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "Level"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x)
	for motor := 0; motor < motors; motor++ {
		line.AddSeries(fmt.Sprintf("motor %d", motor), series[motor])
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSceneChart renders curve samples and the recent fingertip trail
// in the table plane (x across, z away from the cameras).
func (m *Monitor) handleSceneChart(w http.ResponseWriter, r *http.Request) {
	view := m.Scene()
	cycles := m.Recent(trailDepth)

	padX := 0.05 * (view.XMax - view.XMin)
	padZ := 0.05 * (view.ZMax - view.ZMin)
	if padX == 0 {
		padX = 1
	}
	if padZ == 0 {
		padZ = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "HapTable Scene", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Table Scene", Subtitle: fmt.Sprintf("curves=%d trail=%d", len(view.Curves), len(cycles))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: view.XMin - padX, Max: view.XMax + padX, Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: view.ZMin - padZ, Max: view.ZMax + padZ, Name: "Z (mm)", NameLocation: "middle", NameGap: 30}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	for _, cv := range view.Curves {
		if len(cv.Samples) == 0 {
			continue
		}
		data := make([]opts.ScatterData, 0, len(cv.Samples))
		for _, s := range cv.Samples {
			data = append(data, opts.ScatterData{Value: []interface{}{s.X, s.Z}})
		}
		name := fmt.Sprintf("%d %s", cv.ID, cv.Name)
		if !cv.Visible {
			name += " (hidden)"
		}
		scatter.AddSeries(name, data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: cv.Color.Hex()}),
		)
	}

	var hover, touch []opts.ScatterData
	for _, c := range cycles {
		if c.Fingertip == nil {
			continue
		}
		pt := opts.ScatterData{Value: []interface{}{c.Fingertip.X, c.Fingertip.Z}}
		if len(c.Collisions) > 0 {
			touch = append(touch, pt)
		} else {
			hover = append(hover, pt)
		}
	}
	if len(hover) > 0 {
		scatter.AddSeries("hover", hover,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#8c8c8c"}),
		)
	}
	if len(touch) > 0 {
		scatter.AddSeries("touch", touch,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff4d4f"}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleRecentCycles returns the buffered cycles as JSON, oldest first.
func (m *Monitor) handleRecentCycles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	httputil.WriteJSONOK(w, m.Recent(limit))
}

// handleCycleTail streams finished cycles as SSE events, one JSON
// object per cycle.
func (m *Monitor) handleCycleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, ch := m.Subscribe()
	defer m.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	w.(http.Flusher).Flush()

	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			w.(http.Flusher).Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleDashboard serves a static page framing the debug views.
func (m *Monitor) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}
