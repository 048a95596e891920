package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// handleScenePNG renders the scene top-down with gonum/plot: curve
// polylines in their display colors plus the recent fingertip trail.
// Hidden curves draw dashed.
func (m *Monitor) handleScenePNG(w http.ResponseWriter, r *http.Request) {
	view := m.Scene()
	cycles := m.Recent(trailDepth)

	p := plot.New()
	p.Title.Text = "Table scene (top down)"
	p.X.Label.Text = "X (mm)"
	p.Y.Label.Text = "Z (mm)"

	for _, cv := range view.Curves {
		if len(cv.Samples) == 0 {
			continue
		}
		pts := make(plotter.XYs, 0, len(cv.Samples))
		for _, s := range cv.Samples {
			pts = append(pts, plotter.XY{X: s.X, Y: s.Z})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			http.Error(w, fmt.Sprintf("curve %d: %v", cv.ID, err), http.StatusInternalServerError)
			return
		}
		line.Color = color.RGBA{R: cv.Color.R, G: cv.Color.G, B: cv.Color.B, A: 255}
		line.Width = vg.Points(1.5)
		if !cv.Visible {
			line.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
		}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%d %s", cv.ID, cv.Name), line)
	}

	hover := make(plotter.XYs, 0, len(cycles))
	touch := make(plotter.XYs, 0, len(cycles))
	for _, c := range cycles {
		if c.Fingertip == nil {
			continue
		}
		pt := plotter.XY{X: c.Fingertip.X, Y: c.Fingertip.Z}
		if len(c.Collisions) > 0 {
			touch = append(touch, pt)
		} else {
			hover = append(hover, pt)
		}
	}
	if len(hover) > 0 {
		s, err := plotter.NewScatter(hover)
		if err != nil {
			http.Error(w, fmt.Sprintf("hover trail: %v", err), http.StatusInternalServerError)
			return
		}
		s.GlyphStyle.Color = color.RGBA{R: 140, G: 140, B: 140, A: 255}
		s.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(s)
		p.Legend.Add("hover", s)
	}
	if len(touch) > 0 {
		s, err := plotter.NewScatter(touch)
		if err != nil {
			http.Error(w, fmt.Sprintf("touch trail: %v", err), http.StatusInternalServerError)
			return
		}
		s.GlyphStyle.Color = color.RGBA{R: 255, G: 77, B: 79, A: 255}
		s.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(s)
		p.Legend.Add("touch", s)
	}

	padX := 0.05 * (view.XMax - view.XMin)
	padZ := 0.05 * (view.ZMax - view.ZMin)
	if padX == 0 {
		padX = 1
	}
	if padZ == 0 {
		padZ = 1
	}
	p.X.Min, p.X.Max = view.XMin-padX, view.XMax+padX
	p.Y.Min, p.Y.Max = view.ZMin-padZ, view.ZMax+padZ

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(10*vg.Inch, 7*vg.Inch, "png")
	if err != nil {
		http.Error(w, fmt.Sprintf("render scene: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}
