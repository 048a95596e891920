package scene

import (
	"math"

	"github.com/haptable/haptable/internal/stereo"
)

// DefaultSampleCount is the number of points a curve is sampled into
// per regeneration.
const DefaultSampleCount = 100

// DefaultThickness is the collision tolerance band in millimeters: a
// fingertip within half of it touches the curve.
const DefaultThickness = 30.0

// Curve is one named curve on the table: a function of x sampled into
// a 3D polyline inside the coordinate system.
//
// The graph value perturbs depth, not height: sample i sits at
// (x_i, tableHeight, zOffset + f(x_i)). Pinning y to the table surface
// and pushing the function value into z is what lets a graph be felt
// as a flat curve on the tabletop instead of a vertical wall. Keep
// that mapping exact.
type Curve struct {
	id          int
	name        string
	display     string
	fn          Function
	color       Color
	thickness   float64
	visible     bool
	sampleCount int

	samples    []stereo.Point3
	sampledGen uint64
	dirty      bool
}

// ID returns the session-unique curve id (1-based, never recycled).
func (c *Curve) ID() int { return c.id }

// Name returns the short name the curve was added under.
func (c *Curve) Name() string { return c.name }

// DisplayString returns the human-readable formula, e.g. "y = x^2/100".
func (c *Curve) DisplayString() string { return c.display }

// Color returns the curve's display color.
func (c *Curve) Color() Color { return c.color }

// Thickness returns the collision band in millimeters.
func (c *Curve) Thickness() float64 { return c.thickness }

// Visible reports whether the curve participates in collision checks.
func (c *Curve) Visible() bool { return c.visible }

// SetVisible flips collision participation.
func (c *Curve) SetVisible(v bool) { c.visible = v }

// Invalidate marks the cached samples stale. Range changes invalidate
// implicitly through the coordinate system generation; this is for
// function or sample-count edits.
func (c *Curve) Invalidate() { c.dirty = true }

// Samples returns the cached polyline, regenerating it lazily when the
// function changed or the coordinate system moved underneath it.
func (c *Curve) Samples(cs *CoordinateSystem) []stereo.Point3 {
	if c.dirty || c.sampledGen != cs.Generation() {
		c.regenerate(cs)
	}
	return c.samples
}

func (c *Curve) regenerate(cs *CoordinateSystem) {
	n := c.sampleCount
	if n < 2 {
		n = DefaultSampleCount
	}
	xMin, xMax := cs.XRange()
	tableY := cs.TableHeight()
	zOffset := cs.ZOffset()
	step := (xMax - xMin) / float64(n-1)

	samples := make([]stereo.Point3, 0, n)
	for i := 0; i < n; i++ {
		x := xMin + float64(i)*step
		y, err := c.fn.Eval(x)
		// A failed or non-finite evaluation skips the sample, never the
		// curve.
		if err != nil || math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		samples = append(samples, stereo.Point3{
			X: x,
			Y: tableY,
			Z: zOffset + y,
		})
	}
	c.samples = samples
	c.sampledGen = cs.Generation()
	c.dirty = false
}

// DistanceTo returns the minimum Euclidean distance from p to any
// cached sample. ok is false for a curve with no valid samples, which
// never collides.
//
// This is the nearest-sample approximation, not true point-to-segment
// distance; it can under-report proximity between sparse samples.
func (c *Curve) DistanceTo(cs *CoordinateSystem, p stereo.Point3) (dist float64, ok bool) {
	samples := c.Samples(cs)
	if len(samples) == 0 {
		return 0, false
	}
	best := math.Inf(1)
	for _, s := range samples {
		dx := p.X - s.X
		dy := p.Y - s.Y
		dz := p.Z - s.Z
		if d2 := dx*dx + dy*dy + dz*dz; d2 < best {
			best = d2
		}
	}
	return math.Sqrt(best), true
}

// IsTouching reports whether p lies within the curve's collision band.
func (c *Curve) IsTouching(cs *CoordinateSystem, p stereo.Point3) bool {
	d, ok := c.DistanceTo(cs, p)
	return ok && d <= c.thickness/2
}

// Info is the read-only summary handed to the API and monitor layers.
type Info struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Display     string  `json:"display"`
	Color       string  `json:"color"`
	ThicknessMM float64 `json:"thickness_mm"`
	Visible     bool    `json:"visible"`
	Samples     int     `json:"samples"`
}

// Info summarizes the curve without touching the sample cache.
func (c *Curve) Info() Info {
	return Info{
		ID:          c.id,
		Name:        c.name,
		Display:     c.display,
		Color:       c.color.Hex(),
		ThicknessMM: c.thickness,
		Visible:     c.visible,
		Samples:     len(c.samples),
	}
}
