// Package scene models the tactile scene: a bounded sensing volume
// over the tabletop and the set of curves mapped onto it.
//
// Scene types are not safe for concurrent use. The control loop owns
// them and applies all mutations at cycle boundaries; other goroutines
// observe the scene only through loop snapshots.
package scene

import (
	"errors"
	"fmt"
)

// Defaults for the sensing volume, in millimeters.
const (
	DefaultXMin        = -300.0
	DefaultXMax        = 300.0
	DefaultZMin        = 100.0
	DefaultZMax        = 700.0
	DefaultTableHeight = 500.0
	DefaultStep        = 50.0
	DefaultMinSpan     = 100.0
)

// ErrRangeInversion rejects a range adjustment that would collapse a
// range below the minimum span or invert it. The previous range is
// kept.
var ErrRangeInversion = errors.New("range adjustment would collapse below minimum span")

// CoordinateSystemConfig configures a CoordinateSystem. Step and
// MinSpan fall back to defaults when zero.
type CoordinateSystemConfig struct {
	XMin, XMax  float64
	ZMin, ZMax  float64
	TableHeight float64
	Step        float64
	MinSpan     float64
}

// CoordinateSystem defines the active sensing volume: the x range the
// curves are sampled over, the z range mapped to graph values, and the
// table height in the camera-derived table frame (y increases
// downward; the surface sits at TableHeight).
type CoordinateSystem struct {
	xMin, xMax  float64
	zMin, zMax  float64
	tableHeight float64
	step        float64
	minSpan     float64

	// generation increments on every successful range change. Curves
	// compare it against the generation they sampled at, which gives
	// lazy cache invalidation without touching every curve per edit.
	generation uint64
}

// NewCoordinateSystem validates cfg and builds the volume.
func NewCoordinateSystem(cfg CoordinateSystemConfig) (*CoordinateSystem, error) {
	if cfg.Step == 0 {
		cfg.Step = DefaultStep
	}
	if cfg.MinSpan == 0 {
		cfg.MinSpan = DefaultMinSpan
	}
	if cfg.TableHeight == 0 {
		cfg.TableHeight = DefaultTableHeight
	}
	if cfg.XMin >= cfg.XMax {
		return nil, fmt.Errorf("x range [%f, %f] is inverted", cfg.XMin, cfg.XMax)
	}
	if cfg.ZMin >= cfg.ZMax {
		return nil, fmt.Errorf("z range [%f, %f] is inverted", cfg.ZMin, cfg.ZMax)
	}
	if cfg.MinSpan <= 0 || cfg.Step <= 0 {
		return nil, fmt.Errorf("step and min span must be positive")
	}
	if cfg.XMax-cfg.XMin < cfg.MinSpan || cfg.ZMax-cfg.ZMin < cfg.MinSpan {
		return nil, fmt.Errorf("initial ranges must span at least %fmm", cfg.MinSpan)
	}
	return &CoordinateSystem{
		xMin:        cfg.XMin,
		xMax:        cfg.XMax,
		zMin:        cfg.ZMin,
		zMax:        cfg.ZMax,
		tableHeight: cfg.TableHeight,
		step:        cfg.Step,
		minSpan:     cfg.MinSpan,
		generation:  1,
	}, nil
}

// DefaultCoordinateSystem builds a volume with all defaults. Used by
// tests and the simulator.
func DefaultCoordinateSystem() *CoordinateSystem {
	cs, err := NewCoordinateSystem(CoordinateSystemConfig{
		XMin: DefaultXMin, XMax: DefaultXMax,
		ZMin: DefaultZMin, ZMax: DefaultZMax,
		TableHeight: DefaultTableHeight,
	})
	if err != nil {
		panic("default coordinate system invalid: " + err.Error())
	}
	return cs
}

// XRange returns the sampling range along the table edge.
func (cs *CoordinateSystem) XRange() (min, max float64) {
	return cs.xMin, cs.xMax
}

// ZRange returns the depth range away from the cameras.
func (cs *CoordinateSystem) ZRange() (min, max float64) {
	return cs.zMin, cs.zMax
}

// TableHeight returns the y value of the table surface.
func (cs *CoordinateSystem) TableHeight() float64 {
	return cs.tableHeight
}

// ZOffset is the depth anchor curves are drawn around: the center of
// the z range. A graph value of zero lands a curve point here.
func (cs *CoordinateSystem) ZOffset() float64 {
	return (cs.zMin + cs.zMax) / 2
}

// Step returns the configured adjustment step.
func (cs *CoordinateSystem) Step() float64 {
	return cs.step
}

// Generation returns the range-change counter.
func (cs *CoordinateSystem) Generation() uint64 {
	return cs.generation
}

// AdjustXRange widens (positive delta) or narrows (negative delta) the
// x range symmetrically about its center, moving each edge by delta.
// Fails with ErrRangeInversion, keeping the previous range, when the
// result would span less than the minimum.
func (cs *CoordinateSystem) AdjustXRange(delta float64) error {
	min, max, err := adjust(cs.xMin, cs.xMax, delta, cs.minSpan)
	if err != nil {
		return err
	}
	cs.xMin, cs.xMax = min, max
	cs.generation++
	return nil
}

// AdjustZRange is AdjustXRange for the depth range.
func (cs *CoordinateSystem) AdjustZRange(delta float64) error {
	min, max, err := adjust(cs.zMin, cs.zMax, delta, cs.minSpan)
	if err != nil {
		return err
	}
	cs.zMin, cs.zMax = min, max
	cs.generation++
	return nil
}

func adjust(min, max, delta, minSpan float64) (float64, float64, error) {
	newMin := min - delta
	newMax := max + delta
	if newMax-newMin < minSpan {
		return 0, 0, fmt.Errorf("%w: [%f, %f] spans %.1fmm, minimum %.1fmm",
			ErrRangeInversion, newMin, newMax, newMax-newMin, minSpan)
	}
	return newMin, newMax, nil
}
