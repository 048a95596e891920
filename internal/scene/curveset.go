package scene

import (
	"fmt"
	"sort"

	"github.com/haptable/haptable/internal/stereo"
)

// MaxCurves caps the set at the nine digit keys an operator can reach.
const MaxCurves = 9

// CurveSetConfig tunes a new set. Zero values take the package
// defaults.
type CurveSetConfig struct {
	SampleCount      int
	DefaultThickness float64
}

// CurveSet owns the active curves in insertion order. Ids start at 1
// and are never recycled within a session, so an operator command that
// races a removal can only miss, not hit the wrong curve.
//
// Like the rest of the scene types it is not safe for concurrent use;
// the control loop owns it.
type CurveSet struct {
	nextID           int
	curves           []*Curve
	byID             map[int]*Curve
	sampleCount      int
	defaultThickness float64
}

// NewCurveSet returns an empty set.
func NewCurveSet(cfg CurveSetConfig) *CurveSet {
	sampleCount := cfg.SampleCount
	if sampleCount < 2 {
		sampleCount = DefaultSampleCount
	}
	thickness := cfg.DefaultThickness
	if thickness <= 0 {
		thickness = DefaultThickness
	}
	return &CurveSet{
		nextID:           1,
		byID:             make(map[int]*Curve),
		sampleCount:      sampleCount,
		defaultThickness: thickness,
	}
}

// Add appends a visible curve for fn. A nil color assigns the next
// wheel color by id.
func (s *CurveSet) Add(name, display string, fn Function, color *Color) (*Curve, error) {
	if fn == nil {
		return nil, fmt.Errorf("curve %q has no function", name)
	}
	if len(s.curves) >= MaxCurves {
		return nil, fmt.Errorf("curve set full: %d curves", MaxCurves)
	}
	id := s.nextID
	s.nextID++

	c := &Curve{
		id:          id,
		name:        name,
		display:     display,
		fn:          fn,
		thickness:   s.defaultThickness,
		visible:     true,
		sampleCount: s.sampleCount,
		dirty:       true,
	}
	if color != nil {
		c.color = *color
	} else {
		c.color = WheelColor(id - 1)
	}
	s.curves = append(s.curves, c)
	s.byID[id] = c
	return c, nil
}

// Remove drops the curve with the given id. It reports whether a curve
// was removed.
func (s *CurveSet) Remove(id int) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, c := range s.curves {
		if c.id == id {
			s.curves = append(s.curves[:i], s.curves[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every curve. Ids keep counting up.
func (s *CurveSet) Clear() {
	s.curves = nil
	s.byID = make(map[int]*Curve)
}

// ToggleVisibility flips the curve at the 1-based display position
// (insertion order, what the operator sees in `list`). It reports
// whether the position named a curve.
func (s *CurveSet) ToggleVisibility(displayIndex int) bool {
	if displayIndex < 1 || displayIndex > len(s.curves) {
		return false
	}
	c := s.curves[displayIndex-1]
	c.visible = !c.visible
	return true
}

// Get returns the curve with the given id.
func (s *CurveSet) Get(id int) (*Curve, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Curves returns the curves in insertion order. Callers must not
// mutate the slice.
func (s *CurveSet) Curves() []*Curve { return s.curves }

// Len returns the number of curves in the set.
func (s *CurveSet) Len() int { return len(s.curves) }

// Collision is one curve the fingertip is inside the band of.
type Collision struct {
	Curve    *Curve
	Distance float64
}

// CheckCollision returns every visible curve whose band contains p,
// nearest first. Ties keep insertion order. It mutates nothing except
// stale sample caches.
func (s *CurveSet) CheckCollision(cs *CoordinateSystem, p stereo.Point3) []Collision {
	var hits []Collision
	for _, c := range s.curves {
		if !c.visible {
			continue
		}
		d, ok := c.DistanceTo(cs, p)
		if !ok || d > c.thickness/2 {
			continue
		}
		hits = append(hits, Collision{Curve: c, Distance: d})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	return hits
}
