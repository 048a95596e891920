package scene

import (
	"fmt"
	"testing"

	"github.com/haptable/haptable/internal/stereo"
)

func TestCurveSetAdd(t *testing.T) {
	set := NewCurveSet(CurveSetConfig{})

	c1 := addCurve(t, set, "one", flat)
	c2 := addCurve(t, set, "two", flat)
	if c1.ID() != 1 || c2.ID() != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", c1.ID(), c2.ID())
	}
	if c1.Color() != WheelColor(0) {
		t.Errorf("first curve color = %v, want %v", c1.Color(), WheelColor(0))
	}
	if c2.Color() != WheelColor(1) {
		t.Errorf("second curve color = %v, want %v", c2.Color(), WheelColor(1))
	}

	red := Color{R: 255}
	c3, err := set.Add("three", "y = 0", FunctionFunc(flat), &red)
	if err != nil {
		t.Fatalf("Add with explicit color failed: %v", err)
	}
	if c3.Color() != red {
		t.Errorf("explicit color = %v, want %v", c3.Color(), red)
	}

	if _, err := set.Add("nil", "y = ?", nil, nil); err == nil {
		t.Error("Add with nil function succeeded, want error")
	}
}

func TestCurveSetCapacity(t *testing.T) {
	set := NewCurveSet(CurveSetConfig{})
	for i := 0; i < MaxCurves; i++ {
		addCurve(t, set, fmt.Sprintf("c%d", i), flat)
	}
	if set.Len() != MaxCurves {
		t.Fatalf("Len() = %d, want %d", set.Len(), MaxCurves)
	}
	if _, err := set.Add("overflow", "y = 0", FunctionFunc(flat), nil); err == nil {
		t.Error("Add beyond capacity succeeded, want error")
	}
}

func TestCurveSetRemove(t *testing.T) {
	set := NewCurveSet(CurveSetConfig{})
	addCurve(t, set, "one", flat)
	addCurve(t, set, "two", flat)
	addCurve(t, set, "three", flat)

	if !set.Remove(2) {
		t.Fatal("Remove(2) = false, want true")
	}
	if set.Remove(2) {
		t.Error("second Remove(2) = true, want false")
	}
	if _, ok := set.Get(2); ok {
		t.Error("Get(2) found a removed curve")
	}

	curves := set.Curves()
	if len(curves) != 2 || curves[0].ID() != 1 || curves[1].ID() != 3 {
		ids := make([]int, len(curves))
		for i, c := range curves {
			ids[i] = c.ID()
		}
		t.Errorf("remaining ids = %v, want [1 3]", ids)
	}

	// Ids are never recycled.
	c := addCurve(t, set, "four", flat)
	if c.ID() != 4 {
		t.Errorf("new curve id = %d, want 4", c.ID())
	}
}

func TestCurveSetClear(t *testing.T) {
	set := NewCurveSet(CurveSetConfig{})
	addCurve(t, set, "one", flat)
	addCurve(t, set, "two", flat)

	set.Clear()
	if set.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", set.Len())
	}

	c := addCurve(t, set, "three", flat)
	if c.ID() != 3 {
		t.Errorf("id after Clear = %d, want 3", c.ID())
	}
}

func TestCurveSetToggleVisibility(t *testing.T) {
	set := NewCurveSet(CurveSetConfig{})
	addCurve(t, set, "one", flat)
	addCurve(t, set, "two", flat)
	set.Remove(1)

	// Display position 1 is now the curve with id 2.
	if !set.ToggleVisibility(1) {
		t.Fatal("ToggleVisibility(1) = false, want true")
	}
	c, _ := set.Get(2)
	if c.Visible() {
		t.Error("curve still visible after toggle")
	}
	set.ToggleVisibility(1)
	if !c.Visible() {
		t.Error("curve still hidden after second toggle")
	}

	if set.ToggleVisibility(0) {
		t.Error("ToggleVisibility(0) = true, want false")
	}
	if set.ToggleVisibility(2) {
		t.Error("ToggleVisibility past end = true, want false")
	}
}

func TestCheckCollision(t *testing.T) {
	cs := mustCS(t, CoordinateSystemConfig{
		XMin: -300, XMax: 300, ZMin: 100, ZMax: 700, TableHeight: 500,
	})
	set := NewCurveSet(CurveSetConfig{SampleCount: 100, DefaultThickness: 30})
	addCurve(t, set, "flat", flat) // z = 400
	addCurve(t, set, "deep", func(x float64) (float64, error) { return 200, nil }) // z = 600

	onFlat := stereo.Point3{X: -300, Y: 500, Z: 400}
	hits := set.CheckCollision(cs, onFlat)
	if len(hits) != 1 {
		t.Fatalf("len(hits) = %d, want 1", len(hits))
	}
	if hits[0].Curve.ID() != 1 {
		t.Errorf("hit curve id = %d, want 1", hits[0].Curve.ID())
	}
	if hits[0].Distance != 0 {
		t.Errorf("hit distance = %f, want 0", hits[0].Distance)
	}

	far := stereo.Point3{X: -300, Y: 500, Z: 500}
	if hits := set.CheckCollision(cs, far); len(hits) != 0 {
		t.Errorf("len(hits) between curves = %d, want 0", len(hits))
	}
}

func TestCheckCollisionOrdersByDistance(t *testing.T) {
	cs := mustCS(t, CoordinateSystemConfig{
		XMin: -300, XMax: 300, ZMin: 100, ZMax: 700, TableHeight: 500,
	})
	set := NewCurveSet(CurveSetConfig{SampleCount: 100, DefaultThickness: 30})
	addCurve(t, set, "near", func(x float64) (float64, error) { return 10, nil }) // z = 410
	addCurve(t, set, "exact", flat) // z = 400

	p := stereo.Point3{X: -300, Y: 500, Z: 400}
	hits := set.CheckCollision(cs, p)
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].Curve.Name() != "exact" || hits[1].Curve.Name() != "near" {
		t.Errorf("hit order = %q, %q, want exact, near",
			hits[0].Curve.Name(), hits[1].Curve.Name())
	}
}

func TestCheckCollisionTiesKeepInsertionOrder(t *testing.T) {
	cs := DefaultCoordinateSystem()
	set := NewCurveSet(CurveSetConfig{SampleCount: 100, DefaultThickness: 30})
	addCurve(t, set, "first", flat)
	addCurve(t, set, "second", flat)

	p := stereo.Point3{X: DefaultXMin, Y: DefaultTableHeight, Z: 400}
	hits := set.CheckCollision(cs, p)
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].Curve.Name() != "first" || hits[1].Curve.Name() != "second" {
		t.Errorf("tied hit order = %q, %q, want first, second",
			hits[0].Curve.Name(), hits[1].Curve.Name())
	}
}

func TestCheckCollisionSkipsHiddenCurves(t *testing.T) {
	cs := DefaultCoordinateSystem()
	set := NewCurveSet(CurveSetConfig{SampleCount: 100, DefaultThickness: 30})
	c := addCurve(t, set, "flat", flat)

	p := stereo.Point3{X: DefaultXMin, Y: DefaultTableHeight, Z: 400}
	if hits := set.CheckCollision(cs, p); len(hits) != 1 {
		t.Fatalf("len(hits) = %d, want 1", len(hits))
	}

	c.SetVisible(false)
	if hits := set.CheckCollision(cs, p); len(hits) != 0 {
		t.Errorf("len(hits) for hidden curve = %d, want 0", len(hits))
	}
}

func TestCheckCollisionIsPure(t *testing.T) {
	cs := DefaultCoordinateSystem()
	set := NewCurveSet(CurveSetConfig{SampleCount: 100, DefaultThickness: 30})
	addCurve(t, set, "flat", flat)
	addCurve(t, set, "parabola", parabola)

	p := stereo.Point3{X: DefaultXMin, Y: DefaultTableHeight, Z: 400}
	first := set.CheckCollision(cs, p)
	second := set.CheckCollision(cs, p)

	if len(first) != len(second) {
		t.Fatalf("repeated call lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Curve != second[i].Curve || first[i].Distance != second[i].Distance {
			t.Errorf("hit %d differs between calls: %+v vs %+v", i, first[i], second[i])
		}
	}
	if set.Len() != 2 {
		t.Errorf("Len() changed to %d after collision checks", set.Len())
	}
	for _, c := range set.Curves() {
		if !c.Visible() {
			t.Errorf("curve %d visibility changed by collision check", c.ID())
		}
	}
}
