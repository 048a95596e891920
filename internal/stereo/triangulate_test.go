package stereo

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testRig builds an ideal side-by-side rig: identical pinholes, no
// distortion, right camera 60mm along +x. With an identity rig rotation
// the rectification is the identity and every projection is easy to
// compute by hand.
func testRig(t *testing.T) *Calibration {
	t.Helper()
	cal := &Calibration{
		Version:         CalibrationVersion,
		Views:           20,
		ImageWidth:      640,
		ImageHeight:     480,
		Left:            Intrinsics{Fx: 800, Fy: 800, Cx: 320, Cy: 240},
		Right:           Intrinsics{Fx: 800, Fy: 800, Cx: 320, Cy: 240},
		R:               [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		T:               [3]float64{-60, 0, 0},
		ReprojectionRMS: 0.2,
		TablePose:       IdentityPose(),
	}
	cal.E = mul3(skew(cal.T), cal.R)
	cal.F = fundamentalFromEssential(cal.E, cal.Left, cal.Right)
	if err := Rectify(cal); err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	return cal
}

// projectRig projects a left-camera-frame point into both cameras of
// cal, honoring each camera's distortion.
func projectRig(cal *Calibration, p Point3) (Point2, Point2) {
	identity := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	left := projectPoint(p, cal.Left, identity, [3]float64{})
	right := projectPoint(p, cal.Right, cal.R, cal.T)
	return left, right
}

func TestRectifyIdentityRig(t *testing.T) {
	cal := testRig(t)
	identity := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	matricesClose(t, cal.R1, identity, 1e-12, "R1")
	matricesClose(t, cal.R2, identity, 1e-12, "R2")
	if cal.P1[0] != 800 || cal.P1[2] != 320 || cal.P1[6] != 240 {
		t.Fatalf("unexpected P1: %v", cal.P1)
	}
	// P2 carries the baseline term f*Tx.
	if math.Abs(cal.P2[3]-(-48000)) > 1e-9 {
		t.Fatalf("P2 baseline term = %f, want -48000", cal.P2[3])
	}
	// Q reprojects disparity 80 at (320,240) to z=600.
	if math.Abs(cal.Q[14]-1.0/60) > 1e-12 {
		t.Fatalf("Q[3][2] = %f, want %f", cal.Q[14], 1.0/60)
	}
}

func TestRectifyRejectsVerticalRig(t *testing.T) {
	cal := testRig(t)
	cal.T = [3]float64{0, -60, 0}
	if err := Rectify(cal); err == nil {
		t.Fatal("expected error for vertically stacked cameras")
	}
}

func TestTriangulateExact(t *testing.T) {
	cal := testRig(t)
	tri, err := NewTriangulator(cal, TriangulatorConfig{})
	if err != nil {
		t.Fatalf("NewTriangulator: %v", err)
	}

	points := []Point3{
		{X: 0, Y: 0, Z: 600},
		{X: 50, Y: -30, Z: 500},
		{X: -80, Y: 40, Z: 700},
		{X: 10, Y: 25, Z: 450},
	}
	for _, want := range points {
		left, right := projectRig(cal, want)
		got, err := tri.Triangulate(left, right)
		if err != nil {
			t.Fatalf("Triangulate(%v): %v", want, err)
		}
		if dist3(got, want) > 1e-6 {
			t.Errorf("Triangulate(%v) = %v, error %g mm", want, got, dist3(got, want))
		}
	}
}

func TestTriangulateMatchesDLT(t *testing.T) {
	cal := testRig(t)
	tri, err := NewTriangulator(cal, TriangulatorConfig{})
	if err != nil {
		t.Fatalf("NewTriangulator: %v", err)
	}
	points := []Point3{
		{X: 0, Y: 0, Z: 600},
		{X: -45, Y: 12, Z: 520},
		{X: 95, Y: -60, Z: 810},
	}
	for _, p := range points {
		left, right := projectRig(cal, p)
		a, err := tri.Triangulate(left, right)
		if err != nil {
			t.Fatalf("Triangulate: %v", err)
		}
		b, err := tri.TriangulateDLT(left, right)
		if err != nil {
			t.Fatalf("TriangulateDLT: %v", err)
		}
		if dist3(a, b) > 1e-6 {
			t.Errorf("disparity and DLT paths disagree at %v: %v vs %v", p, a, b)
		}
	}
}

func TestTriangulateWithDistortion(t *testing.T) {
	cal := testRig(t)
	cal.Left.K1, cal.Left.K2 = -0.10, 0.015
	cal.Right.K1, cal.Right.K2 = -0.08, 0.010
	tri, err := NewTriangulator(cal, TriangulatorConfig{})
	if err != nil {
		t.Fatalf("NewTriangulator: %v", err)
	}
	want := Point3{X: 70, Y: -40, Z: 560}
	left, right := projectRig(cal, want)
	got, err := tri.Triangulate(left, right)
	if err != nil {
		t.Fatalf("Triangulate: %v", err)
	}
	if dist3(got, want) > 1e-5 {
		t.Errorf("distorted triangulation error %g mm (got %v)", dist3(got, want), got)
	}
}

func TestTriangulateDegenerateGeometry(t *testing.T) {
	cal := testRig(t)
	tri, err := NewTriangulator(cal, TriangulatorConfig{})
	if err != nil {
		t.Fatalf("NewTriangulator: %v", err)
	}

	// Identical pixels: zero disparity, parallel rays.
	_, err = tri.Triangulate(Point2{X: 320, Y: 240}, Point2{X: 320, Y: 240})
	if !IsDegenerate(err) {
		t.Fatalf("expected degenerate geometry, got %v", err)
	}

	// Just under the 0.5px default epsilon.
	_, err = tri.Triangulate(Point2{X: 320.3, Y: 240}, Point2{X: 320, Y: 240})
	if !IsDegenerate(err) {
		t.Fatalf("expected degenerate geometry at 0.3px disparity, got %v", err)
	}

	// At 0.6px the fix is far but not degenerate.
	if _, err := tri.Triangulate(Point2{X: 320.6, Y: 240}, Point2{X: 320, Y: 240}); err != nil {
		t.Fatalf("0.6px disparity should triangulate, got %v", err)
	}
}

func TestTriangulateAppliesTablePose(t *testing.T) {
	cal := testRig(t)
	// Table frame: camera frame shifted so the surface sits at y=500.
	pose := IdentityPose()
	pose[7] = 120
	cal.TablePose = pose

	tri, err := NewTriangulator(cal, TriangulatorConfig{})
	if err != nil {
		t.Fatalf("NewTriangulator: %v", err)
	}
	camPoint := Point3{X: 0, Y: 380, Z: 600}
	left, right := projectRig(cal, camPoint)
	got, err := tri.Triangulate(left, right)
	if err != nil {
		t.Fatalf("Triangulate: %v", err)
	}
	if math.Abs(got.Y-500) > 1e-6 {
		t.Errorf("table pose not applied: y = %f, want 500", got.Y)
	}
}

func TestSerializeRoundTripTriangulatesIdentically(t *testing.T) {
	cal := testRig(t)
	cal.Left.K1 = -0.07
	cal.Right.K2 = 0.004

	path := filepath.Join(t.TempDir(), "rig.json")
	if err := cal.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if diff := cmp.Diff(cal, loaded); diff != "" {
		t.Fatalf("calibration changed across serialization (-want +got):\n%s", diff)
	}

	a, err := NewTriangulator(cal, TriangulatorConfig{})
	if err != nil {
		t.Fatalf("NewTriangulator: %v", err)
	}
	b, err := NewTriangulator(loaded, TriangulatorConfig{})
	if err != nil {
		t.Fatalf("NewTriangulator(loaded): %v", err)
	}

	pairs := [][2]Point2{
		{{X: 320, Y: 240}, {X: 240, Y: 240}},
		{{X: 410.25, Y: 198.5}, {X: 333.125, Y: 198.5}},
		{{X: 123.456, Y: 301.789}, {X: 60.5, Y: 301.789}},
	}
	for _, pair := range pairs {
		p1, err1 := a.Triangulate(pair[0], pair[1])
		p2, err2 := b.Triangulate(pair[0], pair[1])
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("round-trip changed error behavior: %v vs %v", err1, err2)
		}
		if err1 != nil {
			continue
		}
		if p1 != p2 {
			t.Errorf("round-trip changed triangulation: %v vs %v", p1, p2)
		}
	}
}

func TestUndistortNormalizeInvertsProjection(t *testing.T) {
	in := Intrinsics{Fx: 800, Fy: 790, Cx: 321, Cy: 243, K1: -0.12, K2: 0.02}
	identity := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	p := Point3{X: 55, Y: -80, Z: 470}
	px := projectPoint(p, in, identity, [3]float64{})
	x, y := undistortNormalize(px, in)
	if math.Abs(x-p.X/p.Z) > 1e-9 || math.Abs(y-p.Y/p.Z) > 1e-9 {
		t.Fatalf("undistort: got (%g, %g), want (%g, %g)", x, y, p.X/p.Z, p.Y/p.Z)
	}
}

func dist3(a, b Point3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
