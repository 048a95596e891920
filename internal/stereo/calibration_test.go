package stereo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBoardObjectPoints(t *testing.T) {
	b := Board{Cols: 9, Rows: 6, SquareSize: 25}
	pts := b.ObjectPoints()
	if len(pts) != 54 {
		t.Fatalf("expected 54 corners, got %d", len(pts))
	}
	if pts[0] != (Point3{}) {
		t.Errorf("first corner = %v, want origin", pts[0])
	}
	// Row-major: second point advances along columns.
	if pts[1] != (Point3{X: 25}) {
		t.Errorf("second corner = %v, want (25,0,0)", pts[1])
	}
	last := pts[len(pts)-1]
	if last != (Point3{X: 200, Y: 125}) {
		t.Errorf("last corner = %v, want (200,125,0)", last)
	}
	for _, p := range pts {
		if p.Z != 0 {
			t.Fatalf("board corners must be planar, got z=%f", p.Z)
		}
	}
}

func TestBoardValidate(t *testing.T) {
	tests := []struct {
		name    string
		board   Board
		wantErr bool
	}{
		{"default board", Board{Cols: 9, Rows: 6, SquareSize: 25}, false},
		{"too few corners", Board{Cols: 1, Rows: 6, SquareSize: 25}, true},
		{"zero square size", Board{Cols: 9, Rows: 6}, true},
		{"negative square size", Board{Cols: 9, Rows: 6, SquareSize: -5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.board.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestObservationSetValidate(t *testing.T) {
	board := Board{Cols: 2, Rows: 2, SquareSize: 25}
	full := make([]Point2, 4)
	short := make([]Point2, 3)

	good := &ObservationSet{
		Board:       board,
		ImageWidth:  640,
		ImageHeight: 480,
		Views:       []ViewPair{{Left: full, Right: full}},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}

	bad := &ObservationSet{
		Board:       board,
		ImageWidth:  640,
		ImageHeight: 480,
		Views:       []ViewPair{{Left: full, Right: short}},
	}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for short corner list")
	}

	noSize := &ObservationSet{Board: board, Views: []ViewPair{{Left: full, Right: full}}}
	if err := noSize.Validate(); err == nil {
		t.Fatal("expected error for missing image size")
	}
}

func TestCalibrationValidate(t *testing.T) {
	base := func() *Calibration {
		return testRig(t)
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("test rig should validate: %v", err)
	}

	c := base()
	c.Left.Fx = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for zero focal length")
	}

	c = base()
	c.T = [3]float64{}
	if err := c.Validate(); err == nil {
		t.Error("expected error for zero baseline")
	}

	c = base()
	c.Q = [16]float64{}
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing rectification")
	}

	c = base()
	c.TablePose = Pose{}
	if err := c.Validate(); err == nil {
		t.Error("expected error for invalid table pose")
	}

	var nilCal *Calibration
	if err := nilCal.Validate(); err == nil {
		t.Error("expected error for nil calibration")
	}
}

func TestLoadCalibrationMissing(t *testing.T) {
	_, err := LoadCalibration("/nonexistent/rig.json")
	if err == nil {
		t.Fatal("expected error for missing calibration file")
	}
}

func TestLoadCalibrationVersionMismatch(t *testing.T) {
	cal := testRig(t)
	cal.Version = 99
	data, err := json.Marshal(cal)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCalibration(path); err == nil {
		t.Fatal("expected error for version mismatch")
	}
}

func TestLoadCalibrationDefaultsZeroPose(t *testing.T) {
	cal := testRig(t)
	cal.TablePose = Pose{}
	// Save refuses an invalid pose, so write the raw JSON directly the
	// way files predating the pose field look.
	data, err := json.Marshal(cal)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "legacy.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if loaded.TablePose != IdentityPose() {
		t.Fatalf("zero pose should load as identity, got %v", loaded.TablePose)
	}
}

func TestSaveRefusesInvalidCalibration(t *testing.T) {
	cal := testRig(t)
	cal.T = [3]float64{}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := cal.Save(path); err == nil {
		t.Fatal("expected Save to refuse a zero-baseline calibration")
	}
}

func TestBaseline(t *testing.T) {
	cal := testRig(t)
	if got := cal.Baseline(); got != 60 {
		t.Fatalf("Baseline() = %f, want 60", got)
	}
}
