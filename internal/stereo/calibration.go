// Package stereo implements the geometric pipeline of the haptic table:
// chessboard calibration of a fixed two-camera rig, rectification, and
// per-frame fingertip triangulation into table coordinates.
//
// A Calibration is solved once offline (see cmd/calibrate), serialized
// to JSON, and loaded read-only at startup. All distances are in
// millimeters and all image coordinates in pixels.
package stereo

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// CalibrationVersion identifies the on-disk schema. Bump when fields
// change incompatibly.
const CalibrationVersion = 1

// Intrinsics holds one camera's pinhole parameters plus two radial
// distortion coefficients.
type Intrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
}

// Validate checks the intrinsics are usable.
func (in Intrinsics) Validate() error {
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fx=%f fy=%f", in.Fx, in.Fy)
	}
	for _, v := range []float64{in.Fx, in.Fy, in.Cx, in.Cy, in.K1, in.K2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("intrinsics contain non-finite values")
		}
	}
	return nil
}

// Calibration is the solved model for one stereo rig. R and T map
// left-camera coordinates into right-camera coordinates. R1/R2/P1/P2/Q
// are the derived rectification transforms; they are solved once and
// never recomputed at runtime.
//
// All matrices are row-major. Serialization round-trips bit-exactly:
// encoding/json writes float64 values in shortest-form notation, which
// parses back to the identical bits.
type Calibration struct {
	Version     int       `json:"version"`
	SolvedAt    time.Time `json:"solved_at"`
	Views       int       `json:"views"`
	ImageWidth  int       `json:"image_width"`
	ImageHeight int       `json:"image_height"`

	Left  Intrinsics `json:"left"`
	Right Intrinsics `json:"right"`

	R [9]float64 `json:"r"`
	T [3]float64 `json:"t"`
	E [9]float64 `json:"e"`
	F [9]float64 `json:"f"`

	R1 [9]float64  `json:"r1"`
	R2 [9]float64  `json:"r2"`
	P1 [12]float64 `json:"p1"`
	P2 [12]float64 `json:"p2"`
	Q  [16]float64 `json:"q"`

	ReprojectionRMS float64 `json:"reprojection_rms"`

	// TablePose maps rectified left-camera coordinates into the table
	// frame. Identity when the rig frame is the table frame.
	TablePose Pose `json:"table_pose"`
}

// Baseline returns the distance between the two optical centers in
// millimeters.
func (c *Calibration) Baseline() float64 {
	return norm3(c.T)
}

// Validate checks that the model is complete enough to triangulate
// with.
func (c *Calibration) Validate() error {
	if c == nil {
		return fmt.Errorf("calibration is nil")
	}
	if err := c.Left.Validate(); err != nil {
		return fmt.Errorf("left camera: %w", err)
	}
	if err := c.Right.Validate(); err != nil {
		return fmt.Errorf("right camera: %w", err)
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.ImageWidth, c.ImageHeight)
	}
	if c.Baseline() <= 0 {
		return fmt.Errorf("baseline must be positive, got %f", c.Baseline())
	}
	if c.Q == ([16]float64{}) {
		return fmt.Errorf("rectification not solved (Q is zero)")
	}
	if !c.TablePose.IsValid() {
		return fmt.Errorf("table pose is not a rigid transform")
	}
	return nil
}

// Save writes the calibration to path as indented JSON.
func (c *Calibration) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid calibration: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}

// LoadCalibration reads and validates a calibration file. A missing
// file is a fatal startup precondition for the service; the caller is
// expected to surface the error, not default around it.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file %s: %w", path, err)
	}
	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if c.Version != CalibrationVersion {
		return nil, fmt.Errorf("calibration file %s has version %d, want %d", path, c.Version, CalibrationVersion)
	}
	// Files written before the table pose existed carry a zero matrix.
	if c.TablePose.IsZero() {
		c.TablePose = IdentityPose()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("calibration file %s: %w", path, err)
	}
	return &c, nil
}

// LoadObservations reads a corner observation file produced by the
// capture tooling.
func LoadObservations(path string) (*ObservationSet, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read observations file %s: %w", path, err)
	}
	var s ObservationSet
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse observations file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("observations file %s: %w", path, err)
	}
	return &s, nil
}
