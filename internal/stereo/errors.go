package stereo

import (
	"errors"
	"fmt"
)

// Reasons a calibration solve can fail.
const (
	ReasonInsufficientObservations = "insufficient_observations"
	ReasonSolveDivergence          = "solve_divergence"
)

// ReasonDegenerateGeometry marks a triangulation whose rays are too
// close to parallel to intersect reliably.
const ReasonDegenerateGeometry = "degenerate_geometry"

// CalibrationError reports a failed calibration solve. Reason is one of
// the Reason* constants above. Calibration failures are startup-fatal:
// the service refuses to run without a usable calibration.
type CalibrationError struct {
	Reason string
	Detail string
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration: %s: %s", e.Reason, e.Detail)
}

func insufficientObservations(format string, args ...interface{}) *CalibrationError {
	return &CalibrationError{Reason: ReasonInsufficientObservations, Detail: fmt.Sprintf(format, args...)}
}

func solveDivergence(format string, args ...interface{}) *CalibrationError {
	return &CalibrationError{Reason: ReasonSolveDivergence, Detail: fmt.Sprintf(format, args...)}
}

// TriangulationError reports a failed triangulation for one frame. It is
// recoverable: the caller treats it as "no fix this cycle".
type TriangulationError struct {
	Reason    string
	Disparity float64
}

func (e *TriangulationError) Error() string {
	return fmt.Sprintf("triangulation: %s: disparity %.4fpx", e.Reason, e.Disparity)
}

// IsDegenerate reports whether err is a TriangulationError caused by
// near-parallel rays.
func IsDegenerate(err error) bool {
	var te *TriangulationError
	return errors.As(err, &te) && te.Reason == ReasonDegenerateGeometry
}

// IsCalibrationError reports whether err is any CalibrationError and, if
// so, returns its reason.
func IsCalibrationError(err error) (string, bool) {
	var ce *CalibrationError
	if errors.As(err, &ce) {
		return ce.Reason, true
	}
	return "", false
}
