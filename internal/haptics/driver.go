// Package haptics turns curve collisions into vibration motor levels and
// drives the motors through a Driver. Two drivers exist: SerialDriver speaks
// the controller line protocol through a serial mux, SimDriver records level
// changes for development runs and tests without hardware.
package haptics

import "fmt"

// Driver is the actuation surface the feedback loop writes to. Levels are
// integer percent, 0 (off) to 100 (full). Implementations clamp out-of-range
// levels rather than rejecting them so a stale collision can never stall the
// loop.
type Driver interface {
	// MotorCount returns the number of motors the driver addresses.
	MotorCount() int

	// SetIntensity sets the level of a single motor.
	SetIntensity(motor, level int) error

	// Apply sets every motor level in one call. The slice length must equal
	// MotorCount.
	Apply(levels []int) error

	// StopAll forces every motor to zero.
	StopAll() error

	// Close stops the motors and releases the driver. The underlying
	// transport is owned by the caller and stays open.
	Close() error
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

func errMotorRange(motor, count int) error {
	return fmt.Errorf("motor index %d out of range [0,%d)", motor, count)
}

func errLevelCount(got, want int) error {
	return fmt.Errorf("got %d levels for %d motors", got, want)
}
