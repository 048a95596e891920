package haptics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haptable/haptable/internal/timeutil"
)

// TestPatternByName tests the built-in pattern registry
func TestPatternByName(t *testing.T) {
	for _, name := range []string{"short_pulse", "double_pulse", "heartbeat", "sos"} {
		p, ok := PatternByName(name)
		if !ok {
			t.Errorf("Pattern %q not found", name)
			continue
		}
		if p.Name != name {
			t.Errorf("Pattern name = %q, want %q", p.Name, name)
		}
		if len(p.Steps) == 0 {
			t.Errorf("Pattern %q has no steps", name)
		}
		if p.TotalDuration() <= 0 {
			t.Errorf("Pattern %q has non-positive duration", name)
		}
	}

	if _, ok := PatternByName("thunderstorm"); ok {
		t.Error("Unknown pattern should not resolve")
	}
}

// TestPatternNamesSorted tests the listing used by the API
func TestPatternNamesSorted(t *testing.T) {
	names := PatternNames()
	if len(names) != 4 {
		t.Fatalf("Expected 4 patterns, got %d: %v", len(names), names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("Names not sorted: %v", names)
		}
	}
}

// TestSOSCadence tests the morse expansion of the SOS pattern
func TestSOSCadence(t *testing.T) {
	p, _ := PatternByName("sos")

	// 9 symbols on, 8 gaps between them
	if len(p.Steps) != 17 {
		t.Fatalf("Expected 17 steps, got %d", len(p.Steps))
	}

	dot := 150 * time.Millisecond
	if p.Steps[0].Level != 100 || p.Steps[0].Duration != dot {
		t.Errorf("First step = %+v, want dot at full level", p.Steps[0])
	}
	// Letter boundaries carry the longer gap
	if p.Steps[5].Level != 0 || p.Steps[5].Duration != 3*dot {
		t.Errorf("Step 5 = %+v, want letter gap", p.Steps[5])
	}
	// O is dashes
	if p.Steps[6].Level != 100 || p.Steps[6].Duration != 3*dot {
		t.Errorf("Step 6 = %+v, want dash", p.Steps[6])
	}
	// Pattern ends on a symbol, not a gap
	last := p.Steps[len(p.Steps)-1]
	if last.Level != 100 || last.Duration != dot {
		t.Errorf("Last step = %+v, want dot", last)
	}
}

// TestRunPatternAllMotors tests a full-pattern run across every motor
func TestRunPatternAllMotors(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	driver := NewSimDriver(2)

	p, _ := PatternByName("double_pulse")
	if err := RunPattern(context.Background(), clock, driver, p, AllMotors); err != nil {
		t.Fatalf("RunPattern returned error: %v", err)
	}

	history := driver.History()
	// 3 steps plus the final stop
	if len(history) != 4 {
		t.Fatalf("Expected 4 state changes, got %d: %v", len(history), history)
	}
	wants := [][]int{{100, 100}, {0, 0}, {100, 100}, {0, 0}}
	for i, want := range wants {
		if history[i][0] != want[0] || history[i][1] != want[1] {
			t.Errorf("history[%d] = %v, want %v", i, history[i], want)
		}
	}

	sleeps := clock.Sleeps()
	wantSleeps := []time.Duration{150 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}
	if len(sleeps) != len(wantSleeps) {
		t.Fatalf("Expected %d sleeps, got %d", len(wantSleeps), len(sleeps))
	}
	for i := range wantSleeps {
		if sleeps[i] != wantSleeps[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], wantSleeps[i])
		}
	}

	if driver.StopCalls() != 1 {
		t.Errorf("StopCalls = %d, want 1", driver.StopCalls())
	}
}

// TestRunPatternSingleMotor tests that only the requested motor moves
func TestRunPatternSingleMotor(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	driver := NewSimDriver(3)

	p, _ := PatternByName("short_pulse")
	if err := RunPattern(context.Background(), clock, driver, p, 1); err != nil {
		t.Fatalf("RunPattern returned error: %v", err)
	}

	history := driver.History()
	// pulse on, then zeroed at the end of the run
	if len(history) != 2 {
		t.Fatalf("Expected 2 state changes, got %d: %v", len(history), history)
	}
	if history[0][0] != 0 || history[0][1] != 100 || history[0][2] != 0 {
		t.Errorf("history[0] = %v, want only motor 1 at 100", history[0])
	}
	if history[1][1] != 0 {
		t.Errorf("Motor 1 not zeroed at end of run: %v", history[1])
	}
	if driver.StopCalls() != 0 {
		t.Error("Single-motor run should not stop all motors")
	}
}

// TestRunPatternCancelled tests that cancellation zeroes the motors
func TestRunPatternCancelled(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	driver := NewSimDriver(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := PatternByName("sos")
	err := RunPattern(ctx, clock, driver, p, AllMotors)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	if driver.StopCalls() != 1 {
		t.Errorf("Cancelled run should stop motors, StopCalls = %d", driver.StopCalls())
	}
	if len(clock.Sleeps()) != 0 {
		t.Error("Cancelled run should not sleep")
	}
}

// TestRunPatternValidation tests argument checking
func TestRunPatternValidation(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	driver := NewSimDriver(2)

	p, _ := PatternByName("short_pulse")
	if err := RunPattern(context.Background(), clock, driver, p, 5); err == nil {
		t.Error("Expected error for out-of-range motor")
	}

	empty := Pattern{Name: "empty"}
	if err := RunPattern(context.Background(), clock, driver, empty, AllMotors); err == nil {
		t.Error("Expected error for empty pattern")
	}
}
