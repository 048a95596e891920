package haptics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/haptable/haptable/internal/timeutil"
)

// AllMotors selects every motor when running a pattern.
const AllMotors = -1

// PatternStep is one segment of a vibration pattern: hold level for
// duration.
type PatternStep struct {
	Level    int           `json:"level"`
	Duration time.Duration `json:"duration"`
}

// Pattern is a named sequence of level steps. Patterns are used by the
// haptic test endpoints to verify motors are felt where expected before a
// session starts.
type Pattern struct {
	Name  string        `json:"name"`
	Steps []PatternStep `json:"steps"`
}

// TotalDuration returns the wall time the pattern takes to play.
func (p Pattern) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Steps {
		total += s.Duration
	}
	return total
}

var patterns = map[string]Pattern{
	"short_pulse": {
		Name: "short_pulse",
		Steps: []PatternStep{
			{Level: 100, Duration: 200 * time.Millisecond},
		},
	},
	"double_pulse": {
		Name: "double_pulse",
		Steps: []PatternStep{
			{Level: 100, Duration: 150 * time.Millisecond},
			{Level: 0, Duration: 100 * time.Millisecond},
			{Level: 100, Duration: 150 * time.Millisecond},
		},
	},
	"heartbeat": {
		Name: "heartbeat",
		Steps: []PatternStep{
			{Level: 100, Duration: 120 * time.Millisecond},
			{Level: 0, Duration: 80 * time.Millisecond},
			{Level: 70, Duration: 120 * time.Millisecond},
			{Level: 0, Duration: 600 * time.Millisecond},
			{Level: 100, Duration: 120 * time.Millisecond},
			{Level: 0, Duration: 80 * time.Millisecond},
			{Level: 70, Duration: 120 * time.Millisecond},
		},
	},
	"sos": {
		Name:  "sos",
		Steps: morse("... --- ..."),
	},
}

// morse expands a dot/dash string into pattern steps. A space separates
// letters.
func morse(code string) []PatternStep {
	const (
		dot       = 150 * time.Millisecond
		dash      = 3 * dot
		gap       = dot
		letterGap = 3 * dot
	)

	var steps []PatternStep
	for i, c := range code {
		switch c {
		case '.':
			steps = append(steps, PatternStep{Level: 100, Duration: dot})
		case '-':
			steps = append(steps, PatternStep{Level: 100, Duration: dash})
		case ' ':
			// replace the preceding symbol gap with a letter gap
			steps[len(steps)-1] = PatternStep{Level: 0, Duration: letterGap}
			continue
		}
		if i < len(code)-1 {
			steps = append(steps, PatternStep{Level: 0, Duration: gap})
		}
	}
	return steps
}

// PatternByName looks up a built-in pattern.
func PatternByName(name string) (Pattern, bool) {
	p, ok := patterns[name]
	return p, ok
}

// PatternNames returns the built-in pattern names sorted.
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunPattern plays a pattern on one motor, or on all motors when motor is
// AllMotors. The motors are always zeroed when the run ends, whether it
// completed, failed, or was cancelled.
func RunPattern(ctx context.Context, clock timeutil.Clock, driver Driver, p Pattern, motor int) error {
	if motor != AllMotors && (motor < 0 || motor >= driver.MotorCount()) {
		return errMotorRange(motor, driver.MotorCount())
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("pattern %q has no steps", p.Name)
	}

	defer func() {
		if motor == AllMotors {
			driver.StopAll()
		} else {
			driver.SetIntensity(motor, 0)
		}
	}()

	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if motor == AllMotors {
			levels := make([]int, driver.MotorCount())
			for i := range levels {
				levels[i] = step.Level
			}
			if err := driver.Apply(levels); err != nil {
				return err
			}
		} else {
			if err := driver.SetIntensity(motor, step.Level); err != nil {
				return err
			}
		}

		clock.Sleep(step.Duration)
	}

	return nil
}
