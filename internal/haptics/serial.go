package haptics

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// commandSender is the slice of the serial mux this driver needs. Satisfied
// by *serialmux.SerialMux.
type commandSender interface {
	SendCommand(command string) error
}

// SerialDriver drives the motor controller over a serial mux. It tracks the
// last applied levels and sends the narrowest command that covers a change:
// nothing when the levels are unchanged, M<idx> <level> when one motor
// moved, A <levels...> otherwise.
type SerialDriver struct {
	sender     commandSender
	motorCount int

	mu   sync.Mutex
	last []int
}

func NewSerialDriver(sender commandSender, motorCount int) (*SerialDriver, error) {
	if sender == nil {
		return nil, fmt.Errorf("serial driver requires a command sender")
	}
	if motorCount < 1 {
		return nil, fmt.Errorf("invalid motor count %d: must be at least 1", motorCount)
	}
	return &SerialDriver{
		sender:     sender,
		motorCount: motorCount,
		last:       make([]int, motorCount),
	}, nil
}

func (d *SerialDriver) MotorCount() int {
	return d.motorCount
}

func (d *SerialDriver) SetIntensity(motor, level int) error {
	if motor < 0 || motor >= d.motorCount {
		return errMotorRange(motor, d.motorCount)
	}
	level = clampLevel(level)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last[motor] == level {
		return nil
	}
	if err := d.sender.SendCommand(fmt.Sprintf("M%d %d", motor, level)); err != nil {
		return err
	}
	d.last[motor] = level
	return nil
}

func (d *SerialDriver) Apply(levels []int) error {
	if len(levels) != d.motorCount {
		return errLevelCount(len(levels), d.motorCount)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	changed := -1
	changes := 0
	for i, level := range levels {
		if clampLevel(level) != d.last[i] {
			changed = i
			changes++
		}
	}
	if changes == 0 {
		return nil
	}

	if changes == 1 {
		level := clampLevel(levels[changed])
		if err := d.sender.SendCommand(fmt.Sprintf("M%d %d", changed, level)); err != nil {
			return err
		}
		d.last[changed] = level
		return nil
	}

	parts := make([]string, 0, d.motorCount+1)
	parts = append(parts, "A")
	for _, level := range levels {
		parts = append(parts, strconv.Itoa(clampLevel(level)))
	}
	if err := d.sender.SendCommand(strings.Join(parts, " ")); err != nil {
		return err
	}
	for i, level := range levels {
		d.last[i] = clampLevel(level)
	}
	return nil
}

// StopAll always sends the stop command, even when the tracked levels are
// already zero. Stop is the safety path and must not trust local state.
func (d *SerialDriver) StopAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.sender.SendCommand("S"); err != nil {
		return err
	}
	for i := range d.last {
		d.last[i] = 0
	}
	return nil
}

func (d *SerialDriver) Close() error {
	return d.StopAll()
}
