package haptics

import "sync"

// SimDriver is an in-memory Driver for development runs and tests. It
// records every state change so callers can assert on the exact level
// sequence a run produced.
type SimDriver struct {
	motorCount int

	mu        sync.Mutex
	levels    []int
	history   [][]int
	stopCalls int
	closed    bool
}

func NewSimDriver(motorCount int) *SimDriver {
	if motorCount < 1 {
		motorCount = 1
	}
	return &SimDriver{
		motorCount: motorCount,
		levels:     make([]int, motorCount),
	}
}

func (d *SimDriver) MotorCount() int {
	return d.motorCount
}

func (d *SimDriver) SetIntensity(motor, level int) error {
	if motor < 0 || motor >= d.motorCount {
		return errMotorRange(motor, d.motorCount)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels[motor] = clampLevel(level)
	d.record()
	debugf("sim motor %d -> %d", motor, d.levels[motor])
	return nil
}

func (d *SimDriver) Apply(levels []int) error {
	if len(levels) != d.motorCount {
		return errLevelCount(len(levels), d.motorCount)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, level := range levels {
		d.levels[i] = clampLevel(level)
	}
	d.record()
	debugf("sim levels -> %v", d.levels)
	return nil
}

func (d *SimDriver) StopAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.levels {
		d.levels[i] = 0
	}
	d.stopCalls++
	d.record()
	debugf("sim stop all")
	return nil
}

func (d *SimDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.levels {
		d.levels[i] = 0
	}
	d.closed = true
	return nil
}

// record snapshots the current levels into history. Callers hold d.mu.
func (d *SimDriver) record() {
	snapshot := make([]int, len(d.levels))
	copy(snapshot, d.levels)
	d.history = append(d.history, snapshot)
}

// Levels returns a copy of the current motor levels.
func (d *SimDriver) Levels() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.levels))
	copy(out, d.levels)
	return out
}

// History returns every level state the driver has been through, one entry
// per mutating call.
func (d *SimDriver) History() [][]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]int, len(d.history))
	for i, h := range d.history {
		out[i] = make([]int, len(h))
		copy(out[i], h)
	}
	return out
}

// StopCalls returns how many times StopAll ran.
func (d *SimDriver) StopCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopCalls
}

// Closed reports whether Close was called.
func (d *SimDriver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
