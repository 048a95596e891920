// Package loop runs the control cycle that turns hand observations into
// motor levels: acquire a landmark frame pair, triangulate the index
// fingertip into table coordinates, test it against the visible curves, and
// drive the vibration motors. One goroutine owns the cycle; the coordinate
// system and curve set are mutated only through the mutation mailbox drained
// at the start of each cycle, so no lock covers the hot path.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/haptable/haptable/internal/haptics"
	"github.com/haptable/haptable/internal/scene"
	"github.com/haptable/haptable/internal/stereo"
	"github.com/haptable/haptable/internal/timeutil"
	"github.com/haptable/haptable/internal/vision"
)

const (
	// DefaultRateHz is the target cycle rate. A slow landmark source lowers
	// the effective rate; cycles never overlap.
	DefaultRateHz = 20.0

	// DefaultFrameTimeout bounds the wait for a landmark frame each cycle.
	// A timeout is treated as no hand, not an error.
	DefaultFrameTimeout = 250 * time.Millisecond

	// DefaultMutationQueueDepth is the mailbox capacity for pending scene
	// mutations.
	DefaultMutationQueueDepth = 64
)

// ErrLoopBusy is returned by Enqueue when the mutation mailbox is full. The
// caller retries or reports; the loop never blocks on its mailbox.
var ErrLoopBusy = errors.New("control loop mutation queue full")

// Mutation is a command applied to the loop-owned scene state between
// cycles. Returning an error rejects the mutation; the scene is expected to
// be unchanged in that case.
type Mutation func(*scene.CoordinateSystem, *scene.CurveSet) error

// CycleSink receives finished cycle records. Sinks are called synchronously
// at the end of every cycle and must not block.
type CycleSink interface {
	RecordCycle(Cycle)
}

// Config tunes a ControlLoop. Zero values select the defaults.
type Config struct {
	RateHz             float64
	FrameTimeout       time.Duration
	MinConfidence      float64
	WristMatchFraction float64
	MutationQueueDepth int

	// Clock defaults to the real clock. Tests inject a mock.
	Clock timeutil.Clock

	// Sinks receive every finished cycle (monitor ring, session recorder).
	Sinks []CycleSink
}

// ControlLoop owns the per-cycle pipeline and the scene state.
type ControlLoop struct {
	source vision.LandmarkSource
	tri    *stereo.Triangulator
	coords *scene.CoordinateSystem
	curves *scene.CurveSet
	driver haptics.Driver

	period             time.Duration
	rateHz             float64
	frameTimeout       time.Duration
	minConfidence      float64
	wristMatchFraction float64

	clock     timeutil.Clock
	mutations chan Mutation
	sinks     []CycleSink

	seq uint64

	mu       sync.Mutex
	running  bool
	snapshot Snapshot
}

// New wires a control loop over its collaborators. The coordinate system
// and curve set become loop-owned: after New, mutate them only through
// Enqueue.
func New(cfg Config, source vision.LandmarkSource, tri *stereo.Triangulator, coords *scene.CoordinateSystem, curves *scene.CurveSet, driver haptics.Driver) (*ControlLoop, error) {
	if source == nil {
		return nil, fmt.Errorf("control loop requires a landmark source")
	}
	if tri == nil {
		return nil, fmt.Errorf("control loop requires a triangulator")
	}
	if coords == nil || curves == nil {
		return nil, fmt.Errorf("control loop requires scene state")
	}
	if driver == nil {
		return nil, fmt.Errorf("control loop requires an actuator driver")
	}

	if cfg.RateHz <= 0 {
		cfg.RateHz = DefaultRateHz
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	if cfg.MinConfidence < 0 {
		cfg.MinConfidence = 0
	}
	if cfg.WristMatchFraction <= 0 {
		cfg.WristMatchFraction = vision.DefaultWristMatchFraction
	}
	if cfg.MutationQueueDepth <= 0 {
		cfg.MutationQueueDepth = DefaultMutationQueueDepth
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	l := &ControlLoop{
		source:             source,
		tri:                tri,
		coords:             coords,
		curves:             curves,
		driver:             driver,
		period:             time.Duration(float64(time.Second) / cfg.RateHz),
		rateHz:             cfg.RateHz,
		frameTimeout:       cfg.FrameTimeout,
		minConfidence:      cfg.MinConfidence,
		wristMatchFraction: cfg.WristMatchFraction,
		clock:              cfg.Clock,
		mutations:          make(chan Mutation, cfg.MutationQueueDepth),
		sinks:              cfg.Sinks,
	}
	l.publish(Cycle{State: StateWaitingForFrame})
	return l, nil
}

// Enqueue queues a mutation for the next cycle boundary. It never blocks;
// a full mailbox returns ErrLoopBusy and the mutation is dropped.
func (l *ControlLoop) Enqueue(m Mutation) error {
	select {
	case l.mutations <- m:
		return nil
	default:
		return ErrLoopBusy
	}
}

// EnqueueWait queues a mutation and waits for the loop to apply it,
// returning the mutation's own error. The wait is bounded by ctx; callers
// pass a request-scoped context since a stopped loop never drains its
// mailbox.
func (l *ControlLoop) EnqueueWait(ctx context.Context, m Mutation) error {
	done := make(chan error, 1)
	wrapped := func(coords *scene.CoordinateSystem, curves *scene.CurveSet) error {
		err := m(coords, curves)
		done <- err
		return err
	}
	if err := l.Enqueue(wrapped); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives cycles at the configured rate until the context is cancelled.
// On return the actuators have been commanded to zero.
func (l *ControlLoop) Run(ctx context.Context) error {
	l.setRunning(true)
	defer l.setRunning(false)

	// Shutdown always zeroes the motors, whatever state the last cycle
	// left them in.
	defer func() {
		if err := l.driver.StopAll(); err != nil {
			log.Printf("[Loop] stop on shutdown: %v", err)
		}
	}()

	log.Printf("[Loop] running at %.1f Hz (frame timeout %s)", l.rateHz, l.frameTimeout)

	ticker := l.clock.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			l.runCycle(ctx)
		}
	}
}

// runCycle executes one full pipeline pass and returns the cycle record.
func (l *ControlLoop) runCycle(ctx context.Context) Cycle {
	start := l.clock.Now()
	l.seq++
	cycle := Cycle{Seq: l.seq, Start: start, State: StateWaitingForFrame}

	l.drainMutations()

	frameCtx, cancel := context.WithTimeout(ctx, l.frameTimeout)
	obs, err := l.source.Next(frameCtx)
	cancel()
	if err != nil {
		debugf("cycle %d: no frame: %v", l.seq, err)
		l.degrade(&cycle, StateNoHand)
		return l.finish(cycle, start)
	}
	cycle.FrameSeq = obs.Seq

	left := vision.FilterConfidence(obs.Left, l.minConfidence)
	right := vision.FilterConfidence(obs.Right, l.minConfidence)
	if len(left) == 0 || len(right) == 0 {
		debugf("cycle %d: hand missing in a view (left=%d right=%d)", l.seq, len(left), len(right))
		l.degrade(&cycle, StateNoHand)
		return l.finish(cycle, start)
	}

	lh, rh, ok := vision.MatchHands(left, right, obs.Height, l.wristMatchFraction)
	if !ok {
		debugf("cycle %d: views did not match a hand pair", l.seq)
		l.degrade(&cycle, StateNoHand)
		return l.finish(cycle, start)
	}
	cycle.State = StateHandDetected

	p, err := l.tri.Triangulate(lh.Fingertip(), rh.Fingertip())
	if err != nil {
		if stereo.IsDegenerate(err) {
			debugf("cycle %d: degenerate geometry, no fix", l.seq)
		} else {
			log.Printf("[Loop] triangulation: %v", err)
		}
		l.degrade(&cycle, StateNoContact)
		return l.finish(cycle, start)
	}
	cycle.Fingertip = &p

	// y increases downward; smaller y than the table surface means the
	// fingertip is hovering above it.
	if p.Y < l.coords.TableHeight() {
		debugf("cycle %d: hovering at y=%.1f (table %.1f)", l.seq, p.Y, l.coords.TableHeight())
		l.degrade(&cycle, StateNoContact)
		return l.finish(cycle, start)
	}
	cycle.State = StateTableContact

	collisions := l.curves.CheckCollision(l.coords, p)
	levels := haptics.MapIntensities(collisions, l.driver.MotorCount())
	if err := l.driver.Apply(levels); err != nil {
		log.Printf("[Loop] actuator apply: %v", err)
	}

	cycle.State = StateActuating
	cycle.Levels = levels
	cycle.Collisions = contactRecords(collisions)
	return l.finish(cycle, start)
}

// degrade zeroes the actuators for a cycle without a usable fix. It goes
// through Apply rather than StopAll so an already-idle controller sees no
// traffic; the forced stop is reserved for shutdown.
func (l *ControlLoop) degrade(cycle *Cycle, state State) {
	cycle.State = state
	cycle.Levels = make([]int, l.driver.MotorCount())
	if err := l.driver.Apply(cycle.Levels); err != nil {
		log.Printf("[Loop] actuator zero: %v", err)
	}
}

func (l *ControlLoop) drainMutations() {
	for {
		select {
		case m := <-l.mutations:
			if err := m(l.coords, l.curves); err != nil {
				debugf("mutation rejected: %v", err)
			}
		default:
			return
		}
	}
}

func (l *ControlLoop) finish(cycle Cycle, start time.Time) Cycle {
	cycle.Elapsed = l.clock.Since(start)
	l.publish(cycle)
	for _, s := range l.sinks {
		s.RecordCycle(cycle)
	}
	return cycle
}

func (l *ControlLoop) setRunning(running bool) {
	l.mu.Lock()
	l.running = running
	l.snapshot.Running = running
	l.mu.Unlock()
}

// publish refreshes the externally visible snapshot. Called from the loop
// goroutine only.
func (l *ControlLoop) publish(cycle Cycle) {
	xMin, xMax := l.coords.XRange()
	zMin, zMax := l.coords.ZRange()

	infos := make([]scene.Info, 0, l.curves.Len())
	for _, c := range l.curves.Curves() {
		infos = append(infos, c.Info())
	}

	l.mu.Lock()
	l.snapshot = Snapshot{
		Running:     l.running,
		Cycles:      cycle.Seq,
		MotorCount:  l.driver.MotorCount(),
		TableHeight: l.coords.TableHeight(),
		XMin:        xMin,
		XMax:        xMax,
		ZMin:        zMin,
		ZMax:        zMax,
		Curves:      infos,
		Last:        cycle,
	}
	l.mu.Unlock()
}

// Snapshot returns the most recent published state. Safe from any
// goroutine.
func (l *ControlLoop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}
