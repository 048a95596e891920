package vision

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haptable/haptable/internal/stereo"
)

// ScriptedSource is a LandmarkSource fed by the test itself: push
// observations, the loop consumes them. Close ends the stream; Next
// drains buffered observations before reporting io.EOF.
type ScriptedSource struct {
	ch     chan Observation
	closed chan struct{}
	once   sync.Once
}

// NewScriptedSource returns a source buffering up to buffer pushed
// observations.
func NewScriptedSource(buffer int) *ScriptedSource {
	if buffer < 1 {
		buffer = 1
	}
	return &ScriptedSource{
		ch:     make(chan Observation, buffer),
		closed: make(chan struct{}),
	}
}

// Push queues an observation. It reports false once the source is
// closed.
func (s *ScriptedSource) Push(o Observation) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.ch <- o:
		return true
	case <-s.closed:
		return false
	}
}

// Next implements LandmarkSource.
func (s *ScriptedSource) Next(ctx context.Context) (Observation, error) {
	select {
	case o := <-s.ch:
		return o, nil
	default:
	}
	select {
	case o := <-s.ch:
		return o, nil
	case <-ctx.Done():
		return Observation{}, ctx.Err()
	case <-s.closed:
		select {
		case o := <-s.ch:
			return o, nil
		default:
			return Observation{}, io.EOF
		}
	}
}

// Close implements LandmarkSource.
func (s *ScriptedSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// SweepSource generates a fingertip sweeping side to side across the
// view with a slowly breathing disparity, for running the full stack
// without cameras. Geometry is plausible rather than calibrated; the
// triangulated path depends on whatever calibration is loaded.
type SweepSource struct {
	width    int
	height   int
	interval time.Duration
	period   time.Duration
	start    time.Time
	seq      atomic.Uint64
}

// NewSweepSource returns a generator emitting hz observations per
// second for a width×height image pair.
func NewSweepSource(width, height int, hz float64) *SweepSource {
	if hz <= 0 {
		hz = 20
	}
	return &SweepSource{
		width:    width,
		height:   height,
		interval: time.Duration(float64(time.Second) / hz),
		period:   8 * time.Second,
		start:    time.Now(),
	}
}

// Next implements LandmarkSource. It paces itself to the configured
// rate.
func (s *SweepSource) Next(ctx context.Context) (Observation, error) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Observation{}, ctx.Err()
	case <-timer.C:
	}

	now := time.Now()
	t := now.Sub(s.start).Seconds()
	phase := 2 * math.Pi * t / s.period.Seconds()

	w := float64(s.width)
	h := float64(s.height)
	tip := stereo.Point2{
		X: w/2 + 0.35*w*math.Sin(phase),
		Y: 0.55*h + 0.05*h*math.Sin(2.3*phase),
	}
	disparity := 80 + 40*math.Sin(0.7*phase)

	left := syntheticHand(tip, h)
	right := syntheticHand(stereo.Point2{X: tip.X - disparity, Y: tip.Y}, h)

	return Observation{
		Seq:        s.seq.Add(1),
		CapturedAt: now,
		Width:      s.width,
		Height:     s.height,
		Left:       []Hand{left},
		Right:      []Hand{right},
	}, nil
}

// Close implements LandmarkSource.
func (s *SweepSource) Close() error { return nil }

// syntheticHand builds a hand with the fingertip at tip and the rest
// of the landmarks in a loose anatomical spread below it.
func syntheticHand(tip stereo.Point2, imageHeight float64) Hand {
	var h Hand
	h.Confidence = 0.95
	spread := 0.02 * imageHeight
	for i := range h.Landmarks {
		h.Landmarks[i] = stereo.Point2{
			X: tip.X + spread*float64(i%5-2),
			Y: tip.Y + spread*float64(i/5+1),
		}
	}
	h.Landmarks[LandmarkIndexFingerTip] = tip
	h.Landmarks[LandmarkWrist] = stereo.Point2{X: tip.X, Y: tip.Y + 0.15*imageHeight}
	return h
}
