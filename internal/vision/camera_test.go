package vision

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCamera struct {
	left, right Frame
	err         error
	closed      bool
}

func (c *fakeCamera) Capture(ctx context.Context) (Frame, Frame, error) {
	return c.left, c.right, c.err
}

func (c *fakeCamera) Close() error {
	c.closed = true
	return nil
}

type fakeDetector struct {
	hands map[string][]Hand
	err   error
}

func (d *fakeDetector) Detect(ctx context.Context, frame Frame) ([]Hand, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.hands[string(frame.Pixels)], nil
}

func TestCameraSourceComposes(t *testing.T) {
	captured := time.Now()
	cam := &fakeCamera{
		left:  Frame{Pixels: []byte("L"), Width: 640, Height: 480, CapturedAt: captured},
		right: Frame{Pixels: []byte("R"), Width: 640, Height: 480, CapturedAt: captured},
	}
	det := &fakeDetector{hands: map[string][]Hand{
		"L": {handAtWrist(200, 0.9)},
		"R": {handAtWrist(205, 0.9), handAtWrist(400, 0.4)},
	}}

	s := NewCameraSource(cam, det)
	ctx := context.Background()

	obs, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if obs.Seq != 1 {
		t.Errorf("first seq = %d, want 1", obs.Seq)
	}
	if len(obs.Left) != 1 || len(obs.Right) != 2 {
		t.Errorf("hands = %d, %d, want 1, 2", len(obs.Left), len(obs.Right))
	}
	if !obs.CapturedAt.Equal(captured) {
		t.Errorf("CapturedAt = %v, want %v", obs.CapturedAt, captured)
	}
	if obs.Width != 640 || obs.Height != 480 {
		t.Errorf("size = %dx%d, want 640x480", obs.Width, obs.Height)
	}

	obs, err = s.Next(ctx)
	if err != nil {
		t.Fatalf("second Next() failed: %v", err)
	}
	if obs.Seq != 2 {
		t.Errorf("second seq = %d, want 2", obs.Seq)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !cam.closed {
		t.Error("Close() did not close the camera")
	}
}

func TestCameraSourcePropagatesErrors(t *testing.T) {
	ctx := context.Background()
	captureErr := errors.New("no frame")

	s := NewCameraSource(&fakeCamera{err: captureErr}, &fakeDetector{})
	if _, err := s.Next(ctx); !errors.Is(err, captureErr) {
		t.Errorf("Next() error = %v, want wrapped capture error", err)
	}

	detectErr := errors.New("model not loaded")
	s = NewCameraSource(&fakeCamera{}, &fakeDetector{err: detectErr})
	if _, err := s.Next(ctx); !errors.Is(err, detectErr) {
		t.Errorf("Next() error = %v, want wrapped detect error", err)
	}
}
