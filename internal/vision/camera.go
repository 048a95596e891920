package vision

import (
	"context"
	"fmt"
	"sync/atomic"
)

// CameraSource composes a stereo camera and a hand detector into a
// LandmarkSource: one capture and two detector passes per Next call.
type CameraSource struct {
	cam StereoCamera
	det HandDetector
	seq atomic.Uint64
}

// NewCameraSource wires a camera pair to a detector.
func NewCameraSource(cam StereoCamera, det HandDetector) *CameraSource {
	return &CameraSource{cam: cam, det: det}
}

// Next implements LandmarkSource.
func (s *CameraSource) Next(ctx context.Context) (Observation, error) {
	left, right, err := s.cam.Capture(ctx)
	if err != nil {
		return Observation{}, fmt.Errorf("stereo capture: %w", err)
	}

	leftHands, err := s.det.Detect(ctx, left)
	if err != nil {
		return Observation{}, fmt.Errorf("left view detect: %w", err)
	}
	rightHands, err := s.det.Detect(ctx, right)
	if err != nil {
		return Observation{}, fmt.Errorf("right view detect: %w", err)
	}

	return Observation{
		Seq:        s.seq.Add(1),
		CapturedAt: left.CapturedAt,
		Width:      left.Width,
		Height:     left.Height,
		Left:       leftHands,
		Right:      rightHands,
	}, nil
}

// Close implements LandmarkSource.
func (s *CameraSource) Close() error {
	return s.cam.Close()
}
