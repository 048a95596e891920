// Package vision defines the hand observation types and collaborator
// interfaces feeding the control loop. Landmarks arrive from a camera
// pair with an in-process detector, from a companion tracker over UDP
// (netdetect), or from scripted sources in tests; the loop consumes
// all of them through LandmarkSource.
package vision

import (
	"context"
	"time"

	"github.com/haptable/haptable/internal/stereo"
)

// Frame is one captured camera image. The pixel payload is opaque to
// this package; its format is a contract between camera and detector.
type Frame struct {
	Pixels     []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Hand is one detected hand in one view: 21 landmark pixel positions
// and the detector's confidence.
type Hand struct {
	Landmarks  [LandmarkCount]stereo.Point2
	Confidence float64
}

// Wrist returns the wrist landmark.
func (h Hand) Wrist() stereo.Point2 { return h.Landmarks[LandmarkWrist] }

// Fingertip returns the index fingertip, the point the system tracks.
func (h Hand) Fingertip() stereo.Point2 { return h.Landmarks[LandmarkIndexFingerTip] }

// Observation is one synchronized two-view detection result. Either
// view may have seen any number of hands, including none.
type Observation struct {
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
	Left       []Hand
	Right      []Hand
}

// StereoCamera captures synchronized frame pairs.
type StereoCamera interface {
	Capture(ctx context.Context) (left, right Frame, err error)
	Close() error
}

// HandDetector finds hands in a single frame.
type HandDetector interface {
	Detect(ctx context.Context, frame Frame) ([]Hand, error)
}

// LandmarkSource hands the loop one observation per call. Next blocks
// until an observation is available, the context ends, or the source
// is exhausted (io.EOF).
type LandmarkSource interface {
	Next(ctx context.Context) (Observation, error)
	Close() error
}

// FilterConfidence returns the hands at or above min confidence,
// preserving order.
func FilterConfidence(hands []Hand, min float64) []Hand {
	if min <= 0 {
		return hands
	}
	var kept []Hand
	for _, h := range hands {
		if h.Confidence >= min {
			kept = append(kept, h)
		}
	}
	return kept
}
