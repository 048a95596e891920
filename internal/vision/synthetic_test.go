package vision

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestScriptedSourceDeliversInOrder(t *testing.T) {
	s := NewScriptedSource(4)
	defer s.Close()

	for i := uint64(1); i <= 3; i++ {
		if !s.Push(Observation{Seq: i}) {
			t.Fatalf("Push(%d) = false, want true", i)
		}
	}

	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		obs, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if obs.Seq != i {
			t.Errorf("Next() seq = %d, want %d", obs.Seq, i)
		}
	}
}

func TestScriptedSourceContextCancel(t *testing.T) {
	s := NewScriptedSource(1)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want DeadlineExceeded", err)
	}
}

func TestScriptedSourceDrainsThenEOF(t *testing.T) {
	s := NewScriptedSource(2)
	s.Push(Observation{Seq: 1})
	s.Close()

	if s.Push(Observation{Seq: 2}) {
		t.Error("Push after Close = true, want false")
	}

	ctx := context.Background()
	obs, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next() after Close failed: %v", err)
	}
	if obs.Seq != 1 {
		t.Errorf("Next() seq = %d, want 1", obs.Seq)
	}

	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() on drained closed source = %v, want io.EOF", err)
	}
}

func TestSweepSourceGeneratesPlausibleHands(t *testing.T) {
	s := NewSweepSource(640, 480, 500)
	defer s.Close()
	ctx := context.Background()

	var lastSeq uint64
	for i := 0; i < 5; i++ {
		obs, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if obs.Seq <= lastSeq {
			t.Errorf("seq %d did not advance past %d", obs.Seq, lastSeq)
		}
		lastSeq = obs.Seq

		if len(obs.Left) != 1 || len(obs.Right) != 1 {
			t.Fatalf("hands per view = %d, %d, want 1, 1", len(obs.Left), len(obs.Right))
		}
		lt := obs.Left[0].Fingertip()
		rt := obs.Right[0].Fingertip()
		if lt.Y != rt.Y {
			t.Errorf("fingertip rows differ: %f vs %f", lt.Y, rt.Y)
		}
		if d := lt.X - rt.X; d < 30 || d > 130 {
			t.Errorf("disparity %f outside the generator's 40..120 band", d)
		}
		if obs.Left[0].Confidence < 0.9 {
			t.Errorf("confidence = %f, want >= 0.9", obs.Left[0].Confidence)
		}
		if obs.Width != 640 || obs.Height != 480 {
			t.Errorf("image size = %dx%d, want 640x480", obs.Width, obs.Height)
		}
	}
}

func TestSweepSourceHonorsContext(t *testing.T) {
	s := NewSweepSource(640, 480, 1) // 1Hz, slower than the test timeout
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want DeadlineExceeded", err)
	}
}
