package db

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "database is locked", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "bare SQLITE_BUSY", err: errors.New("SQLITE_BUSY"), want: true},
		{name: "wrapped busy error", err: fmt.Errorf("insert event: %w", errors.New("database is locked (5) (SQLITE_BUSY)")), want: true},
		{name: "other error", err: errors.New("no such table: contact_events"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.want {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	busy := func() error { return errors.New("database is locked (5) (SQLITE_BUSY)") }

	t.Run("success on first try", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("success after retries", func(t *testing.T) {
		calls := 0
		start := time.Now()
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return busy()
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
		// Two backoffs, 10ms then 20ms. Only the lower bound is
		// dependable under load.
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("expected at least 30ms of backoff, got %v", elapsed)
		}
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("no such table: sessions")
		err := retryOnBusy(func() error {
			calls++
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Errorf("expected error %v, got %v", wantErr, err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("gives up after five attempts", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return busy()
		})
		if err == nil {
			t.Error("expected the final busy error, got nil")
		}
		if calls != 5 {
			t.Errorf("expected 5 calls, got %d", calls)
		}
	})
}
