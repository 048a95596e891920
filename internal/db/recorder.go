package db

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haptable/haptable/internal/loop"
)

// DefaultRecorderDepth is the recorder's input buffer. At 20 Hz even a
// stalled disk gets seconds of slack before anything is dropped.
const DefaultRecorderDepth = 256

// Recorder turns finished control cycles into contact_events rows. It
// is a loop.CycleSink: RecordCycle filters and hands off without
// blocking, a background goroutine does the inserts. When the buffer
// is full the cycle is dropped and counted; the loop never waits on
// the database.
//
// Recorded cycles are the interesting ones: every state transition and
// every cycle with a collision. Steady NO_HAND at 20 Hz would be pure
// noise.
type Recorder struct {
	db        *DB
	sessionID string

	ch      chan loop.Cycle
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64

	// lastState is touched only from RecordCycle, which the loop calls
	// from its own goroutine.
	lastState loop.State
}

// NewRecorder starts a recorder for the given session. depth <= 0
// selects DefaultRecorderDepth.
func NewRecorder(database *DB, sessionID string, depth int) *Recorder {
	if depth <= 0 {
		depth = DefaultRecorderDepth
	}
	r := &Recorder{
		db:        database,
		sessionID: sessionID,
		ch:        make(chan loop.Cycle, depth),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// RecordCycle implements loop.CycleSink.
func (r *Recorder) RecordCycle(c loop.Cycle) {
	interesting := c.State != r.lastState || len(c.Collisions) > 0
	r.lastState = c.State
	if !interesting {
		return
	}
	select {
	case r.ch <- c:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many cycles were discarded on a full buffer.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting cycles, flushes everything buffered, and
// reports the drop count. The session row is left open; ending it is
// the caller's call.
func (r *Recorder) Close() error {
	r.once.Do(func() { close(r.ch) })
	<-r.done
	if n := r.dropped.Load(); n > 0 {
		log.Printf("[Recorder] dropped %d cycles on a full buffer", n)
	}
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for c := range r.ch {
		if err := r.db.RecordContactEvent(eventFromCycle(r.sessionID, c)); err != nil {
			log.Printf("[Recorder] failed to record cycle %d: %v", c.Seq, err)
		}
	}
}

// eventFromCycle flattens a cycle record into a contact_events row,
// keeping the nearest collision when there are several.
func eventFromCycle(sessionID string, c loop.Cycle) *ContactEvent {
	e := &ContactEvent{
		SessionID:    sessionID,
		CycleSeq:     c.Seq,
		OccurredUnix: float64(c.Start.UnixNano()) / float64(time.Second),
		State:        string(c.State),
	}
	if c.Fingertip != nil {
		x, y, z := c.Fingertip.X, c.Fingertip.Y, c.Fingertip.Z
		e.X, e.Y, e.Z = &x, &y, &z
	}
	if len(c.Collisions) > 0 {
		nearest := c.Collisions[0]
		id := int64(nearest.CurveID)
		name := nearest.CurveName
		dist := nearest.Distance
		e.CurveID = &id
		e.CurveName = &name
		e.DistanceMM = &dist
	}
	if len(c.Levels) > 0 {
		if levels, err := json.Marshal(c.Levels); err == nil {
			e.Levels = string(levels)
		}
	}
	return e
}
