package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for lookups of unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the service, from startup to shutdown. EndedUnix
// is nil while the session is open.
type Session struct {
	ID             string   `json:"session_id"`
	StartedUnix    float64  `json:"started_unix"`
	EndedUnix      *float64 `json:"ended_unix,omitempty"`
	CalibrationRMS float64  `json:"calibration_rms"`
	MotorCount     int      `json:"motor_count"`
	Notes          string   `json:"notes,omitempty"`
}

// ContactEvent is one recorded control cycle: a state transition or a
// curve collision. Position fields are nil for cycles without a fix;
// curve fields are nil when nothing collided. Levels is the motor
// vector as a JSON array.
type ContactEvent struct {
	ID           int64    `json:"event_id"`
	SessionID    string   `json:"session_id"`
	CycleSeq     uint64   `json:"cycle_seq"`
	OccurredUnix float64  `json:"occurred_unix"`
	State        string   `json:"state"`
	X            *float64 `json:"x_mm,omitempty"`
	Y            *float64 `json:"y_mm,omitempty"`
	Z            *float64 `json:"z_mm,omitempty"`
	CurveID      *int64   `json:"curve_id,omitempty"`
	CurveName    *string  `json:"curve_name,omitempty"`
	DistanceMM   *float64 `json:"distance_mm,omitempty"`
	Levels       string   `json:"levels"`
}

// RangeAdjustment is one operator edit of the sensing volume, with the
// resulting ranges so a session can be replayed without folding deltas.
type RangeAdjustment struct {
	ID           int64   `json:"adjustment_id"`
	SessionID    string  `json:"session_id"`
	OccurredUnix float64 `json:"occurred_unix"`
	Axis         string  `json:"axis"`
	DeltaMM      float64 `json:"delta_mm"`
	XMin         float64 `json:"x_min_mm"`
	XMax         float64 `json:"x_max_mm"`
	ZMin         float64 `json:"z_min_mm"`
	ZMax         float64 `json:"z_max_mm"`
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// CreateSession inserts a new session row. A missing ID gets a UUID, a
// zero StartedUnix gets the current time; both are written back.
func (db *DB) CreateSession(s *Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.StartedUnix == 0 {
		s.StartedUnix = nowUnix()
	}
	return retryOnBusy(func() error {
		_, err := db.Exec(`
			INSERT INTO sessions (session_id, started_unix, calibration_rms, motor_count, notes)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.StartedUnix, s.CalibrationRMS, s.MotorCount, s.Notes,
		)
		return err
	})
}

// EndSession stamps the session closed. Ending an already closed
// session keeps the original end time.
func (db *DB) EndSession(id string) error {
	return retryOnBusy(func() error {
		res, err := db.Exec(
			`UPDATE sessions SET ended_unix = ? WHERE session_id = ? AND ended_unix IS NULL`,
			nowUnix(), id,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			var exists int
			if scanErr := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE session_id = ?`, id).Scan(&exists); scanErr == nil && exists == 0 {
				return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
			}
		}
		return nil
	})
}

// Session returns one session by id.
func (db *DB) Session(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT session_id, started_unix, ended_unix, calibration_rms, motor_count, notes
		FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// RecentSessions returns the newest sessions first.
func (db *DB) RecentSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT session_id, started_unix, ended_unix, calibration_rms, motor_count, notes
		FROM sessions ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(r rowScanner) (*Session, error) {
	var s Session
	var ended sql.NullFloat64
	if err := r.Scan(&s.ID, &s.StartedUnix, &ended, &s.CalibrationRMS, &s.MotorCount, &s.Notes); err != nil {
		return nil, err
	}
	if ended.Valid {
		s.EndedUnix = &ended.Float64
	}
	return &s, nil
}

// RecordContactEvent inserts one event and writes the assigned id back.
func (db *DB) RecordContactEvent(e *ContactEvent) error {
	if e.SessionID == "" {
		return fmt.Errorf("contact event requires a session id")
	}
	if e.OccurredUnix == 0 {
		e.OccurredUnix = nowUnix()
	}
	if e.Levels == "" {
		e.Levels = "[]"
	}
	return retryOnBusy(func() error {
		res, err := db.Exec(`
			INSERT INTO contact_events (
				session_id, cycle_seq, occurred_unix, state,
				x_mm, y_mm, z_mm, curve_id, curve_name, distance_mm, levels
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.SessionID, e.CycleSeq, e.OccurredUnix, e.State,
			e.X, e.Y, e.Z, e.CurveID, e.CurveName, e.DistanceMM, e.Levels,
		)
		if err != nil {
			return err
		}
		e.ID, _ = res.LastInsertId()
		return nil
	})
}

// SessionContactEvents returns a session's events, oldest first.
func (db *DB) SessionContactEvents(sessionID string, limit int) ([]*ContactEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(`
		SELECT event_id, session_id, cycle_seq, occurred_unix, state,
		       x_mm, y_mm, z_mm, curve_id, curve_name, distance_mm, levels
		FROM contact_events
		WHERE session_id = ?
		ORDER BY occurred_unix ASC, event_id ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query contact events: %w", err)
	}
	defer rows.Close()

	var events []*ContactEvent
	for rows.Next() {
		var e ContactEvent
		var x, y, z, dist sql.NullFloat64
		var curveID sql.NullInt64
		var curveName sql.NullString
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.CycleSeq, &e.OccurredUnix, &e.State,
			&x, &y, &z, &curveID, &curveName, &dist, &e.Levels,
		); err != nil {
			return nil, err
		}
		if x.Valid {
			e.X = &x.Float64
		}
		if y.Valid {
			e.Y = &y.Float64
		}
		if z.Valid {
			e.Z = &z.Float64
		}
		if curveID.Valid {
			e.CurveID = &curveID.Int64
		}
		if curveName.Valid {
			e.CurveName = &curveName.String
		}
		if dist.Valid {
			e.DistanceMM = &dist.Float64
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// RecordRangeAdjustment inserts one adjustment and writes the assigned
// id back.
func (db *DB) RecordRangeAdjustment(a *RangeAdjustment) error {
	if a.SessionID == "" {
		return fmt.Errorf("range adjustment requires a session id")
	}
	if a.Axis != "x" && a.Axis != "z" {
		return fmt.Errorf("range adjustment axis must be \"x\" or \"z\", got %q", a.Axis)
	}
	if a.OccurredUnix == 0 {
		a.OccurredUnix = nowUnix()
	}
	return retryOnBusy(func() error {
		res, err := db.Exec(`
			INSERT INTO range_adjustments (
				session_id, occurred_unix, axis, delta_mm,
				x_min_mm, x_max_mm, z_min_mm, z_max_mm
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.SessionID, a.OccurredUnix, a.Axis, a.DeltaMM,
			a.XMin, a.XMax, a.ZMin, a.ZMax,
		)
		if err != nil {
			return err
		}
		a.ID, _ = res.LastInsertId()
		return nil
	})
}

// SessionRangeAdjustments returns a session's adjustments, oldest
// first.
func (db *DB) SessionRangeAdjustments(sessionID string) ([]*RangeAdjustment, error) {
	rows, err := db.Query(`
		SELECT adjustment_id, session_id, occurred_unix, axis, delta_mm,
		       x_min_mm, x_max_mm, z_min_mm, z_max_mm
		FROM range_adjustments
		WHERE session_id = ?
		ORDER BY occurred_unix ASC, adjustment_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query range adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []*RangeAdjustment
	for rows.Next() {
		var a RangeAdjustment
		if err := rows.Scan(
			&a.ID, &a.SessionID, &a.OccurredUnix, &a.Axis, &a.DeltaMM,
			&a.XMin, &a.XMax, &a.ZMin, &a.ZMax,
		); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, &a)
	}
	return adjustments, rows.Err()
}

// SessionSummary aggregates a session's recorded activity.
type SessionSummary struct {
	SessionID   string   `json:"session_id"`
	Events      int64    `json:"events"`
	Actuating   int64    `json:"actuating_events"`
	Adjustments int64    `json:"range_adjustments"`
	FirstUnix   *float64 `json:"first_event_unix,omitempty"`
	LastUnix    *float64 `json:"last_event_unix,omitempty"`
}

// SummarizeSession counts a session's events. Valid for open sessions;
// the numbers just keep moving.
func (db *DB) SummarizeSession(sessionID string) (*SessionSummary, error) {
	s := &SessionSummary{SessionID: sessionID}
	var first, last sql.NullFloat64
	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN state = 'ACTUATING' THEN 1 ELSE 0 END), 0),
		       MIN(occurred_unix), MAX(occurred_unix)
		FROM contact_events WHERE session_id = ?`, sessionID).
		Scan(&s.Events, &s.Actuating, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("summarize events: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM range_adjustments WHERE session_id = ?`, sessionID).Scan(&s.Adjustments); err != nil {
		return nil, fmt.Errorf("summarize adjustments: %w", err)
	}
	if first.Valid {
		s.FirstUnix = &first.Float64
	}
	if last.Valid {
		s.LastUnix = &last.Float64
	}
	return s, nil
}
