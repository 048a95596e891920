// Package api serves the operator HTTP API: loop status, curve edits,
// sensing range adjustments, haptic bring-up commands, and recorded
// session queries. Scene state is never touched directly; every edit is
// queued on the control loop and applied between cycles.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/haptable/haptable/internal/db"
	"github.com/haptable/haptable/internal/equation"
	"github.com/haptable/haptable/internal/haptics"
	"github.com/haptable/haptable/internal/loop"
	"github.com/haptable/haptable/internal/timeutil"
	"github.com/haptable/haptable/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// mutationTimeout bounds how long a handler waits for the control loop
// to apply a queued scene edit. The loop drains its mailbox every cycle,
// so a wait anywhere near this long means the loop is not running.
const mutationTimeout = 5 * time.Second

type Server struct {
	loop    *loop.ControlLoop
	parser  equation.Parser
	driver  haptics.Driver
	clock   timeutil.Clock
	db      *db.DB
	session string
	units   string
}

// NewServer wires the HTTP API around a control loop. database may be
// nil when session recording is disabled; sessionID is empty in that
// case.
func NewServer(l *loop.ControlLoop, parser equation.Parser, driver haptics.Driver, database *db.DB, sessionID, units string) *Server {
	return &Server{
		loop:    l,
		parser:  parser,
		driver:  driver,
		clock:   timeutil.RealClock{},
		db:      database,
		session: sessionID,
		units:   units,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/curves", s.handleCurves)
	mux.HandleFunc("/api/curves/toggle", s.toggleCurve)
	mux.HandleFunc("/api/curves/clear", s.clearCurves)
	mux.HandleFunc("/api/range", s.adjustRange)
	mux.HandleFunc("/api/haptics/patterns", s.listPatterns)
	mux.HandleFunc("/api/haptics/pattern", s.runPattern)
	mux.HandleFunc("/api/haptics/test", s.testMotor)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/summary", s.showSessionSummary)
	mux.HandleFunc("/api/sessions/events", s.listSessionEvents)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// mutate queues m on the control loop and waits for it to run. The wait
// is bounded so a stopped loop turns into an error instead of a hung
// request.
func (s *Server) mutate(r *http.Request, m loop.Mutation) error {
	ctx, cancel := context.WithTimeout(r.Context(), mutationTimeout)
	defer cancel()
	return s.loop.EnqueueWait(ctx, m)
}

// mutationStatus maps a failed mutation to an HTTP status. Timeouts mean
// the loop is not draining its mailbox; anything else is the mutation's
// own rejection.
func mutationStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, loop.ErrLoopBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}

// loopRunning reports whether the control loop currently owns the motor
// driver. Bring-up commands refuse to fight it for the wire.
func (s *Server) loopRunning() bool {
	return s.loop != nil && s.loop.Snapshot().Running
}

// rangeDisplay is the sensing volume converted to the display units, for
// UIs that label axes in something other than millimeters.
type rangeDisplay struct {
	Units       string  `json:"units"`
	XMin        float64 `json:"x_min"`
	XMax        float64 `json:"x_max"`
	ZMin        float64 `json:"z_min"`
	ZMax        float64 `json:"z_max"`
	TableHeight float64 `json:"table_height"`
}

type statusResponse struct {
	loop.Snapshot
	SessionID string       `json:"session_id,omitempty"`
	Display   rangeDisplay `json:"display_range"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			s.writeJSONError(w, http.StatusBadRequest,
				"Invalid 'units' parameter: valid units are "+units.GetValidUnitsString())
			return
		}
		target = u
	}

	snap := s.loop.Snapshot()
	resp := statusResponse{
		Snapshot:  snap,
		SessionID: s.session,
		Display: rangeDisplay{
			Units:       target,
			XMin:        units.ConvertLength(snap.XMin, target),
			XMax:        units.ConvertLength(snap.XMax, target),
			ZMin:        units.ConvertLength(snap.ZMin, target),
			ZMax:        units.ConvertLength(snap.ZMax, target),
			TableHeight: units.ConvertLength(snap.TableHeight, target),
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"units":       s.units,
		"motor_count": s.driver.MotorCount(),
		"session_id":  s.session,
		"recording":   s.db != nil,
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
