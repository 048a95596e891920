package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haptable/haptable/internal/haptics"
)

// Bring-up endpoints drive the motors directly, so they refuse to run
// while the control loop owns the driver: the loop reapplies its own
// levels every cycle and would chop anything written underneath it.

const defaultTestLevel = 60
const defaultTestDuration = 500 * time.Millisecond
const maxTestDuration = 5 * time.Second

func (s *Server) listPatterns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := map[string]interface{}{
		"patterns":    haptics.PatternNames(),
		"motor_count": s.driver.MotorCount(),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write patterns")
		return
	}
}

type patternRequest struct {
	Name string `json:"name"`
	// Motor selects a single motor; absent means all motors.
	Motor *int `json:"motor,omitempty"`
}

// runPattern plays a named test pattern to completion. The request blocks
// for the pattern's duration; cancelling it stops the pattern and zeroes
// the motors.
func (s *Server) runPattern(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.loopRunning() {
		s.writeJSONError(w, http.StatusConflict, "Control loop is running; stop it before driving motors directly")
		return
	}

	var req patternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	pattern, ok := haptics.PatternByName(req.Name)
	if !ok {
		s.writeJSONError(w, http.StatusNotFound,
			fmt.Sprintf("Unknown pattern %q: valid patterns are %s",
				req.Name, strings.Join(haptics.PatternNames(), ", ")))
		return
	}

	motor := haptics.AllMotors
	if req.Motor != nil {
		motor = *req.Motor
		if motor < 0 || motor >= s.driver.MotorCount() {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid 'motor': have %d motors", s.driver.MotorCount()))
			return
		}
	}

	if err := haptics.RunPattern(r.Context(), s.clock, s.driver, pattern, motor); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to run pattern: %v", err))
		return
	}

	resp := map[string]interface{}{
		"pattern":     pattern.Name,
		"motor":       motor,
		"duration_ms": pattern.TotalDuration().Milliseconds(),
	}
	json.NewEncoder(w).Encode(resp)
}

type motorTestRequest struct {
	Motor      int `json:"motor"`
	Level      int `json:"level"`
	DurationMS int `json:"duration_ms"`
}

// testMotor pulses a single motor, for checking wiring and placement one
// motor at a time.
func (s *Server) testMotor(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.loopRunning() {
		s.writeJSONError(w, http.StatusConflict, "Control loop is running; stop it before driving motors directly")
		return
	}

	var req motorTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Motor < 0 || req.Motor >= s.driver.MotorCount() {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid 'motor': have %d motors", s.driver.MotorCount()))
		return
	}

	level := req.Level
	if level == 0 {
		level = defaultTestLevel
	}
	if level < 1 || level > 100 {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'level': must be 1-100")
		return
	}

	duration := time.Duration(req.DurationMS) * time.Millisecond
	if duration <= 0 {
		duration = defaultTestDuration
	}
	if duration > maxTestDuration {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid 'duration_ms': max %d", maxTestDuration.Milliseconds()))
		return
	}

	if err := s.driver.SetIntensity(req.Motor, level); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to set intensity: %v", err))
		return
	}
	s.clock.Sleep(duration)
	if err := s.driver.SetIntensity(req.Motor, 0); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to stop motor: %v", err))
		return
	}

	resp := map[string]interface{}{
		"motor":       req.Motor,
		"level":       level,
		"duration_ms": duration.Milliseconds(),
	}
	json.NewEncoder(w).Encode(resp)
}
