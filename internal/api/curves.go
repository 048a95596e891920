package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/haptable/haptable/internal/db"
	"github.com/haptable/haptable/internal/equation"
	"github.com/haptable/haptable/internal/scene"
)

var errCurveNotFound = errors.New("no such curve")

// handleCurves serves the curve collection: list, add from operator
// text, remove by id.
func (s *Server) handleCurves(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.listCurves(w, r)
	case http.MethodPost:
		s.addCurve(w, r)
	case http.MethodDelete:
		s.removeCurve(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listCurves(w http.ResponseWriter, r *http.Request) {
	curves := s.loop.Snapshot().Curves
	if curves == nil {
		curves = []scene.Info{}
	}
	if err := json.NewEncoder(w).Encode(curves); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write curves")
		return
	}
}

type addCurveRequest struct {
	Text string `json:"text"`
}

// addCurve parses operator text into a curve and adds it to the scene.
// The parse runs on the request; only the add itself goes through the
// loop's mutation mailbox.
func (s *Server) addCurve(w http.ResponseWriter, r *http.Request) {
	var req addCurveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'text' field")
		return
	}

	res, err := s.parser.Parse(r.Context(), text)
	if err != nil {
		if errors.Is(err, equation.ErrUnparsable) {
			s.writeJSONError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("Could not parse %q as an equation", text))
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to parse equation: %v", err))
		return
	}

	var info scene.Info
	err = s.mutate(r, func(_ *scene.CoordinateSystem, curves *scene.CurveSet) error {
		c, err := curves.Add(res.Name, res.Display, res.Fn, nil)
		if err != nil {
			return err
		}
		info = c.Info()
		return nil
	})
	if err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("Failed to add curve: %v", err))
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write curve")
		return
	}
}

func (s *Server) removeCurve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'id' parameter")
		return
	}

	err = s.mutate(r, func(_ *scene.CoordinateSystem, curves *scene.CurveSet) error {
		if !curves.Remove(id) {
			return errCurveNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errCurveNotFound) {
			s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("No curve with id %d", id))
			return
		}
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("Failed to remove curve: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]int{"removed": id})
}

type toggleCurveRequest struct {
	Position int `json:"position"`
}

// toggleCurve flips the visibility of the curve at a 1-based display
// position, the same numbering the operator console lists.
func (s *Server) toggleCurve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req toggleCurveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	var info scene.Info
	err := s.mutate(r, func(_ *scene.CoordinateSystem, curves *scene.CurveSet) error {
		if !curves.ToggleVisibility(req.Position) {
			return errCurveNotFound
		}
		info = curves.Curves()[req.Position-1].Info()
		return nil
	})
	if err != nil {
		if errors.Is(err, errCurveNotFound) {
			s.writeJSONError(w, http.StatusNotFound,
				fmt.Sprintf("No curve at position %d", req.Position))
			return
		}
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("Failed to toggle curve: %v", err))
		return
	}

	json.NewEncoder(w).Encode(info)
}

func (s *Server) clearCurves(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var cleared int
	err := s.mutate(r, func(_ *scene.CoordinateSystem, curves *scene.CurveSet) error {
		cleared = curves.Len()
		curves.Clear()
		return nil
	})
	if err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("Failed to clear curves: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]int{"cleared": cleared})
}

type rangeRequest struct {
	Axis    string  `json:"axis"`
	DeltaMM float64 `json:"delta_mm"`
}

// adjustRange widens or narrows the sensing volume on one axis. The
// resulting bounds are captured inside the mutation so the recorded
// adjustment matches what the loop actually applied.
func (s *Server) adjustRange(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Axis != "x" && req.Axis != "z" {
		s.writeJSONError(w, http.StatusBadRequest, `Invalid 'axis': must be "x" or "z"`)
		return
	}
	if req.DeltaMM == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'delta_mm' field")
		return
	}

	adj := &db.RangeAdjustment{
		SessionID: s.session,
		Axis:      req.Axis,
		DeltaMM:   req.DeltaMM,
	}
	err := s.mutate(r, func(coords *scene.CoordinateSystem, _ *scene.CurveSet) error {
		var err error
		if req.Axis == "x" {
			err = coords.AdjustXRange(req.DeltaMM)
		} else {
			err = coords.AdjustZRange(req.DeltaMM)
		}
		if err != nil {
			return err
		}
		adj.XMin, adj.XMax = coords.XRange()
		adj.ZMin, adj.ZMax = coords.ZRange()
		return nil
	})
	if err != nil {
		if errors.Is(err, scene.ErrRangeInversion) {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Adjustment rejected: %v", err))
			return
		}
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("Failed to adjust range: %v", err))
		return
	}

	// Recording is best effort; the adjustment itself already happened.
	if s.db != nil && s.session != "" {
		if err := s.db.RecordRangeAdjustment(adj); err != nil {
			log.Printf("[API] record range adjustment: %v", err)
		}
	}

	json.NewEncoder(w).Encode(adj)
}
