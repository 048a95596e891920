package serialmux

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
)

// ControllerState holds the latest values received from the motor controller.
// The package-level CurrentState instance is shared between the monitor
// goroutine and admin routes, so all access goes through methods that take
// the lock.
type ControllerState struct {
	mu              sync.Mutex
	firmwareVersion string
	lastError       string
	lastTelemetry   map[string]any
	ackCount        uint64
	errorCount      uint64
}

// CurrentState is the live state of the attached controller. It is
// intentionally package-level so admin routes or tests can inspect it.
var CurrentState ControllerState

// StateSnapshot is a copy of the controller state safe to serialise.
type StateSnapshot struct {
	FirmwareVersion string         `json:"firmware_version"`
	LastError       string         `json:"last_error,omitempty"`
	LastTelemetry   map[string]any `json:"last_telemetry,omitempty"`
	AckCount        uint64         `json:"ack_count"`
	ErrorCount      uint64         `json:"error_count"`
}

func (c *ControllerState) Snapshot() StateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := StateSnapshot{
		FirmwareVersion: c.firmwareVersion,
		LastError:       c.lastError,
		AckCount:        c.ackCount,
		ErrorCount:      c.errorCount,
	}
	if c.lastTelemetry != nil {
		snap.LastTelemetry = make(map[string]any, len(c.lastTelemetry))
		for k, v := range c.lastTelemetry {
			snap.LastTelemetry[k] = v
		}
	}
	return snap
}

// Reset clears the state. Used by tests and when the controller reconnects.
func (c *ControllerState) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.firmwareVersion = ""
	c.lastError = ""
	c.lastTelemetry = nil
	c.ackCount = 0
	c.errorCount = 0
}

func HandleHello(payload string) error {
	version := strings.TrimSpace(strings.TrimPrefix(payload, "HELLO"))
	CurrentState.mu.Lock()
	CurrentState.firmwareVersion = version
	CurrentState.mu.Unlock()
	log.Printf("motor controller firmware: %s", version)
	return nil
}

func HandleAck(payload string) error {
	// Acks arrive for every level command at loop rate, so count without
	// logging.
	CurrentState.mu.Lock()
	CurrentState.ackCount++
	CurrentState.mu.Unlock()
	return nil
}

func HandleError(payload string) error {
	detail := strings.TrimSpace(strings.TrimPrefix(payload, "ERR"))
	CurrentState.mu.Lock()
	CurrentState.lastError = detail
	CurrentState.errorCount++
	CurrentState.mu.Unlock()
	log.Printf("motor controller error: %s", detail)
	return nil
}

func HandleTelemetry(payload string) error {
	body := strings.TrimSpace(strings.TrimPrefix(payload, "STAT"))

	var values map[string]any
	if err := json.Unmarshal([]byte(body), &values); err != nil {
		return fmt.Errorf("failed to unmarshal telemetry JSON: %v", err)
	}

	// merge rather than replace: some firmware revisions split telemetry
	// across partial STAT lines
	CurrentState.mu.Lock()
	if CurrentState.lastTelemetry == nil {
		CurrentState.lastTelemetry = make(map[string]any)
	}
	for k, v := range values {
		CurrentState.lastTelemetry[k] = v
	}
	CurrentState.mu.Unlock()

	debugf("telemetry: %s", body)

	return nil
}

// HandleEvent dispatches one line from the controller to the matching
// handler. Unknown lines are logged and otherwise ignored so a firmware
// upgrade that adds message types cannot wedge the monitor loop.
func HandleEvent(payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeHello:
		if err := HandleHello(payload); err != nil {
			return fmt.Errorf("failed to handle hello event: %v", err)
		}
	case EventTypeAck:
		if err := HandleAck(payload); err != nil {
			return fmt.Errorf("failed to handle ack event: %v", err)
		}
	case EventTypeError:
		if err := HandleError(payload); err != nil {
			return fmt.Errorf("failed to handle error event: %v", err)
		}
	case EventTypeTelemetry:
		if err := HandleTelemetry(payload); err != nil {
			return fmt.Errorf("failed to handle telemetry event: %v", err)
		}
	default:
		log.Printf("unknown event type: %s", payload)
	}
	return nil
}
