package serialmux

import "strings"

const (
	EventTypeHello     = "hello"
	EventTypeAck       = "ack"
	EventTypeError     = "error"
	EventTypeTelemetry = "telemetry"
	EventTypeUnknown   = "unknown"
)

// ClassifyPayload inspects a line from the motor controller and returns a
// simple event type token. The controller protocol is prefix-based, so the
// classification is a prefix match with a JSON fallback for telemetry that
// arrives without its STAT prefix (seen on some firmware revisions when the
// line straddles a reboot).
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(payload, "HELLO"):
		return EventTypeHello
	case payload == "OK":
		return EventTypeAck
	case strings.HasPrefix(payload, "ERR"):
		return EventTypeError
	case strings.HasPrefix(payload, "STAT"):
		return EventTypeTelemetry
	case strings.HasPrefix(payload, "{"):
		return EventTypeTelemetry
	}
	return EventTypeUnknown
}
