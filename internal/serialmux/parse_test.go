package serialmux

import "testing"

// TestClassifyPayload tests classification of controller protocol lines
func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"hello banner", "HELLO v1.4.2", EventTypeHello},
		{"hello without version", "HELLO", EventTypeHello},
		{"ack", "OK", EventTypeAck},
		{"ack with whitespace", "  OK\r", EventTypeAck},
		{"error with detail", "ERR motor index 9 out of range", EventTypeError},
		{"error bare", "ERR", EventTypeError},
		{"telemetry", `STAT {"levels":[0,0,0,0],"voltage":4.97}`, EventTypeTelemetry},
		{"telemetry without prefix", `{"levels":[0,0,0,0]}`, EventTypeTelemetry},
		{"ok prefix is not ack", "OKAY", EventTypeUnknown},
		{"empty line", "", EventTypeUnknown},
		{"noise", "\x00\xffgarbage", EventTypeUnknown},
		{"echoed command", "M0 80", EventTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyPayload(tt.payload); got != tt.want {
				t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}
