package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

// TestPortOptions_Normalize_Defaults tests that zero options become 115200 8N1
func TestPortOptions_Normalize_Defaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if opts.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", opts.BaudRate)
	}
	if opts.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", opts.DataBits)
	}
	if opts.StopBits != 1 {
		t.Errorf("StopBits = %d, want 1", opts.StopBits)
	}
	if opts.Parity != "N" {
		t.Errorf("Parity = %q, want N", opts.Parity)
	}
}

// TestPortOptions_Normalize_Parity tests parity spellings
func TestPortOptions_Normalize_Parity(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "N", false},
		{"n", "N", false},
		{"none", "N", false},
		{" EVEN ", "E", false},
		{"e", "E", false},
		{"odd", "O", false},
		{"O", "O", false},
		{"mark", "", true},
		{"x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			opts, err := PortOptions{Parity: tt.in}.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Normalize(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) returned error: %v", tt.in, err)
			}
			if opts.Parity != tt.want {
				t.Errorf("Parity = %q, want %q", opts.Parity, tt.want)
			}
		})
	}
}

// TestPortOptions_Normalize_Invalid tests rejection of out-of-range values
func TestPortOptions_Normalize_Invalid(t *testing.T) {
	if _, err := (PortOptions{DataBits: 9}).Normalize(); err == nil {
		t.Error("Expected error for 9 data bits")
	}
	if _, err := (PortOptions{DataBits: 4}).Normalize(); err == nil {
		t.Error("Expected error for 4 data bits")
	}
	if _, err := (PortOptions{StopBits: 3}).Normalize(); err == nil {
		t.Error("Expected error for 3 stop bits")
	}
}

// TestPortOptions_Equal tests configuration equality after normalization
func TestPortOptions_Equal(t *testing.T) {
	// Zero options equal the explicit defaults
	a := PortOptions{}
	b := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"}
	if !a.Equal(b) {
		t.Error("Zero options should equal explicit 115200 8N1")
	}

	c := PortOptions{BaudRate: 9600}
	if a.Equal(c) {
		t.Error("Different baud rates should not be equal")
	}

	// Invalid options never compare equal
	d := PortOptions{Parity: "mark"}
	if d.Equal(d) {
		t.Error("Invalid options should not compare equal")
	}
}

// TestPortOptions_SerialMode tests conversion to the serial library mode
func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}

	if mode.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", mode.BaudRate)
	}
	if mode.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", mode.DataBits)
	}
	if mode.StopBits != serial.OneStopBit {
		t.Errorf("StopBits = %v, want OneStopBit", mode.StopBits)
	}
	if mode.Parity != serial.NoParity {
		t.Errorf("Parity = %v, want NoParity", mode.Parity)
	}
}

// TestPortOptions_SerialMode_TwoStopBits tests the stop bit enum mapping
func TestPortOptions_SerialMode_TwoStopBits(t *testing.T) {
	mode, err := PortOptions{StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
}

// TestPortOptions_SerialMode_Parity tests parity enum mapping
func TestPortOptions_SerialMode_Parity(t *testing.T) {
	tests := []struct {
		parity string
		want   serial.Parity
	}{
		{"E", serial.EvenParity},
		{"O", serial.OddParity},
		{"N", serial.NoParity},
	}

	for _, tt := range tests {
		t.Run(tt.parity, func(t *testing.T) {
			mode, err := PortOptions{Parity: tt.parity}.SerialMode()
			if err != nil {
				t.Fatalf("SerialMode returned error: %v", err)
			}
			if mode.Parity != tt.want {
				t.Errorf("Parity = %v, want %v", mode.Parity, tt.want)
			}
		})
	}
}

// TestPortOptions_SerialMode_Invalid tests that invalid options are rejected
func TestPortOptions_SerialMode_Invalid(t *testing.T) {
	if _, err := (PortOptions{Parity: "mark"}).SerialMode(); err == nil {
		t.Error("Expected error for unsupported parity")
	}
	if _, err := (PortOptions{DataBits: 3}).SerialMode(); err == nil {
		t.Error("Expected error for invalid data bits")
	}
}
