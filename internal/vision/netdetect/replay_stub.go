//go:build !pcap
// +build !pcap

package netdetect

import (
	"context"
	"fmt"
	"time"
)

// ReplayFile is a stub when capture replay is disabled. Build with
// -tags=pcap to enable reading capture files.
func ReplayFile(ctx context.Context, path string, udpPort int, speed float64, emit func(payload []byte, captured time.Time) error) error {
	return fmt.Errorf("capture replay not enabled: rebuild with -tags=pcap")
}
