// Command session-replay resends captured hand tracker traffic to a
// running service. Packets are paced by their captured gaps, so a
// recorded session reproduces the same cycle timing live.
//
// Reading capture files needs libpcap; build with -tags=pcap.
//
// Usage:
//
//	go run -tags=pcap ./cmd/tools/session-replay [flags]
//
// Flags:
//
//	-pcap      Capture file to replay (required)
//	-addr      Tracker address of the running service (default: localhost:9966)
//	-udp-port  Tracker UDP port in the capture (default: 9966)
//	-speed     Playback speed multiplier (default: 1.0)
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/haptable/haptable/internal/vision/netdetect"
)

func main() {
	pcapFile := flag.String("pcap", "", "Capture file to replay (required)")
	addr := flag.String("addr", "localhost:9966", "Tracker address of the running service")
	udpPort := flag.Int("udp-port", netdetect.DefaultPort, "Tracker UDP port in the capture")
	speed := flag.Float64("speed", 1.0, "Playback speed multiplier")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("Error: -pcap flag is required")
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("replaying %s to %s at %.2fx", *pcapFile, *addr, *speed)
	start := time.Now()

	err = netdetect.ReplayFile(ctx, *pcapFile, *udpPort, *speed, func(payload []byte, captured time.Time) error {
		_, err := conn.Write(payload)
		return err
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("Replay failed: %v", err)
	}

	log.Printf("done in %s", time.Since(start).Round(time.Millisecond))
}
