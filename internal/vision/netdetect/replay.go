//go:build pcap
// +build pcap

package netdetect

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReplayFile reads landmark packets for udpPort from a capture file
// and hands each payload to emit, pacing by the captured inter-packet
// gaps scaled by speed (1.0 = as recorded). Only available when built
// with the 'pcap' tag.
func ReplayFile(ctx context.Context, path string, udpPort int, speed float64, emit func(payload []byte, captured time.Time) error) error {
	if speed <= 0 {
		speed = 1.0
	}

	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return fmt.Errorf("open capture %s: %w", path, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("set BPF filter %q: %w", filter, err)
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	var lastCapture time.Time
	count := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet := <-source.Packets():
			if packet == nil {
				log.Printf("landmark replay complete: %d packets", count)
				return nil
			}

			captured := packet.Metadata().Timestamp
			if !lastCapture.IsZero() {
				gap := time.Duration(float64(captured.Sub(lastCapture)) / speed)
				if gap > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(gap):
					}
				}
			}
			lastCapture = captured

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			count++
			if err := emit(udp.Payload, captured); err != nil {
				return fmt.Errorf("emit packet %d: %w", count, err)
			}
		}
	}
}
