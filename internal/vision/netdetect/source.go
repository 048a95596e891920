package netdetect

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haptable/haptable/internal/vision"
)

// DefaultPort is the landmark stream port the companion tracker sends
// to.
const DefaultPort = 9966

// SourceConfig configures the UDP landmark receiver.
type SourceConfig struct {
	Addr        string        // listen address, e.g. ":9966"
	RcvBuf      int           // socket receive buffer in bytes, 0 = OS default
	LogInterval time.Duration // stats log cadence, 0 disables
}

// Stats counts receiver activity since start.
type Stats struct {
	Packets    uint64
	BadPackets uint64
	Dropped    uint64
}

// Source is a vision.LandmarkSource reading landmark packets off UDP.
// Run must be started on its own goroutine; Next hands the loop the
// freshest observation, dropping stale ones rather than queueing.
type Source struct {
	cfg  SourceConfig
	conn *net.UDPConn

	latest chan vision.Observation
	done   chan struct{}
	once   sync.Once

	packets    atomic.Uint64
	badPackets atomic.Uint64
	dropped    atomic.Uint64
}

// New opens the UDP socket. The caller owns starting Run and calling
// Close.
func New(cfg SourceConfig) (*Source, error) {
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf(":%d", DefaultPort)
	}
	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve landmark listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for landmark packets: %w", err)
	}
	if cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(cfg.RcvBuf); err != nil {
			log.Printf("Warning: failed to set UDP receive buffer to %d bytes: %v", cfg.RcvBuf, err)
		}
	}
	return &Source{
		cfg:    cfg,
		conn:   conn,
		latest: make(chan vision.Observation, 1),
		done:   make(chan struct{}),
	}, nil
}

// Run receives and decodes packets until the context ends or the
// socket closes. Decode failures are counted, not fatal.
func (s *Source) Run(ctx context.Context) error {
	log.Printf("Listening for landmark packets on %s", s.conn.LocalAddr())

	if s.cfg.LogInterval > 0 {
		go s.logStats(ctx)
	}

	buf := make([]byte, maxPacketLen+1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Bounded read so context cancellation is noticed.
		if err := s.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.done:
				return nil
			default:
			}
			log.Printf("Error reading landmark packet: %v", err)
			continue
		}

		obs, err := Decode(buf[:n])
		if err != nil {
			s.badPackets.Add(1)
			debugf("dropping undecodable packet: %v", err)
			continue
		}
		s.packets.Add(1)
		s.publish(obs)
	}
}

// publish replaces any stale unconsumed observation with the new one.
func (s *Source) publish(obs vision.Observation) {
	select {
	case s.latest <- obs:
		return
	default:
	}
	select {
	case <-s.latest:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.latest <- obs:
	default:
		s.dropped.Add(1)
	}
}

// Next implements vision.LandmarkSource.
func (s *Source) Next(ctx context.Context) (vision.Observation, error) {
	select {
	case obs := <-s.latest:
		return obs, nil
	case <-ctx.Done():
		return vision.Observation{}, ctx.Err()
	case <-s.done:
		select {
		case obs := <-s.latest:
			return obs, nil
		default:
			return vision.Observation{}, io.EOF
		}
	}
}

// Close implements vision.LandmarkSource. It unblocks Run and Next.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// CurrentStats returns the receive counters.
func (s *Source) CurrentStats() Stats {
	return Stats{
		Packets:    s.packets.Load(),
		BadPackets: s.badPackets.Load(),
		Dropped:    s.dropped.Load(),
	}
}

func (s *Source) logStats(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			st := s.CurrentStats()
			log.Printf("landmark stream: %d packets, %d undecodable, %d dropped stale",
				st.Packets, st.BadPackets, st.Dropped)
		}
	}
}
