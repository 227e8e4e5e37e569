package rtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	pionrtp "github.com/pion/rtp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"openob.io/openob/internal/engine"
)

type source struct {
	spec  engine.SourceSpec
	opts  Options
	input input

	mu        sync.Mutex
	conn      *net.UDPConn
	ssrc      uint32
	closeOnce sync.Once
}

func (s *source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return errors.New("rtp source: already started")
	}

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.spec.ReceiverHost, strconv.Itoa(s.spec.Port)))
	if err != nil {
		return fmt.Errorf("rtp source: resolve receiver: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("rtp source: %w", err)
	}
	if err := markDSCP(conn, raddr, s.opts.DSCP); err != nil {
		slog.Debug("rtp source: dscp marking unavailable", "error", err)
	}

	s.conn = conn
	s.ssrc = rand.Uint32()
	slog.Info("rtp source started", "receiver", raddr.String(), "ssrc", s.ssrc, "session", s.spec.SessionLabel)
	return nil
}

func (s *source) Caps(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return "", errors.New("rtp source: caps requested before start")
	}
	return buildCaps(s.ssrc), nil
}

// Run paces one packet per frame until ctx ends or a send fails. A receiver that is not
// listening yet (ICMP port unreachable) is not a failure.
func (s *source) Run(ctx context.Context) error {
	s.mu.Lock()
	conn, ssrc := s.conn, s.ssrc
	s.mu.Unlock()
	if conn == nil {
		return errors.New("rtp source: run before start")
	}

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	frame := make([]byte, FrameBytes)
	pkt := &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    PayloadType,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
			SSRC:           ssrc,
		},
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		s.input.Fill(frame)
		pkt.Payload = frame
		buf, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("rtp source: marshal: %w", err)
		}
		if _, err := conn.Write(buf); err != nil && !errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("rtp source: send: %w", err)
		}
		pkt.Marker = false
		pkt.SequenceNumber++
		pkt.Timestamp += SamplesPerFrame
	}
}

func (s *source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

func markDSCP(conn *net.UDPConn, raddr *net.UDPAddr, dscp int) error {
	if dscp <= 0 {
		return nil
	}
	if raddr.IP.To4() != nil {
		return ipv4.NewConn(conn).SetTOS(dscp << 2)
	}
	return ipv6.NewConn(conn).SetTrafficClass(dscp << 2)
}
