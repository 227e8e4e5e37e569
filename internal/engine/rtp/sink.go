package rtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	pionrtp "github.com/pion/rtp"

	"openob.io/openob/internal/engine"
)

type sink struct {
	spec engine.SinkSpec
	opts Options

	mu        sync.Mutex
	conn      *net.UDPConn
	out       io.WriteCloser
	closeOnce sync.Once
}

func (s *sink) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return errors.New("rtp sink: already started")
	}

	out, err := newOutput(s.spec.AudioOutput, s.spec.Device)
	if err != nil {
		return fmt.Errorf("rtp sink: %w", err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.spec.Port})
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("rtp sink: %w", err)
	}
	s.conn = conn
	s.out = out
	slog.Info("rtp sink listening", "addr", conn.LocalAddr().String(),
		"jitter_buffer_ms", s.spec.JitterBufferMS, "session", s.spec.SessionLabel)
	return nil
}

// LocalAddr returns the bound address, or nil before Start.
func (s *sink) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run plays out received frames until ctx ends, the socket fails or the stream goes idle.
func (s *sink) Run(ctx context.Context) error {
	s.mu.Lock()
	conn, out := s.conn, s.out
	s.mu.Unlock()
	if conn == nil {
		return errors.New("rtp sink: run before start")
	}

	packets := make(chan []byte, 64)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go s.readLoop(conn, packets, readErr, stop)

	jb := newJitterBuffer(time.Duration(s.spec.JitterBufferMS) * time.Millisecond)
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()
	silent := make([]byte, FrameBytes)

	var lost uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("rtp sink: no media for %s", s.opts.IdleTimeout)
			}
			return fmt.Errorf("rtp sink: receive: %w", err)
		case b := <-packets:
			var pkt pionrtp.Packet
			if err := pkt.Unmarshal(b); err != nil || pkt.PayloadType != PayloadType {
				continue
			}
			resyncs := jb.Resyncs()
			jb.Push(pkt.SSRC, pkt.SequenceNumber, pkt.Payload, time.Now())
			if jb.Resyncs() != resyncs {
				slog.Info("rtp sink: new stream, resynchronized", "ssrc", pkt.SSRC, "seq", pkt.SequenceNumber)
			}
		case now := <-ticker.C:
			n, err := playout(jb, now, out, silent)
			if err != nil {
				return fmt.Errorf("rtp sink: output: %w", err)
			}
			if n > 0 {
				lost += uint64(n)
				slog.Debug("rtp sink: frames lost", "lost", n, "total_lost", lost)
			}
		}
	}
}

// maxLostPerTick bounds the silence written for lost frames in one tick.
const maxLostPerTick = 2

// playout writes every frame due at now to out, substituting silent for lost frames,
// and returns the number of lost frames written.
func playout(jb *jitterBuffer, now time.Time, out io.Writer, silent []byte) (int, error) {
	lost := 0
	for lost < maxLostPerTick {
		payload, wasLost, ok := jb.Pop(now)
		if !ok {
			break
		}
		if wasLost {
			lost++
			payload = silent
		}
		if _, err := out.Write(payload); err != nil {
			return lost, err
		}
	}
	return lost, nil
}

func (s *sink) readLoop(conn *net.UDPConn, packets chan<- []byte, readErr chan<- error, stop <-chan struct{}) {
	buf := make([]byte, 1500)
	for {
		if s.opts.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			readErr <- err
			return
		}
		b := make([]byte, n)
		copy(b, buf[:n])
		select {
		case packets <- b:
		case <-stop:
			return
		}
	}
}

func (s *sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn != nil {
			err = errors.Join(s.conn.Close(), s.out.Close())
		}
	})
	return err
}
