package gst

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const udpSinkName = "rtpsink"

// capsMarker precedes the negotiated caps on the udpsink pad line printed by gst-launch -v:
//
//	/GstPipeline:pipeline0/GstUDPSink:rtpsink.GstPad:sink: caps = application/x-rtp, ...
var capsMarker = "GstUDPSink:" + udpSinkName + ".GstPad:sink: caps = "

// process runs one gst-launch pipeline as a child process.
type process struct {
	binary      string
	args        []string
	role        string
	capsTimeout time.Duration
	stopTimeout time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	done    chan struct{}
	waitErr error

	capsOnce sync.Once
	capsCh   chan string
}

func newProcess(binary, role string, args []string, capsTimeout, stopTimeout time.Duration) *process {
	return &process{
		binary:      binary,
		args:        args,
		role:        role,
		capsTimeout: capsTimeout,
		stopTimeout: stopTimeout,
		capsCh:      make(chan string, 1),
	}
}

// Start launches the pipeline. The child outlives ctx; Close stops it.
func (p *process) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return errors.New("gst: already started")
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, p.binary, p.args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = p.stopTimeout
	cmd.Stdout = &lineWriter{fn: p.handleStdout}
	cmd.Stderr = &lineWriter{fn: func(line string) {
		slog.Warn("gst stderr", "role", p.role, "line", line)
	}}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", p.binary, err)
	}
	slog.Info("gst pipeline started", "role", p.role, "pid", cmd.Process.Pid)
	slog.Debug("gst pipeline", "role", p.role, "args", strings.Join(p.args, " "))

	p.cmd = cmd
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	return nil
}

func (p *process) handleStdout(line string) {
	if i := strings.Index(line, capsMarker); i >= 0 {
		caps := strings.TrimSpace(line[i+len(capsMarker):])
		p.capsOnce.Do(func() { p.capsCh <- caps })
	}
	slog.Debug("gst stdout", "role", p.role, "line", line)
}

// Caps waits for the udpsink caps line.
func (p *process) Caps(ctx context.Context) (string, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return "", errors.New("gst: caps requested before start")
	}

	timer := time.NewTimer(p.capsTimeout)
	defer timer.Stop()
	select {
	case caps := <-p.capsCh:
		p.capsCh <- caps
		return caps, nil
	case <-done:
		return "", fmt.Errorf("gst: pipeline exited before reporting caps: %v", p.exitErr())
	case <-timer.C:
		return "", fmt.Errorf("gst: no caps after %s", p.capsTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run blocks until the child exits.
func (p *process) Run(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return errors.New("gst: run before start")
	}

	select {
	case <-done:
		return fmt.Errorf("gst pipeline exited: %v", p.exitErr())
	case <-ctx.Done():
		_ = p.Close()
		return ctx.Err()
	}
}

func (p *process) exitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waitErr == nil {
		return errors.New("exit status 0")
	}
	return p.waitErr
}

// Close interrupts the child and waits for it to exit.
func (p *process) Close() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// lineWriter splits a byte stream into lines.
type lineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(b)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// partial line: keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(b), nil
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			w.fn(line)
		}
	}
}
