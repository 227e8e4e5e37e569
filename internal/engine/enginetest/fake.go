// Package enginetest provides an in-memory engine.Factory for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"openob.io/openob/internal/engine"
)

// Engine is a fake transport engine. Run blocks until ctx ends unless RunErr is set.
type Engine struct {
	caps     string
	capsErr  error
	startErr error
	runErr   error
	closeErr error
	onRun    func()

	mu      sync.Mutex
	started bool
	closed  int
}

func (e *Engine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.started = true
	return nil
}

func (e *Engine) Caps(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return "", errors.New("enginetest: caps before start")
	}
	return e.caps, e.capsErr
}

func (e *Engine) Run(ctx context.Context) error {
	if e.onRun != nil {
		e.onRun()
	}
	if e.runErr != nil {
		return e.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return e.closeErr
}

// Started reports whether Start succeeded.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Closed returns how many times Close was called.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Factory records every spec it is asked to build and hands out fake engines.
// Per-engine behavior is indexed by construction order, counting sources and sinks together.
type Factory struct {
	// Caps is returned by every source engine.
	Caps string
	// NewErr fails every construction.
	NewErr error
	// StartErrs, CapsErrs, RunErrs and CloseErrs configure engine n; missing entries mean
	// success (for RunErrs: block until cancelled).
	StartErrs []error
	CapsErrs  []error
	RunErrs   []error
	CloseErrs []error
	// OnRun is called when engine n enters Run.
	OnRun func(n int)

	mu      sync.Mutex
	sources []engine.SourceSpec
	sinks   []engine.SinkSpec
	engines []*Engine
}

func (f *Factory) NewSource(spec engine.SourceSpec) (engine.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	f.sources = append(f.sources, spec)
	return f.build(), nil
}

func (f *Factory) NewSink(spec engine.SinkSpec) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	f.sinks = append(f.sinks, spec)
	return f.build(), nil
}

func (f *Factory) build() *Engine {
	n := len(f.engines)
	e := &Engine{
		caps:     f.Caps,
		startErr: at(f.StartErrs, n),
		capsErr:  at(f.CapsErrs, n),
		runErr:   at(f.RunErrs, n),
		closeErr: at(f.CloseErrs, n),
	}
	if f.OnRun != nil {
		hook := f.OnRun
		e.onRun = func() { hook(n) }
	}
	f.engines = append(f.engines, e)
	return e
}

func at(errs []error, n int) error {
	if n < len(errs) {
		return errs[n]
	}
	return nil
}

// Sources returns the specs of every source built so far.
func (f *Factory) Sources() []engine.SourceSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.SourceSpec(nil), f.sources...)
}

// Sinks returns the specs of every sink built so far.
func (f *Factory) Sinks() []engine.SinkSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.SinkSpec(nil), f.sinks...)
}

// Engines returns every engine built so far.
func (f *Factory) Engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Engine(nil), f.engines...)
}

var _ engine.Factory = (*Factory)(nil)
