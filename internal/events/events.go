// Package events publishes link state transitions to observers outside the process.
package events

import (
	"context"
	"log/slog"
	"time"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/link"
)

// Event is one phase transition of a link manager.
type Event struct {
	Time  time.Time  `json:"time"`
	Host  string     `json:"host,omitempty"`
	Link  string     `json:"link"`
	Role  core.Role  `json:"role"`
	Phase core.Phase `json:"phase"`
	// Round counts negotiation rounds since the process started, from 1.
	Round int `json:"round"`
	// Kind and Error describe the failure that ended the round, for PhaseFailed.
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
	// Params is the record the engine was started with, for PhaseRunning.
	Params *link.Params `json:"params,omitempty"`
}

// Publisher delivers events. Implementations must be safe for use by one goroutine at a
// time; a failed Publish is logged by the caller and never stops the link.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher writes events to the process log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev Event) error {
	attrs := []any{"link", ev.Link, "role", ev.Role, "phase", ev.Phase, "round", ev.Round}
	if ev.Kind != "" {
		attrs = append(attrs, "kind", ev.Kind, "error", ev.Error)
	}
	slog.Debug("link event", attrs...)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Multi fans an event out to every publisher and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
