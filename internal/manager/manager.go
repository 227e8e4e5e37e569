// Package manager runs the per-role control loop of a link:
//
//	connecting_store -> negotiating -> running -> failed -> connecting_store
//
// Every recoverable failure, wherever it happens, ends the round; after a fixed delay the
// next round starts again from the store connection. An unclassified failure is returned
// to the caller. Cancelling the context is the only other way out of Run.
package manager

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/events"
	"openob.io/openob/internal/metrics"
	"openob.io/openob/internal/negotiate"
	"openob.io/openob/internal/store"
	"openob.io/openob/internal/supervisor"
)

const publishTimeout = 2 * time.Second

// Config identifies the link a Manager maintains.
type Config struct {
	Link      string
	StoreAddr string
}

// Manager maintains one link in one role.
type Manager struct {
	cfg        Config
	dialer     store.Dialer
	negotiator negotiate.Negotiator
	publisher  events.Publisher
	sleeper    core.Sleeper
	delay      time.Duration
	host       string

	mu    sync.Mutex
	phase core.Phase
	round int
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher sets where phase transitions are published.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithSleeper overrides how the manager waits between attempts.
func WithSleeper(s core.Sleeper) Option {
	return func(m *Manager) { m.sleeper = s }
}

// WithDelay overrides the pause between attempts.
func WithDelay(d time.Duration) Option {
	return func(m *Manager) { m.delay = d }
}

// New returns a Manager that connects through dialer and negotiates with n.
func New(cfg Config, dialer store.Dialer, n negotiate.Negotiator, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		dialer:     dialer,
		negotiator: n,
		publisher:  events.LogPublisher{},
		sleeper:    core.RealSleeper{},
		delay:      core.RetryDelay,
		phase:      core.PhaseConnectingStore,
	}
	m.host, _ = os.Hostname()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase returns the current phase.
func (m *Manager) Phase() core.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Round returns the number of the current negotiation round, from 1.
func (m *Manager) Round() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round
}

// Run loops until ctx is cancelled, in which case it returns nil, or an unclassified
// error occurs, which it returns.
func (m *Manager) Run(ctx context.Context) error {
	role := m.negotiator.Role()
	slog.Info("starting link manager", "link", m.cfg.Link, "role", role, "config_host", m.cfg.StoreAddr)

	for {
		m.mu.Lock()
		m.round++
		m.mu.Unlock()

		err := m.runRound(ctx)
		if ctx.Err() != nil {
			m.stop(ctx)
			return nil
		}

		kind := core.KindOf(err)
		metrics.RoundsTotal.WithLabelValues(string(role), kind.String()).Inc()
		if kind == core.KindUnclassified {
			slog.Error("unhandled error, please report this as a bug", "link", m.cfg.Link, "role", role, "error", err)
			m.transition(ctx, events.Event{Phase: core.PhaseFailed, Kind: kind.String(), Error: err.Error()})
			return err
		}
		if kind == core.KindEngineFailure {
			metrics.EngineFailuresTotal.WithLabelValues(string(role)).Inc()
		}

		slog.Warn("lost connection or the link failed, restarting",
			"link", m.cfg.Link,
			"role", role,
			"kind", kind,
			"error", err,
			"retry_in", m.delay,
		)
		m.transition(ctx, events.Event{Phase: core.PhaseFailed, Kind: kind.String(), Error: err.Error()})
		if err := m.sleeper.Sleep(ctx, m.delay); err != nil {
			m.stop(ctx)
			return nil
		}
	}
}

// runRound performs one round from store connection to engine termination. The store
// connection of the round is closed before it returns.
func (m *Manager) runRound(ctx context.Context) error {
	role := string(m.negotiator.Role())
	m.transition(ctx, events.Event{Phase: core.PhaseConnectingStore})

	s, err := store.Connect(ctx, m.dialer, m.cfg.StoreAddr,
		store.WithSleeper(m.sleeper),
		store.WithDelay(m.delay),
		store.WithAttemptHook(func(_ int, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			metrics.StoreConnectAttemptsTotal.WithLabelValues(role, result).Inc()
		}),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Debug("closing configuration store connection", "error", err)
		}
	}()

	m.transition(ctx, events.Event{Phase: core.PhaseNegotiating})
	eng, params, err := m.negotiator.Negotiate(ctx, store.NewLinkStore(s, m.cfg.Link))
	if err != nil {
		return err
	}

	m.transition(ctx, events.Event{Phase: core.PhaseRunning, Params: &params})
	slog.Info("link running", "link", m.cfg.Link, "role", role, "generation", params.Generation)
	return supervisor.Supervise(ctx, eng)
}

func (m *Manager) stop(ctx context.Context) {
	slog.Info("link manager stopped", "link", m.cfg.Link, "role", m.negotiator.Role())
	m.transition(ctx, events.Event{Phase: core.PhaseStopped})
}

// transition records the new phase and publishes ev, filling in the identifying fields.
func (m *Manager) transition(ctx context.Context, ev events.Event) {
	role := m.negotiator.Role()

	m.mu.Lock()
	m.phase = ev.Phase
	ev.Round = m.round
	m.mu.Unlock()
	metrics.SetPhase(role, ev.Phase)

	ev.Time = time.Now()
	ev.Host = m.host
	ev.Link = m.cfg.Link
	ev.Role = role

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := m.publisher.Publish(pctx, ev); err != nil {
		slog.Warn("failed to publish link event", "phase", ev.Phase, "error", err)
	}
}
