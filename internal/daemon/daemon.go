// Package daemon implements the process lifecycle around the link managers.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"openob.io/openob/internal/config"
	"openob.io/openob/internal/core"
	"openob.io/openob/internal/engine"
	"openob.io/openob/internal/events"
	logpkg "openob.io/openob/internal/log"
	"openob.io/openob/internal/manager"
	"openob.io/openob/internal/metrics"
	"openob.io/openob/internal/negotiate"
	"openob.io/openob/internal/store"
)

// Daemon manages one openob process: logging, PID file, metrics, events and the managers
// of the link.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	overrides  map[string]any
	loopback   bool

	// Core components
	managers      []*manager.Manager
	publisher     events.Publisher
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	sigChan  chan os.Signal
	stopOnce sync.Once
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLoopback runs both roles of the link in this process over an in-memory store.
func WithLoopback() Option {
	return func(d *Daemon) { d.loopback = true }
}

// New loads the configuration and creates a Daemon. overrides use config keys without the
// root key and win over the file and the environment.
func New(configPath string, overrides map[string]any, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		configPath: configPath,
		overrides:  overrides,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.loopback {
		merged := map[string]any{"store.backend": "memory", "link.role": string(core.RoleSource)}
		for k, v := range overrides {
			merged[k] = v
		}
		d.overrides = merged
	}

	cfg, err := config.Load(configPath, d.overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	d.config = cfg

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes every component. Managers do not run until Run is called.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting openob",
		"link", d.config.Link.Name,
		"role", d.config.Link.Role,
		"config_host", d.config.Link.ConfigHost,
		"engine", d.config.Engine.Name,
		"loopback", d.loopback,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Event publishers
	pub, err := d.buildPublisher()
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	d.publisher = pub

	// 5. Transport engine
	factory, err := engine.New(d.config.Engine.Name, d.config.Engine.Options)
	if err != nil {
		return fmt.Errorf("failed to create transport engine: %w", err)
	}

	// 6. Configuration store and managers
	dialer, addr := d.buildDialer()
	roles := []core.Role{d.config.Link.Role}
	if d.loopback {
		roles = []core.Role{core.RoleSource, core.RoleSink}
	}
	for _, role := range roles {
		m := manager.New(
			manager.Config{Link: d.config.Link.Name, StoreAddr: addr},
			dialer,
			d.buildNegotiator(role, factory),
			manager.WithPublisher(d.publisher),
		)
		d.managers = append(d.managers, m)
	}

	return nil
}

// Run runs the managers, blocking until shutdown.
// SIGTERM and SIGINT stop the link; SIGHUP re-applies the log configuration. The error of
// a manager that failed on an unclassified error is returned.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	g, gctx := errgroup.WithContext(d.ctx)
	for _, m := range d.managers {
		m := m
		g.Go(func() error { return m.Run(gctx) })
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.cancel()
				err := <-done
				d.Stop()
				return err

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case err := <-done:
			d.Stop()
			return err
		}
	}
}

// Stop releases every component. It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		slog.Info("initiating shutdown")

		// 1. Cancel context so managers close their engines
		d.cancel()

		// 2. Unregister signal handler
		if d.sigChan != nil {
			signal.Stop(d.sigChan)
		}

		// 3. Stop metrics server
		if d.metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := d.metricsServer.Stop(shutdownCtx); err != nil {
				slog.Error("error stopping metrics server", "error", err)
			}
		}

		// 4. Flush events
		if d.publisher != nil {
			if err := d.publisher.Close(); err != nil {
				slog.Error("error closing event publisher", "error", err)
			}
		}

		// 5. Remove PID file
		if err := d.removePIDFile(); err != nil {
			slog.Error("error removing PID file", "error", err)
		}

		slog.Info("openob stopped")

		// 6. Close log file
		_ = logpkg.Close()
	})
}

// Reload re-reads the configuration and applies the log settings.
// Everything else takes effect on restart.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath, d.overrides)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	old := d.config.Log
	d.config.Log = newConfig.Log
	if err := d.initLogging(); err != nil {
		d.config.Log = old
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	requiresRestart := []string{}
	if newConfig.Link != d.config.Link {
		requiresRestart = append(requiresRestart, "link")
	}
	if newConfig.Source != d.config.Source {
		requiresRestart = append(requiresRestart, "source")
	}
	if newConfig.Store != d.config.Store {
		requiresRestart = append(requiresRestart, "store")
	}
	if newConfig.Engine.Name != d.config.Engine.Name {
		requiresRestart = append(requiresRestart, "engine")
	}
	if newConfig.Metrics != d.config.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", []string{"log"},
		"requires_restart", requiresRestart,
	)
	return nil
}

// TriggerShutdown stops the managers; Run returns once they have.
func (d *Daemon) TriggerShutdown() {
	d.cancel()
}

// Managers returns the managers started by Start.
func (d *Daemon) Managers() []*manager.Manager {
	return d.managers
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}

	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)
	return nil
}

// buildDialer returns the store dialer and address for the configured backend.
func (d *Daemon) buildDialer() (store.Dialer, string) {
	if d.config.Store.Backend == "memory" {
		return store.MemoryDialer{Store: store.NewMemory()}, "memory"
	}
	sc := d.config.Store
	return store.RedisDialer{Options: store.RedisOptions{
		DB:           sc.DB,
		Password:     sc.Password,
		DialTimeout:  sc.DialTimeout,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}}, store.NormalizeAddr(d.config.Link.ConfigHost)
}

func (d *Daemon) buildNegotiator(role core.Role, factory engine.Factory) negotiate.Negotiator {
	if role == core.RoleSource {
		src := d.config.Source
		if d.loopback {
			src.ReceiverHost = "127.0.0.1"
		}
		return negotiate.NewSource(negotiate.SourceConfig{
			AudioInput:   src.AudioInput,
			Device:       src.Device,
			ReceiverHost: src.ReceiverHost,
			Params:       src.Params(),
		}, factory)
	}
	return negotiate.NewSink(negotiate.SinkConfig{
		AudioOutput: d.config.Sink.AudioOutput,
		Device:      d.config.Sink.Device,
	}, factory, negotiate.WithRetryHook(func(reason string) {
		metrics.NegotiationRetriesTotal.WithLabelValues(reason).Inc()
	}))
}

// buildPublisher always logs events and adds Kafka when enabled.
func (d *Daemon) buildPublisher() (events.Publisher, error) {
	pubs := events.Multi{events.LogPublisher{}}
	if kc := d.config.Events.Kafka; kc.Enabled {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      kc.Brokers,
			Topic:        kc.Topic,
			BatchTimeout: kc.BatchTimeout,
			Compression:  kc.Compression,
			MaxAttempts:  kc.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, kp)
	}
	return pubs, nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Debug("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		d.metricsServer = nil
		return err
	}
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	pidFile := d.config.Daemon.PIDFile
	if pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", pidFile, err)
	}

	slog.Debug("PID file written", "path", pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	pidFile := d.config.Daemon.PIDFile
	if pidFile == "" {
		return nil
	}

	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", pidFile, err)
	}

	slog.Debug("PID file removed", "path", pidFile)
	return nil
}
