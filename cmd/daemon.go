package cmd

import (
	"fmt"

	"openob.io/openob/internal/daemon"
)

// runDaemon runs one end of a link in the foreground until it is stopped or fails on an
// unclassified error.
func runDaemon(overrides map[string]any, opts ...daemon.Option) error {
	// Create daemon instance
	d, err := daemon.New(configFile, overrides, opts...)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Start all components
	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
