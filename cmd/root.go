// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile    string
	logLevel      string
	logFormat     string
	pidFile       string
	metricsListen string
	storeBackend  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "openob",
	Short: "openob - Open source outside broadcast audio link",
	Long: `openob carries live audio between two hosts over RTP.

A transmitter (tx) publishes its link parameters and stream caps to a shared
Redis configuration store; a receiver (rx) reads them and starts a matching
receive pipeline. Both ends reconnect and renegotiate on any failure.

Features:
  - PCM, CELT and Opus encodings with configurable bitrate and jitter buffer
  - GStreamer engine, or a pure Go RTP engine for PCM loopback checks
  - Prometheus metrics and Kafka link events`,
	Version:       "4.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"log format (json/text)")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pidfile", "",
		"PID file path")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "",
		"serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store-backend", "redis",
		"configuration store backend (redis/memory)")

	// Add subcommands
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(rxCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
}

// globalOverrides maps the global flags the user set onto config keys.
// Unset flags leave the file, environment and defaults in charge.
func globalOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		overrides["log.level"] = logLevel
	}
	if flags.Changed("log-format") {
		overrides["log.format"] = logFormat
	}
	if flags.Changed("pidfile") {
		overrides["daemon.pid_file"] = pidFile
	}
	if flags.Changed("metrics-listen") {
		overrides["metrics.enabled"] = true
		overrides["metrics.listen"] = metricsListen
	}
	if flags.Changed("store-backend") {
		overrides["store.backend"] = storeBackend
	}
	return overrides
}
