// Package main is the entry point for the openob audio link.
package main

import (
	"fmt"
	"os"

	"openob.io/openob/cmd"

	// Transport engines register themselves with the engine registry.
	_ "openob.io/openob/internal/engine/gst"
	_ "openob.io/openob/internal/engine/rtp"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
