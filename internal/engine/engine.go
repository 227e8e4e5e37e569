// Package engine defines the transport engine contract and a registry of engine
// implementations.
//
// An engine moves the audio: capture, encode, RTP and playback all live behind it. The
// manager only constructs one, starts it, asks a source engine for its capability
// descriptor, and blocks in Run until it fails.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/link"
)

// Engine is one running transport instance.
type Engine interface {
	// Start initializes the engine; it fails if the engine cannot bind or initialize.
	Start(ctx context.Context) error
	// Run blocks until the link terminates. It always returns a non-nil error.
	Run(ctx context.Context) error
	// Close releases every resource. Safe to call more than once and before Start.
	Close() error
}

// Source is the transmitting engine variant.
type Source interface {
	Engine
	// Caps returns the capability descriptor a sink needs to decode the stream.
	// Only valid after a successful Start.
	Caps(ctx context.Context) (string, error)
}

// SourceSpec is everything a source engine is constructed with.
type SourceSpec struct {
	AudioInput   string
	Device       string
	Port         int
	Encoding     link.Encoding
	BitrateKbps  int
	SessionLabel string
	ReceiverHost string
}

// SinkSpec is everything a sink engine is constructed with.
type SinkSpec struct {
	AudioOutput    string
	Device         string
	Port           int
	Encoding       link.Encoding
	Caps           string
	BitrateKbps    int
	JitterBufferMS int
	SessionLabel   string
}

// Factory builds engines of one implementation.
type Factory interface {
	NewSource(spec SourceSpec) (Source, error)
	NewSink(spec SinkSpec) (Engine, error)
}

// Constructor builds a Factory from implementation-specific options.
type Constructor func(options map[string]any) (Factory, error)

type registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

var engines = &registry{ctors: make(map[string]Constructor)}

// Register makes an engine implementation available under name.
// Registering the same name twice panics.
func Register(name string, c Constructor) {
	engines.mu.Lock()
	defer engines.mu.Unlock()
	if _, dup := engines.ctors[name]; dup {
		panic("engine: Register called twice for " + name)
	}
	engines.ctors[name] = c
}

// New builds the Factory registered under name.
func New(name string, options map[string]any) (Factory, error) {
	engines.mu.RLock()
	c, ok := engines.ctors[name]
	engines.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", core.ErrEngineNotFound, name, Names())
	}
	f, err := c(options)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", name, err)
	}
	return f, nil
}

// Names lists the registered engines in sorted order.
func Names() []string {
	engines.mu.RLock()
	defer engines.mu.RUnlock()
	names := make([]string, 0, len(engines.ctors))
	for n := range engines.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DecodeOptions decodes an options map into out. Durations may be given as strings
// ("5s") and numbers as strings, matching values coming from YAML or env.
func DecodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("%w: engine options: %v", core.ErrConfigInvalid, err)
	}
	return nil
}
