// Package gst implements a transport engine that runs a GStreamer pipeline through
// gst-launch-1.0.
package gst

import (
	"fmt"
	"time"

	"openob.io/openob/internal/engine"
)

// Name is the registry name of this engine.
const Name = "gst"

// Options configures the engine.
type Options struct {
	Binary      string        `mapstructure:"binary"`
	CapsTimeout time.Duration `mapstructure:"caps_timeout"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

func init() {
	engine.Register(Name, func(raw map[string]any) (engine.Factory, error) {
		opts := Options{
			Binary:      "gst-launch-1.0",
			CapsTimeout: 5 * time.Second,
			StopTimeout: 2 * time.Second,
		}
		if err := engine.DecodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		return NewFactory(opts), nil
	})
}

// Factory builds gst-launch engines.
type Factory struct {
	opts Options
}

// NewFactory returns a Factory using opts.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// NewSource builds a transmitter pipeline.
func (f *Factory) NewSource(spec engine.SourceSpec) (engine.Source, error) {
	args, err := sourceArgs(spec)
	if err != nil {
		return nil, fmt.Errorf("gst source: %w", err)
	}
	return newProcess(f.opts.Binary, "tx", args, f.opts.CapsTimeout, f.opts.StopTimeout), nil
}

// NewSink builds a receiver pipeline.
func (f *Factory) NewSink(spec engine.SinkSpec) (engine.Engine, error) {
	args, err := sinkArgs(spec)
	if err != nil {
		return nil, fmt.Errorf("gst sink: %w", err)
	}
	return newProcess(f.opts.Binary, "rx", args, f.opts.CapsTimeout, f.opts.StopTimeout), nil
}
