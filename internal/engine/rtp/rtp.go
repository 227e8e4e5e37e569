// Package rtp implements an in-process transport engine that streams uncompressed L16 audio
// over RTP. It needs no external media framework, which makes it the engine of choice for
// loopback checks and tests.
package rtp

import (
	"fmt"
	"time"

	"openob.io/openob/internal/engine"
	"openob.io/openob/internal/link"
)

// Name is the registry name of this engine.
const Name = "rtp"

// Stream format. 5ms frames keep one packet under a 1500 byte MTU.
const (
	SampleRate      = 48000
	Channels        = 2
	FrameMillis     = 5
	FrameDuration   = FrameMillis * time.Millisecond
	SamplesPerFrame = SampleRate * FrameMillis / 1000
	FrameBytes      = SamplesPerFrame * Channels * 2
	PayloadType     = 96
)

// Options configures the engine.
type Options struct {
	// IdleTimeout fails a sink that receives nothing for this long. Zero disables it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// ToneHz is the frequency of the "test" input.
	ToneHz float64 `mapstructure:"tone_hz"`
	// DSCP marks outgoing media packets; 46 is Expedited Forwarding.
	DSCP int `mapstructure:"dscp"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{IdleTimeout: 5 * time.Second, ToneHz: 440, DSCP: 46}
}

func init() {
	engine.Register(Name, func(raw map[string]any) (engine.Factory, error) {
		opts := DefaultOptions()
		if err := engine.DecodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		return NewFactory(opts), nil
	})
}

// Factory builds RTP engines.
type Factory struct {
	opts Options
}

// NewFactory returns a Factory using opts.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// NewSource builds a transmitter. Only PCM is supported.
func (f *Factory) NewSource(spec engine.SourceSpec) (engine.Source, error) {
	if spec.Encoding != link.EncodingPCM {
		return nil, fmt.Errorf("rtp engine: encoding %q not supported (pcm only)", spec.Encoding)
	}
	in, err := newInput(spec.AudioInput, f.opts.ToneHz)
	if err != nil {
		return nil, fmt.Errorf("rtp engine: %w", err)
	}
	return &source{spec: spec, opts: f.opts, input: in}, nil
}

// NewSink builds a receiver. Only PCM is supported.
func (f *Factory) NewSink(spec engine.SinkSpec) (engine.Engine, error) {
	if spec.Encoding != link.EncodingPCM {
		return nil, fmt.Errorf("rtp engine: encoding %q not supported (pcm only)", spec.Encoding)
	}
	if err := checkCaps(spec.Caps); err != nil {
		return nil, fmt.Errorf("rtp engine: %w", err)
	}
	return &sink{spec: spec, opts: f.opts}, nil
}
