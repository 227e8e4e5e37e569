package negotiate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/engine"
	"openob.io/openob/internal/link"
	"openob.io/openob/internal/store"
)

var errNotConfigured = errors.New("port not published")

// SinkConfig is the local configuration of a receiver. Everything else comes from the store.
type SinkConfig struct {
	AudioOutput string
	Device      string
}

// Sink polls the link record and starts the receiving engine.
type Sink struct {
	cfg     SinkConfig
	factory engine.Factory
	opts    options
}

// NewSink returns a sink negotiator building engines with factory.
func NewSink(cfg SinkConfig, factory engine.Factory, opts ...Option) *Sink {
	return &Sink{cfg: cfg, factory: factory, opts: buildOptions(opts)}
}

func (s *Sink) Role() core.Role { return core.RoleSink }

// Negotiate polls until a complete record is read, then starts the sink engine with it.
// Store errors end the round; an incomplete record never does.
func (s *Sink) Negotiate(ctx context.Context, ls *store.LinkStore) (engine.Engine, link.Params, error) {
	var p link.Params
	for {
		var err error
		p, err = readRecord(ctx, ls)
		if err == nil {
			break
		}
		if core.KindOf(err) != core.KindNegotiationIncomplete {
			return nil, link.Params{}, err
		}

		reason := RetryReason(err)
		if reason == ReasonNotConfigured {
			slog.Info("not yet configured; has the transmitter been started, and is the link name the same on each end?",
				"link", ls.Name())
		} else {
			slog.Info("link not yet configured, retrying",
				"link", ls.Name(), "reason", reason, "error", err)
		}
		if s.opts.onRetry != nil {
			s.opts.onRetry(reason)
		}
		if err := s.opts.sleeper.Sleep(ctx, s.opts.delay); err != nil {
			return nil, link.Params{}, err
		}
	}

	slog.Info("configured from transmitter",
		"link", ls.Name(),
		"port", p.Port,
		"jitter_buffer_ms", p.JitterBufferMS,
		"encoding", p.Encoding,
		"bitrate_kbps", p.BitrateKbps,
		"caps", p.Caps,
		"generation", p.Generation,
	)

	eng, err := s.factory.NewSink(engine.SinkSpec{
		AudioOutput:    s.cfg.AudioOutput,
		Device:         s.cfg.Device,
		Port:           p.Port,
		Encoding:       p.Encoding,
		Caps:           p.Caps,
		BitrateKbps:    p.BitrateKbps,
		JitterBufferMS: p.JitterBufferMS,
		SessionLabel:   link.SessionLabel(ls.Name()),
	})
	if err != nil {
		return nil, link.Params{}, core.EngineFailure("build sink engine", err)
	}
	if err := eng.Start(ctx); err != nil {
		return nil, link.Params{}, closeOnError(eng, "start sink engine", err)
	}
	return eng, p, nil
}

// recordReader reads fields in call order and remembers the first store error.
type recordReader struct {
	ctx context.Context
	ls  *store.LinkStore
	err error
}

func (r *recordReader) get(field string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok, err := r.ls.Get(r.ctx, field)
	if err != nil {
		r.err = err
		return "", false
	}
	return v, ok
}

// readRecord performs one poll. The read order is fixed: generation, caps_generation,
// port, caps, jitter_buffer, encoding, bitrate, then generation again.
func readRecord(ctx context.Context, ls *store.LinkStore) (link.Params, error) {
	r := &recordReader{ctx: ctx, ls: ls}

	gen, hasGen := r.get(link.KeyGeneration)
	capsGen, _ := r.get(link.KeyCapsGeneration)
	port, hasPort := r.get(link.KeyPort)
	if r.err != nil {
		return link.Params{}, r.err
	}
	if !hasPort {
		return link.Params{}, core.NegotiationIncomplete(ReasonNotConfigured, errNotConfigured)
	}
	caps, _ := r.get(link.KeyCaps)
	jitter, hasJitter := r.get(link.KeyJitterBuffer)
	encoding, hasEncoding := r.get(link.KeyEncoding)
	bitrate, hasBitrate := r.get(link.KeyBitrate)
	genAfter, hasGenAfter := r.get(link.KeyGeneration)
	if r.err != nil {
		return link.Params{}, r.err
	}

	switch {
	case caps == "":
		return link.Params{}, core.NegotiationIncomplete(ReasonMissingField, errors.New("caps not published yet"))
	case !hasJitter, !hasEncoding, !hasBitrate:
		return link.Params{}, core.NegotiationIncomplete(ReasonMissingField,
			fmt.Errorf("record incomplete (jitter_buffer=%t encoding=%t bitrate=%t)", hasJitter, hasEncoding, hasBitrate))
	case hasGen != hasGenAfter || gen != genAfter:
		return link.Params{}, core.NegotiationIncomplete(ReasonTornRead,
			fmt.Errorf("generation changed from %q to %q while reading", gen, genAfter))
	case hasGen && capsGen != gen:
		return link.Params{}, core.NegotiationIncomplete(ReasonStaleCaps,
			fmt.Errorf("caps from generation %q, record is generation %q", capsGen, gen))
	}

	p, err := parseRecord(port, jitter, encoding, bitrate)
	if err != nil {
		return link.Params{}, core.NegotiationIncomplete(ReasonMalformed, err)
	}
	p.Caps = caps
	p.Generation = gen
	return p, nil
}

func parseRecord(port, jitter, encoding, bitrate string) (link.Params, error) {
	var p link.Params
	var err error
	if p.Port, err = link.ParseInt(link.KeyPort, port); err != nil {
		return p, err
	}
	if p.JitterBufferMS, err = link.ParseInt(link.KeyJitterBuffer, jitter); err != nil {
		return p, err
	}
	if p.Encoding, err = link.ParseEncoding(encoding); err != nil {
		return p, err
	}
	if p.BitrateKbps, err = link.ParseInt(link.KeyBitrate, bitrate); err != nil {
		return p, err
	}
	return p, p.ValidateScalars()
}

var _ Negotiator = (*Sink)(nil)
