package negotiate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/engine"
	"openob.io/openob/internal/link"
	"openob.io/openob/internal/store"
)

func newGeneration() string { return uuid.NewString() }

// SourceConfig is the local configuration of a transmitter.
type SourceConfig struct {
	AudioInput   string
	Device       string
	ReceiverHost string
	// Params holds the four scalar fields; Caps and Generation are ignored.
	Params link.Params
}

// Source publishes the link record and starts the transmitting engine.
type Source struct {
	cfg     SourceConfig
	factory engine.Factory
	opts    options
}

// NewSource returns a source negotiator building engines with factory.
func NewSource(cfg SourceConfig, factory engine.Factory, opts ...Option) *Source {
	return &Source{cfg: cfg, factory: factory, opts: buildOptions(opts)}
}

func (s *Source) Role() core.Role { return core.RoleSource }

// Negotiate runs one source round.
//
// The generation is written before the scalars and caps_generation after caps, so a sink
// can tell a record whose caps belong to the current round from one left by a failed round.
func (s *Source) Negotiate(ctx context.Context, ls *store.LinkStore) (engine.Engine, link.Params, error) {
	p := s.cfg.Params
	p.Caps = ""
	p.Generation = s.opts.generation()

	if err := ls.Set(ctx, link.KeyGeneration, p.Generation); err != nil {
		return nil, link.Params{}, err
	}
	for _, kv := range p.Scalars() {
		if err := ls.Set(ctx, kv[0], kv[1]); err != nil {
			return nil, link.Params{}, err
		}
	}

	published, err := ls.Snapshot(ctx, link.KeyPort, link.KeyJitterBuffer, link.KeyEncoding, link.KeyBitrate)
	if err != nil {
		return nil, link.Params{}, err
	}
	slog.Info("configured transmitter",
		"link", ls.Name(),
		"port", published[link.KeyPort],
		"jitter_buffer_ms", published[link.KeyJitterBuffer],
		"encoding", published[link.KeyEncoding],
		"bitrate_kbps", published[link.KeyBitrate],
		"generation", p.Generation,
	)

	eng, err := s.factory.NewSource(engine.SourceSpec{
		AudioInput:   s.cfg.AudioInput,
		Device:       s.cfg.Device,
		Port:         p.Port,
		Encoding:     p.Encoding,
		BitrateKbps:  p.BitrateKbps,
		SessionLabel: link.SessionLabel(ls.Name()),
		ReceiverHost: s.cfg.ReceiverHost,
	})
	if err != nil {
		return nil, link.Params{}, core.EngineFailure("build source engine", err)
	}
	if err := eng.Start(ctx); err != nil {
		return nil, link.Params{}, closeOnError(eng, "start source engine", err)
	}

	caps, err := eng.Caps(ctx)
	if err == nil && caps == "" {
		err = errors.New("engine reported empty caps")
	}
	if err != nil {
		return nil, link.Params{}, closeOnError(eng, "read caps", err)
	}
	p.Caps = caps

	if err := ls.Set(ctx, link.KeyCaps, caps); err != nil {
		return nil, link.Params{}, closeJoined(eng, err)
	}
	if err := ls.Set(ctx, link.KeyCapsGeneration, p.Generation); err != nil {
		return nil, link.Params{}, closeJoined(eng, err)
	}
	slog.Info("published caps", "link", ls.Name(), "caps", caps)
	return eng, p, nil
}

var _ Negotiator = (*Source)(nil)

