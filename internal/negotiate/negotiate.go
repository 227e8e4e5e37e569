// Package negotiate implements the role-specific half of a negotiation round.
//
// A source publishes the link record and starts its engine from local configuration; a sink
// polls the record until it is complete and consistent, then starts its engine from exactly
// the values it read. Both return a started engine that the caller must supervise and close.
package negotiate

import (
	"context"
	"errors"
	"time"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/engine"
	"openob.io/openob/internal/link"
	"openob.io/openob/internal/store"
)

// Negotiator resolves one round of a link.
type Negotiator interface {
	Role() core.Role
	// Negotiate returns a started engine and the parameters it was started with.
	// Errors carry a core.Kind; on error no engine is left running.
	Negotiate(ctx context.Context, ls *store.LinkStore) (engine.Engine, link.Params, error)
}

// Retry reasons reported by a sink while it waits for a usable record.
const (
	ReasonNotConfigured = "not_configured"
	ReasonMissingField  = "missing_field"
	ReasonMalformed     = "malformed"
	ReasonStaleCaps     = "stale_caps"
	ReasonTornRead      = "torn_read"
)

type options struct {
	delay      time.Duration
	sleeper    core.Sleeper
	generation func() string
	onRetry    func(reason string)
}

// Option configures a Negotiator.
type Option func(*options)

// WithDelay overrides the pause between sink polls.
func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// WithSleeper overrides how a sink waits between polls.
func WithSleeper(s core.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithGenerator overrides how a source mints round identifiers.
func WithGenerator(fn func() string) Option {
	return func(o *options) { o.generation = fn }
}

// WithRetryHook is called with the reason every time a sink has to poll again.
func WithRetryHook(fn func(reason string)) Option {
	return func(o *options) { o.onRetry = fn }
}

func buildOptions(opts []Option) options {
	o := options{delay: core.RetryDelay, sleeper: core.RealSleeper{}, generation: newGeneration}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RetryReason extracts the retry reason from a NegotiationIncomplete error.
func RetryReason(err error) string {
	var le *core.LinkError
	if errors.As(err, &le) && le.Kind == core.KindNegotiationIncomplete {
		return le.Op
	}
	return ""
}

// closeOnError closes eng and tags err as an engine failure.
func closeOnError(eng engine.Engine, op string, err error) error {
	return core.EngineFailure(op, closeJoined(eng, err))
}

// closeJoined closes eng and adds a close failure to err. err stays first, so its kind
// is kept.
func closeJoined(eng engine.Engine, err error) error {
	if cerr := eng.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}
