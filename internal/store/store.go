// Package store implements the client side of the shared configuration store.
//
// Both peers of a link coordinate exclusively through this store. The manager only needs
// get/set/connect semantics; there is no locking, TTL or versioning at this layer.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"openob.io/openob/internal/core"
)

// Store is a connected key-value store.
// Get reports ok=false for an absent key; err is reserved for transport failures.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Dialer opens a Store connection.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Store, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addr string) (Store, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (Store, error) { return f(ctx, addr) }

type connectOptions struct {
	delay     time.Duration
	sleeper   core.Sleeper
	onAttempt func(attempt int, err error)
}

// ConnectOption configures Connect.
type ConnectOption func(*connectOptions)

// WithDelay overrides the pause between attempts.
func WithDelay(d time.Duration) ConnectOption {
	return func(o *connectOptions) { o.delay = d }
}

// WithSleeper overrides how Connect waits between attempts.
func WithSleeper(s core.Sleeper) ConnectOption {
	return func(o *connectOptions) { o.sleeper = s }
}

// WithAttemptHook is called after every attempt; err is nil for the successful one.
func WithAttemptHook(fn func(attempt int, err error)) ConnectOption {
	return func(o *connectOptions) { o.onAttempt = fn }
}

// Connect dials addr until it succeeds. There is no attempt limit: the only ways out are a
// successful dial or ctx being cancelled, in which case ctx.Err() is returned.
func Connect(ctx context.Context, d Dialer, addr string, opts ...ConnectOption) (Store, error) {
	o := connectOptions{delay: core.RetryDelay, sleeper: core.RealSleeper{}}
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := d.Dial(ctx, addr)
		if o.onAttempt != nil {
			o.onAttempt(attempt, err)
		}
		if err == nil {
			slog.Info("connected to configuration server", "addr", addr, "attempts", attempt)
			return s, nil
		}
		slog.Warn("couldn't connect to configuration server, retrying",
			"addr", addr,
			"attempt", attempt,
			"retry_in", o.delay,
			"error", err,
		)
		if err := o.sleeper.Sleep(ctx, o.delay); err != nil {
			return nil, err
		}
	}
}

// LinkStore scopes a Store to one link's namespace and tags every failure as
// core.KindStoreUnavailable.
type LinkStore struct {
	store Store
	name  string
	ns    string
}

// NewLinkStore wraps s for linkName.
func NewLinkStore(s Store, linkName string) *LinkStore {
	return &LinkStore{store: s, name: linkName, ns: namespace(linkName)}
}

// Name returns the link name.
func (l *LinkStore) Name() string { return l.name }

// Key returns the full store key of field.
func (l *LinkStore) Key(field string) string { return l.ns + field }

// Get reads one field of the link record.
func (l *LinkStore) Get(ctx context.Context, field string) (string, bool, error) {
	v, ok, err := l.store.Get(ctx, l.Key(field))
	if err != nil {
		return "", false, core.StoreUnavailable("get "+l.Key(field), err)
	}
	return v, ok, nil
}

// Set writes one field of the link record.
func (l *LinkStore) Set(ctx context.Context, field, value string) error {
	if err := l.store.Set(ctx, l.Key(field), value); err != nil {
		return core.StoreUnavailable("set "+l.Key(field), err)
	}
	return nil
}

// Snapshot reads the given fields; absent fields are omitted from the result.
func (l *LinkStore) Snapshot(ctx context.Context, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok, err := l.Get(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		if ok {
			out[f] = v
		}
	}
	return out, nil
}
