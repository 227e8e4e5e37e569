package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/core/coretest"
)

// flakyDialer fails the first `failures` dials.
type flakyDialer struct {
	failures int
	dials    int
	store    Store
}

func (d *flakyDialer) Dial(_ context.Context, _ string) (Store, error) {
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	return d.store, nil
}

func TestConnectRetriesUntilSuccess(t *testing.T) {
	for _, failures := range []int{0, 1, 5} {
		d := &flakyDialer{failures: failures, store: NewMemory()}
		sl := &coretest.Sleeper{}
		var attempts []error

		s, err := Connect(context.Background(), d, "localhost", WithSleeper(sl),
			WithAttemptHook(func(_ int, err error) { attempts = append(attempts, err) }))

		require.NoError(t, err)
		assert.NotNil(t, s)
		assert.Equal(t, failures+1, d.dials)
		assert.Len(t, attempts, failures+1)
		assert.NoError(t, attempts[len(attempts)-1])
		require.Len(t, sl.Calls(), failures)
		for _, c := range sl.Calls() {
			assert.GreaterOrEqual(t, c, core.RetryDelay)
		}
	}
}

func TestConnectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &flakyDialer{failures: 1 << 30}
	sl := &coretest.Sleeper{OnSleep: func(n int) {
		if n == 3 {
			cancel()
		}
	}}

	s, err := Connect(ctx, d, "localhost", WithSleeper(sl))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, d.dials)
}

func TestConnectCustomDelay(t *testing.T) {
	d := &flakyDialer{failures: 2, store: NewMemory()}
	sl := &coretest.Sleeper{}

	_, err := Connect(context.Background(), d, "x", WithSleeper(sl), WithDelay(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sl.Calls())
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("broken pipe")
}
func (brokenStore) Set(context.Context, string, string) error { return errors.New("broken pipe") }
func (brokenStore) Close() error                              { return nil }

func TestLinkStoreNamespacing(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	ls := NewLinkStore(mem, "studio-a")

	require.NoError(t, ls.Set(ctx, "port", "3000"))

	v, ok, err := mem.Get(ctx, "openob2:studio-a:port")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3000", v)

	_, ok, err = ls.Get(ctx, "caps")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "studio-a", ls.Name())
}

func TestLinkStoreTagsFailures(t *testing.T) {
	ctx := context.Background()
	ls := NewLinkStore(brokenStore{}, "l")

	_, _, err := ls.Get(ctx, "port")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Equal(t, core.KindStoreUnavailable, core.KindOf(err))

	err = ls.Set(ctx, "port", "1")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "openob2:l:port")
}

func TestLinkStoreSnapshot(t *testing.T) {
	ctx := context.Background()
	ls := NewLinkStore(NewMemory(), "l")
	require.NoError(t, ls.Set(ctx, "port", "3000"))
	require.NoError(t, ls.Set(ctx, "encoding", "opus"))

	snap, err := ls.Snapshot(ctx, "port", "caps", "encoding")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"port": "3000", "encoding": "opus"}, snap)
}
