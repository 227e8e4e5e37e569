package negotiate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"openob.io/openob/internal/link"
	"openob.io/openob/internal/store"
)

const testLink = "studio"

func newLinkStore(s store.Store) *store.LinkStore {
	return store.NewLinkStore(s, testLink)
}

// publish writes fields directly into the link record.
func publish(t *testing.T, ls *store.LinkStore, fields map[string]string) {
	t.Helper()
	for k, v := range fields {
		require.NoError(t, ls.Set(context.Background(), k, v))
	}
}

func record(t *testing.T, ls *store.LinkStore) map[string]string {
	t.Helper()
	snap, err := ls.Snapshot(context.Background(),
		link.KeyGeneration, link.KeyPort, link.KeyJitterBuffer, link.KeyEncoding,
		link.KeyBitrate, link.KeyCaps, link.KeyCapsGeneration)
	require.NoError(t, err)
	return snap
}

// recordingStore logs the field of every Set.
type recordingStore struct {
	store.Store
	mu   sync.Mutex
	sets []string
}

func (r *recordingStore) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	r.sets = append(r.sets, strings.TrimPrefix(key, link.Namespace(testLink)))
	r.mu.Unlock()
	return r.Store.Set(ctx, key, value)
}

// hookStore runs beforeGet ahead of every Get.
type hookStore struct {
	store.Store
	beforeGet func(field string)
}

func (h *hookStore) Get(ctx context.Context, key string) (string, bool, error) {
	if h.beforeGet != nil {
		h.beforeGet(strings.TrimPrefix(key, link.Namespace(testLink)))
	}
	return h.Store.Get(ctx, key)
}

// failSetStore fails every Set of one field.
type failSetStore struct {
	store.Store
	field string
}

func (f *failSetStore) Set(ctx context.Context, key, value string) error {
	if strings.TrimPrefix(key, link.Namespace(testLink)) == f.field {
		return errBroken
	}
	return f.Store.Set(ctx, key, value)
}

// brokenStore fails every operation like a dropped connection.
type brokenStore struct{}

var errBroken = errors.New("connection reset by peer")

func (brokenStore) Get(context.Context, string) (string, bool, error) { return "", false, errBroken }
func (brokenStore) Set(context.Context, string, string) error         { return errBroken }
func (brokenStore) Close() error                                       { return nil }

func sequence(ids ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	}
}
