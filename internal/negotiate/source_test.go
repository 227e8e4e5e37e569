package negotiate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/engine"
	"openob.io/openob/internal/engine/enginetest"
	"openob.io/openob/internal/link"
	"openob.io/openob/internal/store"
)

func defaultSourceConfig() SourceConfig {
	return SourceConfig{
		AudioInput:   "alsa",
		Device:       "hw:0",
		ReceiverHost: "rx.example.net",
		Params: link.Params{
			Port:           link.DefaultPort,
			JitterBufferMS: link.DefaultJitterBufferMS,
			Encoding:       link.DefaultEncoding,
			BitrateKbps:    link.DefaultBitrateKbps,
		},
	}
}

func TestSourcePublishesRecord(t *testing.T) {
	ls := newLinkStore(store.NewMemory())
	f := &enginetest.Factory{Caps: "caps-v1"}
	src := NewSource(defaultSourceConfig(), f, WithGenerator(sequence("g1")))

	eng, p, err := src.Negotiate(context.Background(), ls)
	require.NoError(t, err)
	require.NotNil(t, eng)

	assert.Equal(t, map[string]string{
		link.KeyGeneration:     "g1",
		link.KeyPort:           "3000",
		link.KeyJitterBuffer:   "150",
		link.KeyEncoding:       "opus",
		link.KeyBitrate:        "96",
		link.KeyCaps:           "caps-v1",
		link.KeyCapsGeneration: "g1",
	}, record(t, ls))
	assert.Equal(t, link.Params{
		Port: 3000, JitterBufferMS: 150, Encoding: link.EncodingOpus, BitrateKbps: 96,
		Caps: "caps-v1", Generation: "g1",
	}, p)

	require.Len(t, f.Sources(), 1)
	assert.Equal(t, engine.SourceSpec{
		AudioInput:   "alsa",
		Device:       "hw:0",
		Port:         3000,
		Encoding:     link.EncodingOpus,
		BitrateKbps:  96,
		SessionLabel: "openob_tx_studio",
		ReceiverHost: "rx.example.net",
	}, f.Sources()[0])
	assert.True(t, f.Engines()[0].Started())
	assert.Zero(t, f.Engines()[0].Closed(), "running engine belongs to the caller")
}

func TestSourceWriteOrder(t *testing.T) {
	rec := &recordingStore{Store: store.NewMemory()}
	src := NewSource(defaultSourceConfig(), &enginetest.Factory{Caps: "c"})

	_, _, err := src.Negotiate(context.Background(), newLinkStore(rec))
	require.NoError(t, err)

	assert.Equal(t, []string{
		link.KeyGeneration,
		link.KeyPort, link.KeyJitterBuffer, link.KeyEncoding, link.KeyBitrate,
		link.KeyCaps, link.KeyCapsGeneration,
	}, rec.sets)
}

func TestSourceRoundsAreIdempotent(t *testing.T) {
	ls := newLinkStore(store.NewMemory())
	src := NewSource(defaultSourceConfig(), &enginetest.Factory{Caps: "c"}, WithGenerator(sequence("g1", "g2")))
	scalars := []string{link.KeyPort, link.KeyJitterBuffer, link.KeyEncoding, link.KeyBitrate}

	_, first, err := src.Negotiate(context.Background(), ls)
	require.NoError(t, err)
	snap1, err := ls.Snapshot(context.Background(), scalars...)
	require.NoError(t, err)

	_, second, err := src.Negotiate(context.Background(), ls)
	require.NoError(t, err)
	snap2, err := ls.Snapshot(context.Background(), scalars...)
	require.NoError(t, err)

	assert.Equal(t, snap1, snap2)
	assert.NotEqual(t, first.Generation, second.Generation)
	assert.Equal(t, "g2", record(t, ls)[link.KeyCapsGeneration])
}

func TestSourceEngineFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		factory   *enginetest.Factory
		wantBuilt bool
	}{
		{"construction", &enginetest.Factory{Caps: "c", NewErr: boom}, false},
		{"start", &enginetest.Factory{Caps: "c", StartErrs: []error{boom}}, true},
		{"caps", &enginetest.Factory{Caps: "c", CapsErrs: []error{boom}}, true},
		{"empty caps", &enginetest.Factory{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls := newLinkStore(store.NewMemory())
			publish(t, ls, map[string]string{link.KeyCaps: "stale", link.KeyCapsGeneration: "g0"})
			src := NewSource(defaultSourceConfig(), tt.factory, WithGenerator(sequence("g1")))

			eng, _, err := src.Negotiate(context.Background(), ls)

			assert.Nil(t, eng)
			assert.ErrorIs(t, err, core.ErrEngineFailure)
			assert.Equal(t, core.KindEngineFailure, core.KindOf(err))
			if tt.wantBuilt {
				require.Len(t, tt.factory.Engines(), 1)
				assert.Equal(t, 1, tt.factory.Engines()[0].Closed())
			} else {
				assert.Empty(t, tt.factory.Engines())
			}

			// scalars of the new round are out, caps are still the previous round's
			rec := record(t, ls)
			assert.Equal(t, "g1", rec[link.KeyGeneration])
			assert.Equal(t, "3000", rec[link.KeyPort])
			assert.Equal(t, "stale", rec[link.KeyCaps])
			assert.Equal(t, "g0", rec[link.KeyCapsGeneration])
		})
	}
}

func TestSourceStoreFailure(t *testing.T) {
	f := &enginetest.Factory{Caps: "c"}
	src := NewSource(defaultSourceConfig(), f)

	_, _, err := src.Negotiate(context.Background(), newLinkStore(brokenStore{}))

	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBroken)
	assert.Empty(t, f.Engines(), "engine must not start before the record is published")
}

func TestSourceCapsPublishFailureClosesEngine(t *testing.T) {
	errTeardown := errors.New("pipeline teardown failed")

	for _, field := range []string{link.KeyCaps, link.KeyCapsGeneration} {
		t.Run(field, func(t *testing.T) {
			f := &enginetest.Factory{Caps: "c", CloseErrs: []error{errTeardown}}
			src := NewSource(defaultSourceConfig(), f)
			ls := newLinkStore(&failSetStore{Store: store.NewMemory(), field: field})

			eng, _, err := src.Negotiate(context.Background(), ls)

			assert.Nil(t, eng)
			assert.Equal(t, core.KindStoreUnavailable, core.KindOf(err))
			assert.ErrorIs(t, err, errBroken)
			assert.ErrorIs(t, err, errTeardown, "close failure must be reported")
			require.Len(t, f.Engines(), 1)
			assert.Equal(t, 1, f.Engines()[0].Closed())
		})
	}
}
