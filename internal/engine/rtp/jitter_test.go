package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ssrcA uint32 = 0x1111
	ssrcB uint32 = 0x2222
)

// drain pops everything due at now and returns the payloads and the lost count.
func drain(jb *jitterBuffer, now time.Time) (got []string, lost int) {
	for {
		p, wasLost, ok := jb.Pop(now)
		if !ok {
			return got, lost
		}
		if wasLost {
			lost++
			continue
		}
		got = append(got, string(p))
	}
}

func TestJitterBufferHoldsForDelay(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(20 * time.Millisecond)

	assert.True(t, jb.Push(ssrcA, 10, []byte("a"), t0))
	_, _, ok := jb.Pop(t0.Add(10 * time.Millisecond))
	assert.False(t, ok)

	p, lost, ok := jb.Pop(t0.Add(20 * time.Millisecond))
	assert.True(t, ok)
	assert.False(t, lost)
	assert.Equal(t, []byte("a"), p)
	assert.Equal(t, 0, jb.Len())
}

func TestJitterBufferReorders(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(0)

	jb.Push(ssrcA, 1, []byte("1"), t0)
	jb.Push(ssrcA, 3, []byte("3"), t0)
	jb.Push(ssrcA, 2, []byte("2"), t0)

	var got []string
	for {
		p, lost, ok := jb.Pop(t0)
		if !ok {
			break
		}
		assert.False(t, lost)
		got = append(got, string(p))
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestJitterBufferDeclaresLoss(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(10 * time.Millisecond)

	jb.Push(ssrcA, 100, []byte("a"), t0)
	jb.Push(ssrcA, 102, []byte("c"), t0)

	now := t0.Add(10 * time.Millisecond)
	p, lost, ok := jb.Pop(now)
	assert.True(t, ok)
	assert.False(t, lost)
	assert.Equal(t, []byte("a"), p)

	_, lost, ok = jb.Pop(now)
	assert.True(t, ok)
	assert.True(t, lost, "101 never arrived")

	p, _, ok = jb.Pop(now)
	assert.True(t, ok)
	assert.Equal(t, []byte("c"), p)
}

func TestJitterBufferDropsLateAndDuplicate(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(0)

	assert.True(t, jb.Push(ssrcA, 5, []byte("5"), t0))
	assert.False(t, jb.Push(ssrcA, 5, []byte("5"), t0))
	jb.Pop(t0)
	assert.False(t, jb.Push(ssrcA, 4, []byte("4"), t0), "older than playout point")
}

func TestJitterBufferSequenceWrap(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(0)

	jb.Push(ssrcA, 65535, []byte("x"), t0)
	jb.Push(ssrcA, 0, []byte("y"), t0)

	p, _, _ := jb.Pop(t0)
	assert.Equal(t, []byte("x"), p)
	p, _, _ = jb.Pop(t0)
	assert.Equal(t, []byte("y"), p)
}

func TestJitterBufferResyncsWhenSenderRestartsBehind(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(0)

	for seq := uint16(40000); seq < 40010; seq++ {
		require.True(t, jb.Push(ssrcA, seq, []byte("old"), t0))
	}
	drain(jb, t0)

	// same SSRC, sequence restarted far behind the playout point
	accepted := 0
	for i := 0; i < 200; i++ {
		if jb.Push(ssrcA, uint16(20000+i), []byte("new"), t0) {
			accepted++
		}
	}
	assert.Equal(t, 200, accepted)
	assert.Equal(t, 1, jb.Resyncs())

	got, lost := drain(jb, t0)
	assert.Len(t, got, 200)
	assert.Zero(t, lost)
}

func TestJitterBufferResyncsWhenSenderRestartsAhead(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(0)

	jb.Push(ssrcA, 100, []byte("a"), t0)
	drain(jb, t0)

	assert.True(t, jb.Push(ssrcA, 20000, []byte("b"), t0))
	got, lost := drain(jb, t0)
	assert.Equal(t, []string{"b"}, got)
	assert.Zero(t, lost, "a restart must not be played out as a gap")
}

func TestJitterBufferResyncsOnNewSSRC(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(0)

	jb.Push(ssrcA, 500, []byte("a"), t0)
	drain(jb, t0)

	// within the window but from a different stream
	assert.True(t, jb.Push(ssrcB, 490, []byte("b"), t0))
	assert.Equal(t, 1, jb.Resyncs())
	got, _ := drain(jb, t0)
	assert.Equal(t, []string{"b"}, got)
}

func TestJitterBufferSmallGapIsLoss(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(0)

	jb.Push(ssrcA, 10, []byte("a"), t0)
	jb.Push(ssrcA, 10+resyncWindow, []byte("b"), t0)

	got, lost := drain(jb, t0)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, resyncWindow-1, lost)
	assert.Zero(t, jb.Resyncs())
}

type countingWriter struct {
	writes int
	bytes  int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	w.bytes += len(p)
	return len(p), nil
}

func TestPlayoutCapsSilencePerTick(t *testing.T) {
	t0 := time.Unix(0, 0)
	jb := newJitterBuffer(0)
	silent := make([]byte, FrameBytes)

	jb.Push(ssrcA, 1, []byte("a"), t0)
	jb.Push(ssrcA, 40, []byte("b"), t0)

	w := &countingWriter{}
	lost, err := playout(jb, t0, w, silent)
	require.NoError(t, err)
	assert.Equal(t, maxLostPerTick, lost)
	assert.Equal(t, 1+maxLostPerTick, w.writes)

	// the rest of the gap is spread over later ticks
	total := lost
	for i := 0; i < 100 && jb.Len() > 0; i++ {
		n, err := playout(jb, t0, w, silent)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, maxLostPerTick)
		total += n
	}
	assert.Equal(t, 38, total)
	assert.Zero(t, jb.Len())
}
