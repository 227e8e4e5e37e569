package rtp

import "time"

const (
	maxPending = 512
	// resyncWindow is the largest sequence jump, either way, still treated as the same
	// stream. Anything further is a sender restart.
	resyncWindow = 64
)

type pending struct {
	payload []byte
	arrived time.Time
}

// jitterBuffer releases packets in sequence order once they have been held for delay.
// A missing packet is declared lost when a later one has already become due.
type jitterBuffer struct {
	delay   time.Duration
	pending map[uint16]pending
	next    uint16
	ssrc    uint32
	started bool
	resyncs int
}

func newJitterBuffer(delay time.Duration) *jitterBuffer {
	return &jitterBuffer{delay: delay, pending: make(map[uint16]pending)}
}

// Push queues a packet of stream ssrc. It reports false for duplicates and packets
// slightly older than the playout point. A new ssrc or a sequence jump beyond
// resyncWindow restarts playout on this packet.
func (j *jitterBuffer) Push(ssrc uint32, seq uint16, payload []byte, now time.Time) bool {
	switch {
	case !j.started:
		j.started = true
		j.reset(ssrc, seq)
	case ssrc != j.ssrc, len(j.pending) >= maxPending:
		j.resync(ssrc, seq)
	default:
		d := int16(seq - j.next)
		if d > resyncWindow || d < -resyncWindow {
			j.resync(ssrc, seq)
		} else if d < 0 {
			return false
		}
	}
	if _, dup := j.pending[seq]; dup {
		return false
	}
	j.pending[seq] = pending{payload: payload, arrived: now}
	return true
}

func (j *jitterBuffer) reset(ssrc uint32, seq uint16) {
	clear(j.pending)
	j.ssrc = ssrc
	j.next = seq
}

func (j *jitterBuffer) resync(ssrc uint32, seq uint16) {
	j.reset(ssrc, seq)
	j.resyncs++
}

// Pop returns the next frame due at now. lost is set when the frame is skipped because it
// never arrived; ok is false when nothing is due.
func (j *jitterBuffer) Pop(now time.Time) (payload []byte, lost, ok bool) {
	if p, found := j.pending[j.next]; found {
		if now.Sub(p.arrived) < j.delay {
			return nil, false, false
		}
		delete(j.pending, j.next)
		j.next++
		return p.payload, false, true
	}
	for _, p := range j.pending {
		if now.Sub(p.arrived) >= j.delay {
			j.next++
			return nil, true, true
		}
	}
	return nil, false, false
}

// Len returns the number of queued packets.
func (j *jitterBuffer) Len() int { return len(j.pending) }

// Resyncs returns how many times playout restarted on a new stream.
func (j *jitterBuffer) Resyncs() int { return j.resyncs }
