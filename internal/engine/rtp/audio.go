package rtp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// input fills one frame of interleaved big-endian 16-bit samples.
type input interface {
	Fill(frame []byte)
}

func newInput(kind string, toneHz float64) (input, error) {
	switch kind {
	case "test":
		return &tone{step: 2 * math.Pi * toneHz / SampleRate}, nil
	case "silence":
		return silence{}, nil
	default:
		return nil, fmt.Errorf("audio input %q not supported (test or silence)", kind)
	}
}

type tone struct {
	phase, step float64
}

func (t *tone) Fill(frame []byte) {
	for i := 0; i+Channels*2 <= len(frame); i += Channels * 2 {
		v := uint16(int16(math.Sin(t.phase) * 0.25 * math.MaxInt16))
		for c := 0; c < Channels; c++ {
			binary.BigEndian.PutUint16(frame[i+c*2:], v)
		}
		t.phase += t.step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
}

type silence struct{}

func (silence) Fill(frame []byte) { clear(frame) }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// newOutput opens the playback destination. "file" writes raw L16 to the device path.
func newOutput(kind, device string) (io.WriteCloser, error) {
	switch kind {
	case "null":
		return nopCloser{io.Discard}, nil
	case "file":
		if device == "" {
			return nil, fmt.Errorf("file output needs a device path")
		}
		f, err := os.OpenFile(device, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("audio output %q not supported (null or file)", kind)
	}
}
