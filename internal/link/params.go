// Package link defines the negotiated parameter set of a named audio link.
package link

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"openob.io/openob/internal/core"
)

// KeyPrefix is the namespace of every link record in the configuration store.
const KeyPrefix = "openob2:"

// Field names under a link's namespace.
const (
	KeyPort           = "port"
	KeyJitterBuffer   = "jitter_buffer"
	KeyEncoding       = "encoding"
	KeyBitrate        = "bitrate"
	KeyCaps           = "caps"
	KeyGeneration     = "generation"
	KeyCapsGeneration = "caps_generation"
)

// Namespace returns the key prefix for a link, e.g. "openob2:studio-a:".
func Namespace(linkName string) string {
	return KeyPrefix + linkName + ":"
}

// Encoding is the audio codec carried by the link.
type Encoding string

const (
	EncodingPCM  Encoding = "pcm"
	EncodingCELT Encoding = "celt"
	EncodingOpus Encoding = "opus"
)

// ParseEncoding parses a codec name, case-insensitively.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case EncodingPCM, EncodingCELT, EncodingOpus:
		return e, nil
	default:
		return "", fmt.Errorf("unknown encoding %q (must be pcm, celt or opus)", s)
	}
}

func (e Encoding) String() string { return string(e) }

// Compressed reports whether the bitrate applies to this encoding.
func (e Encoding) Compressed() bool { return e == EncodingCELT || e == EncodingOpus }

// Bitrates are the bitrates a source may be configured with, in kbit/s.
var Bitrates = []int{16, 24, 32, 48, 64, 96, 128}

// Defaults used by a source when nothing else is configured.
const (
	DefaultPort           = 3000
	DefaultJitterBufferMS = 150
	DefaultEncoding       = EncodingOpus
	DefaultBitrateKbps    = 96
)

// Params is the negotiated record of one link.
//
// The first four fields are assigned by the source before it starts its engine; Caps only
// exists once the source engine is running. Generation identifies the negotiation round
// that produced the record and is empty for records written without one.
type Params struct {
	Port           int      `json:"port" yaml:"port"`
	JitterBufferMS int      `json:"jitter_buffer" yaml:"jitter_buffer"`
	Encoding       Encoding `json:"encoding" yaml:"encoding"`
	BitrateKbps    int      `json:"bitrate" yaml:"bitrate"`
	Caps           string   `json:"caps" yaml:"caps"`
	Generation     string   `json:"generation,omitempty" yaml:"generation,omitempty"`
}

// ValidateScalars checks the four source-assigned fields.
func (p Params) ValidateScalars() error {
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range", p.Port)
	}
	if p.JitterBufferMS < 0 {
		return fmt.Errorf("jitter buffer %dms is negative", p.JitterBufferMS)
	}
	if _, err := ParseEncoding(string(p.Encoding)); err != nil {
		return err
	}
	if p.BitrateKbps <= 0 {
		return fmt.Errorf("bitrate %d must be positive", p.BitrateKbps)
	}
	return nil
}

// Validate checks the full record a sink needs before starting its engine.
func (p Params) Validate() error {
	if err := p.ValidateScalars(); err != nil {
		return err
	}
	if p.Caps == "" {
		return fmt.Errorf("capabilities not published")
	}
	return nil
}

// ValidateSourceBitrate restricts a locally configured bitrate to the supported set.
func ValidateSourceBitrate(kbps int) error {
	if !slices.Contains(Bitrates, kbps) {
		return fmt.Errorf("%w: bitrate %d not in %v", core.ErrConfigInvalid, kbps, Bitrates)
	}
	return nil
}

// Scalars returns the source-assigned fields in publication order as store values.
func (p Params) Scalars() [][2]string {
	return [][2]string{
		{KeyPort, strconv.Itoa(p.Port)},
		{KeyJitterBuffer, strconv.Itoa(p.JitterBufferMS)},
		{KeyEncoding, p.Encoding.String()},
		{KeyBitrate, strconv.Itoa(p.BitrateKbps)},
	}
}

// ParseInt parses an integer field read from the store.
func ParseInt(field, raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("field %s: malformed integer %q", field, raw)
	}
	return v, nil
}

// SessionLabel names the media session of a link. Both roles use the transmitter's label.
func SessionLabel(linkName string) string {
	return "openob_tx_" + linkName
}
