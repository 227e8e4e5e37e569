package rtp

import (
	"fmt"
	"strconv"
	"strings"
)

// buildCaps renders the stream description in GStreamer caps syntax so either engine's
// sink can read it.
func buildCaps(ssrc uint32) string {
	return fmt.Sprintf("application/x-rtp, media=(string)audio, clock-rate=(int)%d, "+
		"encoding-name=(string)L16, encoding-params=(string)%d, channels=(int)%d, "+
		"payload=(int)%d, ssrc=(uint)%d",
		SampleRate, Channels, Channels, PayloadType, ssrc)
}

// parseCaps returns the media type and the field map of a caps string, with type
// annotations such as "(int)" stripped.
func parseCaps(caps string) (string, map[string]string) {
	parts := strings.Split(caps, ",")
	fields := make(map[string]string, len(parts))
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(v, "(") {
			if i := strings.Index(v, ")"); i >= 0 {
				v = v[i+1:]
			}
		}
		fields[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return strings.TrimSpace(parts[0]), fields
}

// checkCaps verifies the sink can play the described stream.
func checkCaps(caps string) error {
	media, f := parseCaps(caps)
	if media != "application/x-rtp" {
		return fmt.Errorf("caps: unexpected media type %q", media)
	}
	if name := strings.ToUpper(f["encoding-name"]); name != "L16" {
		return fmt.Errorf("caps: encoding %q not supported", f["encoding-name"])
	}
	if rate, _ := strconv.Atoi(f["clock-rate"]); rate != SampleRate {
		return fmt.Errorf("caps: clock rate %q not supported", f["clock-rate"])
	}
	if ch := f["channels"]; ch != "" && ch != strconv.Itoa(Channels) {
		return fmt.Errorf("caps: %s channels not supported", ch)
	}
	return nil
}
