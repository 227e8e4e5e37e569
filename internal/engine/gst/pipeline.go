package gst

import (
	"fmt"
	"strconv"

	"openob.io/openob/internal/engine"
	"openob.io/openob/internal/link"
)

const (
	sampleRate = 48000
	channels   = 2
)

// codec elements per encoding: encoder, payloader, depayloader, decoder.
type codecElements struct {
	enc, pay, depay, dec string
}

var codecs = map[link.Encoding]codecElements{
	link.EncodingOpus: {"opusenc", "rtpopuspay", "rtpopusdepay", "opusdec"},
	link.EncodingCELT: {"celtenc", "rtpceltpay", "rtpceltdepay", "celtdec"},
	link.EncodingPCM:  {"", "rtpL16pay", "rtpL16depay", ""},
}

// sourceArgs builds the gst-launch argument list of a transmitter.
// The udpsink is named so its negotiated caps can be picked out of the -v output.
func sourceArgs(spec engine.SourceSpec) ([]string, error) {
	c, ok := codecs[spec.Encoding]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", spec.Encoding)
	}
	src, err := sourceElement(spec)
	if err != nil {
		return nil, err
	}

	args := []string{"-v"}
	args = append(args, src...)
	args = append(args, "!", "audioconvert", "!", "audioresample", "!",
		fmt.Sprintf("audio/x-raw,channels=%d,rate=%d", channels, sampleRate))
	if spec.Encoding == link.EncodingPCM {
		args = append(args, "!", "audioconvert", "!", "audio/x-raw,format=S16BE")
	} else {
		args = append(args, "!", c.enc, "bitrate="+strconv.Itoa(spec.BitrateKbps*1000))
	}
	args = append(args, "!", c.pay, "!",
		"udpsink", "name="+udpSinkName,
		"host="+spec.ReceiverHost,
		"port="+strconv.Itoa(spec.Port),
	)
	return args, nil
}

// sinkArgs builds the gst-launch argument list of a receiver. Caps go in as one argument;
// gst-launch escapes the spaces inside it.
func sinkArgs(spec engine.SinkSpec) ([]string, error) {
	c, ok := codecs[spec.Encoding]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", spec.Encoding)
	}
	out, err := sinkElement(spec)
	if err != nil {
		return nil, err
	}

	args := []string{
		"udpsrc", "port=" + strconv.Itoa(spec.Port), "caps=" + spec.Caps,
		"!", "rtpjitterbuffer", "latency=" + strconv.Itoa(spec.JitterBufferMS),
		"!", c.depay,
	}
	if c.dec != "" {
		args = append(args, "!", c.dec)
	}
	args = append(args, "!", "audioconvert", "!", "audioresample", "!")
	return append(args, out...), nil
}

func sourceElement(spec engine.SourceSpec) ([]string, error) {
	switch spec.AudioInput {
	case "alsa":
		return withDevice("alsasrc", spec.Device), nil
	case "jack":
		return []string{"jackaudiosrc", "connect=0", "client-name=" + spec.SessionLabel}, nil
	case "pulseaudio":
		return []string{"pulsesrc", "client-name=" + spec.SessionLabel}, nil
	case "test":
		return []string{"audiotestsrc", "is-live=true"}, nil
	default:
		return nil, fmt.Errorf("unsupported audio input %q", spec.AudioInput)
	}
}

// withDevice leaves the device property out when none is set, so the element uses its default.
func withDevice(element, device string) []string {
	if device == "" {
		return []string{element}
	}
	return []string{element, "device=" + device}
}

func sinkElement(spec engine.SinkSpec) ([]string, error) {
	switch spec.AudioOutput {
	case "alsa":
		return withDevice("alsasink", spec.Device), nil
	case "jack":
		return []string{"jackaudiosink", "connect=0", "client-name=" + spec.SessionLabel}, nil
	case "pulseaudio":
		return []string{"pulsesink", "client-name=" + spec.SessionLabel}, nil
	case "null":
		return []string{"fakesink", "sync=true"}, nil
	default:
		return nil, fmt.Errorf("unsupported audio output %q", spec.AudioOutput)
	}
}
