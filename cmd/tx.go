package cmd

import (
	"github.com/spf13/cobra"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/daemon"
)

var txCmd = &cobra.Command{
	Use:   "tx <config_host> <link_name> <receiver_host>",
	Short: "Run the transmitting end of a link",
	Long: `Run the transmitting end of a link.

The transmitter publishes port, jitter buffer, encoding and bitrate under the
link name in the configuration store at config_host, starts streaming to
receiver_host, and publishes the stream caps once they are known.

Examples:
  openob tx redis.local studio1 10.0.0.20
  openob tx redis.local studio1 10.0.0.20 -e pcm -j 60
  openob tx localhost studio1 127.0.0.1 -a test -e pcm --engine rtp --loopback`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []daemon.Option
		if txLoopback {
			opts = append(opts, daemon.WithLoopback())
		}
		return runDaemon(txOverrides(cmd, args), opts...)
	},
}

var (
	txAudioInput   string
	txDevice       string
	txEncoding     string
	txBitrate      int
	txPort         int
	txJitterBuffer int
	txEngine       string
	txLoopback     bool
)

func init() {
	f := txCmd.Flags()
	f.StringVarP(&txAudioInput, "audio-input", "a", "alsa", "audio input (alsa/jack/pulseaudio/test/silence)")
	f.StringVarP(&txDevice, "device", "d", "hw:0", "audio input device")
	f.StringVarP(&txEncoding, "encoding", "e", "opus", "encoding (pcm/celt/opus)")
	f.IntVarP(&txBitrate, "bitrate", "b", 96, "bitrate in kbit/s for compressed encodings")
	f.IntVarP(&txPort, "port", "p", 3000, "base RTP port on the receiver")
	f.IntVarP(&txJitterBuffer, "jitter-buffer", "j", 150, "receiver jitter buffer in milliseconds")
	f.StringVar(&txEngine, "engine", "gst", "transport engine (gst/rtp)")
	f.BoolVar(&txLoopback, "loopback", false, "also run the receiving end in this process over an in-memory store")
}

// txOverrides maps positional arguments and the flags the user set onto config keys.
func txOverrides(cmd *cobra.Command, args []string) map[string]any {
	overrides := globalOverrides(cmd)
	overrides["link.role"] = string(core.RoleSource)
	overrides["link.config_host"] = args[0]
	overrides["link.name"] = args[1]
	overrides["source.receiver_host"] = args[2]

	flags := cmd.Flags()
	if flags.Changed("audio-input") {
		overrides["source.audio_input"] = txAudioInput
	}
	if flags.Changed("device") {
		overrides["source.device"] = txDevice
	}
	if flags.Changed("encoding") {
		overrides["source.encoding"] = txEncoding
	}
	if flags.Changed("bitrate") {
		overrides["source.bitrate"] = txBitrate
	}
	if flags.Changed("port") {
		overrides["source.port"] = txPort
	}
	if flags.Changed("jitter-buffer") {
		overrides["source.jitter_buffer"] = txJitterBuffer
	}
	if flags.Changed("engine") {
		overrides["engine.name"] = txEngine
	}
	return overrides
}
