package cmd

import (
	"github.com/spf13/cobra"

	"openob.io/openob/internal/core"
)

var rxCmd = &cobra.Command{
	Use:   "rx <config_host> <link_name>",
	Short: "Run the receiving end of a link",
	Long: `Run the receiving end of a link.

The receiver waits until a transmitter has published the link record under
link_name in the configuration store at config_host, then starts a receive
pipeline that matches it. Start order of the two ends does not matter.

Examples:
  openob rx redis.local studio1
  openob rx redis.local studio1 -a jack
  openob rx localhost studio1 -a file -d /tmp/studio1.pcm --engine rtp`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(rxOverrides(cmd, args))
	},
}

var (
	rxAudioOutput string
	rxDevice      string
	rxEngine      string
)

func init() {
	f := rxCmd.Flags()
	f.StringVarP(&rxAudioOutput, "audio-output", "a", "alsa", "audio output (alsa/jack/pulseaudio/null/file)")
	f.StringVarP(&rxDevice, "device", "d", "hw:0", "audio output device, or the file path for -a file")
	f.StringVar(&rxEngine, "engine", "gst", "transport engine (gst/rtp)")
}

// rxOverrides maps positional arguments and the flags the user set onto config keys.
func rxOverrides(cmd *cobra.Command, args []string) map[string]any {
	overrides := globalOverrides(cmd)
	overrides["link.role"] = string(core.RoleSink)
	overrides["link.config_host"] = args[0]
	overrides["link.name"] = args[1]

	flags := cmd.Flags()
	if flags.Changed("audio-output") {
		overrides["sink.audio_output"] = rxAudioOutput
	}
	if flags.Changed("device") {
		overrides["sink.device"] = rxDevice
	}
	if flags.Changed("engine") {
		overrides["engine.name"] = rxEngine
	}
	return overrides
}
