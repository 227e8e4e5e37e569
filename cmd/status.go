package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"openob.io/openob/internal/link"
	"openob.io/openob/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status <config_host> <link_name>",
	Short: "Show the link record in the configuration store",
	Long: `Read the link record a transmitter published and print it.

Shows the scalar link parameters, the stream caps and whether the caps belong
to the current generation of the record.

Examples:
  openob status redis.local studio1
  openob status redis.local studio1 -o yaml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatusCommand(cmd.Context(), args[0], args[1], os.Stdout)
	},
}

var statusOutput string

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text",
		"output format (text/yaml/json)")
}

// linkStatus is the printable form of a link record.
type linkStatus struct {
	Link           string `json:"link" yaml:"link"`
	Configured     bool   `json:"configured" yaml:"configured"`
	Generation     string `json:"generation,omitempty" yaml:"generation,omitempty"`
	CapsGeneration string `json:"caps_generation,omitempty" yaml:"caps_generation,omitempty"`
	CapsCurrent    bool   `json:"caps_current" yaml:"caps_current"`
	Port           string `json:"port,omitempty" yaml:"port,omitempty"`
	JitterBuffer   string `json:"jitter_buffer,omitempty" yaml:"jitter_buffer,omitempty"`
	Encoding       string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Bitrate        string `json:"bitrate,omitempty" yaml:"bitrate,omitempty"`
	Caps           string `json:"caps,omitempty" yaml:"caps,omitempty"`
}

// runStatusCommand dials the store at configHost once and prints the record of linkName.
func runStatusCommand(ctx context.Context, configHost, linkName string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s, err := store.RedisDialer{}.Dial(ctx, store.NormalizeAddr(configHost))
	if err != nil {
		return fmt.Errorf("configuration store is not reachable: %w", err)
	}
	defer s.Close()

	if err := runStatus(ctx, s, linkName, statusOutput, out); err != nil {
		return fmt.Errorf("failed to show link status: %w", err)
	}
	return nil
}

// runStatus reads the record of linkName from s and writes it to out in format.
func runStatus(ctx context.Context, s store.Store, linkName, format string, out io.Writer) error {
	ls := store.NewLinkStore(s, linkName)
	rec, err := ls.Snapshot(ctx,
		link.KeyGeneration, link.KeyCapsGeneration,
		link.KeyPort, link.KeyJitterBuffer, link.KeyEncoding, link.KeyBitrate, link.KeyCaps,
	)
	if err != nil {
		return err
	}

	st := linkStatus{
		Link:           linkName,
		Configured:     rec[link.KeyPort] != "",
		Generation:     rec[link.KeyGeneration],
		CapsGeneration: rec[link.KeyCapsGeneration],
		Port:           rec[link.KeyPort],
		JitterBuffer:   rec[link.KeyJitterBuffer],
		Encoding:       rec[link.KeyEncoding],
		Bitrate:        rec[link.KeyBitrate],
		Caps:           rec[link.KeyCaps],
	}
	st.CapsCurrent = st.Caps != "" && st.CapsGeneration == st.Generation

	switch format {
	case "json":
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}
		return enc.Close()
	case "text":
		return writeStatusText(out, st)
	default:
		return fmt.Errorf("unknown output format %q (must be text/yaml/json)", format)
	}
}

func writeStatusText(out io.Writer, st linkStatus) error {
	if !st.Configured {
		_, err := fmt.Fprintf(out, "Link %q is not configured; has the transmitter been started?\n", st.Link)
		return err
	}
	rows := [][2]string{
		{"Link", st.Link},
		{"Generation", orNone(st.Generation)},
		{"Port", st.Port},
		{"Jitter buffer", st.JitterBuffer + " ms"},
		{"Encoding", st.Encoding},
		{"Bitrate", st.Bitrate + " kbit/s"},
		{"Caps", orNone(st.Caps)},
		{"Caps current", fmt.Sprintf("%t", st.CapsCurrent)},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(out, "%-14s %s\n", r[0]+":", r[1]); err != nil {
			return err
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
