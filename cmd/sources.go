package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/audiolibrelab/micmagic/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio input devices",
	Long: `List the capture devices of every backend usable on this system and
check that the configured audio.device is one of them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		configured := audio.DetermineBackend(cfg.Audio.Backend)

		fmt.Fprintf(out, "Audio Sources (%s)\n", runtime.GOOS)
		fmt.Fprintf(out, "═══════════════════════════════════════\n\n")

		for _, backend := range audio.GetAvailableBackends() {
			sources, err := audio.ListSources(cmd.Context(), backend)
			if err != nil {
				slog.Warn("Could not list sources", "backend", backend, "error", err)
				continue
			}

			marker := ""
			if backend == configured {
				marker = " [configured]"
			}
			fmt.Fprintf(out, "%s%s (%d found):\n", backend, marker, len(sources))
			for i, source := range sources {
				fmt.Fprintf(out, "  %d. %s\n", i+1, source)
			}
			fmt.Fprintln(out)

			if backend == configured {
				if err := audio.ValidateSource(cfg.Audio.Device, sources); err != nil {
					fmt.Fprintf(out, "warning: audio.device: %v\n\n", err)
				}
			}
		}

		fmt.Fprintf(out, "Set audio.device in the config to record from a specific device.\n")
		return nil
	},
}
