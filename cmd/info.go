package cmd

import (
	"context"
	"fmt"

	"github.com/audiolibrelab/micmagic/internal/audio"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show session status and where things are stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "=== PATHS ===\n")
		fmt.Fprintf(out, "config: %s\n", cfgFile)
		fmt.Fprintf(out, "recordings: %s\n", cfg.Output.Directory)
		fmt.Fprintf(out, "token: %s\n", cfg.Auth.TokenFile)

		fmt.Fprintf(out, "\n=== SESSION ===\n")
		fmt.Fprintf(out, "profile: %s\n", cfg.Profile)
		fmt.Fprintf(out, "backend: %s\n", audio.DetermineBackend(cfg.Audio.Backend))
		fmt.Fprintf(out, "storage: %s\n", cfg.Storage.Driver)
		fmt.Fprintf(out, "sharing: %t\n", cfg.Share.Enabled)
		fmt.Fprintf(out, "notifications: %t\n", cfg.Redis.Addr != "")

		a, err := openApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(out, "status: unavailable (%v)\n", err)
			return nil
		}
		defer a.Close(context.Background())

		st := a.manager.Status()
		fmt.Fprintf(out, "state: %s\n", st.State)
		fmt.Fprintf(out, "count: %d\n", st.Count)
		return nil
	},
}
