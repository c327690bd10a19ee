package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/micmagic/internal/tui"

	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Open the interactive recorder",
	Long: `Open a full screen recorder with the list of recordings.

r records or stops, p pauses, / searches, enter plays the selected memo,
e renames, d deletes and s shares it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		// Log lines would tear the alternate screen.
		if verboseLevel == 0 {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
		}

		p := tea.NewProgram(tui.New(a.manager), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("recorder UI failed: %w", err)
		}
		return nil
	},
}
