package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/micmagic/internal/capture"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice memo",
	Long: `Record a voice memo from the default input device.

Press Enter to pause or resume, and Ctrl+C to stop and save.
With --for the recording stops and saves on its own after that long.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetDuration("for")
		name, _ := cmd.Flags().GetString("name")

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording... Press Enter to pause or resume, Ctrl+C to stop and save")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		lines := make(chan struct{})
		go func() {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				lines <- struct{}{}
			}
		}()

		var deadline <-chan time.Time
		if limit > 0 {
			timer := time.NewTimer(limit)
			defer timer.Stop()
			deadline = timer.C
		}

	wait:
		for {
			select {
			case <-sigChan:
				break wait
			case <-deadline:
				slog.Info("Time limit reached", "for", limit)
				break wait
			case <-lines:
				if err := pauseOrResume(ctx, a); err != nil {
					slog.Error("Failed to pause or resume", "error", err)
				}
			}
		}

		slog.Info("Stopping recording...")
		entry, err := a.manager.StopAndSave(ctx)
		if err != nil {
			return fmt.Errorf("failed to save recording: %w", err)
		}
		if name != "" {
			if err := a.manager.Rename(ctx, entry.ID, name); err != nil {
				return fmt.Errorf("saved as %q but failed to rename: %w", entry.Name, err)
			}
			entry.Name = name
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s) as %s\n", entry.Name, entry.DurationLabel, entry.ID)
		return nil
	},
}

func pauseOrResume(ctx context.Context, a *app) error {
	if a.manager.State() == capture.StatePaused {
		if err := a.manager.Resume(ctx); err != nil {
			return err
		}
		slog.Info("Resumed")
		return nil
	}
	if err := a.manager.Pause(ctx); err != nil {
		return err
	}
	slog.Info("Paused, press Enter to resume")
	return nil
}

func init() {
	recordCmd.Flags().Duration("for", 0, "stop and save after this long (e.g. 30s, 5m)")
	recordCmd.Flags().String("name", "", "name for the saved memo (default \"Recording N\")")
}
