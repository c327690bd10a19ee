package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/micmagic/internal/notify"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow session events from your other devices",
	Long: `Print the recording and catalog events that other MicMagic processes
signed in as the same user publish to Redis. Requires redis.addr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is not configured")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openAccounts(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		owner, err := a.identity.CurrentOwnerID(ctx)
		if err != nil {
			return fmt.Errorf("not signed in, run 'micmagic login' first: %w", err)
		}

		bus, err := notify.NewRedis(ctx, cfg.Redis, slog.Default())
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer bus.Close()

		out := cmd.OutOrStdout()
		cancel, err := bus.Subscribe(ctx, owner, func(m notify.Message) {
			fmt.Fprintf(out, "%s %-8s %s\n", time.Unix(m.At, 0).Format("15:04:05"), m.Event, m.Data)
		})
		if err != nil {
			return err
		}
		defer cancel()

		slog.Info("Watching session events, press Ctrl+C to stop", "channel", bus.Channel(owner))
		<-ctx.Done()
		return nil
	},
}
