package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/audiolibrelab/micmagic/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the MicMagic web server to control recording from another device.
This allows you to record, browse and play memos from your smartphone on the
same network. Clients sign in with the same account as this device.

The server will display the local network URL for easy access from mobile devices.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		if host == "" {
			host = cfg.Server.Host
		}
		if port == 0 {
			port = cfg.Server.Port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if verboseLevel == 0 {
			gin.SetMode(gin.ReleaseMode)
		}

		srv := server.New(server.Deps{
			Session:  a.manager,
			Identity: a.identity,
			JWT:      a.jwt,
			Accounts: a.accounts,
			Logger:   slog.Default(),
		})

		addr := net.JoinHostPort(host, strconv.Itoa(port))
		if err := srv.Run(ctx, addr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", "", "address to listen on (overrides config)")
	serveCmd.Flags().Int("port", 0, "port for the web server (overrides config)")
}
