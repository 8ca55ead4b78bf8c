package cmd

import (
	"fmt"
	"log/slog"

	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/spf13/cobra"
)

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the router",
		Long: `Start the i2pd router.

If the i2pwarden daemon is not running yet it is started in the background
first. The router becomes usable once both its SOCKS proxy and its network
connectivity are confirmed; watch 'i2pwarden status' or 'i2pwarden logs' for
progress.`,
		Aliases: []string{"startup", "boot"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := daemon.EnsureDaemonIsRunning(); err != nil {
				slog.Error(fmt.Sprintf("Failed to start daemon: %v", err))
				return
			}

			response, err := daemon.SendCommand("START")
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to send start command: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}
