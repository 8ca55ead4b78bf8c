package cmd

import (
	"log/slog"

	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/spf13/cobra"
)

func NewQuitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Stop the router and shut down the daemon",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("SHUTDOWN")
			if err != nil {
				slog.Warn("Daemon is not running.")
				return
			}
			response.LogMessages()
		},
	}
}
