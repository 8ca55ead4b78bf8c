package cmd

import (
	"log/slog"

	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/spf13/cobra"
)

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop the router",
		Long:    "Stop the i2pd router. The daemon keeps running; use 'i2pwarden quit' to shut it down too.",
		Aliases: []string{"shutdown", "halt"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("STOP")
			if err != nil {
				slog.Warn("Daemon is not running, nothing to stop.")
				return
			}
			response.LogMessages()
		},
	}
}
