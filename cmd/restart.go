package cmd

import (
	"fmt"
	"log/slog"

	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/spf13/cobra"
)

func NewRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the router",
		Long:  "Stop the i2pd router and start it again, waiting in between for its ports to be released.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("RESTART")
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to send restart command: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}
