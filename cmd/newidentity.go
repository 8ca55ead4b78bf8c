package cmd

import (
	"fmt"
	"log/slog"

	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/spf13/cobra"
)

func NewNewIdentityCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new-identity",
		Short: "Generate a fresh router identity",
		Long: `Generate a fresh router identity.

Stops the router, deletes its network database and router keys, and starts
it again. The router rejoins the network as a brand new peer; expect reduced
performance while it reintegrates.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("NEW_IDENTITY")
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to send new-identity command: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}
