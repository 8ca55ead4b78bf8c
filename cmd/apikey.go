package cmd

import (
	"fmt"
	"log/slog"

	"github.com/i2pwarden/i2pwarden/internal/keyring"
	"github.com/spf13/cobra"
)

func NewAPIKeyCommand() *cobra.Command {
	apikeyCmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the router control API key",
		Long: `Manage the router control API key.

The key is stored in the system keyring and used by the daemon as a bearer
token for the router's control API. A key set in the config file takes
precedence over the keyring.`,
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the API key in the system keyring",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			key, err := keyring.PromptAPIKey()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to read API key: %v", err))
				return
			}
			if key == "" {
				slog.Error("Empty API key, nothing stored")
				return
			}
			if err := keyring.SetAPIKey(key); err != nil {
				slog.Error(fmt.Sprintf("Failed to store API key: %v", err))
				return
			}
			slog.Info("API key stored. Restart the daemon for it to take effect.")
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the API key from the system keyring",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := keyring.DeleteAPIKey(); err != nil {
				slog.Error(fmt.Sprintf("Failed to remove API key: %v", err))
				return
			}
			slog.Info("API key removed")
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether an API key is stored",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if keyring.HasAPIKey() {
				fmt.Println("API key: stored in keyring")
			} else {
				fmt.Println("API key: not set")
			}
		},
	}

	apikeyCmd.AddCommand(setCmd, clearCmd, statusCmd)
	return apikeyCmd
}
