package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/i2pwarden/i2pwarden/internal/core"
	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/i2pwarden/i2pwarden/internal/keyring"
	"github.com/i2pwarden/i2pwarden/internal/router"
	"github.com/spf13/cobra"
)

func NewDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the i2pwarden daemon in the foreground",
		Long: `Run the i2pwarden daemon in the foreground.

The daemon supervises the i2pd router process and serves the control socket.
Normally it is started in the background by 'i2pwarden start'; running it in
the foreground is useful for debugging.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

// NewInternalCommand is the hidden fork target used for background daemon
// startup
func NewInternalCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "internal-daemon-start",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	// Prefer the keyring for the control API key when the config file does
	// not set one
	if core.Config.Router.APIKey == "" {
		key, err := keyring.GetAPIKey()
		if err != nil {
			slog.Debug("Keyring unavailable, continuing without API key", "error", err)
		} else if key != "" {
			core.Config.Router.APIKey = key
		}
	}

	store, err := core.NewConfigStore(core.GetRouterConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load router configuration: %w", err)
	}

	manager := router.New(core.Config.Router, store)
	d := daemon.New(manager, store)

	slog.Info("Starting i2pwarden daemon",
		"version", core.FormatVersion(core.Version),
		"config", filepath.Join(core.Config.ConfigPath, core.ConfigFileName))

	d.Run()
	return nil
}
