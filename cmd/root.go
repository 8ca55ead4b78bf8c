package cmd

import (
	"fmt"
	"os"

	"github.com/i2pwarden/i2pwarden/internal/core"
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "i2pwarden",
		Short: "i2pwarden - I2P router supervisor",
		Long: `i2pwarden - I2P router supervisor

Runs a local i2pd router as a supervised child process, detects when it is
fully ready, and exposes its status, tunnels and network statistics through
a local daemon.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return core.InitializeConfig(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewDaemonCommand(),
		NewInternalCommand(),
		NewStartCommand(),
		NewStopCommand(),
		NewRestartCommand(),
		NewStatusCommand(),
		NewTunnelsCommand(),
		NewStatsCommand(),
		NewConfigCommand(),
		NewNewIdentityCommand(),
		NewLogsCommand(),
		NewQuitCommand(),
		NewVersionCommand(),
		NewAPIKeyCommand(),
	)

	return rootCmd
}
