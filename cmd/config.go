package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/spf13/cobra"
)

func NewConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change the router configuration",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current router configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("CONFIG_GET")
			if err != nil {
				slog.Warn("Daemon is not running.")
				return
			}
			jsonBytes, _ := json.MarshalIndent(response.Data, "", "  ")
			fmt.Println(string(jsonBytes))
		},
	}

	setCmd := &cobra.Command{
		Use:   "set [file]",
		Short: "Replace the router configuration",
		Long: `Replace the router configuration with a JSON document.

The document is read from the given file, or from stdin when no file is
given. It must be a complete configuration; invalid documents are rejected
and the previous configuration stays in effect. Launch-time settings apply
on the next router start.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var data []byte
			var err error
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to read configuration: %v", err))
				return
			}

			// Validate it is one JSON object before shipping it over the
			// line-oriented socket protocol
			var values map[string]any
			if err := json.Unmarshal(data, &values); err != nil {
				slog.Error(fmt.Sprintf("Invalid JSON: %v", err))
				return
			}
			compact, err := json.Marshal(values)
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to encode configuration: %v", err))
				return
			}

			response, err := daemon.SendCommand("CONFIG_SET " + string(compact))
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to send configuration: %v", err))
				return
			}
			response.LogMessages()
		},
	}

	configCmd.AddCommand(getCmd, setCmd)
	return configCmd
}
