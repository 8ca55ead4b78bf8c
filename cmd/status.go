package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/spf13/cobra"
)

// routerStatus mirrors the daemon's STATUS payload
type routerStatus struct {
	Status       string `json:"status"`
	Running      bool   `json:"running"`
	LastError    string `json:"last_error,omitempty"`
	SocksAddress string `json:"socks_address,omitempty"`
	Uptime       string `json:"uptime,omitempty"`
	Version      string `json:"version"`
}

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the router status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("STATUS")
			if err != nil {
				slog.Warn("Router is not running (daemon is not running).")
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			status := routerStatus{}
			json.Unmarshal(jsonBytes, &status)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				fmt.Printf("Router status: %s\n", status.Status)
				if status.Running {
					fmt.Printf("  SOCKS proxy:  %s\n", status.SocksAddress)
				}
				if status.Uptime != "" {
					fmt.Printf("  Uptime:       %s\n", status.Uptime)
				}
				if status.LastError != "" {
					fmt.Printf("  Last error:   %s\n", status.LastError)
				}
				fmt.Printf("  Daemon:       %s\n", status.Version)
			case "json":
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}
