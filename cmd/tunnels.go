package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/i2pwarden/i2pwarden/internal/router"
	"github.com/spf13/cobra"
)

func NewTunnelsCommand() *cobra.Command {
	tunnelsCmd := &cobra.Command{
		Use:   "tunnels",
		Short: "List and manage tunnels",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("TUNNELS")
			if err != nil {
				slog.Warn("No tunnels (daemon is not running).")
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			tunnels := []router.TunnelInfo{}
			json.Unmarshal(jsonBytes, &tunnels)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				if len(tunnels) == 0 {
					fmt.Println("No tunnels.")
					return
				}
				fmt.Println("Tunnels:")
				for _, tunnel := range tunnels {
					state := "disabled"
					if tunnel.Enabled {
						state = tunnel.Status
					}
					fmt.Printf(
						"  - %s [%s] %s (port %d -> %s:%d, %s)\n",
						tunnel.Name, tunnel.ID, tunnel.Type,
						tunnel.LocalPort, tunnel.TargetHost, tunnel.TargetPort, state,
					)
				}
			case "json":
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	tunnelsCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	tunnelsCmd.AddCommand(
		newTunnelCreateCommand(),
		newTunnelDestroyCommand(),
		newTunnelEnableCommand(),
		newTunnelDisableCommand(),
	)

	return tunnelsCmd
}

func newTunnelCreateCommand() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new tunnel",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			tunnelType, _ := cmd.Flags().GetString("type")
			port, _ := cmd.Flags().GetInt("port")
			target, _ := cmd.Flags().GetString("target")
			targetPort, _ := cmd.Flags().GetInt("target-port")

			config := router.TunnelConfig{
				Name:       args[0],
				Type:       router.TunnelType(tunnelType),
				LocalPort:  port,
				TargetHost: target,
				TargetPort: targetPort,
				Enabled:    true,
			}
			payload, err := json.Marshal(config)
			if err != nil {
				slog.Error(fmt.Sprintf("Invalid tunnel config: %v", err))
				return
			}

			response, err := daemon.SendCommand("TUNNEL_CREATE " + string(payload))
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to create tunnel: %v", err))
				return
			}
			response.LogMessages()
		},
	}
	createCmd.Flags().String("type", string(router.TunnelClient), "Tunnel type (HTTP/SOCKS/Client)")
	createCmd.Flags().Int("port", 0, "Local port")
	createCmd.Flags().String("target", "", "Target host (I2P destination)")
	createCmd.Flags().Int("target-port", 0, "Target port")

	return createCmd
}

func newTunnelDestroyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <id>",
		Short: "Destroy a tunnel",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("TUNNEL_DESTROY " + args[0])
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to destroy tunnel: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}

func newTunnelEnableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Enable a tunnel",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("TUNNEL_ENABLE " + args[0])
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to enable tunnel: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}

func newTunnelDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a tunnel",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("TUNNEL_DISABLE " + args[0])
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to disable tunnel: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}
