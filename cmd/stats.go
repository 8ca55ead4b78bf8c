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

func NewStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show router network statistics",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			history, _ := cmd.Flags().GetInt("history")
			if history > 0 {
				showStatsHistory(cmd, history)
				return
			}

			response, err := daemon.SendCommand("STATS")
			if err != nil {
				slog.Warn("No statistics (daemon is not running).")
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			stats := router.NetworkStats{}
			json.Unmarshal(jsonBytes, &stats)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				fmt.Println("Network statistics:")
				fmt.Printf("  Active tunnels:  %d\n", stats.ActiveTunnels)
				fmt.Printf("  Inbound:         %.1f KB/s\n", stats.InboundBandwidth)
				fmt.Printf("  Outbound:        %.1f KB/s\n", stats.OutboundBandwidth)
				fmt.Printf("  Peers:           %d\n", stats.PeersCount)
				if stats.NetworkID != "" {
					fmt.Printf("  Network ID:      %s\n", stats.NetworkID)
				}
			case "json":
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	statsCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")
	statsCmd.Flags().Int("history", 0, "Show the last N recorded samples instead of the live snapshot")

	return statsCmd
}

func showStatsHistory(cmd *cobra.Command, limit int) {
	response, err := daemon.SendCommand(fmt.Sprintf("STATS_HISTORY %d", limit))
	if err != nil {
		slog.Warn("No statistics history (daemon is not running).")
		return
	}

	jsonBytes, _ := json.Marshal(response.Data)

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		fmt.Println(string(jsonBytes))
	default:
		var samples []struct {
			ActiveTunnels     int     `json:"ActiveTunnels"`
			InboundBandwidth  float64 `json:"InboundBandwidth"`
			OutboundBandwidth float64 `json:"OutboundBandwidth"`
			PeersCount        int     `json:"PeersCount"`
			Timestamp         string  `json:"Timestamp"`
		}
		json.Unmarshal(jsonBytes, &samples)
		for _, sample := range samples {
			fmt.Printf("%s  tunnels=%d in=%.1f out=%.1f peers=%d\n",
				sample.Timestamp, sample.ActiveTunnels,
				sample.InboundBandwidth, sample.OutboundBandwidth, sample.PeersCount)
		}
	}
}
