package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/i2pwarden/i2pwarden/internal/core"
	"github.com/i2pwarden/i2pwarden/internal/daemon"
	"github.com/spf13/cobra"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and daemon versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("client: %s\n", core.FormatVersion(core.Version))

			response, err := daemon.SendCommand("VERSION")
			if err != nil {
				fmt.Println("daemon: not running")
				return
			}
			jsonBytes, _ := json.Marshal(response.Data)
			var data struct {
				Version string `json:"version"`
			}
			json.Unmarshal(jsonBytes, &data)
			fmt.Printf("daemon: %s\n", data.Version)
		},
	}
}
