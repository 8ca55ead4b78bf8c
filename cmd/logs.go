package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/i2pwarden/i2pwarden/internal/core"
	"github.com/spf13/cobra"
)

func NewLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Stream daemon logs",
		Long:  "Stream the daemon's logs, including router output, until interrupted with Ctrl+C.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			conn, err := net.Dial("unix", core.GetSocketPath())
			if err != nil {
				slog.Warn("Daemon is not running.")
				return
			}
			defer conn.Close()

			if _, err := conn.Write([]byte("LOGS\n")); err != nil {
				slog.Error(fmt.Sprintf("Failed to request logs: %v", err))
				return
			}

			// Close the connection on Ctrl+C so the copy below unblocks
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				conn.Close()
			}()

			io.Copy(os.Stdout, conn)
		},
	}
}
