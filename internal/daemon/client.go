package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/i2pwarden/i2pwarden/internal/core"
)

// SendCommand connects to the daemon, sends a command, and returns the response.
func SendCommand(command string) (Response, error) {
	response := Response{}

	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return response, fmt.Errorf("failed to send command to daemon: %w", err)
	}
	bytes, err := io.ReadAll(conn)
	if err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}

	if err := json.Unmarshal(bytes, &response); err != nil {
		return response, fmt.Errorf("failed to parse response from daemon: %w", err)
	}

	return response, nil
}

// StartDaemon forks a new daemon process in the background
func StartDaemon() error {
	cmd := exec.Command(os.Args[0], "internal-daemon-start")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not fork daemon process: %w", err)
	}
	slog.Debug("Daemon process launched", "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

// WaitForDaemon waits until the daemon socket accepts commands
func WaitForDaemon() error {
	for i := 0; i < 50; i++ {
		if _, err := SendCommand("VERSION"); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not become ready in time")
}

// EnsureDaemonIsRunning starts the daemon in the background unless one
// already answers on the control socket.
func EnsureDaemonIsRunning() error {
	if _, err := SendCommand("VERSION"); err == nil {
		return nil
	}

	slog.Info("Starting i2pwarden daemon...")
	if err := StartDaemon(); err != nil {
		return err
	}
	if err := WaitForDaemon(); err != nil {
		return err
	}
	slog.Info("Daemon started successfully")
	return nil
}
