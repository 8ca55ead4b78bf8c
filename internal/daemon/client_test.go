package daemon

import (
	"bufio"
	"net"
	"testing"

	"github.com/i2pwarden/i2pwarden/internal/core"
)

// fakeDaemonSocket listens on the configured control socket and answers every
// connection with an empty JSON response, like a healthy daemon would.
func fakeDaemonSocket(t *testing.T) {
	t.Helper()

	listener, err := net.Listen("unix", core.GetSocketPath())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				if !scanner.Scan() {
					return
				}
				response := Response{}
				response.AddData(map[string]string{"version": "test"})
				conn.Write([]byte(response.ToJSON()))
			}(conn)
		}
	}()
}

func TestSendCommandRoundTrip(t *testing.T) {
	quietLogger(t)
	newTestDaemon(t) // installs a test core.Config
	fakeDaemonSocket(t)

	response, err := SendCommand("VERSION")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if response.Data == nil {
		t.Error("expected response data")
	}
}

func TestEnsureDaemonIsRunningWithLiveDaemon(t *testing.T) {
	quietLogger(t)
	newTestDaemon(t)
	fakeDaemonSocket(t)

	// A responsive daemon means no fork attempt and no error
	if err := EnsureDaemonIsRunning(); err != nil {
		t.Fatalf("expected success against a live daemon, got: %v", err)
	}
}
