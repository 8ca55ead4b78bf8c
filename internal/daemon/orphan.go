package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/i2pwarden/i2pwarden/internal/core"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// cleanOrphanRouters finds and kills i2pd processes left over from a previous
// daemon instance. This can happen if:
// - The daemon was killed with SIGKILL (no graceful shutdown)
// - A race condition during shutdown left the router running
// Orphans are identified by our data directory in their command line, so
// routers run by other software on the machine are never touched.
// Returns the number of orphan processes killed.
func (d *Daemon) cleanOrphanRouters() int {
	pids, err := findManagedRouterProcesses(core.Config.Router.DataDir)
	if err != nil {
		slog.Warn("Failed to search for orphan router processes", "error", err)
		return 0
	}

	if len(pids) == 0 {
		slog.Debug("No orphan router processes found")
		return 0
	}

	killedCount := 0
	for _, pid := range pids {
		slog.Warn("Found orphan router process, killing", "pid", pid)
		proc, err := os.FindProcess(pid)
		if err != nil {
			slog.Error("Failed to find orphan process", "pid", pid, "error", err)
			continue
		}

		if err := gracefulTerminateProcess(proc, 2*time.Second); err != nil {
			slog.Error("Failed to kill orphan process", "pid", pid, "error", err)
			continue
		}
		killedCount++
		slog.Info("Killed orphan router process", "pid", pid)

		if d.database != nil {
			if err := d.database.LogRouterEvent("orphan_killed", fmt.Sprintf("Killed orphan router process with PID %d", pid)); err != nil {
				slog.Error("Failed to log orphan kill event", "error", err)
			}
		}
	}

	if killedCount > 0 {
		slog.Info("Orphan router cleanup complete", "killed", killedCount)
	}

	return killedCount
}

// findManagedRouterProcesses finds i2pd processes whose command line names
// our data directory
func findManagedRouterProcesses(dataDir string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	marker := "--datadir=" + dataDir
	myPID := os.Getpid()

	var pids []int
	for _, p := range procs {
		if int(p.Pid) == myPID {
			continue
		}
		name, err := p.Name()
		if err != nil || !strings.Contains(name, "i2pd") {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, marker) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}

// warnIfSocksPortBusy checks whether something already listens on the router's
// SOCKS port before autostart, so the inevitable bind failure is explained up
// front in the daemon log.
func (d *Daemon) warnIfSocksPortBusy() {
	port := uint32(d.store.Options().SocksTunnelPort)

	conns, err := psnet.Connections("tcp")
	if err != nil {
		slog.Debug("Failed to inspect listening sockets", "error", err)
		return
	}

	for _, conn := range conns {
		if conn.Status == "LISTEN" && conn.Laddr.Port == port {
			slog.Warn("SOCKS proxy port is already in use, router start will likely fail",
				"port", port, "pid", conn.Pid)
			return
		}
	}
}

// gracefulTerminateProcess sends SIGTERM, waits for exit, then force kills
func gracefulTerminateProcess(proc *os.Process, timeout time.Duration) error {
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return proc.Kill()
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		// Signal 0 only probes for existence
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return proc.Kill()
}
