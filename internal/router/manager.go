package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/i2pwarden/i2pwarden/internal/core"
)

// Manager supervises the i2pd process and is the single owner of the router's
// lifecycle status. It composes the readiness detector, the control API
// client, the registry, and the poller; everything downstream observes the
// router through Manager's events and snapshot queries, never through the OS
// process handle.
type Manager struct {
	cfg      core.RouterSettings
	store    *core.ConfigStore
	events   *EventBus
	registry *Registry
	client   *Client
	poller   *Poller

	mu         sync.Mutex
	status     Status
	lastError  string
	cmd        *exec.Cmd
	procDone   chan struct{} // closed once the current process is reaped
	detector   *ReadinessDetector
	expectExit bool // we initiated termination of the current process
	startedAt  time.Time
}

// New constructs a supervisor for the given router settings and configuration
// store. The instance is inert until Start is called.
func New(cfg core.RouterSettings, store *core.ConfigStore) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		events:   NewEventBus(),
		registry: NewRegistry(),
		status:   StatusDisconnected,
	}
	m.client = NewClient(cfg.APIHost, cfg.APIPort, cfg.APIKey)
	m.poller = NewPoller(m.client, m.registry, m.events, cfg.PollInterval, func() bool {
		return m.Status() == StatusConnected
	})
	return m
}

// Events returns the supervisor's event bus
func (m *Manager) Events() *EventBus {
	return m.events
}

// Registry returns the tunnel/statistics snapshot store
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Status returns the current lifecycle status
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Running reports whether the router is fully connected
func (m *Manager) Running() bool {
	return m.Status() == StatusConnected
}

// LastError returns the most recent fatal error message
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// StartedAt returns when the current process was spawned (zero if none)
func (m *Manager) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// SocksAddress returns the address of the router's SOCKS proxy
func (m *Manager) SocksAddress() string {
	return fmt.Sprintf("127.0.0.1:%d", m.store.Options().SocksTunnelPort)
}

// SetPollInterval reprograms the status poll cadence
func (m *Manager) SetPollInterval(interval time.Duration) {
	m.poller.SetInterval(interval)
}

// Configuration returns the current router options
func (m *Manager) Configuration() core.RouterOptions {
	return m.store.Options()
}

// SetConfiguration validates and applies a new router configuration. A
// rejected payload leaves the stored configuration untouched and surfaces
// only an error event, never a status change.
func (m *Manager) SetConfiguration(values map[string]any) error {
	if err := m.store.Set(values); err != nil {
		m.events.Publish(Event{Type: EventError, Message: err.Error()})
		return err
	}
	slog.Info("Router configuration updated")
	return nil
}

// Start launches the router process. A Start while already starting or
// connected is a no-op; a missing binary fails fast without spawning.
func (m *Manager) Start() error {
	m.mu.Lock()

	if m.status == StatusStarting || m.status == StatusConnected {
		slog.Debug("Router already running or starting")
		m.mu.Unlock()
		return nil
	}

	// A previous process may still be winding down (fatal start abort).
	// Wait for it to be reaped before spawning a replacement so there is
	// never more than one live handle.
	if m.cmd != nil {
		done := m.procDone
		m.mu.Unlock()
		select {
		case <-done:
		case <-time.After(m.cfg.StopGrace + 2*time.Second):
			return fmt.Errorf("previous router process did not exit")
		}
		m.mu.Lock()
		if m.status == StatusStarting || m.status == StatusConnected {
			m.mu.Unlock()
			return nil
		}
	}

	binary, err := exec.LookPath(m.cfg.Binary)
	if err != nil {
		msg := fmt.Sprintf("router binary not found: %s", m.cfg.Binary)
		m.failStartLocked(msg)
		m.mu.Unlock()
		return fmt.Errorf("%s", msg)
	}

	if err := os.MkdirAll(m.cfg.DataDir, 0o755); err != nil {
		msg := fmt.Sprintf("failed to create router data dir: %v", err)
		m.failStartLocked(msg)
		m.mu.Unlock()
		return fmt.Errorf("%s", msg)
	}

	opts := m.store.Options()
	args := buildRouterArgs(opts, m.cfg.DataDir)

	cmd := exec.Command(binary, args...)
	// Own session so a daemon crash never takes the router down with a
	// terminal signal meant for us
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// Both streams share one pipe so the detector sees whole lines; two
	// readers feeding one reassembler could splice partial lines together
	outRead, outWrite, err := os.Pipe()
	if err != nil {
		msg := fmt.Sprintf("failed to create output pipe: %v", err)
		m.failStartLocked(msg)
		m.mu.Unlock()
		return fmt.Errorf("%s", msg)
	}
	cmd.Stdout = outWrite
	cmd.Stderr = outWrite

	// Fresh detector per attempt: readiness flags always start false
	detector := NewReadinessDetector(
		logRouterLine,
		func() { m.handleReady(cmd) },
		func(detail string) { m.handleFatal(cmd, detail) },
	)
	m.detector = detector
	m.expectExit = false
	m.setStatusLocked(StatusStarting)

	if err := cmd.Start(); err != nil {
		outRead.Close()
		outWrite.Close()
		msg := fmt.Sprintf("failed to launch router: %v", err)
		m.failStartLocked(msg)
		m.mu.Unlock()
		return fmt.Errorf("%s", msg)
	}
	// The child holds its own copy of the write end; ours has to go so the
	// reader sees EOF when the process exits
	outWrite.Close()

	done := make(chan struct{})
	m.cmd = cmd
	m.procDone = done
	m.startedAt = time.Now()
	m.mu.Unlock()

	slog.Info("Router starting", "binary", binary, "pid", cmd.Process.Pid, "data_dir", m.cfg.DataDir)

	go func() {
		io.Copy(detector, outRead)
		outRead.Close()
	}()
	go m.monitorProcess(cmd, done)

	return nil
}

// Stop terminates the router. A Stop while already disconnected or stopping
// is a no-op. Graceful shutdown goes through the control API when connected,
// falling back to SIGTERM, then SIGKILL after the grace window. Stop returns
// once the process exit has been reconciled into a final status.
func (m *Manager) Stop() error {
	m.mu.Lock()

	if m.status == StatusDisconnected || m.status == StatusStopping {
		slog.Debug("Router not running or already stopping")
		m.mu.Unlock()
		return nil
	}

	wasConnected := m.status == StatusConnected
	cmd := m.cmd
	done := m.procDone
	m.expectExit = true
	if m.detector != nil {
		m.detector.Disarm()
	}
	m.setStatusLocked(StatusStopping)
	m.mu.Unlock()

	m.poller.Stop()

	if cmd == nil || cmd.Process == nil {
		// Nothing left to terminate (e.g. stop after a crash): reconcile
		// directly
		m.mu.Lock()
		if m.status == StatusStopping {
			m.setStatusLocked(StatusDisconnected)
			m.events.Publish(Event{Type: EventStopped})
		}
		m.mu.Unlock()
		return nil
	}

	slog.Info("Stopping router", "pid", cmd.Process.Pid)

	if wasConnected {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := m.client.Shutdown(ctx); err != nil {
			slog.Debug("Control API shutdown failed, falling back to signal", "error", err)
		}
		cancel()
	}

	if err := gracefulTerminate(cmd.Process, m.cfg.StopGrace, "i2pd"); err != nil {
		slog.Warn("Router termination incomplete", "error", err)
	}

	// Wait for the monitor goroutine to reap the process and settle the
	// final status
	select {
	case <-done:
		return nil
	case <-time.After(m.cfg.StopGrace + 5*time.Second):
		return fmt.Errorf("timed out waiting for router process to exit")
	}
}

// Restart stops the router, waits for OS resources (bound sockets) to
// release, and starts it again.
func (m *Manager) Restart() error {
	if err := m.Stop(); err != nil {
		return err
	}
	time.Sleep(m.cfg.RestartDelay)
	return m.Start()
}

// NewIdentity stops the router if needed, removes its identity material
// (netDb and router key directories), and starts it again so it joins the
// network as a fresh peer.
func (m *Manager) NewIdentity() error {
	switch m.Status() {
	case StatusStarting, StatusConnected, StatusStopping:
		if err := m.Stop(); err != nil {
			return err
		}
	}

	for _, dir := range []string{"netDb", "router"} {
		path := filepath.Join(m.cfg.DataDir, dir)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		slog.Info("Removed router identity directory", "path", path)
	}

	return m.Start()
}

// CreateTunnel forwards a tunnel creation request to the router and refreshes
// the registry out of cycle before returning.
func (m *Manager) CreateTunnel(ctx context.Context, config TunnelConfig) error {
	return m.tunnelCommand(ctx, func(ctx context.Context) error {
		return m.client.CreateTunnel(ctx, config)
	})
}

// DestroyTunnel forwards a tunnel destruction request to the router
func (m *Manager) DestroyTunnel(ctx context.Context, id string) error {
	return m.tunnelCommand(ctx, func(ctx context.Context) error {
		return m.client.DestroyTunnel(ctx, id)
	})
}

// SetTunnelEnabled enables or disables a tunnel on the router
func (m *Manager) SetTunnelEnabled(ctx context.Context, id string, enabled bool) error {
	return m.tunnelCommand(ctx, func(ctx context.Context) error {
		return m.client.SetTunnelEnabled(ctx, id, enabled)
	})
}

// tunnelCommand gates a mutation on the connected state, sends it, and on
// success refreshes the tunnel snapshot immediately rather than waiting for
// the next poll tick.
func (m *Manager) tunnelCommand(ctx context.Context, send func(context.Context) error) error {
	if m.Status() != StatusConnected {
		m.events.Publish(Event{Type: EventError, Message: ErrNotConnected.Error()})
		return ErrNotConnected
	}
	if err := send(ctx); err != nil {
		m.events.Publish(Event{Type: EventError, Message: err.Error()})
		return err
	}
	if err := m.poller.RefreshTunnels(ctx); err != nil {
		slog.Debug("Post-command tunnel refresh failed", "error", err)
	}
	return nil
}

// handleReady is the detector's ready callback. It only applies while the
// originating process is still current and the status is still starting.
func (m *Manager) handleReady(cmd *exec.Cmd) {
	m.mu.Lock()
	if m.cmd != cmd || m.status != StatusStarting {
		m.mu.Unlock()
		return
	}
	m.lastError = ""
	m.setStatusLocked(StatusConnected)
	addr := fmt.Sprintf("127.0.0.1:%d", m.store.Options().SocksTunnelPort)
	m.events.Publish(Event{Type: EventReady, Success: true, SocksAddress: addr})
	// Under the lock: a Stop that wins the lock next sees the poller running
	// and stops it, instead of racing a late Start. Poller.Start only spawns
	// the loop goroutine, it never blocks.
	m.poller.Start()
	m.mu.Unlock()

	slog.Info("Router fully ready", "socks_address", addr)
}

// handleFatal is the detector's fatal callback: the start attempt is aborted
// and the router process torn down.
func (m *Manager) handleFatal(cmd *exec.Cmd, detail string) {
	m.mu.Lock()
	if m.cmd != cmd || m.status != StatusStarting {
		m.mu.Unlock()
		return
	}
	m.lastError = detail
	m.expectExit = true
	m.detector.Disarm()
	m.events.Publish(Event{Type: EventError, Message: detail})
	m.setStatusLocked(StatusError)
	m.events.Publish(Event{Type: EventReady, Success: false})
	proc := cmd.Process
	grace := m.cfg.StopGrace
	m.mu.Unlock()

	slog.Error("Router start failed", "error", detail)

	if proc != nil {
		go gracefulTerminate(proc, grace, "i2pd")
	}
}

// monitorProcess reaps the router process and reconciles the final status
func (m *Manager) monitorProcess(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	m.mu.Lock()
	if m.cmd != cmd {
		// Superseded; a newer attempt owns the state now
		m.mu.Unlock()
		close(done)
		return
	}
	m.cmd = nil
	m.startedAt = time.Time{}
	if m.detector != nil {
		m.detector.Disarm()
	}

	crashed := err != nil

	switch m.status {
	case StatusStopping:
		if crashed && !m.expectExit {
			m.lastError = fmt.Sprintf("router crashed during shutdown: %v", err)
			m.events.Publish(Event{Type: EventError, Message: m.lastError})
			m.setStatusLocked(StatusError)
		} else {
			m.setStatusLocked(StatusDisconnected)
		}
	case StatusError:
		// Fatal start abort already reported; the exit just confirms it
	default:
		// Starting or Connected: the router is expected to run until told
		// otherwise, so any exit here is an error
		wasStarting := m.status == StatusStarting
		if crashed {
			m.lastError = fmt.Sprintf("router crashed: %v", err)
		} else {
			m.lastError = "router exited unexpectedly"
		}
		m.events.Publish(Event{Type: EventError, Message: m.lastError})
		m.setStatusLocked(StatusError)
		if wasStarting {
			m.events.Publish(Event{Type: EventReady, Success: false})
		}
	}
	m.events.Publish(Event{Type: EventStopped})
	m.mu.Unlock()

	m.poller.Stop()
	m.registry.Clear()
	close(done)

	if crashed {
		slog.Warn("Router process exited", "error", err)
	} else {
		slog.Info("Router process exited")
	}
}

// failStartLocked records a launch failure: error event, error status, and a
// negative readiness signal, with nothing spawned. Caller holds m.mu.
func (m *Manager) failStartLocked(msg string) {
	m.lastError = msg
	m.events.Publish(Event{Type: EventError, Message: msg})
	m.setStatusLocked(StatusError)
	m.events.Publish(Event{Type: EventReady, Success: false})
	slog.Error(msg)
}

// setStatusLocked transitions the status and publishes the status-changed
// notification, followed by running-changed when the connected boundary
// flips. Caller holds m.mu; publish order is the event contract.
func (m *Manager) setStatusLocked(next Status) {
	if next == m.status {
		return
	}
	prevRunning := m.status == StatusConnected
	m.status = next
	m.events.Publish(Event{Type: EventStatusChanged, Status: next})

	nowRunning := next == StatusConnected
	if prevRunning != nowRunning {
		m.events.Publish(Event{Type: EventRunningChanged, Running: nowRunning})
	}
}

// buildRouterArgs derives the i2pd argument vector from the router options.
// Logging always goes to stdout: readiness detection depends on it.
func buildRouterArgs(opts core.RouterOptions, dataDir string) []string {
	logLevel := opts.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}

	args := []string{
		"--daemon=false",
		"--log=stdout",
		"--loglevel=" + logLevel,
		fmt.Sprintf("--socksproxy.port=%d", opts.SocksTunnelPort),
		"--datadir=" + dataDir,
	}

	if opts.HTTPTunnelPort > 0 {
		args = append(args, fmt.Sprintf("--httpproxy.port=%d", opts.HTTPTunnelPort))
	}
	if opts.BandwidthLimit > 0 {
		args = append(args, fmt.Sprintf("--bandwidth=%d", opts.BandwidthLimit))
	}
	args = append(args, fmt.Sprintf("--floodfill=%t", opts.EnableFloodfill))
	args = append(args, fmt.Sprintf("--upnp.enabled=%t", opts.EnableUPnP))
	if opts.EnableReseed && opts.ReseedURL != "" {
		args = append(args, "--reseed.urls="+opts.ReseedURL)
	}
	if opts.Router.Host != "" {
		args = append(args, "--host="+opts.Router.Host)
	}
	if opts.Router.Port > 0 {
		args = append(args, fmt.Sprintf("--port=%d", opts.Router.Port))
	}
	args = append(args, fmt.Sprintf("--ssu2.enabled=%t", opts.Router.EnableSSU))
	args = append(args, fmt.Sprintf("--ntcp2.enabled=%t", opts.Router.EnableNTCP))

	return args
}

// logRouterLine forwards a raw router output line into the daemon log
func logRouterLine(line string) {
	slog.Debug(fmt.Sprintf("i2pd: %s", line))
}

// gracefulTerminate sends SIGTERM, waits for the process to die within the
// grace window, then force kills. Polls with Signal(0) because the router
// runs in its own session and the reaping Wait() belongs to the monitor
// goroutine.
func gracefulTerminate(process *os.Process, timeout time.Duration, label string) error {
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if err == os.ErrProcessDone {
			return nil
		}
		slog.Warn(fmt.Sprintf("Failed to send SIGTERM to %s, forcing kill", label), "error", err)
		return process.Kill()
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			slog.Info(fmt.Sprintf("Process %s terminated gracefully", label))
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	slog.Warn(fmt.Sprintf("Process %s did not exit within %v, forcing kill", label, timeout))
	if err := process.Kill(); err != nil {
		if err == os.ErrProcessDone {
			return nil
		}
		return err
	}
	return nil
}
