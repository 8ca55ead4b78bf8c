package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/i2pwarden/i2pwarden/internal/core"
	"github.com/i2pwarden/i2pwarden/internal/db"
	"github.com/i2pwarden/i2pwarden/internal/router"
)

// Daemon hosts the router supervisor behind a unix socket. Clients talk a
// line-oriented command protocol and receive a single JSON response per
// connection (except LOGS, which streams).
type Daemon struct {
	manager      *router.Manager
	store        *core.ConfigStore
	mu           sync.Mutex
	listener     net.Listener
	shutdownOnce sync.Once
	logBroadcast *LogBroadcaster
	database     *db.DB
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

func New(manager *router.Manager, store *core.ConfigStore) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		manager:      manager,
		store:        store,
		logBroadcast: NewLogBroadcaster(core.Config.Log.HistorySize),
		ctx:          ctx,
		cancelFunc:   cancel,
	}
}

// Run starts the daemon's main loop.
func (d *Daemon) Run() {
	// Setup custom logger that broadcasts to connected clients
	d.setupLogging()

	// Initialize database
	dbPath := core.GetDatabasePath()
	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", dbPath)
	} else {
		d.database = database
		// Closed explicitly in shutdown(), after the final events are logged
		slog.Info("Database opened", "path", dbPath)

		version := core.FormatVersion(core.Version)
		if err := d.database.LogDaemonEvent("start", fmt.Sprintf("daemon started - version: %s, PID: %d", version, os.Getpid())); err != nil {
			slog.Error("Failed to log daemon start", "error", err)
		}

		// Keep the statistics table bounded by the retention window
		d.pruneStatSamples()
		go d.pruneLoop()
	}

	// Setup PID and socket files and ensure they are cleaned up on exit.
	socketPath := core.GetSocketPath()
	pidFilePath := core.GetPIDFilePath()

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		// Socket creation failed - this could be due to a stale socket file
		if _, statErr := os.Stat(socketPath); statErr == nil {
			// Socket file exists, connect to it to see if a daemon is actually running
			conn, dialErr := net.Dial("unix", socketPath)
			if dialErr == nil {
				conn.Close()
				slog.Error("Fatal: Daemon is already running")
				os.Exit(1)
			}
			// Connection failed, socket file is stale - remove it
			slog.Info(fmt.Sprintf("Removing stale socket file: %s", socketPath))
			if removeErr := os.Remove(socketPath); removeErr != nil {
				slog.Error(fmt.Sprintf("Fatal: Could not remove stale socket: %v", removeErr))
				os.Exit(1)
			}
			listener, err = net.Listen("unix", socketPath)
		}
		if err != nil {
			slog.Error(fmt.Sprintf("Fatal: Could not create socket listener: %v", err))
			os.Exit(1)
		}
	}

	os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	defer os.Remove(pidFilePath)
	defer os.Remove(socketPath)

	d.listener = listener
	slog.Info(fmt.Sprintf("Daemon listening on %s", socketPath))

	// Kill router processes left behind by a previous daemon instance.
	// Must happen before autostart so the ports they hold are released.
	if orphansKilled := d.cleanOrphanRouters(); orphansKilled > 0 {
		slog.Info("Cleaned up orphan router processes from previous daemon", "count", orphansKilled)
	}

	// Record supervisor events into the log and database
	d.startEventLoop()

	// Watch config file for changes
	d.watchConfig()

	// Handle signals
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-shutdownChan
		slog.Info("Shutdown signal received. Stopping router.")
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)
	}()

	// Autostart the router when enabled in its configuration
	if d.store.Options().Enabled {
		d.warnIfSocksPortBusy()
		if err := d.manager.Start(); err != nil {
			slog.Error("Router autostart failed", "error", err)
		}
	}

	// Accept connections in a loop
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") {
				slog.Info(fmt.Sprintf("Error accepting connection: %v", err))
			}
			break
		}
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) == 0 {
		return
	}
	command, args := parts[0], parts[1:]

	// Log the command execution (skip VERSION as it's automatic)
	if command != "VERSION" {
		if len(args) > 0 {
			slog.Info(fmt.Sprintf("Executing command: %s %v", command, args))
		} else {
			slog.Info(fmt.Sprintf("Executing command: %s", command))
		}
	}

	ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	var response Response
	switch command {
	case "STATUS":
		d.handleStatus(&response)

	case "START":
		if err := d.manager.Start(); err != nil {
			response.AddMessage(fmt.Sprintf("Failed to start router: %v", err), "ERROR")
		} else {
			response.AddMessage("Router start initiated", "INFO")
		}

	case "STOP":
		if err := d.manager.Stop(); err != nil {
			response.AddMessage(fmt.Sprintf("Failed to stop router: %v", err), "ERROR")
		} else {
			response.AddMessage("Router stopped", "INFO")
		}

	case "RESTART":
		if err := d.manager.Restart(); err != nil {
			response.AddMessage(fmt.Sprintf("Failed to restart router: %v", err), "ERROR")
		} else {
			response.AddMessage("Router restart initiated", "INFO")
		}

	case "NEW_IDENTITY":
		if err := d.manager.NewIdentity(); err != nil {
			response.AddMessage(fmt.Sprintf("Failed to generate new identity: %v", err), "ERROR")
		} else {
			response.AddMessage("New identity generated, router restarting", "INFO")
		}

	case "TUNNELS":
		response.AddData(d.manager.Registry().Tunnels())

	case "TUNNEL_CREATE":
		d.handleTunnelCreate(ctx, &response, strings.Join(args, " "))

	case "TUNNEL_DESTROY":
		if len(args) != 1 {
			response.AddMessage("Usage: TUNNEL_DESTROY <id>", "ERROR")
			break
		}
		if err := d.manager.DestroyTunnel(ctx, args[0]); err != nil {
			response.AddMessage(fmt.Sprintf("Failed to destroy tunnel: %v", err), "ERROR")
		} else {
			response.AddMessage(fmt.Sprintf("Tunnel %s destroyed", args[0]), "INFO")
		}

	case "TUNNEL_ENABLE", "TUNNEL_DISABLE":
		if len(args) != 1 {
			response.AddMessage(fmt.Sprintf("Usage: %s <id>", command), "ERROR")
			break
		}
		enable := command == "TUNNEL_ENABLE"
		if err := d.manager.SetTunnelEnabled(ctx, args[0], enable); err != nil {
			response.AddMessage(fmt.Sprintf("Failed to update tunnel: %v", err), "ERROR")
		} else if enable {
			response.AddMessage(fmt.Sprintf("Tunnel %s enabled", args[0]), "INFO")
		} else {
			response.AddMessage(fmt.Sprintf("Tunnel %s disabled", args[0]), "INFO")
		}

	case "STATS":
		response.AddData(d.manager.Registry().NetworkStats())

	case "STATS_HISTORY":
		d.handleStatsHistory(&response, args)

	case "EVENTS":
		d.handleEvents(&response, args)

	case "CONFIG_GET":
		response.AddData(d.store.Options())

	case "CONFIG_SET":
		d.handleConfigSet(&response, strings.Join(args, " "))

	case "LOGS":
		d.handleLogs(conn)
		return // handleLogs owns the connection until disconnect

	case "VERSION":
		response.AddData(map[string]string{"version": core.FormatVersion(core.Version)})

	case "SHUTDOWN":
		response.AddMessage("Daemon shutting down", "INFO")
		conn.Write([]byte(response.ToJSON()))
		conn.Close()
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)

	default:
		response.AddMessage(fmt.Sprintf("Unknown command: %s", command), "ERROR")
	}

	conn.Write([]byte(response.ToJSON()))
}

// statusData is the STATUS response payload
type statusData struct {
	Status       router.Status `json:"status"`
	Running      bool          `json:"running"`
	LastError    string        `json:"last_error,omitempty"`
	SocksAddress string        `json:"socks_address,omitempty"`
	Uptime       string        `json:"uptime,omitempty"`
	Version      string        `json:"version"`
}

func (d *Daemon) handleStatus(response *Response) {
	data := statusData{
		Status:    d.manager.Status(),
		Running:   d.manager.Running(),
		LastError: d.manager.LastError(),
		Version:   core.FormatVersion(core.Version),
	}
	if data.Running {
		data.SocksAddress = d.manager.SocksAddress()
	}
	if startedAt := d.manager.StartedAt(); !startedAt.IsZero() {
		data.Uptime = time.Since(startedAt).Round(time.Second).String()
	}
	response.AddData(data)
}

func (d *Daemon) handleTunnelCreate(ctx context.Context, response *Response, payload string) {
	if strings.TrimSpace(payload) == "" {
		response.AddMessage("Usage: TUNNEL_CREATE <json>", "ERROR")
		return
	}

	var config router.TunnelConfig
	if err := json.Unmarshal([]byte(payload), &config); err != nil {
		response.AddMessage(fmt.Sprintf("Invalid tunnel config: %v", err), "ERROR")
		return
	}

	if err := d.manager.CreateTunnel(ctx, config); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to create tunnel: %v", err), "ERROR")
		return
	}
	response.AddMessage(fmt.Sprintf("Tunnel %q created", config.Name), "INFO")
	response.AddData(d.manager.Registry().Tunnels())
}

func (d *Daemon) handleConfigSet(response *Response, payload string) {
	if strings.TrimSpace(payload) == "" {
		response.AddMessage("Usage: CONFIG_SET <json>", "ERROR")
		return
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		response.AddMessage(fmt.Sprintf("Invalid configuration payload: %v", err), "ERROR")
		return
	}

	if err := d.manager.SetConfiguration(values); err != nil {
		response.AddMessage(fmt.Sprintf("Configuration rejected: %v", err), "ERROR")
		return
	}
	response.AddMessage("Configuration updated", "INFO")
	response.AddData(d.store.Options())
}

func (d *Daemon) handleStatsHistory(response *Response, args []string) {
	if d.database == nil {
		response.AddMessage("Database not available", "ERROR")
		return
	}
	limit := parseLimit(args, 100)
	samples, err := d.database.GetRecentStatSamples(limit)
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read statistics history: %v", err), "ERROR")
		return
	}
	response.AddData(samples)
}

func (d *Daemon) handleEvents(response *Response, args []string) {
	if d.database == nil {
		response.AddMessage("Database not available", "ERROR")
		return
	}
	limit := parseLimit(args, 50)
	events, err := d.database.GetRecentRouterEvents(limit)
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read events: %v", err), "ERROR")
		return
	}
	response.AddData(events)
}

func parseLimit(args []string, fallback int) int {
	if len(args) == 0 {
		return fallback
	}
	limit, err := strconv.Atoi(args[0])
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// startEventLoop subscribes to the supervisor's events and records them into
// the daemon log and the database until the daemon shuts down.
func (d *Daemon) startEventLoop() {
	ch := d.manager.Events().Subscribe()
	go func() {
		for {
			select {
			case <-d.ctx.Done():
				d.manager.Events().Unsubscribe(ch)
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				d.recordEvent(event)
			}
		}
	}()
}

func (d *Daemon) recordEvent(event router.Event) {
	switch event.Type {
	case router.EventStatusChanged:
		slog.Info("Router status changed", "status", event.Status)
		d.logRouterEvent("status_changed", string(event.Status))
	case router.EventRunningChanged:
		slog.Info("Router running state changed", "running", event.Running)
	case router.EventReady:
		if event.Success {
			slog.Info("Router ready", "socks_address", event.SocksAddress)
			d.logRouterEvent("ready", event.SocksAddress)
		} else {
			d.logRouterEvent("ready_failed", "")
		}
	case router.EventStopped:
		d.logRouterEvent("stopped", "")
	case router.EventError:
		slog.Error("Router error", "error", event.Message)
		d.logRouterEvent("error", event.Message)
	case router.EventTunnelCreated:
		d.logTunnelEvent(event.TunnelID, "created", "")
	case router.EventTunnelDestroyed:
		d.logTunnelEvent(event.TunnelID, "destroyed", "")
	case router.EventTunnelStatusChanged:
		d.logTunnelEvent(event.TunnelID, "status_changed", "")
	case router.EventNetworkStatsChanged:
		if d.database != nil && event.Stats != nil {
			stats := event.Stats
			if err := d.database.RecordStatSample(stats.ActiveTunnels, int64(stats.InboundBandwidth), int64(stats.OutboundBandwidth), stats.PeersCount); err != nil {
				slog.Debug("Failed to record stat sample", "error", err)
			}
		}
	}
}

func (d *Daemon) logRouterEvent(eventType, details string) {
	if d.database == nil {
		return
	}
	if err := d.database.LogRouterEvent(eventType, details); err != nil {
		slog.Error("Failed to log router event", "error", err, "type", eventType)
	}
}

func (d *Daemon) logTunnelEvent(tunnelID, eventType, details string) {
	if d.database == nil {
		return
	}
	if err := d.database.LogTunnelEvent(tunnelID, eventType, details); err != nil {
		slog.Error("Failed to log tunnel event", "error", err, "tunnel", tunnelID)
	}
}

// pruneStatSamples drops statistics samples older than the configured
// retention window. Retention <= 0 disables pruning.
func (d *Daemon) pruneStatSamples() {
	if d.database == nil {
		return
	}
	retention := core.Config.Log.StatsRetention
	if retention <= 0 {
		return
	}
	if err := d.database.PruneStatSamples(retention); err != nil {
		slog.Error("Failed to prune statistics samples", "error", err)
	}
}

// pruneLoop re-runs the retention prune on a slow cadence for long daemon
// uptimes, where the startup prune alone would let the table grow unbounded.
func (d *Daemon) pruneLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.pruneStatSamples()
		}
	}
}

func (d *Daemon) shutdown() {
	d.shutdownOnce.Do(func() {
		slog.Info("Executing shutdown sequence...")

		if err := d.manager.Stop(); err != nil {
			slog.Error("Failed to stop router during shutdown", "error", err)
		}

		// Cancel context to stop all background tasks
		if d.cancelFunc != nil {
			d.cancelFunc()
		}

		// Log daemon stop as the final event after the router is down
		if d.database != nil {
			version := core.FormatVersion(core.Version)
			details := fmt.Sprintf("daemon stopped - version: %s, PID: %d", version, os.Getpid())
			if err := d.database.LogDaemonEvent("stop", details); err != nil {
				slog.Error("Failed to log daemon stop event", "error", err)
			}

			if err := d.database.Flush(); err != nil {
				slog.Error("Failed to flush database during shutdown", "error", err)
			}
			if err := d.database.Close(); err != nil {
				slog.Error("Failed to close database during shutdown", "error", err)
			} else {
				slog.Info("Database closed successfully")
			}
		}
	})
}

// watchConfig sets up automatic config file watching
func (d *Daemon) watchConfig() {
	configPath := filepath.Join(core.Config.ConfigPath, core.ConfigFileName)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}

	if err := watcher.Add(configPath); err != nil {
		slog.Error("Failed to watch config file", "error", err, "path", configPath)
		watcher.Close()
		return
	}

	// Set up a debounced reload handler
	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-d.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				slog.Debug("Filesystem event on config file", "event", event.Op.String(), "file", event.Name)

				// Re-add watch after RENAME, REMOVE, or CREATE events.
				// Editors using atomic writes remove the original from the
				// watch list; the file may not exist yet mid-operation.
				if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
					go func() {
						for attempt := 0; attempt < 5; attempt++ {
							if attempt > 0 {
								delay := time.Duration(10<<uint(attempt-1)) * time.Millisecond
								time.Sleep(delay)
							}

							watcher.Remove(configPath)

							if err := watcher.Add(configPath); err == nil {
								slog.Debug("Successfully re-added watch", "path", configPath, "attempt", attempt+1)
								return
							} else if attempt == 4 {
								slog.Error("Failed to re-add watch after multiple attempts", "error", err, "path", configPath)
							}
						}
					}()
				}

				// Reload on write, create, or rename events. Many editors use
				// atomic rename operations instead of direct writes.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				reloadMutex.Lock()
				// Debounce: wait 500ms after last change before reloading
				if reloadTimer != nil {
					reloadTimer.Stop()
				}

				reloadTimer = time.AfterFunc(500*time.Millisecond, func() {
					slog.Info("Configuration file changed, reloading...", "file", event.Name)
					if err := d.reloadConfig(); err != nil {
						slog.Error("Config reload failed", "error", err)
					} else {
						slog.Info("Configuration reloaded successfully")
					}
				})
				reloadMutex.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config file watcher error", "error", err)
			}
		}
	}()

	slog.Info("Watching configuration file for changes")
}

// reloadConfig re-reads the daemon configuration file. Settings that only
// apply at router launch take effect on the next start; the poll interval is
// applied immediately.
func (d *Daemon) reloadConfig() error {
	configPath := filepath.Join(core.Config.ConfigPath, core.ConfigFileName)
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return err
	}

	cfg.ConfigPath = core.Config.ConfigPath
	core.Config = cfg

	d.manager.SetPollInterval(cfg.Router.PollInterval)
	return nil
}
