package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i2pwarden/i2pwarden/internal/core"
	"github.com/i2pwarden/i2pwarden/internal/db"
	"github.com/i2pwarden/i2pwarden/internal/router"
)

// quietLogger suppresses default slog output during tests and restores it after.
func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	core.Config = core.GetDefaultConfig()
	core.Config.ConfigPath = t.TempDir()
	// No real binary; the router is never started in these tests
	core.Config.Router.Binary = filepath.Join(t.TempDir(), "missing-i2pd")
	core.Config.Router.DataDir = t.TempDir()

	store, err := core.NewConfigStore(core.GetRouterConfigPath())
	if err != nil {
		t.Fatal(err)
	}

	manager := router.New(core.Config.Router, store)
	return New(manager, store)
}

func TestNew(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	if d.manager == nil {
		t.Error("expected manager to be set")
	}
	if d.store == nil {
		t.Error("expected store to be set")
	}
	if d.logBroadcast == nil {
		t.Error("expected logBroadcast to be initialized")
	}
	if d.ctx == nil {
		t.Error("expected context to be initialized")
	}
}

func TestHandleStatus(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	var response Response
	d.handleStatus(&response)

	data, ok := response.Data.(statusData)
	if !ok {
		t.Fatalf("expected statusData payload, got %T", response.Data)
	}
	if data.Status != router.StatusDisconnected {
		t.Errorf("expected disconnected, got %s", data.Status)
	}
	if data.Running {
		t.Error("expected running=false")
	}
	if data.Version == "" {
		t.Error("expected version to be set")
	}
	if data.SocksAddress != "" {
		t.Errorf("expected no socks address while stopped, got %q", data.SocksAddress)
	}
}

func TestHandleConfigSet(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	t.Run("invalid JSON", func(t *testing.T) {
		var response Response
		d.handleConfigSet(&response, "{not json")
		if !response.HasError() {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("missing required option", func(t *testing.T) {
		before := d.store.Options()

		var response Response
		d.handleConfigSet(&response, `{"proxyPort": 4444, "logLevel": "info"}`)
		if !response.HasError() {
			t.Error("expected error for missing proxyHost")
		}
		if d.store.Options() != before {
			t.Error("expected stored configuration to be unchanged")
		}
	})

	t.Run("valid document", func(t *testing.T) {
		var response Response
		d.handleConfigSet(&response, `{"proxyHost": "127.0.0.1", "proxyPort": 4444, "logLevel": "warn"}`)
		if response.HasError() {
			t.Fatalf("unexpected error: %+v", response.Messages)
		}
		if d.store.Options().LogLevel != "warn" {
			t.Errorf("expected log level warn, got %q", d.store.Options().LogLevel)
		}
	})
}

func TestHandleTunnelCreate(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	t.Run("empty payload", func(t *testing.T) {
		var response Response
		d.handleTunnelCreate(context.Background(), &response, "")
		if !response.HasError() {
			t.Error("expected usage error for empty payload")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		var response Response
		d.handleTunnelCreate(context.Background(), &response, "{broken")
		if !response.HasError() {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("router not connected", func(t *testing.T) {
		payload, _ := json.Marshal(router.TunnelConfig{Name: "web", Type: router.TunnelHTTP})
		var response Response
		d.handleTunnelCreate(context.Background(), &response, string(payload))
		if !response.HasError() {
			t.Error("expected error while router is disconnected")
		}
	})
}

func TestParseLimit(t *testing.T) {
	if got := parseLimit(nil, 50); got != 50 {
		t.Errorf("expected fallback 50, got %d", got)
	}
	if got := parseLimit([]string{"25"}, 50); got != 25 {
		t.Errorf("expected 25, got %d", got)
	}
	if got := parseLimit([]string{"junk"}, 50); got != 50 {
		t.Errorf("expected fallback for junk, got %d", got)
	}
	if got := parseLimit([]string{"-3"}, 50); got != 50 {
		t.Errorf("expected fallback for negative, got %d", got)
	}
}

func TestPruneStatSamplesAppliesRetention(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	d.database = database

	if err := database.RecordStatSample(1, 10, 10, 10); err != nil {
		t.Fatal(err)
	}

	// Retention in the future prunes everything recorded so far
	core.Config.Log.StatsRetention = -time.Minute
	d.pruneStatSamples()

	samples, err := database.GetRecentStatSamples(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 0 {
		t.Errorf("expected samples pruned, got %d", len(samples))
	}

	// Retention <= 0 after a zero assignment disables pruning
	if err := database.RecordStatSample(2, 10, 10, 10); err != nil {
		t.Fatal(err)
	}
	core.Config.Log.StatsRetention = 0
	d.pruneStatSamples()

	samples, err = database.GetRecentStatSamples(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 {
		t.Errorf("expected sample kept with pruning disabled, got %d", len(samples))
	}
}

func TestRecordEventWritesToDatabase(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	d.database = database

	d.recordEvent(router.Event{Type: router.EventStatusChanged, Status: router.StatusStarting})
	d.recordEvent(router.Event{Type: router.EventError, Message: "boom"})
	d.recordEvent(router.Event{Type: router.EventTunnelCreated, TunnelID: "t1"})
	d.recordEvent(router.Event{
		Type:  router.EventNetworkStatsChanged,
		Stats: &router.NetworkStats{ActiveTunnels: 2, PeersCount: 10},
	})

	routerEvents, err := database.GetRecentRouterEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(routerEvents) != 2 {
		t.Errorf("expected 2 router events, got %d", len(routerEvents))
	}

	tunnelEvents, err := database.GetRecentTunnelEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tunnelEvents) != 1 || tunnelEvents[0].TunnelID != "t1" {
		t.Errorf("unexpected tunnel events: %+v", tunnelEvents)
	}

	samples, err := database.GetRecentStatSamples(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || samples[0].ActiveTunnels != 2 {
		t.Errorf("unexpected samples: %+v", samples)
	}
}
