package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeControlAPI serves adjustable status and tunnel payloads
type fakeControlAPI struct {
	mu      sync.Mutex
	stats   NetworkStats
	tunnels []TunnelInfo
}

func (f *fakeControlAPI) set(stats NetworkStats, tunnels []TunnelInfo) {
	f.mu.Lock()
	f.stats = stats
	f.tunnels = tunnels
	f.mu.Unlock()
}

func (f *fakeControlAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.stats)
	})
	mux.HandleFunc("/api/tunnels", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"tunnels": f.tunnels})
	})
	return mux
}

func newTestPoller(t *testing.T, api *fakeControlAPI, connected func() bool) (*Poller, *Registry, chan Event) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	registry := NewRegistry()
	events := NewEventBus()
	ch := events.Subscribe()
	t.Cleanup(func() { events.Unsubscribe(ch) })

	poller := NewPoller(testClient(t, srv, ""), registry, events, time.Second, connected)
	return poller, registry, ch
}

func alwaysConnected() bool { return true }

func TestRefreshStatsPublishesOnChange(t *testing.T) {
	api := &fakeControlAPI{}
	api.set(NetworkStats{PeersCount: 10}, nil)
	poller, registry, ch := newTestPoller(t, api, alwaysConnected)

	if err := poller.RefreshStats(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	event := <-ch
	if event.Type != EventNetworkStatsChanged || event.Stats.PeersCount != 10 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if registry.NetworkStats().PeersCount != 10 {
		t.Error("expected registry to hold the fetched stats")
	}

	// Unchanged stats produce no event
	if err := poller.RefreshStats(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	select {
	case event := <-ch:
		t.Fatalf("unexpected event for unchanged stats: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRefreshStatsDiscardedWhenDisconnected(t *testing.T) {
	api := &fakeControlAPI{}
	api.set(NetworkStats{PeersCount: 10}, nil)
	poller, registry, ch := newTestPoller(t, api, func() bool { return false })

	if err := poller.RefreshStats(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if registry.NetworkStats() != (NetworkStats{}) {
		t.Error("expected stale response to be discarded")
	}
	select {
	case event := <-ch:
		t.Fatalf("unexpected event: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRefreshTunnelsEmitsDiffEvents(t *testing.T) {
	api := &fakeControlAPI{}
	api.set(NetworkStats{}, []TunnelInfo{
		{ID: "t1", Name: "web", Status: "active"},
		{ID: "t2", Name: "irc", Status: "active"},
	})
	poller, registry, ch := newTestPoller(t, api, alwaysConnected)

	if err := poller.RefreshTunnels(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	created := map[string]bool{}
	for i := 0; i < 2; i++ {
		event := <-ch
		if event.Type != EventTunnelCreated {
			t.Fatalf("expected tunnel_created, got %s", event.Type)
		}
		created[event.TunnelID] = true
	}
	if !created["t1"] || !created["t2"] {
		t.Fatalf("expected both tunnels created, got %v", created)
	}

	// t1 changes status, t2 disappears, t3 appears
	api.set(NetworkStats{}, []TunnelInfo{
		{ID: "t1", Name: "web", Status: "building"},
		{ID: "t3", Name: "mail", Status: "active"},
	})
	if err := poller.RefreshTunnels(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	got := map[EventType][]string{}
	for i := 0; i < 3; i++ {
		event := <-ch
		got[event.Type] = append(got[event.Type], event.TunnelID)
	}
	if len(got[EventTunnelStatusChanged]) != 1 || got[EventTunnelStatusChanged][0] != "t1" {
		t.Errorf("expected status change for t1, got %v", got[EventTunnelStatusChanged])
	}
	if len(got[EventTunnelCreated]) != 1 || got[EventTunnelCreated][0] != "t3" {
		t.Errorf("expected creation of t3, got %v", got[EventTunnelCreated])
	}
	if len(got[EventTunnelDestroyed]) != 1 || got[EventTunnelDestroyed][0] != "t2" {
		t.Errorf("expected destruction of t2, got %v", got[EventTunnelDestroyed])
	}

	if len(registry.Tunnels()) != 2 {
		t.Errorf("expected 2 tunnels in registry, got %d", len(registry.Tunnels()))
	}
	if _, ok := registry.Tunnel("t2"); ok {
		t.Error("expected t2 to be gone from registry")
	}
}

func TestPollerStartStop(t *testing.T) {
	api := &fakeControlAPI{}
	api.set(NetworkStats{PeersCount: 5}, nil)
	poller, registry, _ := newTestPoller(t, api, alwaysConnected)

	poller.Start()
	poller.Start() // no-op while running

	// First poll happens immediately, not after the first tick
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.NetworkStats().PeersCount == 5 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if registry.NetworkStats().PeersCount != 5 {
		t.Fatal("expected an immediate initial poll")
	}

	poller.Stop()
	poller.Stop() // idempotent
}
