package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Poller periodically refreshes the registry from the router's control API
// while the supervisor is connected. Poll failures are logged and dropped;
// the poller heals by cadence, not by retrying a failed request. Results of
// requests still in flight when the supervisor leaves the connected state
// are discarded.
type Poller struct {
	client    *Client
	registry  *Registry
	events    *EventBus
	connected func() bool // re-checked before applying any response

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller wires a poller to its collaborators. connected reports whether
// the supervisor is still in the connected state; it gates every apply.
func NewPoller(client *Client, registry *Registry, events *EventBus, interval time.Duration, connected func() bool) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		client:    client,
		registry:  registry,
		events:    events,
		connected: connected,
		interval:  interval,
	}
}

// Start begins the poll loop. Calling Start while running is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

// Stop cancels the poll loop and waits for it to exit. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetInterval reprograms the poll cadence. Takes effect from the next tick;
// if the poller is running it is restarted with the new interval.
func (p *Poller) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}

	p.mu.Lock()
	running := p.cancel != nil
	p.interval = interval
	p.mu.Unlock()

	if running {
		p.Stop()
		p.Start()
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.mu.Lock()
	interval := p.interval
	p.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First poll right away so dependents don't wait a full interval for
	// their initial snapshot
	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce refreshes stats and tunnels. Each request is bounded by the poll
// interval so a hung router cannot stack up requests.
func (p *Poller) pollOnce(ctx context.Context) {
	p.mu.Lock()
	interval := p.interval
	p.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	if err := p.RefreshStats(reqCtx); err != nil {
		slog.Debug("Status poll failed", "error", err)
	}
	if err := p.RefreshTunnels(reqCtx); err != nil {
		slog.Debug("Tunnel poll failed", "error", err)
	}
}

// RefreshStats fetches /api/status and, if the supervisor is still connected,
// replaces the statistics snapshot wholesale.
func (p *Poller) RefreshStats(ctx context.Context) error {
	stats, err := p.client.Status(ctx)
	if err != nil {
		return fmt.Errorf("status refresh: %w", err)
	}

	if !p.connected() {
		return nil // Superseded by a stop, discard
	}

	previous := p.registry.NetworkStats()
	p.registry.ReplaceStats(stats)

	if stats != previous {
		p.events.Publish(Event{Type: EventNetworkStatsChanged, Stats: &stats})
	}
	return nil
}

// RefreshTunnels fetches /api/tunnels and, if the supervisor is still
// connected, replaces the tunnel table wholesale. Differences against the
// previous snapshot are published as tunnel events.
func (p *Poller) RefreshTunnels(ctx context.Context) error {
	tunnels, err := p.client.Tunnels(ctx)
	if err != nil {
		return fmt.Errorf("tunnel refresh: %w", err)
	}

	if !p.connected() {
		return nil // Superseded by a stop, discard
	}

	previous := p.registry.Tunnels()
	p.registry.ReplaceTunnels(tunnels)
	p.publishTunnelDiff(previous, tunnels)
	return nil
}

func (p *Poller) publishTunnelDiff(previous, current []TunnelInfo) {
	prevByID := make(map[string]TunnelInfo, len(previous))
	for _, t := range previous {
		prevByID[t.ID] = t
	}

	seen := make(map[string]bool, len(current))
	for _, t := range current {
		seen[t.ID] = true
		old, existed := prevByID[t.ID]
		switch {
		case !existed:
			p.events.Publish(Event{Type: EventTunnelCreated, TunnelID: t.ID})
		case old != t:
			p.events.Publish(Event{Type: EventTunnelStatusChanged, TunnelID: t.ID})
		}
	}

	for id := range prevByID {
		if !seen[id] {
			p.events.Publish(Event{Type: EventTunnelDestroyed, TunnelID: id})
		}
	}
}
