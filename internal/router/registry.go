package router

import "sync"

// Registry holds the last-known tunnel table and network statistics. Both are
// eventually consistent snapshots of the router's state: they are replaced
// wholesale on every successful poll or mutation refresh, never merged.
// Reads never trigger network activity.
type Registry struct {
	mu      sync.RWMutex
	tunnels []TunnelInfo
	stats   NetworkStats
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Tunnels returns a copy of the last-refreshed tunnel list
func (r *Registry) Tunnels() []TunnelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TunnelInfo, len(r.tunnels))
	copy(out, r.tunnels)
	return out
}

// Tunnel returns the tunnel with the given id from the last-refreshed list
func (r *Registry) Tunnel(id string) (TunnelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tunnels {
		if t.ID == id {
			return t, true
		}
	}
	return TunnelInfo{}, false
}

// NetworkStats returns the last-refreshed statistics snapshot
func (r *Registry) NetworkStats() NetworkStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// ReplaceTunnels swaps in a freshly fetched tunnel list. Stale entries never
// survive a refresh.
func (r *Registry) ReplaceTunnels(tunnels []TunnelInfo) {
	copied := make([]TunnelInfo, len(tunnels))
	copy(copied, tunnels)

	r.mu.Lock()
	r.tunnels = copied
	r.mu.Unlock()
}

// ReplaceStats swaps in a freshly fetched statistics snapshot
func (r *Registry) ReplaceStats(stats NetworkStats) {
	r.mu.Lock()
	r.stats = stats
	r.mu.Unlock()
}

// Clear drops both snapshots (used when the router goes away)
func (r *Registry) Clear() {
	r.mu.Lock()
	r.tunnels = nil
	r.stats = NetworkStats{}
	r.mu.Unlock()
}
