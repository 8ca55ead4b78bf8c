package router

import "testing"

func TestRegistryReplaceTunnelsIsWholesale(t *testing.T) {
	r := NewRegistry()

	r.ReplaceTunnels([]TunnelInfo{
		{ID: "t1", Name: "one"},
		{ID: "t2", Name: "two"},
	})
	r.ReplaceTunnels([]TunnelInfo{
		{ID: "t3", Name: "three"},
	})

	tunnels := r.Tunnels()
	if len(tunnels) != 1 || tunnels[0].ID != "t3" {
		t.Fatalf("expected only t3 to survive the refresh, got %v", tunnels)
	}
	if _, ok := r.Tunnel("t1"); ok {
		t.Error("expected t1 to be gone after wholesale replace")
	}
}

func TestRegistryTunnelsReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.ReplaceTunnels([]TunnelInfo{{ID: "t1", Name: "one"}})

	tunnels := r.Tunnels()
	tunnels[0].Name = "mutated"

	fresh, ok := r.Tunnel("t1")
	if !ok {
		t.Fatal("expected t1 to exist")
	}
	if fresh.Name != "one" {
		t.Errorf("registry entry mutated through returned slice: %q", fresh.Name)
	}
}

func TestRegistryReplaceTunnelsCopiesInput(t *testing.T) {
	r := NewRegistry()
	input := []TunnelInfo{{ID: "t1", Name: "one"}}
	r.ReplaceTunnels(input)

	input[0].Name = "mutated"

	stored, _ := r.Tunnel("t1")
	if stored.Name != "one" {
		t.Errorf("registry entry mutated through caller's slice: %q", stored.Name)
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry()
	if got := r.NetworkStats(); got != (NetworkStats{}) {
		t.Fatalf("expected zero stats initially, got %+v", got)
	}

	stats := NetworkStats{ActiveTunnels: 3, PeersCount: 42, NetworkID: "i2p"}
	r.ReplaceStats(stats)
	if got := r.NetworkStats(); got != stats {
		t.Fatalf("expected %+v, got %+v", stats, got)
	}
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	r.ReplaceTunnels([]TunnelInfo{{ID: "t1"}})
	r.ReplaceStats(NetworkStats{PeersCount: 7})

	r.Clear()

	if len(r.Tunnels()) != 0 {
		t.Error("expected tunnels to be cleared")
	}
	if r.NetworkStats() != (NetworkStats{}) {
		t.Error("expected stats to be cleared")
	}
}
