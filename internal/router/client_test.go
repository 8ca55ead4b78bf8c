package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
)

func testClient(t *testing.T, srv *httptest.Server, apiKey string) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(u.Hostname(), port, apiKey)
}

func TestClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(NetworkStats{
			ActiveTunnels: 2,
			PeersCount:    120,
			NetworkID:     "i2p",
		})
	}))
	defer srv.Close()

	stats, err := testClient(t, srv, "").Status(context.Background())
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if stats.ActiveTunnels != 2 || stats.PeersCount != 120 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestClientTunnels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tunnels" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tunnels": []TunnelInfo{
				{ID: "t1", Name: "web", Type: TunnelHTTP, Status: "active"},
			},
		})
	}))
	defer srv.Close()

	tunnels, err := testClient(t, srv, "").Tunnels(context.Background())
	if err != nil {
		t.Fatalf("tunnels failed: %v", err)
	}
	if len(tunnels) != 1 || tunnels[0].ID != "t1" {
		t.Errorf("unexpected tunnels: %+v", tunnels)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		json.NewEncoder(w).Encode(NetworkStats{})
	}))
	defer srv.Close()

	if _, err := testClient(t, srv, "sekrit").Status(context.Background()); err != nil {
		t.Fatalf("status failed: %v", err)
	}
}

func TestClientCommand(t *testing.T) {
	var received struct {
		Command string `json:"command"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/command" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	client := testClient(t, srv, "")
	if err := client.CreateTunnel(context.Background(), TunnelConfig{Name: "web", Type: TunnelHTTP}); err != nil {
		t.Fatalf("create tunnel failed: %v", err)
	}
	if !strings.HasPrefix(received.Command, "tunnel.create") {
		t.Errorf("unexpected command: %q", received.Command)
	}

	if err := client.SetTunnelEnabled(context.Background(), "t1", false); err != nil {
		t.Fatalf("disable tunnel failed: %v", err)
	}
	if received.Command != "tunnel.disable t1" {
		t.Errorf("unexpected command: %q", received.Command)
	}
}

func TestClientRejectedCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such tunnel", http.StatusNotFound)
	}))
	defer srv.Close()

	if err := testClient(t, srv, "").DestroyTunnel(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for rejected command")
	}
}

func TestClientMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	if _, err := testClient(t, srv, "").Status(context.Background()); err == nil {
		t.Fatal("expected error for malformed response")
	}
}
