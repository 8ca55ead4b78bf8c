package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the router's local HTTP control API. All calls are bounded
// by the caller's context; the client holds no mutable state beyond the
// underlying http.Client and is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a control API client for http://host:port. apiKey may be
// empty; when set it is sent as a bearer token.
func NewClient(host string, port int, apiKey string) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the API base URL (useful for logging)
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status fetches the router's network statistics snapshot
func (c *Client) Status(ctx context.Context) (NetworkStats, error) {
	var stats NetworkStats
	if err := c.getJSON(ctx, "/api/status", &stats); err != nil {
		return NetworkStats{}, err
	}
	return stats, nil
}

// Tunnels fetches the router's authoritative tunnel table
func (c *Client) Tunnels(ctx context.Context) ([]TunnelInfo, error) {
	var payload struct {
		Tunnels []TunnelInfo `json:"tunnels"`
	}
	if err := c.getJSON(ctx, "/api/tunnels", &payload); err != nil {
		return nil, err
	}
	return payload.Tunnels, nil
}

// Command posts a command string to the router
func (c *Client) Command(ctx context.Context, command string) error {
	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/command", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("command request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("command rejected by router: %s", resp.Status)
	}
	return nil
}

// Shutdown asks the router to exit gracefully
func (c *Client) Shutdown(ctx context.Context) error {
	return c.Command(ctx, "shutdown")
}

// CreateTunnel asks the router to create a tunnel from the given config
func (c *Client) CreateTunnel(ctx context.Context, config TunnelConfig) error {
	encoded, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode tunnel config: %w", err)
	}
	return c.Command(ctx, "tunnel.create "+string(encoded))
}

// DestroyTunnel asks the router to tear down the tunnel with the given id
func (c *Client) DestroyTunnel(ctx context.Context, id string) error {
	return c.Command(ctx, "tunnel.destroy "+id)
}

// SetTunnelEnabled toggles a tunnel without destroying it
func (c *Client) SetTunnelEnabled(ctx context.Context, id string, enabled bool) error {
	if enabled {
		return c.Command(ctx, "tunnel.enable "+id)
	}
	return c.Command(ctx, "tunnel.disable "+id)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request for %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status for %s: %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response for %s: %w", path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
