// Package router supervises a local i2pd process: it owns the process
// lifecycle, infers readiness from the router's log output, and keeps a local
// snapshot of the router's tunnels and network statistics fresh by polling
// its HTTP control API.
package router

import "errors"

// Status is the supervised router's lifecycle state. Only the Manager assigns
// it; every other component observes it through events or Manager.Status().
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusStarting     Status = "starting"
	StatusConnected    Status = "connected"
	StatusStopping     Status = "stopping"
	StatusError        Status = "error"
)

// ErrNotConnected is returned by tunnel commands issued while the router is
// not in the connected state.
var ErrNotConnected = errors.New("router is not connected")

// TunnelType is the kind of route a tunnel exposes
type TunnelType string

const (
	TunnelHTTP   TunnelType = "HTTP"
	TunnelSOCKS  TunnelType = "SOCKS"
	TunnelClient TunnelType = "Client"
)

// TunnelConfig is the client-supplied tunnel creation request. The router
// assigns the id and status on acceptance.
type TunnelConfig struct {
	Name       string     `json:"name"`
	Type       TunnelType `json:"type"`
	LocalPort  int        `json:"port"`
	TargetHost string     `json:"target"`
	TargetPort int        `json:"targetPort"`
	Enabled    bool       `json:"enabled"`
}

// TunnelInfo is the router-confirmed projection of a tunnel. Registry entries
// are eventually consistent copies of the router's authoritative table,
// replaced wholesale on every successful refresh.
type TunnelInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       TunnelType `json:"type"`
	LocalPort  int        `json:"port"`
	TargetHost string     `json:"target"`
	TargetPort int        `json:"targetPort"`
	Enabled    bool       `json:"enabled"`
	Status     string     `json:"status"`
}

// NetworkStats is a point-in-time snapshot of the router's network state,
// replaced wholesale on every successful status poll.
type NetworkStats struct {
	ActiveTunnels     int     `json:"activeTunnels"`
	InboundBandwidth  float64 `json:"inboundBandwidth"`
	OutboundBandwidth float64 `json:"outboundBandwidth"`
	PeersCount        int     `json:"peersCount"`
	NetworkID         string  `json:"networkID"`
	AnonymityLevel    float64 `json:"anonymityLevel"`
	FloodfillEnabled  bool    `json:"floodfillEnabled"`
}
