package core

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// RouterOptions is the router-facing configuration surface. It is the single
// document the host application reads and writes; the supervisor derives the
// i2pd argument vector from it.
type RouterOptions struct {
	Enabled         bool       `json:"enabled"`
	ProxyHost       string     `json:"proxyHost"`
	ProxyPort       int        `json:"proxyPort"`
	HTTPTunnelPort  int        `json:"httpTunnelPort"`
	SocksTunnelPort int        `json:"socksTunnelPort"`
	TunnelName      string     `json:"tunnelName"`
	BandwidthLimit  int        `json:"bandwidthLimit"`
	MaxConnections  int        `json:"maxConnections"`
	EnableUPnP      bool       `json:"enableUPnP"`
	EnableFloodfill bool       `json:"enableFloodfill"`
	EnableReseed    bool       `json:"enableReseed"`
	ReseedURL       string     `json:"reseedURL"`
	LogLevel        string     `json:"logLevel"`
	LogFile         string     `json:"logFile"`
	Router          RouterNode `json:"router"`
}

// RouterNode is the nested low-level router sub-configuration
type RouterNode struct {
	Port       int    `json:"port"`
	Host       string `json:"host"`
	EnableUPnP bool   `json:"enableUPnP"`
	EnableSSU  bool   `json:"enableSSU"`
	EnableNTCP bool   `json:"enableNTCP"`
}

// DefaultRouterOptions returns the options used until the host sets its own
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		Enabled:         true,
		ProxyHost:       "127.0.0.1",
		ProxyPort:       4444,
		HTTPTunnelPort:  4444,
		SocksTunnelPort: 4447,
		TunnelName:      "i2pwarden",
		BandwidthLimit:  1024,
		MaxConnections:  150,
		EnableUPnP:      false,
		EnableFloodfill: false,
		EnableReseed:    true,
		LogLevel:        "info",
		Router: RouterNode{
			Port:       0,
			Host:       "",
			EnableUPnP: false,
			EnableSSU:  true,
			EnableNTCP: true,
		},
	}
}

// requiredOptionKeys must be present in every SetConfiguration payload
var requiredOptionKeys = []string{"proxyHost", "proxyPort", "logLevel"}

// optionKinds maps each recognized option key to its expected JSON kind
var optionKinds = map[string]string{
	"enabled":         "bool",
	"proxyHost":       "string",
	"proxyPort":       "number",
	"httpTunnelPort":  "number",
	"socksTunnelPort": "number",
	"tunnelName":      "string",
	"bandwidthLimit":  "number",
	"maxConnections":  "number",
	"enableUPnP":      "bool",
	"enableFloodfill": "bool",
	"enableReseed":    "bool",
	"reseedURL":       "string",
	"logLevel":        "string",
	"logFile":         "string",
	"router":          "object",
}

var routerNodeKinds = map[string]string{
	"port":       "number",
	"host":       "string",
	"enableUPnP": "bool",
	"enableSSU":  "bool",
	"enableNTCP": "bool",
}

// ConfigStore owns the router configuration document. Mutation goes through
// Set, which validates before assignment; a rejected payload leaves the stored
// options untouched.
type ConfigStore struct {
	mu   sync.RWMutex
	path string
	opts RouterOptions
}

// NewConfigStore loads the persisted router configuration from path, falling
// back to defaults when the file does not exist yet.
func NewConfigStore(path string) (*ConfigStore, error) {
	s := &ConfigStore{
		path: path,
		opts: DefaultRouterOptions(),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read router config: %w", err)
	}

	var opts RouterOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("failed to parse router config: %w", err)
	}
	s.opts = opts
	return s, nil
}

// Options returns a copy of the current router options
func (s *ConfigStore) Options() RouterOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Set validates the payload, and only on success assigns and persists it.
// The payload is a full configuration document keyed by option name, the way
// the host application submits it.
func (s *ConfigStore) Set(values map[string]any) error {
	if err := validateOptions(values); err != nil {
		return err
	}

	// Round-trip through JSON so the validated map decodes with the same
	// rules as a file load
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	opts := DefaultRouterOptions()
	if err := json.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}

	s.mu.Lock()
	prev := s.opts
	s.opts = opts
	err = s.saveLocked()
	if err != nil {
		s.opts = prev
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to persist configuration: %w", err)
	}
	return nil
}

// validateOptions checks required keys and value kinds without assigning
func validateOptions(values map[string]any) error {
	for _, key := range requiredOptionKeys {
		if _, ok := values[key]; !ok {
			return fmt.Errorf("invalid configuration: missing required option %q", key)
		}
	}

	for key, value := range values {
		kind, known := optionKinds[key]
		if !known {
			return fmt.Errorf("invalid configuration: unknown option %q", key)
		}
		if !matchesKind(value, kind) {
			return fmt.Errorf("invalid configuration: option %q must be a %s", key, kind)
		}
	}

	if raw, ok := values["router"]; ok {
		nested, _ := raw.(map[string]any)
		for key, value := range nested {
			kind, known := routerNodeKinds[key]
			if !known {
				return fmt.Errorf("invalid configuration: unknown router option %q", key)
			}
			if !matchesKind(value, kind) {
				return fmt.Errorf("invalid configuration: router option %q must be a %s", key, kind)
			}
		}
	}

	return nil
}

func matchesKind(value any, kind string) bool {
	switch kind {
	case "bool":
		_, ok := value.(bool)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	}
	return false
}

// saveLocked atomically persists the options (temp file + rename)
func (s *ConfigStore) saveLocked() error {
	data, err := json.MarshalIndent(s.opts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal router config: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write router config temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename router config file: %w", err)
	}
	return nil
}
