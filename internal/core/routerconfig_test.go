package core

import (
	"os"
	"path/filepath"
	"testing"
)

func validOptionValues() map[string]any {
	return map[string]any{
		"enabled":         true,
		"proxyHost":       "127.0.0.1",
		"proxyPort":       4444,
		"socksTunnelPort": 14447,
		"logLevel":        "debug",
	}
}

func newTestStore(t *testing.T) (*ConfigStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router_config.json")
	store, err := NewConfigStore(path)
	if err != nil {
		t.Fatal(err)
	}
	return store, path
}

func TestConfigStoreDefaultsWhenFileMissing(t *testing.T) {
	store, _ := newTestStore(t)

	opts := store.Options()
	if opts.SocksTunnelPort != 4447 {
		t.Errorf("expected default SOCKS port 4447, got %d", opts.SocksTunnelPort)
	}
	if opts.ProxyHost != "127.0.0.1" {
		t.Errorf("expected default proxy host, got %q", opts.ProxyHost)
	}
	if !opts.Enabled {
		t.Error("expected router to be enabled by default")
	}
}

func TestConfigStoreSetPersistsAndReloads(t *testing.T) {
	store, path := newTestStore(t)

	if err := store.Set(validOptionValues()); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	opts := store.Options()
	if opts.SocksTunnelPort != 14447 {
		t.Errorf("expected SOCKS port 14447, got %d", opts.SocksTunnelPort)
	}
	if opts.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", opts.LogLevel)
	}

	// Unspecified keys fall back to defaults
	if opts.TunnelName != "i2pwarden" {
		t.Errorf("expected default tunnel name, got %q", opts.TunnelName)
	}

	// A fresh store sees the persisted document
	reloaded, err := NewConfigStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Options().SocksTunnelPort != 14447 {
		t.Error("expected persisted options to survive reload")
	}
}

func TestConfigStoreRejectsMissingRequiredKey(t *testing.T) {
	store, path := newTestStore(t)

	values := validOptionValues()
	delete(values, "proxyHost")

	if err := store.Set(values); err == nil {
		t.Fatal("expected missing proxyHost to be rejected")
	}

	// Nothing assigned, nothing persisted
	if store.Options() != DefaultRouterOptions() {
		t.Error("expected options to be unchanged after rejection")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file to be written after rejection")
	}
}

func TestConfigStoreRejectsUnknownKey(t *testing.T) {
	store, _ := newTestStore(t)

	values := validOptionValues()
	values["bogus"] = true

	if err := store.Set(values); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestConfigStoreRejectsWrongKind(t *testing.T) {
	store, _ := newTestStore(t)

	values := validOptionValues()
	values["proxyPort"] = "not a number"

	if err := store.Set(values); err == nil {
		t.Fatal("expected wrong value kind to be rejected")
	}
	if store.Options() != DefaultRouterOptions() {
		t.Error("expected options to be unchanged after rejection")
	}
}

func TestConfigStoreValidatesNestedRouterBlock(t *testing.T) {
	store, _ := newTestStore(t)

	values := validOptionValues()
	values["router"] = map[string]any{"port": "not a number"}
	if err := store.Set(values); err == nil {
		t.Fatal("expected invalid nested router option to be rejected")
	}

	values["router"] = map[string]any{"port": 12345, "enableSSU": true}
	if err := store.Set(values); err != nil {
		t.Fatalf("expected valid nested router block to be accepted: %v", err)
	}
	if store.Options().Router.Port != 12345 {
		t.Errorf("expected router port 12345, got %d", store.Options().Router.Port)
	}
}
