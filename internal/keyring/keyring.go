package keyring

import (
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const (
	serviceName = "i2pwarden"

	// Key under which the router control API key is stored
	apiKeyName = "router-api-key"
)

var (
	ring     keyring.Keyring
	ringOnce sync.Once
	ringErr  error
)

// initKeyring initializes the keyring with fallback options
func initKeyring() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		// On macOS, prioritize Keychain and don't include FileBackend fallback
		// to avoid the "No directory provided" error
		ring, ringErr = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			// Allow multiple backends with priority order
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,      // macOS Keychain
				keyring.SecretServiceBackend, // Linux Secret Service (GNOME Keyring, KWallet)
				keyring.WinCredBackend,       // Windows Credential Manager
				keyring.PassBackend,          // Pass (password-store.org)
			},
		})
	})
	return ring, ringErr
}

// SetAPIKey stores the router control API key
func SetAPIKey(key string) error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	return kr.Set(keyring.Item{
		Key:  apiKeyName,
		Data: []byte(key),
	})
}

// GetAPIKey retrieves the stored router control API key.
// Returns empty string if no key is stored.
func GetAPIKey() (string, error) {
	kr, err := initKeyring()
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}

	item, err := kr.Get(apiKeyName)
	if err == keyring.ErrKeyNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve API key: %w", err)
	}
	return string(item.Data), nil
}

// DeleteAPIKey removes the stored router control API key
func DeleteAPIKey() error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	err = kr.Remove(apiKeyName)
	if err == keyring.ErrKeyNotFound {
		return fmt.Errorf("no API key stored")
	}
	return err
}

// HasAPIKey checks if a router control API key is stored
func HasAPIKey() bool {
	kr, err := initKeyring()
	if err != nil {
		return false
	}

	_, err = kr.Get(apiKeyName)
	return err == nil
}
