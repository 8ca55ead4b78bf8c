package keyring

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PromptAPIKey prompts the user to enter the router API key securely (no echo)
func PromptAPIKey() (string, error) {
	fmt.Fprint(os.Stderr, "Enter router API key: ")

	// Try to open /dev/tty directly for terminal input
	// Fall back to stdin if tty is not available
	fd := int(os.Stdin.Fd())
	tty, err := os.Open("/dev/tty")
	if err == nil {
		defer tty.Close()
		fd = int(tty.Fd())
	}

	keyBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // Print newline after input

	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}

	return string(keyBytes), nil
}
