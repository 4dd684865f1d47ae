// ABOUTME: Interactive PIN entry
// ABOUTME: Reads the system PIN without echo when --pin is not given
package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// readPIN prompts for the base station's system PIN on the terminal.
func readPIN() (string, error) {
	fmt.Fprint(os.Stderr, "System PIN: ")
	pin, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}
	return string(pin), nil
}
