// ABOUTME: Command-layer configuration
// ABOUTME: Carries OAuth client credentials and output verbosity into every command
package cli

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned when google-sync runs without the
// CLIENT_ID and CLIENT_SECRET environment variables.
var ErrMissingCredentials = errors.New("CLIENT_ID and CLIENT_SECRET environment variables are required")

// Config is built once in main from the process environment and handed to
// the commands, instead of having them read ambient globals.
type Config struct {
	ClientID     string
	ClientSecret string
	Quiet        bool
}

// infof prints progress output unless --quiet was given.
func (c *Config) infof(format string, args ...any) {
	if c.Quiet {
		return
	}
	fmt.Printf(format, args...)
}
