package config

import (
	"fmt"
	"strings"
)

// AuthConfig holds the static bearer token guarding mutating routes.
// An empty token disables the check.
type AuthConfig struct {
	Token string `koanf:"token"`
}

// String returns a string representation of the auth configuration.
func (c *AuthConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Auth ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Enabled()))
	return b.String()
}

// Enabled reports whether a token is configured.
func (c *AuthConfig) Enabled() bool {
	return c.Token != ""
}

func (c *AuthConfig) Validate() error {
	if c.Token != "" && len(c.Token) < 8 {
		return fmt.Errorf("auth token must be at least 8 characters long")
	}
	return nil
}
