package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// maxShutdownTimeout keeps a stuck store close or socket drain from holding a rollout forever.
const maxShutdownTimeout = 5 * time.Minute

// ShutdownConfig bounds every graceful stop step: draining HTTP and gRPC, closing the store,
// draining NATS and flushing telemetry. Each step gets the full timeout.
type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// String returns a string representation of the ShutdownConfig.
func (c *ShutdownConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Shutdown ---\n")
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

// Context returns a fresh context for one shutdown step. It does not derive from the run
// context, which is already cancelled when shutdown starts.
func (c *ShutdownConfig) Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.Timeout)
}

func (c *ShutdownConfig) Validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("shutdown timeout is not configured")
	case c.Timeout > maxShutdownTimeout:
		return fmt.Errorf("shutdown timeout %s exceeds the %s limit", c.Timeout, maxShutdownTimeout)
	}
	return nil
}
