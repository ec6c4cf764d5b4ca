package config

import (
	"fmt"
	"strings"
	"time"
)

const defaultHealthInterval = 5 * time.Second

type GrpcServerConfig struct {
	Port              string        `koanf:"port"`
	ReflectionEnabled bool          `koanf:"reflection"`
	HealthInterval    time.Duration `koanf:"healthInterval"`
}

// String returns a string representation of the gRPC server configuration.
func (c *GrpcServerConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- gRPC Server ---\n")
	b.WriteString(fmt.Sprintf("  port: %s\n", c.Port))
	b.WriteString(fmt.Sprintf("  reflection: %t\n", c.ReflectionEnabled))
	b.WriteString(fmt.Sprintf("  healthInterval: %s\n", c.HealthInterval))
	return b.String()
}

// Validate requires a port and defaults the health check interval.
func (c *GrpcServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("gRPC port is not configured")
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaultHealthInterval
	}
	return nil
}
