package config

import (
	"fmt"
	"strings"
	"time"
)

type WebSocketConfig struct {
	Path           string        `koanf:"path"`
	SendBuffer     int           `koanf:"sendBuffer"`
	WriteTimeout   time.Duration `koanf:"writeTimeout"`
	PongTimeout    time.Duration `koanf:"pongTimeout"`
	MaxMessageSize int64         `koanf:"maxMessageSize"`
}

// String returns a string representation of the WebSocket configuration.
func (c *WebSocketConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- WebSocket ---\n")
	b.WriteString(fmt.Sprintf("  path: %s\n", c.Path))
	b.WriteString(fmt.Sprintf("  sendBuffer: %d\n", c.SendBuffer))
	b.WriteString(fmt.Sprintf("  writeTimeout: %s\n", c.WriteTimeout))
	b.WriteString(fmt.Sprintf("  pongTimeout: %s\n", c.PongTimeout))
	b.WriteString(fmt.Sprintf("  maxMessageSize: %d\n", c.MaxMessageSize))
	return b.String()
}

func (c *WebSocketConfig) Validate() error {
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("websocket path must start with '/': %q", c.Path)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be greater than zero")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be greater than zero")
	}
	if c.PongTimeout <= 0 {
		return fmt.Errorf("websocket pong timeout must be greater than zero")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket max message size must be greater than zero")
	}
	return nil
}
