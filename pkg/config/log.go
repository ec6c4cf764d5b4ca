package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LogConfig selects the minimum level of the JSON logs written by the storefront and the
// order notifier. Debug also adds the source location to each record.
type LogConfig struct {
	Level string `koanf:"level"`
}

// String returns a string representation of the log configuration.
func (c *LogConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Log ---\n")
	b.WriteString(fmt.Sprintf("  level: %s\n", c.SlogLevel()))
	return b.String()
}

// SlogLevel parses Level case-insensitively. An empty level means info.
func (c *LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *LogConfig) Validate() error {
	if c.Level == "" {
		return nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("log level %q is not one of debug, info, warn, error", c.Level)
	}
	return nil
}
