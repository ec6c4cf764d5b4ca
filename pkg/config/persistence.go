package config

import (
	"fmt"
	"strings"
)

const (
	BackendFile     = "file"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// PersistenceConfig selects the store implementation used for the process lifetime.
type PersistenceConfig struct {
	Backend string `koanf:"backend"`
}

// String returns a string representation of the persistence configuration.
func (c *PersistenceConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Persistence ---\n")
	b.WriteString(fmt.Sprintf("  backend: %s\n", c.Backend))
	return b.String()
}

func (c *PersistenceConfig) Validate() error {
	switch c.Backend {
	case BackendFile, BackendMongo, BackendPostgres:
		return nil
	case "":
		return fmt.Errorf("persistence backend is not configured")
	default:
		return fmt.Errorf("unknown persistence backend %q, expected one of: %s, %s, %s",
			c.Backend, BackendFile, BackendMongo, BackendPostgres)
	}
}
