package config

import (
	"fmt"
	"strings"
)

// CatalogConfig holds the pagination bounds for product listings.
type CatalogConfig struct {
	DefaultLimit int `koanf:"defaultLimit"`
	MaxLimit     int `koanf:"maxLimit"`
}

// String returns a string representation of the catalog configuration.
func (c *CatalogConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Catalog ---\n")
	b.WriteString(fmt.Sprintf("  defaultLimit: %d\n", c.DefaultLimit))
	b.WriteString(fmt.Sprintf("  maxLimit: %d\n", c.MaxLimit))
	return b.String()
}

func (c *CatalogConfig) Validate() error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("catalog default limit must be greater than zero")
	}
	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("catalog max limit (%d) must not be lower than default limit (%d)", c.MaxLimit, c.DefaultLimit)
	}
	return nil
}
