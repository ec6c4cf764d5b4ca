package config

import (
	"fmt"
	"strings"
)

// FileStoreConfig points the flat-file backend at its two JSON collections.
type FileStoreConfig struct {
	ProductsPath string `koanf:"productsPath"`
	CartsPath    string `koanf:"cartsPath"`
}

// String returns a string representation of the file store configuration.
func (c *FileStoreConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- File Store ---\n")
	b.WriteString(fmt.Sprintf("  productsPath: %s\n", c.ProductsPath))
	b.WriteString(fmt.Sprintf("  cartsPath: %s\n", c.CartsPath))
	return b.String()
}

func (c *FileStoreConfig) Validate() error {
	if c.ProductsPath == "" {
		return fmt.Errorf("file store products path is not configured")
	}
	if c.CartsPath == "" {
		return fmt.Errorf("file store carts path is not configured")
	}
	if c.ProductsPath == c.CartsPath {
		return fmt.Errorf("file store products and carts must use different files: %s", c.ProductsPath)
	}
	return nil
}
