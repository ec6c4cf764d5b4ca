package config

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// ProbesConfig configures file based readiness and liveness probes for processes without an HTTP listener.
type ProbesConfig struct {
	ReadinessFileName string        `koanf:"readinessfilename"`
	LivenessFileName  string        `koanf:"livenessfilename"`
	LivenessInterval  time.Duration `koanf:"livenessinterval"`
}

const (
	defaultReadinessFileName = "/tmp/storefront-ready"
	defaultLivenessFileName  = "/tmp/storefront-live"
	defaultLivenessInterval  = 20 * time.Second
)

// String returns a string representation of the ProbesConfig.
func (c *ProbesConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Probes ---\n")
	b.WriteString(fmt.Sprintf("  readinessfilename: %s\n", c.ReadinessFileName))
	b.WriteString(fmt.Sprintf("  livenessfilename: %s\n", c.LivenessFileName))
	b.WriteString(fmt.Sprintf("  livenessinterval: %s\n", c.LivenessInterval))
	return b.String()
}

// Validate fills in defaults for unset fields. It never fails.
func (c *ProbesConfig) Validate() error {
	if c.ReadinessFileName == "" {
		log.Printf("probes: using default readiness file %s", defaultReadinessFileName)
		c.ReadinessFileName = defaultReadinessFileName
	}
	if c.LivenessFileName == "" {
		log.Printf("probes: using default liveness file %s", defaultLivenessFileName)
		c.LivenessFileName = defaultLivenessFileName
	}
	if c.LivenessInterval <= 0 {
		log.Printf("probes: using default liveness interval %s", defaultLivenessInterval)
		c.LivenessInterval = defaultLivenessInterval
	}
	return nil
}
