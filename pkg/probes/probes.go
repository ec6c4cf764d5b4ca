// Package probes signals readiness and liveness through files, for processes that
// expose no HTTP endpoint.
package probes

import (
	"context"
	"fmt"
	"os"
	"time"
)

// MarkReady creates the readiness file.
func MarkReady(path string) error {
	if err := touch(path); err != nil {
		return fmt.Errorf("failed to mark ready: %w", err)
	}
	return nil
}

// Clear removes probe files. Missing files are ignored.
func Clear(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

// RunLiveness touches the liveness file every interval until ctx is done.
func RunLiveness(ctx context.Context, path string, interval time.Duration) error {
	if err := touch(path); err != nil {
		return fmt.Errorf("failed to touch liveness file: %w", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := touch(path); err != nil {
				return fmt.Errorf("failed to touch liveness file: %w", err)
			}
		}
	}
}

func touch(path string) error {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
