package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/abgdnv/storefront/internal/model"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLimits = config.CatalogConfig{DefaultLimit: 10, MaxLimit: 50}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFileStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	s := store.NewFileStore(filepath.Join(dir, "products.json"), filepath.Join(dir, "carts.json"))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// countingNotifier records how many notifications were requested.
type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) Notify(context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event messaging.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// input decodes fields the way a transport would.
func input(t *testing.T, fields map[string]any) ProductInput {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	var in ProductInput
	require.NoError(t, json.Unmarshal(raw, &in))
	return in
}

func widgetFields() map[string]any {
	return map[string]any{
		"title":       "Widget",
		"description": "A simple widget for testing",
		"code":        "W-001",
		"price":       9.99,
		"stock":       5,
		"category":    "toys",
	}
}

func with(base map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		if kv[i+1] == nil {
			delete(out, key)
			continue
		}
		out[key] = kv[i+1]
	}
	return out
}

func seedProduct(t *testing.T, c *Catalog, code string, stock int, price float64) *model.Product {
	t.Helper()
	p, err := c.Create(context.Background(), input(t, with(widgetFields(), "code", code, "stock", stock, "price", price)))
	require.NoError(t, err)
	return p
}
