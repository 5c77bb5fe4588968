package badgerkv

import (
	"testing"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/kv/kvtest"
)

func newTestStore(t *testing.T) (kv.Store, func()) {
	store, err := Open(t.TempDir(), Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, func() { _ = store.Close() }
}

func TestConformance(t *testing.T) {
	kvtest.RunConformanceSuite(t, newTestStore)
}
