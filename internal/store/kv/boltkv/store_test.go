package boltkv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/kv/kvtest"
)

func newTestStore(t *testing.T) (kv.Store, func()) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "test.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, func() { _ = store.Close() }
}

func TestConformance(t *testing.T) {
	kvtest.RunConformanceSuite(t, newTestStore)
}

func TestOpenCreatesParentlessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected bolt file to exist: %v", err)
	}
}
