package sqlkv

import (
	"fmt"
	"testing"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/kv/kvtest"
)

func newTestStore(t *testing.T) (kv.Store, func()) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := Open("sqlite3", dsn, SQLite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, func() { _ = store.Close() }
}

func TestConformance(t *testing.T) {
	kvtest.RunConformanceSuite(t, newTestStore)
}
