package raftkv

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/kv/kvtest"
)

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func newBootstrappedStore(t *testing.T) (*Store, func()) {
	cfg := Config{
		NodeID:   "node-1",
		BindAddr: freeAddr(t),
		DataDir:  t.TempDir(),
	}
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !store.IsLeader() {
		if time.Now().After(deadline) {
			t.Fatalf("node never became leader")
		}
		time.Sleep(20 * time.Millisecond)
	}

	return store, func() { _ = store.Close() }
}

func newTestStore(t *testing.T) (kv.Store, func()) {
	return newBootstrappedStore(t)
}

func TestConformance(t *testing.T) {
	kvtest.RunConformanceSuite(t, newTestStore)
}
