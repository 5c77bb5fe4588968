package raftkv

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/kv/boltkv"
	"github.com/cuemby/warren/internal/store/storeerr"
)

// Config mirrors the teacher's manager.Config: a node identity, a bind
// address for the Raft transport, and a data directory for the local
// BoltDB state plus Raft's log/stable/snapshot stores.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// ApplyTimeout bounds how long Write waits for a command to commit.
	// Defaults to 5s, matching the teacher's manager.Apply.
	ApplyTimeout time.Duration
}

// Store implements kv.Store by replicating every Write through Raft and
// serving Get/Iterate/CounterGet directly from local state — linearizable
// reads would route through the leader too, but spec.md treats read-your-
// writes on the applying node as sufficient for this backend's contract.
type Store struct {
	cfg   Config
	raft  *raft.Raft
	fsm   *fsm
	local *boltkv.Store
}

// Open creates (but does not bootstrap or join) a raftkv node: it opens
// the local BoltDB state and the Raft log/stable/snapshot stores, exactly
// as the teacher's Manager.Bootstrap/Join do before calling raft.NewRaft.
func Open(cfg Config) (*Store, error) {
	if cfg.ApplyTimeout == 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "raftkv.Open", err)
	}

	local, err := boltkv.Open(filepath.Join(cfg.DataDir, "state.bolt"))
	if err != nil {
		return nil, err
	}
	f := newFSM(local)

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.HeartbeatTimeout = 500 * time.Millisecond
	raftConfig.ElectionTimeout = 500 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "raftkv.Open", fmt.Errorf("resolve bind addr: %w", err))
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "raftkv.Open", fmt.Errorf("create transport: %w", err))
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "raftkv.Open", fmt.Errorf("snapshot store: %w", err))
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "raftkv.Open", fmt.Errorf("log store: %w", err))
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "raftkv.Open", fmt.Errorf("stable store: %w", err))
	}

	r, err := raft.NewRaft(raftConfig, f, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "raftkv.Open", fmt.Errorf("new raft: %w", err))
	}

	return &Store{cfg: cfg, raft: r, fsm: f, local: local}, nil
}

// Bootstrap forms a brand-new single-node cluster with this node as the
// sole member — callers either Bootstrap the first node or Join the rest.
func (s *Store) Bootstrap() error {
	cfg := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(s.cfg.NodeID), Address: raft.ServerAddress(s.cfg.BindAddr)},
		},
	}
	return s.raft.BootstrapCluster(cfg).Error()
}

// AddVoter asks the current leader (this node must be leader) to add a
// new voting member, e.g. in response to a join request.
func (s *Store) AddVoter(nodeID, addr string) error {
	return s.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second).Error()
}

// IsLeader reports whether this node currently holds Raft leadership.
func (s *Store) IsLeader() bool {
	return s.raft.State() == raft.Leader
}

// Write implements kv.Store by proposing batch as a Raft log entry and
// waiting for it to commit. Only the leader can make progress; followers
// get storeerr.KindRetry so callers can redirect to the leader.
func (s *Store) Write(ctx context.Context, batch *kv.Batch) (kv.CommitOutcome, error) {
	if s.raft.State() != raft.Leader {
		return kv.CommitOutcome{}, storeerr.New(storeerr.KindRetry, "raftkv.Write", "not leader")
	}

	data, err := json.Marshal(command{Ops: batch.Ops})
	if err != nil {
		return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindInvalid, "raftkv.Write", err)
	}

	future := s.raft.Apply(data, s.cfg.ApplyTimeout)
	if err := future.Error(); err != nil {
		return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindRetry, "raftkv.Write", err)
	}

	result, ok := future.Response().(applyResult)
	if !ok {
		return kv.CommitOutcome{}, storeerr.New(storeerr.KindBackend, "raftkv.Write", "unexpected FSM response type")
	}
	if result.Err != nil {
		return kv.CommitOutcome{}, result.Err
	}
	return result.Outcome, nil
}

// Get implements kv.Store by reading local state directly, without going
// through Raft — acceptable staleness for a follower, per spec.md §5's
// note that this backend optimizes for linearizable writes, not reads.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	return s.local.Get(ctx, key)
}

// Iterate implements kv.Store, reading local state directly.
func (s *Store) Iterate(ctx context.Context, r kv.Range, ascending, withValues bool, fn kv.IterFunc) error {
	return s.local.Iterate(ctx, r, ascending, withValues, fn)
}

// CounterGet implements kv.Store, reading local state directly.
func (s *Store) CounterGet(ctx context.Context, key []byte) (int64, error) {
	return s.local.CounterGet(ctx, key)
}

// CounterAdd implements kv.Store by replicating a single OpAdd through
// Raft and returning the post-apply value.
func (s *Store) CounterAdd(ctx context.Context, key []byte, delta int64) (int64, error) {
	b := &kv.Batch{}
	b.Add(key, delta)
	if _, err := s.Write(ctx, b); err != nil {
		return 0, err
	}
	return s.local.CounterGet(ctx, key)
}

// Close implements kv.Store, shutting down Raft and the local store.
func (s *Store) Close() error {
	if err := s.raft.Shutdown().Error(); err != nil {
		return storeerr.Wrap(storeerr.KindIO, "raftkv.Close", err)
	}
	return s.local.Close()
}
