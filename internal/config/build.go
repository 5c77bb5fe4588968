package config

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/blob/fsblob"
	"github.com/cuemby/warren/internal/store/blob/s3blob"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/kv/badgerkv"
	"github.com/cuemby/warren/internal/store/kv/boltkv"
	"github.com/cuemby/warren/internal/store/kv/raftkv"
	"github.com/cuemby/warren/internal/store/kv/sqlkv"
	"github.com/cuemby/warren/store"
)

// BuildKVStore constructs the kv.Store named by cfg.Backend, mirroring
// the teacher's single-interface-many-backends shape in
// pkg/storage/store.go (there with one concrete BoltStore; here with
// four, selected by name instead of compiled in).
func (c KVConfig) BuildKVStore() (kv.Store, error) {
	switch c.Backend {
	case KVBolt, "":
		return boltkv.Open(c.DataDir)
	case KVBadger:
		return badgerkv.Open(c.DataDir, c.BadgerOptionsFor())
	case KVSQL:
		dialect, err := c.SQLDialectFor()
		if err != nil {
			return nil, err
		}
		return sqlkv.Open(c.Driver, c.DSN, dialect)
	case KVRaft:
		return raftkv.Open(c.RaftConfigFor())
	default:
		return nil, fmt.Errorf("config.BuildKVStore: unknown backend %q", c.Backend)
	}
}

// BuildBlobBackend constructs the blob.Backend named by cfg.Backend.
func (c BlobConfig) BuildBlobBackend(ctx context.Context) (blob.Backend, error) {
	switch c.Backend {
	case BlobFS, "":
		return fsblob.Open(c.Dir)
	case BlobS3:
		return s3blob.Open(ctx, s3blob.Config{
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			Bucket:          c.Bucket,
			UseSSL:          c.UseSSL,
		})
	default:
		return nil, fmt.Errorf("config.BuildBlobBackend: unknown backend %q", c.Backend)
	}
}

// BuildStore constructs both the kv.Store and blob.Store for cfg.
func (c StoreConfig) BuildStore(ctx context.Context) (kv.Store, *blob.Store, error) {
	kvStore, err := c.KV.BuildKVStore()
	if err != nil {
		return nil, nil, err
	}
	backend, err := c.Blob.BuildBlobBackend(ctx)
	if err != nil {
		return nil, nil, err
	}
	return kvStore, blob.New(kvStore, backend), nil
}

// BuildFacade constructs the top-level store.Store façade for cfg, wiring
// Quota.DefaultBytes in as the account hard limit Insert/Update enforce
// against.
func (c Config) BuildFacade(ctx context.Context) (*store.Store, error) {
	kvStore, blobs, err := c.Store.BuildStore(ctx)
	if err != nil {
		return nil, err
	}
	return store.New(kvStore, blobs, c.Quota.DefaultBytes), nil
}
