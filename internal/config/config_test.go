package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "store:\n  kv:\n    data_dir: /tmp/does-not-matter\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, KVBolt, cfg.Store.KV.Backend)
	require.Equal(t, BlobFS, cfg.Store.Blob.Backend)
	require.Equal(t, int64(10<<30), cfg.Quota.DefaultBytes)
	require.NotZero(t, cfg.Tasks.PollInterval)
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	path := writeConfig(t, `
store:
  kv:
    backend: badger
    data_dir: /var/lib/warren
  blob:
    backend: s3
    bucket: mail-blobs
quota:
  default_bytes: 5368709120
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, KVBadger, cfg.Store.KV.Backend)
	require.Equal(t, BlobS3, cfg.Store.Blob.Backend)
	require.Equal(t, "mail-blobs", cfg.Store.Blob.Bucket)
	require.Equal(t, int64(5368709120), cfg.Quota.DefaultBytes)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBuildKVStoreDefaultsToBolt(t *testing.T) {
	cfg := KVConfig{DataDir: filepath.Join(t.TempDir(), "bolt.db")}
	store, err := cfg.BuildKVStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestBuildStoreWiresKVAndBlob(t *testing.T) {
	sc := StoreConfig{
		KV:   KVConfig{Backend: KVBolt, DataDir: filepath.Join(t.TempDir(), "bolt.db")},
		Blob: BlobConfig{Backend: BlobFS, Dir: t.TempDir()},
	}
	kvStore, blobStore, err := sc.BuildStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, blobStore)
	require.NoError(t, kvStore.Close())
}

func TestBuildFacadeWiresQuotaLimit(t *testing.T) {
	cfg := Config{
		Store: StoreConfig{
			KV:   KVConfig{Backend: KVBolt, DataDir: filepath.Join(t.TempDir(), "bolt.db")},
			Blob: BlobConfig{Backend: BlobFS, Dir: t.TempDir()},
		},
		Quota: QuotaConfig{DefaultBytes: 1024},
	}
	facade, err := cfg.BuildFacade(context.Background())
	require.NoError(t, err)
	require.NotNil(t, facade)
	require.NoError(t, facade.KV.Close())
}

func TestSQLDialectForUnknownDriverErrors(t *testing.T) {
	cfg := KVConfig{Driver: "oracle"}
	_, err := cfg.SQLDialectFor()
	require.Error(t, err)
}
