package blob

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warren/internal/store/blob/fsblob"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/kv/boltkv"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	account keys.AccountID
}

func (t fakeToken) Account() keys.AccountID { return t.account }
func (t fakeToken) OwnsAccount(a keys.AccountID) bool { return a == t.account }
func (t fakeToken) CanReadItems(keys.AccountID, keys.Collection, keys.DocumentID) bool { return false }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kvStore, err := boltkv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })
	backend, err := fsblob.Open(t.TempDir())
	require.NoError(t, err)
	return New(kvStore, backend)
}

func TestPutTemporaryThenReadDeniedWithoutToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hash, err := s.PutTemporary(ctx, []byte("hello"), time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = s.Read(ctx, hash, ByteRange{}, fakeToken{account: 99})
	require.Error(t, err)
}

func TestReadAllowedForOwningAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hash, err := s.PutTemporary(ctx, []byte("hello"), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Reserve(ctx, hash, 7, time.Now().Add(time.Hour)))

	data, err := s.Read(ctx, hash, ByteRange{}, fakeToken{account: 7})
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestLinkOwnedThenUnlinkDropsReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	deadline := time.Now().Add(time.Hour)
	hash, err := s.PutTemporary(ctx, []byte("x"), deadline)
	require.NoError(t, err)

	b := &kv.Batch{}
	LinkOwned(b, hash, 7, keys.CollectionEmail, 1)
	_, err = s.kv.Write(ctx, b)
	require.NoError(t, err)

	has, err := s.HasAnyLink(ctx, hash)
	require.NoError(t, err)
	require.True(t, has)

	b2 := &kv.Batch{}
	UnlinkOwned(b2, hash, 7, keys.CollectionEmail, 1)
	b2.Clear(keys.Blob(hash, keys.BlobLinkTemporary, keys.BlobTemporaryPayload(deadline.UnixMilli())))
	_, err = s.kv.Write(ctx, b2)
	require.NoError(t, err)

	has, err = s.HasAnyLink(ctx, hash)
	require.NoError(t, err)
	require.False(t, has)
}

func TestPurgeRemovesExpiredTemporaryAndContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hash, err := s.PutTemporary(ctx, []byte("gone soon"), time.Now().Add(-time.Minute))
	require.NoError(t, err)

	removed, err := s.Purge(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	has, err := s.HasAnyLink(ctx, hash)
	require.NoError(t, err)
	require.False(t, has)

	_, err = s.backend.Read(ctx, hash, ByteRange{})
	require.Error(t, err)
}

func TestPurgeLeavesUnexpiredLinksAlone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hash, err := s.PutTemporary(ctx, []byte("still alive"), time.Now().Add(time.Hour))
	require.NoError(t, err)

	removed, err := s.Purge(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, removed)

	has, err := s.HasAnyLink(ctx, hash)
	require.NoError(t, err)
	require.True(t, has)
}
