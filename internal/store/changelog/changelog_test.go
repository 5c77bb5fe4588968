package changelog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv/boltkv"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *boltkv.Store {
	t.Helper()
	store, err := boltkv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAllocatesMonotonicChangeIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c1, err := Append(ctx, store, 7, keys.SyncEmail, Entry{Items: Set{Created: []keys.DocumentID{1}}})
	require.NoError(t, err)
	c2, err := Append(ctx, store, 7, keys.SyncEmail, Entry{Items: Set{Created: []keys.DocumentID{2}}})
	require.NoError(t, err)

	require.Equal(t, uint64(1), c1)
	require.Equal(t, uint64(2), c2)
}

func TestQueryEmptyAccountReturnsExact(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	res, tok, err := Query(ctx, store, 7, keys.SyncEmail, StreamItems, Initial(), 10)
	require.NoError(t, err)
	require.Empty(t, res.Created)
	require.Empty(t, res.Updated)
	require.Empty(t, res.Destroyed)
	require.Empty(t, res.Vanished)
	require.Equal(t, ExactToken(0), tok)
}

func TestQueryCreateThenDestroyCollapsesToDestroyedOnly(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := Append(ctx, store, 7, keys.SyncEmail, Entry{Items: Set{Created: []keys.DocumentID{1}}})
	require.NoError(t, err)
	_, err = Append(ctx, store, 7, keys.SyncEmail, Entry{Items: Set{Destroyed: []keys.DocumentID{1}}})
	require.NoError(t, err)

	res, tok, err := Query(ctx, store, 7, keys.SyncEmail, StreamItems, Initial(), 10)
	require.NoError(t, err)
	require.Empty(t, res.Created)
	require.Equal(t, []keys.DocumentID{1}, res.Destroyed)
	require.Equal(t, ExactToken(2), tok)
}

func TestQueryUpdatedMultipleTimesAppearsOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := Append(ctx, store, 7, keys.SyncEmail, Entry{Items: Set{Created: []keys.DocumentID{1}}})
	require.NoError(t, err)
	_, err = Append(ctx, store, 7, keys.SyncEmail, Entry{Items: Set{Updated: []keys.DocumentID{2}}})
	require.NoError(t, err)
	_, err = Append(ctx, store, 7, keys.SyncEmail, Entry{Items: Set{Updated: []keys.DocumentID{2}}})
	require.NoError(t, err)

	res, _, err := Query(ctx, store, 7, keys.SyncEmail, StreamItems, Initial(), 10)
	require.NoError(t, err)
	require.Equal(t, []keys.DocumentID{2}, res.Updated)
}

func TestQueryPaginatesByMaxChanges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := keys.DocumentID(1); i <= 5; i++ {
		_, err := Append(ctx, store, 7, keys.SyncEmail, Entry{Items: Set{Created: []keys.DocumentID{i}}})
		require.NoError(t, err)
	}

	var seen []keys.DocumentID
	tok := Initial()
	for i := 0; i < 10; i++ {
		res, next, err := Query(ctx, store, 7, keys.SyncEmail, StreamItems, tok, 2)
		require.NoError(t, err)
		seen = append(seen, res.Created...)
		tok = next
		if tok.Kind == TokenExact {
			break
		}
	}

	require.Equal(t, []keys.DocumentID{1, 2, 3, 4, 5}, seen)
	require.Equal(t, TokenExact, tok.Kind)
}
