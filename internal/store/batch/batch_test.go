package batch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/warren/internal/store/changelog"
	"github.com/cuemby/warren/internal/store/index"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/kv/boltkv"
	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/stretchr/testify/require"
)

// flakyOnceStore fails the first Write with KindRetry, then delegates
// normally, to exercise Run's whole-operation retry loop.
type flakyOnceStore struct {
	*boltkv.Store
	writes int
}

func (f *flakyOnceStore) Write(ctx context.Context, b *kv.Batch) (kv.CommitOutcome, error) {
	f.writes++
	if f.writes == 1 {
		return kv.CommitOutcome{}, storeerr.New(storeerr.KindRetry, "flakyOnceStore.Write", "simulated conflict")
	}
	return f.Store.Write(ctx, b)
}

func newTestStore(t *testing.T) *boltkv.Store {
	t.Helper()
	store, err := boltkv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCustomExpandsPropertyAndQuotaMutations(t *testing.T) {
	b := New().WithAccount(7, keys.CollectionEmail, 42)
	b.Custom([]index.Mutation{
		{Kind: index.MutProperty, Field: keys.FieldEmailSubject, Value: []byte("hello"), Add: true},
		{Kind: index.MutQuota, QuotaDelta: 2048},
	})

	ops := b.BuildAll()
	require.Len(t, ops, 2)

	wantKey := keys.Property(7, keys.CollectionEmail, 42, keys.FieldEmailSubject)
	require.Equal(t, wantKey, ops[0].Key)
	require.Equal(t, kv.OpSet, ops[0].Kind)
	require.Equal(t, []byte("hello"), ops[0].Value)

	require.Equal(t, kv.OpAdd, ops[1].Kind)
	require.Equal(t, keys.Quota(7), ops[1].Key)
	require.Equal(t, int64(2048), ops[1].Delta)
}

func TestCustomClearsPropertyOnRemove(t *testing.T) {
	b := New().WithAccount(7, keys.CollectionEmail, 42)
	b.Custom([]index.Mutation{
		{Kind: index.MutProperty, Field: keys.FieldEmailSubject, Value: []byte("old"), Add: false},
	})

	ops := b.BuildAll()
	require.Len(t, ops, 1)
	require.Equal(t, kv.OpClear, ops[0].Kind)
}

func TestCommitPointAllocatesChangeIDAndWritesLogRow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	b := New().WithAccount(7, keys.CollectionEmail, 1)
	b.Custom(index.LogMutations(index.LogCreated, 1, index.LogUpdated, []keys.DocumentID{99}))

	require.NoError(t, b.CommitPoint(ctx, store))
	_, err := store.Write(ctx, &b.raw)
	require.NoError(t, err)

	res, tok, err := changelog.Query(ctx, store, 7, keys.SyncEmail, changelog.StreamItems, changelog.Initial(), 10)
	require.NoError(t, err)
	require.Equal(t, []keys.DocumentID{1}, res.Created)
	require.Equal(t, changelog.ExactToken(1), tok)

	cres, _, err := changelog.Query(ctx, store, 7, keys.SyncEmail, changelog.StreamContainers, changelog.Initial(), 10)
	require.NoError(t, err)
	require.Equal(t, []keys.DocumentID{99}, cres.Updated)
}

func TestCommitPointSkipsCountersForEmptyLogs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	b := New().WithAccount(7, keys.CollectionEmail, 1)
	b.Set(keys.Quota(7), []byte{0})
	require.NoError(t, b.CommitPoint(ctx, store))

	v, err := store.CounterGet(ctx, keys.Counter(7, keys.SyncEmail, keys.ChangeCounterName))
	require.NoError(t, err)
	require.Equal(t, int64(0), v)
}

func TestCommitWritesBatchAndReportsOutcome(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	b := New().WithAccount(7, keys.CollectionEmail, 1)
	b.Custom(index.LogMutations(index.LogCreated, 1, index.LogCreated, nil))

	outcome, err := Commit(ctx, store, b)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Applied)
}

func TestRunRetriesOnRetryKindAndStopsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := &flakyOnceStore{Store: newTestStore(t)}

	attempts := 0
	_, err := Run(ctx, store, 3, func() (*Builder, error) {
		attempts++
		b := New().WithAccount(7, keys.CollectionEmail, 1)
		b.Set(keys.Quota(7), []byte{1})
		return b, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 2, store.writes)
}

func TestRunStopsImmediatelyOnNonRetryError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	attempts := 0
	_, err := Run(ctx, store, 3, func() (*Builder, error) {
		attempts++
		b := New().WithAccount(7, keys.CollectionEmail, 1)
		b.AssertEq(keys.Quota(7), []byte("never-matches"))
		return b, nil
	})
	require.Error(t, err)
	require.True(t, storeerr.Is(err, storeerr.KindConflict))
	require.Equal(t, 1, attempts)
}
