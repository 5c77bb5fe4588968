package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warren/internal/store/batch"
	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/blob/fsblob"
	"github.com/cuemby/warren/internal/store/changelog"
	"github.com/cuemby/warren/internal/store/index"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv/boltkv"
	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/stretchr/testify/require"
)

// mailboxRecord and emailRecord are minimal index.Indexable adapters for
// the façade's own scenario tests, kept separate from internal/store/task's
// adapter so neither package depends on the other's test fixtures.
type mailboxRecord struct {
	name string
}

func (m mailboxRecord) TextFields() map[keys.Field]string      { return nil }
func (m mailboxRecord) ScalarFields() map[keys.Field][]byte    { return nil }
func (m mailboxRecord) BlobRef() (blob.Hash, bool)             { return blob.Hash{}, false }
func (m mailboxRecord) Size() uint64                           { return 0 }
func (m mailboxRecord) ACL() map[uint32]uint8                  { return nil }

type emailRecord struct {
	size uint64
	hash blob.Hash
}

func (e emailRecord) TextFields() map[keys.Field]string   { return nil }
func (e emailRecord) ScalarFields() map[keys.Field][]byte { return nil }
func (e emailRecord) BlobRef() (blob.Hash, bool)          { return e.hash, true }
func (e emailRecord) Size() uint64                        { return e.size }
func (e emailRecord) ACL() map[uint32]uint8               { return nil }

type sharedMailboxRecord struct {
	name string
	acl  map[uint32]uint8
}

func (m sharedMailboxRecord) TextFields() map[keys.Field]string   { return nil }
func (m sharedMailboxRecord) ScalarFields() map[keys.Field][]byte { return nil }
func (m sharedMailboxRecord) BlobRef() (blob.Hash, bool)          { return blob.Hash{}, false }
func (m sharedMailboxRecord) Size() uint64                        { return 0 }
func (m sharedMailboxRecord) ACL() map[uint32]uint8               { return m.acl }

func newTestFacade(t *testing.T) *Store {
	t.Helper()
	return newTestFacadeWithQuota(t, 0)
}

func newTestFacadeWithQuota(t *testing.T, quotaLimitBytes int64) *Store {
	t.Helper()
	kvStore, err := boltkv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })
	backend, err := fsblob.Open(t.TempDir())
	require.NoError(t, err)
	return New(kvStore, blob.New(kvStore, backend), quotaLimitBytes)
}

// S1: create a mailbox, sync from Initial returns it created at Exact(1).
func TestScenarioCreateMailbox(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t)

	const account keys.AccountID = 7
	_, err := s.Insert(ctx, account, keys.CollectionMailbox, 1, mailboxRecord{name: "Inbox"}, []byte("inbox-archive"),
		index.LogCreated, index.LogCreated, nil)
	require.NoError(t, err)

	res, tok, err := s.Sync(ctx, account, keys.SyncEmail, changelog.StreamContainers, changelog.Initial(), 10)
	require.NoError(t, err)
	require.Equal(t, []keys.DocumentID{1}, res.Created)
	require.Empty(t, res.Updated)
	require.Empty(t, res.Destroyed)
	require.Empty(t, res.Vanished)
	require.Equal(t, changelog.ExactToken(1), tok)

	usage, err := s.QuotaUsage(ctx, account)
	require.NoError(t, err)
	require.Equal(t, int64(0), usage)
}

// S2: append a 4096-byte message with one blob; quota rises, blob link
// exists, and the item stream logs a creation at change 2.
func TestScenarioAppendMessageWithBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t)

	const account keys.AccountID = 7
	_, err := s.Insert(ctx, account, keys.CollectionMailbox, 1, mailboxRecord{name: "Inbox"}, []byte("inbox"),
		index.LogCreated, index.LogCreated, nil)
	require.NoError(t, err)

	hash, err := s.Blobs.PutTemporary(ctx, make([]byte, 4096), time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = s.Insert(ctx, account, keys.CollectionEmail, 2, emailRecord{size: 4096, hash: hash}, []byte("msg"),
		index.LogCreated, index.LogUpdated, []keys.DocumentID{1})
	require.NoError(t, err)

	has, err := s.Blobs.HasAnyLink(ctx, hash)
	require.NoError(t, err)
	require.True(t, has)

	usage, err := s.QuotaUsage(ctx, account)
	require.NoError(t, err)
	require.Equal(t, int64(4096), usage)

	res, tok, err := s.Sync(ctx, account, keys.SyncEmail, changelog.StreamItems, changelog.Initial(), 10)
	require.NoError(t, err)
	require.Equal(t, []keys.DocumentID{2}, res.Created)
	require.Equal(t, changelog.ExactToken(2), tok)
}

// S3: moving a message between mailboxes updates both container streams
// but leaves the blob link and quota unchanged.
func TestScenarioMoveMessageBetweenMailboxes(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t)

	const account keys.AccountID = 7
	_, err := s.Insert(ctx, account, keys.CollectionMailbox, 1, mailboxRecord{name: "Inbox"}, []byte("inbox"),
		index.LogCreated, index.LogCreated, nil)
	require.NoError(t, err)
	_, err = s.Insert(ctx, account, keys.CollectionMailbox, 2, mailboxRecord{name: "Trash"}, []byte("trash"),
		index.LogCreated, index.LogCreated, nil)
	require.NoError(t, err)

	hash, err := s.Blobs.PutTemporary(ctx, make([]byte, 4096), time.Now().Add(time.Hour))
	require.NoError(t, err)
	rec := emailRecord{size: 4096, hash: hash}
	_, err = s.Insert(ctx, account, keys.CollectionEmail, 3, rec, []byte("msg"),
		index.LogCreated, index.LogUpdated, []keys.DocumentID{1})
	require.NoError(t, err)

	_, err = s.Update(ctx, account, keys.CollectionEmail, 3, rec, rec, []byte("msg-moved"),
		index.LogUpdated, index.LogUpdated, []keys.DocumentID{1, 2})
	require.NoError(t, err)

	has, err := s.Blobs.HasAnyLink(ctx, hash)
	require.NoError(t, err)
	require.True(t, has)

	usage, err := s.QuotaUsage(ctx, account)
	require.NoError(t, err)
	require.Equal(t, int64(4096), usage)

	res, tok, err := s.Sync(ctx, account, keys.SyncEmail, changelog.StreamContainers, changelog.Initial(), 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []keys.DocumentID{1, 2}, res.Updated)
	// Four commits (two mailboxes, the message, the move) drew ids 1-4.
	require.Equal(t, changelog.ExactToken(4), tok)
}

// S4: deleting a message drops its Linked blob reference and quota returns
// to zero; Purge then clears the expired Temporary link PutTemporary left,
// after which no link to the blob remains.
func TestScenarioDeleteMessagePurgesBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t)

	const account keys.AccountID = 7
	_, err := s.Insert(ctx, account, keys.CollectionMailbox, 1, mailboxRecord{name: "Inbox"}, []byte("inbox"),
		index.LogCreated, index.LogCreated, nil)
	require.NoError(t, err)

	hash, err := s.Blobs.PutTemporary(ctx, make([]byte, 4096), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	rec := emailRecord{size: 4096, hash: hash}
	_, err = s.Insert(ctx, account, keys.CollectionEmail, 2, rec, []byte("msg"),
		index.LogCreated, index.LogUpdated, []keys.DocumentID{1})
	require.NoError(t, err)

	_, err = s.Delete(ctx, account, keys.CollectionEmail, 2, rec, index.LogUpdated, []keys.DocumentID{1})
	require.NoError(t, err)

	usage, err := s.QuotaUsage(ctx, account)
	require.NoError(t, err)
	require.Equal(t, int64(0), usage)

	removed, err := s.Blobs.Purge(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	has, err := s.Blobs.HasAnyLink(ctx, hash)
	require.NoError(t, err)
	require.False(t, has)

	res, _, err := s.Sync(ctx, account, keys.SyncEmail, changelog.StreamItems, changelog.Initial(), 10)
	require.NoError(t, err)
	require.Equal(t, []keys.DocumentID{2}, res.Destroyed)
}

// S5: two concurrent updates guarded by the same AssertEq precondition —
// exactly one wins; the other observes a conflict and neither allocates
// more than one new change id.
func TestScenarioConcurrentUpdateConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t)

	const account keys.AccountID = 7
	_, err := s.Insert(ctx, account, keys.CollectionMailbox, 1, mailboxRecord{name: "Inbox"}, []byte("v1"),
		index.LogCreated, index.LogCreated, nil)
	require.NoError(t, err)

	archiveKey := keys.Archive(account, keys.CollectionMailbox, 1)

	attempt := func(newVal []byte) error {
		b := batch.New().WithAccount(account, keys.CollectionMailbox, 1)
		b.AssertEq(archiveKey, []byte("v1"))
		b.Set(archiveKey, newVal)
		b.Log(account, keys.SyncEmail, changelog.StreamContainers, index.LogUpdated, 1)
		_, err := batch.Commit(ctx, s.KV, b)
		return err
	}

	err1 := attempt([]byte("v2-from-writer-a"))
	err2 := attempt([]byte("v2-from-writer-b"))

	// Exactly one of the two racing assertEq-guarded writers succeeds; the
	// other observes a conflict, since both assert against the same
	// already-consumed precondition value.
	succeeded := 0
	if err1 == nil {
		succeeded++
	} else {
		require.True(t, storeerr.Is(err1, storeerr.KindConflict))
	}
	if err2 == nil {
		succeeded++
	} else {
		require.True(t, storeerr.Is(err2, storeerr.KindConflict))
	}
	require.Equal(t, 1, succeeded)

	got, err := s.KV.Get(ctx, archiveKey)
	require.NoError(t, err)
	require.Contains(t, []string{"v2-from-writer-a", "v2-from-writer-b"}, string(got))

	// Only one change id was allocated for the mailbox's surviving update:
	// sync from Initial still reports a single terminal change at id 2.
	res, tok, err := s.Sync(ctx, account, keys.SyncEmail, changelog.StreamContainers, changelog.Initial(), 10)
	require.NoError(t, err)
	require.Equal(t, []keys.DocumentID{1}, res.Updated)
	require.Equal(t, changelog.ExactToken(2), tok)
}

// Writes that would push an account over its configured hard quota limit
// refuse with storeerr.KindQuotaExceeded instead of committing, per
// spec.md §4.5/§6, and leave quota usage and the change log untouched.
func TestInsertRefusesOverHardQuota(t *testing.T) {
	ctx := context.Background()
	s := newTestFacadeWithQuota(t, 4096)

	const account keys.AccountID = 7
	_, err := s.Insert(ctx, account, keys.CollectionMailbox, 1, mailboxRecord{name: "Inbox"}, []byte("inbox"),
		index.LogCreated, index.LogCreated, nil)
	require.NoError(t, err)

	hash, err := s.Blobs.PutTemporary(ctx, make([]byte, 4096), time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = s.Insert(ctx, account, keys.CollectionEmail, 2, emailRecord{size: 4096, hash: hash}, []byte("msg-1"),
		index.LogCreated, index.LogUpdated, []keys.DocumentID{1})
	require.NoError(t, err)

	usage, err := s.QuotaUsage(ctx, account)
	require.NoError(t, err)
	require.Equal(t, int64(4096), usage)

	hash2, err := s.Blobs.PutTemporary(ctx, make([]byte, 1), time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = s.Insert(ctx, account, keys.CollectionEmail, 3, emailRecord{size: 1, hash: hash2}, []byte("msg-2"),
		index.LogCreated, index.LogUpdated, []keys.DocumentID{1})
	require.Error(t, err)
	require.True(t, storeerr.Is(err, storeerr.KindQuotaExceeded))

	usage, err = s.QuotaUsage(ctx, account)
	require.NoError(t, err)
	require.Equal(t, int64(4096), usage, "refused write must not have changed quota usage")

	_, err = s.KV.Get(ctx, keys.Archive(account, keys.CollectionEmail, 3))
	require.True(t, storeerr.Is(err, storeerr.KindNotFound), "refused write must not have archived the record")
}

// Update's MutACL mutations invalidate any principal's cached grant set,
// per spec.md §4.5's "invalidate principal ACL caches on diff."
func TestUpdateInvalidatesACLCache(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t)

	const account keys.AccountID = 7
	const principal uint32 = 42

	old := sharedMailboxRecord{name: "Team Inbox", acl: map[uint32]uint8{principal: 1}}
	_, err := s.Insert(ctx, account, keys.CollectionMailbox, 1, old, []byte("v1"),
		index.LogCreated, index.LogCreated, nil)
	require.NoError(t, err)

	s.ACLs.Put(principal, map[keys.DocumentID]uint8{1: 1})
	_, ok := s.ACLs.Get(principal)
	require.True(t, ok, "cache should hold the grant set seeded above")

	updated := sharedMailboxRecord{name: "Team Inbox", acl: map[uint32]uint8{principal: 3}}
	_, err = s.Update(ctx, account, keys.CollectionMailbox, 1, old, updated, []byte("v2"),
		index.LogUpdated, index.LogUpdated, nil)
	require.NoError(t, err)

	_, ok = s.ACLs.Get(principal)
	require.False(t, ok, "Update's MutACL mutation must invalidate the principal's cached grants")
}
