// Package store wires components A-G (internal/store/keys, kv, blob,
// archive, index, changelog, task) into the transactional façade spec.md
// §4.6 describes: one batch.Builder per logical operation, committed as
// a single atomic unit with whole-operation retry on storeerr.KindRetry.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/cuemby/warren/internal/store/batch"
	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/changelog"
	"github.com/cuemby/warren/internal/store/index"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/task"
	"github.com/cuemby/warren/pkg/metrics"
)

// Store is the single entry point a protocol front-end or cmd/storectl
// uses to read and mutate account data, per spec.md §1's "core library,
// not a protocol server" scope.
type Store struct {
	KV      kv.Store
	Blobs   *blob.Store
	Tasks   *task.Queue
	ACLs    *index.ACLCache
	builder *index.Builder

	// quotaLimitBytes is the per-account hard ceiling Insert/Update enforce
	// via index.Builder.Diff; 0 means unlimited. Populated from
	// config.QuotaConfig.DefaultBytes.
	quotaLimitBytes int64
}

// New wires a Store over an already-opened kv.Store and blob.Store, as
// produced by internal/config's backend constructors. quotaLimitBytes is
// the account hard limit Insert/Update refuse against (0 means
// unlimited), per spec.md §4.5/§6.
func New(kvStore kv.Store, blobs *blob.Store, quotaLimitBytes int64) *Store {
	return &Store{
		KV:              kvStore,
		Blobs:           blobs,
		Tasks:           task.NewQueue(kvStore),
		ACLs:            index.NewACLCache(aclCacheSize),
		builder:         index.NewBuilder(),
		quotaLimitBytes: quotaLimitBytes,
	}
}

// aclCacheSize bounds the number of principals' "shared with me" grant
// sets ACLs keeps resident, per spec.md §9's bounded-cache redesign note.
const aclCacheSize = 4096

// Insert archives a brand-new record and commits its index mutations and
// change-log entry atomically, per spec.md §4's archive lifecycle
// ("Archive rows are created by Insert... all three operations funnel
// through one atomic batch").
func (s *Store) Insert(
	ctx context.Context,
	account keys.AccountID, collection keys.Collection, document keys.DocumentID,
	rec index.Indexable, archiveBytes []byte,
	itemKind, containerKind index.LogKind, containerDocs []keys.DocumentID,
) (kv.CommitOutcome, error) {
	return batch.Run(ctx, s.KV, defaultMaxAttempts, func() (*batch.Builder, error) {
		muts, err := s.diff(ctx, account, nil, rec)
		if err != nil {
			return nil, err
		}
		b := batch.New().WithAccount(account, collection, document)
		b.Set(keys.Archive(account, collection, document), archiveBytes)
		b.Custom(muts)
		b.Custom(index.LogMutations(itemKind, document, containerKind, containerDocs))
		return b, nil
	})
}

// diff runs the index builder against the account's current quota usage
// and hard limit, then invalidates ACL cache entries for any principal
// the diff's MutACL mutations touch, per spec.md §4.5's "invalidate
// principal ACL caches on diff."
func (s *Store) diff(ctx context.Context, account keys.AccountID, old, new index.Indexable) ([]index.Mutation, error) {
	usage, err := s.KV.CounterGet(ctx, keys.Quota(account))
	if err != nil {
		return nil, err
	}
	muts, err := s.builder.Diff(old, new, index.QuotaLimit{
		Account:   account,
		UsedBytes: usage,
		HardBytes: s.quotaLimitBytes,
	})
	if err != nil {
		return nil, err
	}
	s.ACLs.InvalidateFromACLDiff(muts)
	return muts, nil
}

// Update replaces an existing record's archived form and reconciles its
// index mutations against the previous version.
func (s *Store) Update(
	ctx context.Context,
	account keys.AccountID, collection keys.Collection, document keys.DocumentID,
	old, updated index.Indexable, archiveBytes []byte,
	itemKind, containerKind index.LogKind, containerDocs []keys.DocumentID,
) (kv.CommitOutcome, error) {
	return batch.Run(ctx, s.KV, defaultMaxAttempts, func() (*batch.Builder, error) {
		muts, err := s.diff(ctx, account, old, updated)
		if err != nil {
			return nil, err
		}
		b := batch.New().WithAccount(account, collection, document)
		b.Set(keys.Archive(account, collection, document), archiveBytes)
		b.Custom(muts)
		b.Custom(index.LogMutations(itemKind, document, containerKind, containerDocs))
		return b, nil
	})
}

// Delete removes an existing record's archived form along with every
// index entry and blob link it owns, per spec.md §4's ownership
// invariant: "removing the row in a batch must remove them in the same
// batch."
func (s *Store) Delete(
	ctx context.Context,
	account keys.AccountID, collection keys.Collection, document keys.DocumentID,
	old index.Indexable,
	containerKind index.LogKind, containerDocs []keys.DocumentID,
) (kv.CommitOutcome, error) {
	return batch.Run(ctx, s.KV, defaultMaxAttempts, func() (*batch.Builder, error) {
		muts, err := s.diff(ctx, account, old, nil)
		if err != nil {
			return nil, err
		}
		b := batch.New().WithAccount(account, collection, document)
		b.Clear(keys.Archive(account, collection, document))
		b.Custom(muts)
		b.Custom(index.LogMutations(index.LogDestroyed, document, containerKind, containerDocs))
		return b, nil
	})
}

// defaultMaxAttempts bounds batch.Run's whole-operation retry loop for
// every façade operation above.
const defaultMaxAttempts = 3

// Sync returns the next page of changes for (account, syncCollection)
// since the given token, per spec.md §4.7/§8's pagination scenario.
func (s *Store) Sync(ctx context.Context, account keys.AccountID, sc keys.SyncCollection, stream changelog.Stream, since changelog.Token, maxChanges int) (changelog.Result, changelog.Token, error) {
	return changelog.Query(ctx, s.KV, account, sc, stream, since, maxChanges)
}

// QuotaUsage reads an account's current quota counter, per spec.md §4's
// quota invariant (the counter equals the sum of live documents' size
// contributions).
func (s *Store) QuotaUsage(ctx context.Context, account keys.AccountID) (int64, error) {
	usage, err := s.KV.CounterGet(ctx, keys.Quota(account))
	if err != nil {
		return 0, err
	}
	metrics.QuotaUsageBytes.WithLabelValues(strconv.FormatUint(uint64(account), 10)).Set(float64(usage))
	return usage, nil
}

// RefreshTaskQueueDepth updates the TaskQueueDepth gauge from a fresh
// scan, for callers running their own metrics-collection loop outside
// any task.Worker (which updates the same gauge per poll cycle).
func (s *Store) RefreshTaskQueueDepth(ctx context.Context) (int, error) {
	depth, err := s.Tasks.Depth(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	metrics.TaskQueueDepth.Set(float64(depth))
	return depth, nil
}
