// Package batch implements the batch assembly and commit layer of
// spec.md §4.6: the single atomic unit every mutating operation funnels
// through. It accumulates primitive kv ops and index-builder mutations
// grouped by commit point, allocates a fresh change id per
// (account, syncCollection) touched since the previous commit point, and
// emits the change-log rows for those ids — grounded on the teacher's
// Manager.Apply-then-retry pattern in pkg/manager/manager.go, generalized
// from single Raft applies to a whole-batch retry loop.
package batch

import (
	"context"

	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/changelog"
	"github.com/cuemby/warren/internal/store/index"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/cuemby/warren/pkg/metrics"
)

// pendingLog accumulates the item-stream and container-stream
// created/updated/destroyed/vanished doc ids for one (account,
// syncCollection) since the last commit point.
type pendingLog struct {
	items      changelog.Set
	containers changelog.Set
}

type logKey struct {
	account keys.AccountID
	sc      keys.SyncCollection
}

// Builder is the single atomic unit of spec.md §4.6. Not safe for
// concurrent use by multiple goroutines; one Builder models one logical
// operation (one protocol request), consistent with how the teacher
// scopes a single Manager.Apply call to one cluster command.
type Builder struct {
	account    keys.AccountID
	collection keys.Collection
	document   keys.DocumentID

	raw  kv.Batch
	logs map[logKey]*pendingLog
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{logs: map[logKey]*pendingLog{}}
}

// WithAccount sets the (account, collection, document) target inherited
// by subsequent calls until overridden again.
func (b *Builder) WithAccount(account keys.AccountID, collection keys.Collection, document keys.DocumentID) *Builder {
	b.account = account
	b.collection = collection
	b.document = document
	return b
}

// Set appends a raw OpSet.
func (b *Builder) Set(key, value []byte) { b.raw.Set(key, value) }

// Clear appends a raw OpClear.
func (b *Builder) Clear(key []byte) { b.raw.Clear(key) }

// AssertEq appends a raw OpAssertEq.
func (b *Builder) AssertEq(key, expect []byte) { b.raw.AssertEq(key, expect) }

// Add appends a raw counter OpAdd.
func (b *Builder) Add(key []byte, delta int64) { b.raw.Add(key, delta) }

// Custom expands index mutations (typically from index.Builder.Diff)
// against the builder's current (account, collection, document) target
// into primitive ops, per spec.md §4.6's "custom block" operation.
func (b *Builder) Custom(muts []index.Mutation) {
	for _, m := range muts {
		switch m.Kind {
		case index.MutProperty:
			key := keys.Property(b.account, b.collection, b.document, m.Field)
			if m.Add {
				b.Set(key, m.Value)
			} else {
				b.Clear(key)
			}
		case index.MutIndex:
			key := keys.Index(b.account, b.collection, m.Field, m.Value, b.document)
			if m.Add {
				b.Set(key, nil)
			} else {
				b.Clear(key)
			}
		case index.MutBlob:
			if m.Add {
				blob.LinkOwned(&b.raw, m.BlobHash, b.account, b.collection, b.document)
			} else {
				blob.UnlinkOwned(&b.raw, m.BlobHash, b.account, b.collection, b.document)
			}
		case index.MutACL:
			key := keys.Bitmap(b.account, b.collection, keys.FieldACL, aclTag(m.ACLPrincipal), b.document/bitmapChunkWidth)
			if m.Add {
				b.Set(key, []byte{m.ACLGrants})
			} else {
				b.Clear(key)
			}
		case index.MutQuota:
			b.Add(keys.Quota(b.account), m.QuotaDelta)
		case index.MutLogItem:
			pl := b.logFor(b.account, syncCollectionFor(b.collection))
			applyLogKind(&pl.items, index.LogKind(m.Field), decodeDoc(m.Value))
		case index.MutLogContainer:
			pl := b.logFor(b.account, syncCollectionFor(b.collection))
			applyLogKind(&pl.containers, index.LogKind(m.Field), decodeDoc(m.Value))
		case index.MutLogContainerProperty:
			pl := b.logFor(b.account, syncCollectionFor(b.collection))
			applyLogKind(&pl.containers, index.LogUpdated, decodeDoc(m.Value))
		}
	}
}

// Log directly appends a doc id to one stream's set for (account,
// syncCollection), bypassing Custom for callers (façades) that already
// know the logical kind without going through the index builder.
func (b *Builder) Log(account keys.AccountID, sc keys.SyncCollection, stream changelog.Stream, kind index.LogKind, doc keys.DocumentID) {
	pl := b.logFor(account, sc)
	if stream == changelog.StreamContainers {
		applyLogKind(&pl.containers, kind, doc)
	} else {
		applyLogKind(&pl.items, kind, doc)
	}
}

func (b *Builder) logFor(account keys.AccountID, sc keys.SyncCollection) *pendingLog {
	k := logKey{account, sc}
	pl, ok := b.logs[k]
	if !ok {
		pl = &pendingLog{}
		b.logs[k] = pl
	}
	return pl
}

func applyLogKind(s *changelog.Set, kind index.LogKind, doc keys.DocumentID) {
	switch kind {
	case index.LogCreated:
		s.Created = append(s.Created, doc)
	case index.LogUpdated:
		s.Updated = append(s.Updated, doc)
	case index.LogDestroyed:
		s.Destroyed = append(s.Destroyed, doc)
	case index.LogVanished:
		s.Vanished = append(s.Vanished, doc)
	}
}

// CommitPoint allocates a fresh change id per (account, syncCollection)
// touched since the previous commit point and appends the accumulated
// log entries keyed by that id, per spec.md §4.6. Multiple commit points
// are allowed in one Builder; BuildAll flattens all of them in order.
func (b *Builder) CommitPoint(ctx context.Context, store kv.Store) error {
	for k, pl := range b.logs {
		if setEmpty(pl.items) && setEmpty(pl.containers) {
			continue
		}
		counterKey := keys.Counter(k.account, k.sc, keys.ChangeCounterName)
		changeID, err := store.CounterAdd(ctx, counterKey, 1)
		if err != nil {
			return err
		}
		entry := changelog.Entry{Items: pl.items, Containers: pl.containers}
		b.Set(keys.Log(k.account, k.sc, uint64(changeID)), entry.Encode())
		metrics.ChangeIDHighWatermark.WithLabelValues(accountLabel(k.account), syncCollectionLabel(k.sc)).Set(float64(changeID))
	}
	b.logs = map[logKey]*pendingLog{}
	return nil
}

// BuildAll returns the ordered primitive ops accumulated so far.
func (b *Builder) BuildAll() []kv.Op {
	return b.raw.Ops
}

// Commit runs CommitPoint then writes the batch via store.Write. On
// storeerr.KindRetry, per spec.md §4.6, the caller must re-run the whole
// logical operation (including fresh reads of the prior archive state),
// not just Write — Run exists to make that loop explicit.
func Commit(ctx context.Context, store kv.Store, b *Builder) (kv.CommitOutcome, error) {
	timer := metrics.NewTimer()
	if err := b.CommitPoint(ctx, store); err != nil {
		return kv.CommitOutcome{}, err
	}
	outcome, err := store.Write(ctx, &b.raw)
	timer.ObserveDuration(metrics.BatchCommitDuration)
	if err != nil {
		metrics.BatchCommitsTotal.WithLabelValues("error").Inc()
		return outcome, err
	}
	metrics.BatchCommitsTotal.WithLabelValues("ok").Inc()
	return outcome, nil
}

// Run re-invokes build on storeerr.KindRetry up to maxAttempts times,
// committing the fresh Builder it returns each time. This is the
// "re-run the entire logical operation" loop spec.md §4.6 requires.
func Run(ctx context.Context, store kv.Store, maxAttempts int, build func() (*Builder, error)) (kv.CommitOutcome, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		b, err := build()
		if err != nil {
			return kv.CommitOutcome{}, err
		}
		outcome, err := Commit(ctx, store, b)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if !storeerr.Is(err, storeerr.KindRetry) {
			return outcome, err
		}
		metrics.BatchRetriesTotal.Inc()
	}
	return kv.CommitOutcome{}, lastErr
}

func setEmpty(s changelog.Set) bool {
	return len(s.Created) == 0 && len(s.Updated) == 0 && len(s.Destroyed) == 0 && len(s.Vanished) == 0
}

const bitmapChunkWidth = 65536

func aclTag(principal uint32) []byte {
	return []byte{byte(principal >> 24), byte(principal >> 16), byte(principal >> 8), byte(principal)}
}

func decodeDoc(b []byte) keys.DocumentID {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// syncCollectionFor maps an item/container collection to the sync stream
// it belongs to, per spec.md §3's "parallel SyncCollection tag".
func syncCollectionFor(c keys.Collection) keys.SyncCollection {
	switch c {
	case keys.CollectionMailbox, keys.CollectionEmail, keys.CollectionThread:
		return keys.SyncEmail
	case keys.CollectionAddressBook, keys.CollectionContactCard:
		return keys.SyncAddressBook
	case keys.CollectionCalendar, keys.CollectionCalendarEvent, keys.CollectionCalendarEventNotification:
		return keys.SyncCalendar
	case keys.CollectionFileNode:
		return keys.SyncFileNode
	case keys.CollectionSieveScript:
		return keys.SyncSieveScript
	case keys.CollectionPushSubscription:
		return keys.SyncPushSubscription
	case keys.CollectionIdentity:
		return keys.SyncIdentity
	case keys.CollectionPrincipal:
		return keys.SyncPrincipal
	case keys.CollectionShareNotification:
		return keys.SyncShareNotification
	default:
		return keys.SyncEmail
	}
}

func accountLabel(a keys.AccountID) string { return itoa(uint64(a)) }

func syncCollectionLabel(sc keys.SyncCollection) string { return itoa(uint64(sc)) }

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
