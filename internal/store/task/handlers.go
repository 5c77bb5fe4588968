package task

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cuemby/warren/internal/store/archive"
	"github.com/cuemby/warren/internal/store/batch"
	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/index"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/storeerr"
)

// BlobPurgeHandler drives blob.Store.Purge from the task queue, per
// spec.md §4.3/§4.8.
type BlobPurgeHandler struct {
	blobs *blob.Store
}

// NewBlobPurgeHandler wraps blobs for scheduled purge runs.
func NewBlobPurgeHandler(blobs *blob.Store) *BlobPurgeHandler {
	return &BlobPurgeHandler{blobs: blobs}
}

func (h *BlobPurgeHandler) Kind() Kind { return KindBlobPurge }

// Handle runs one purge pass. Purge commits its own small per-hash
// batches internally (see blob.Store.Purge), so this handler returns no
// extra ops of its own — the task row's removal is the only thing
// Queue.Complete needs to commit here.
func (h *BlobPurgeHandler) Handle(ctx context.Context, t Task) ([]kv.Op, error) {
	_, err := h.blobs.Purge(ctx, time.Now())
	return nil, err
}

// emailIndexable adapts archive.Email to index.Indexable, kept in this
// package (not archive or index) so neither of those packages needs to
// depend on the other, per spec.md §2's leaves-first dependency order.
type emailIndexable struct {
	archive.Email
}

func (e emailIndexable) TextFields() map[keys.Field]string {
	return map[keys.Field]string{keys.FieldEmailSubject: e.Subject}
}

func (e emailIndexable) ScalarFields() map[keys.Field][]byte {
	return map[keys.Field][]byte{
		keys.FieldEmailReceivedAt: encI64Field(e.ReceivedAt),
		keys.FieldEmailSentAt:     encI64Field(e.SentAt),
	}
}

func (e emailIndexable) BlobRef() (blob.Hash, bool) {
	if !e.HasBlob {
		return blob.Hash{}, false
	}
	return blob.Hash(e.BlobHash), true
}

func (e emailIndexable) Size() uint64 { return e.Email.Size }

func (e emailIndexable) ACL() map[uint32]uint8 { return nil }

func encI64Field(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// IndexExtractHandler performs the asynchronous text/attachment
// extraction pass spec.md §4.8 names: it re-reads a record's archived
// form and runs it through the index builder as a from-scratch insert,
// since the text fields it covers were deliberately not tokenized on the
// synchronous write path.
type IndexExtractHandler struct {
	store   kv.Store
	builder *index.Builder
}

// NewIndexExtractHandler builds an extraction handler over store.
func NewIndexExtractHandler(store kv.Store) *IndexExtractHandler {
	return &IndexExtractHandler{store: store, builder: index.NewBuilder()}
}

func (h *IndexExtractHandler) Kind() Kind { return KindIndexExtract }

// Handle expects t.Tail[0] to carry the target collection, set by the
// Enqueue call site.
func (h *IndexExtractHandler) Handle(ctx context.Context, t Task) ([]kv.Op, error) {
	if len(t.Tail) < 1 {
		return nil, storeerr.New(storeerr.KindInvalid, "task.IndexExtractHandler", "missing collection tail")
	}
	collection := t.Tail[0]

	raw, err := h.store.Get(ctx, keys.Archive(t.Account, collection, t.Document))
	if err != nil {
		return nil, err
	}
	view, err := archive.Unarchive(raw)
	if err != nil {
		return nil, err
	}
	if view.TypeTag() != archive.TypeEmail {
		return nil, nil
	}
	email, err := archive.EmailFromView(view)
	if err != nil {
		return nil, err
	}

	// Unlimited: this is a from-scratch reindex of an already-archived
	// record, not a new write, so Diff must not re-charge its size against
	// the account's quota (already accounted for when it was first
	// written) — drop the MutQuota mutation Diff(nil, ...) otherwise emits.
	muts, err := h.builder.Diff(nil, emailIndexable{email}, index.QuotaLimit{})
	if err != nil {
		return nil, err
	}
	muts = dropQuotaMutations(muts)
	b := batch.New().WithAccount(t.Account, collection, t.Document)
	b.Custom(muts)
	return b.BuildAll(), nil
}

// AlarmDeliveryHandler composes and hands off a calendar alarm
// notification; actually sending mail is out of scope (spec.md §1).
type AlarmDeliveryHandler struct {
	mailer Mailer
}

// NewAlarmDeliveryHandler wraps mailer for alarm delivery tasks.
func NewAlarmDeliveryHandler(mailer Mailer) *AlarmDeliveryHandler {
	return &AlarmDeliveryHandler{mailer: mailer}
}

func (h *AlarmDeliveryHandler) Kind() Kind { return KindAlarmDelivery }

func (h *AlarmDeliveryHandler) Handle(ctx context.Context, t Task) ([]kv.Op, error) {
	subject, body, err := decodeAlarmPayload(t.Payload)
	if err != nil {
		return nil, err
	}
	return nil, h.mailer.Send(ctx, t.Account, subject, body)
}

// EncodeAlarmPayload packs an alarm_delivery task's payload: the Enqueue
// caller builds the subject/body once the calendar event is resolved.
func EncodeAlarmPayload(subject, body string) []byte {
	buf := make([]byte, 0, 4+len(subject)+len(body))
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(subject)))
	buf = append(buf, hdr...)
	buf = append(buf, subject...)
	buf = append(buf, body...)
	return buf
}

func decodeAlarmPayload(payload []byte) (subject, body string, err error) {
	if len(payload) < 4 {
		return "", "", storeerr.New(storeerr.KindCorruption, "task.decodeAlarmPayload", "truncated header")
	}
	n := binary.BigEndian.Uint32(payload)
	payload = payload[4:]
	if uint64(len(payload)) < uint64(n) {
		return "", "", storeerr.New(storeerr.KindCorruption, "task.decodeAlarmPayload", "truncated subject")
	}
	return string(payload[:n]), string(payload[n:]), nil
}

// BayesTrainHandler hands a labeled training sample off to an injected
// classifier trainer; training itself is out of scope (spec.md §1).
type BayesTrainHandler struct {
	trainer Trainer
}

// NewBayesTrainHandler wraps trainer for bayes_train tasks.
func NewBayesTrainHandler(trainer Trainer) *BayesTrainHandler {
	return &BayesTrainHandler{trainer: trainer}
}

func (h *BayesTrainHandler) Kind() Kind { return KindBayesTrain }

func (h *BayesTrainHandler) Handle(ctx context.Context, t Task) ([]kv.Op, error) {
	if len(t.Payload) < 1 {
		return nil, storeerr.New(storeerr.KindInvalid, "task.BayesTrainHandler", "empty payload")
	}
	spam := t.Payload[0] != 0
	return nil, h.trainer.Train(ctx, t.Account, t.Payload[1:], spam)
}

// LogRetainHandler prunes change-log rows older than a retention
// boundary change id, per spec.md §9's retention-vs-outstanding-token
// design note: callers are responsible for choosing a boundary no client
// could still hold a token behind (see DESIGN.md).
type LogRetainHandler struct {
	store kv.Store
}

// NewLogRetainHandler wraps store for log-retention tasks.
func NewLogRetainHandler(store kv.Store) *LogRetainHandler {
	return &LogRetainHandler{store: store}
}

func (h *LogRetainHandler) Kind() Kind { return KindLogRetain }

// Handle expects t.Tail[0] to carry the sync collection and t.Payload to
// carry the 8-byte big-endian boundary change id; rows with a strictly
// smaller change id are removed.
func (h *LogRetainHandler) Handle(ctx context.Context, t Task) ([]kv.Op, error) {
	if len(t.Tail) < 1 || len(t.Payload) < 8 {
		return nil, storeerr.New(storeerr.KindInvalid, "task.LogRetainHandler", "missing sync collection or boundary")
	}
	sc := t.Tail[0]
	boundary := binary.BigEndian.Uint64(t.Payload)

	var ops []kv.Op
	start := keys.LogPrefix(t.Account, sc)
	end := keys.Log(t.Account, sc, boundary)
	err := h.store.Iterate(ctx, kv.Range{Start: start, End: end}, true, false, func(k, _ []byte) (bool, error) {
		ops = append(ops, kv.Op{Kind: kv.OpClear, Key: append([]byte{}, k...)})
		return true, nil
	})
	return ops, err
}

// RebuildIndexHandler re-reads every archived record for one account and
// carries forward any still-pending schema migration, per spec.md §4.4's
// migration path and §4.8's rebuild_index task kind.
type RebuildIndexHandler struct {
	store kv.Store
}

// NewRebuildIndexHandler wraps store for per-account index rebuilds.
func NewRebuildIndexHandler(store kv.Store) *RebuildIndexHandler {
	return &RebuildIndexHandler{store: store}
}

func (h *RebuildIndexHandler) Kind() Kind { return KindRebuildIndex }

func (h *RebuildIndexHandler) Handle(ctx context.Context, t Task) ([]kv.Op, error) {
	prefix := append([]byte{keys.FamilyArchive}, accountBytes(t.Account)...)
	end := prefixEnd(prefix)

	var ops []kv.Op
	err := h.store.Iterate(ctx, kv.Range{Start: prefix, End: end}, true, true, func(k, v []byte) (bool, error) {
		typ, from, needed := archive.NeedsMigration(v)
		if !needed {
			return true, nil
		}
		migrator, ok := archive.Lookup(typ, from)
		if !ok {
			return true, nil
		}
		fields, merr := migrator(v)
		if merr != nil {
			return false, merr
		}
		newRaw := archive.Marshal(typ, archive.CurrentSchemaVersion, fields)
		ops = append(ops, kv.Op{Kind: kv.OpSet, Key: append([]byte{}, k...), Value: newRaw})
		return true, nil
	})
	return ops, err
}

func dropQuotaMutations(muts []index.Mutation) []index.Mutation {
	kept := muts[:0]
	for _, m := range muts {
		if m.Kind != index.MutQuota {
			kept = append(kept, m)
		}
	}
	return kept
}

func accountBytes(account keys.AccountID) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, account)
	return b
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
