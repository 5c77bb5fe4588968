// Package index implements the index builder of component E
// (spec.md §4.5): given an old and new version of a record it emits the
// secondary-index mutations needed to keep tokenized text, sortable
// scalars, ACL bitmaps, quota totals, and blob links in step with the
// archive, plus the change-log append calls component F consumes.
package index

import (
	"bytes"
	"time"

	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/index/tokenize"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/cuemby/warren/pkg/metrics"
)

// Indexable is the subset of a record type the builder needs to diff.
// Concrete record types (internal/store/archive.Email, .ContactCard, ...)
// implement it via small adapter functions at the call site rather than
// the archive package depending on index, keeping the dependency graph
// acyclic per spec.md §2's leaves-first ordering.
type Indexable interface {
	// TextFields returns the fields to tokenize for full-text search.
	TextFields() map[keys.Field]string
	// ScalarFields returns fields to index as raw sortable scalar bytes,
	// already big-endian/length-prefixed so byte order matches field order.
	ScalarFields() map[keys.Field][]byte
	// BlobRef returns the record's single blob reference, if any.
	BlobRef() (blob.Hash, bool)
	// Size is the byte-size contribution to the account's quota.
	Size() uint64
	// ACL returns principal -> grant-bitmask for records that carry
	// sharing grants (mailboxes, address books, calendars); nil if none.
	ACL() map[uint32]uint8
}

// MutationKind discriminates the IndexValue variants of spec.md §4.5.
type MutationKind uint8

const (
	MutProperty MutationKind = iota
	MutIndex
	MutBlob
	MutACL
	MutQuota
	MutLogItem
	MutLogContainer
	MutLogContainerProperty
)

// Mutation is one primitive index change the batch builder expands into
// kv ops. Add distinguishes set-vs-clear for Property/Index/ACL/Blob
// mutations; Quota carries a signed delta instead.
type Mutation struct {
	Kind  MutationKind
	Field keys.Field
	Value []byte
	Add   bool

	BlobHash blob.Hash

	QuotaDelta int64

	ACLPrincipal uint32
	ACLGrants    uint8
}

// Builder produces index mutations by diffing record versions.
type Builder struct {
	stemmer tokenize.Stemmer
}

// NewBuilder constructs a Builder with the default English stemmer.
func NewBuilder() *Builder {
	return &Builder{stemmer: tokenize.PorterStemmer{}}
}

// QuotaLimit narrows spec.md §4.5's "access_token" to the quota facet
// Diff needs to enforce: the account's hard byte ceiling and the usage
// already committed before this diff. A zero HardBytes means unlimited.
type QuotaLimit struct {
	Account   keys.AccountID
	UsedBytes int64
	HardBytes int64
}

// Diff compares old (nil on insert) against new (nil on delete) and
// returns the mutations needed to bring the secondary indexes in step.
// Per spec.md §4.5's diffing rule, identical fields yield no mutations.
// It refuses with storeerr.KindQuotaExceeded, per spec.md §4.5/§6, if
// applying the record's size delta would push the account over limit's
// hard ceiling.
func (b *Builder) Diff(old, new Indexable, limit QuotaLimit) ([]Mutation, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IndexDiffDuration)

	quotaMuts, err := b.diffQuota(old, new, limit)
	if err != nil {
		return nil, err
	}

	var muts []Mutation
	muts = append(muts, b.diffText(old, new)...)
	muts = append(muts, b.diffScalars(old, new)...)
	muts = append(muts, b.diffBlob(old, new)...)
	muts = append(muts, quotaMuts...)
	muts = append(muts, b.diffACL(old, new)...)

	for _, m := range muts {
		metrics.IndexMutationsTotal.WithLabelValues(mutationKindLabel(m.Kind)).Inc()
	}
	return muts, nil
}

func mutationKindLabel(k MutationKind) string {
	switch k {
	case MutProperty:
		return "property"
	case MutIndex:
		return "index"
	case MutBlob:
		return "blob"
	case MutACL:
		return "acl"
	case MutQuota:
		return "quota"
	case MutLogItem:
		return "log_item"
	case MutLogContainer:
		return "log_container"
	case MutLogContainerProperty:
		return "log_container_property"
	default:
		return "unknown"
	}
}

func (b *Builder) diffText(old, new Indexable) []Mutation {
	oldTokens := map[keys.Field]map[string]bool{}
	if old != nil {
		for field, text := range old.TextFields() {
			oldTokens[field] = tokenSet(b.stemmer, text)
		}
	}
	newTokens := map[keys.Field]map[string]bool{}
	if new != nil {
		for field, text := range new.TextFields() {
			newTokens[field] = tokenSet(b.stemmer, text)
		}
	}

	fields := map[keys.Field]bool{}
	for f := range oldTokens {
		fields[f] = true
	}
	for f := range newTokens {
		fields[f] = true
	}

	var muts []Mutation
	for field := range fields {
		ot, nt := oldTokens[field], newTokens[field]
		for tok := range ot {
			if !nt[tok] {
				muts = append(muts, Mutation{Kind: MutIndex, Field: field, Value: []byte(tok), Add: false})
			}
		}
		for tok := range nt {
			if !ot[tok] {
				muts = append(muts, Mutation{Kind: MutIndex, Field: field, Value: []byte(tok), Add: true})
				metrics.TokensIndexedTotal.Inc()
			}
		}
	}
	return muts
}

func tokenSet(stemmer tokenize.Stemmer, text string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range tokenize.Tokenize(text, stemmer) {
		set[tok] = true
	}
	return set
}

func (b *Builder) diffScalars(old, new Indexable) []Mutation {
	var oldFields, newFields map[keys.Field][]byte
	if old != nil {
		oldFields = old.ScalarFields()
	}
	if new != nil {
		newFields = new.ScalarFields()
	}

	fields := map[keys.Field]bool{}
	for f := range oldFields {
		fields[f] = true
	}
	for f := range newFields {
		fields[f] = true
	}

	var muts []Mutation
	for field := range fields {
		ov, oOK := oldFields[field]
		nv, nOK := newFields[field]
		if oOK && nOK && bytes.Equal(ov, nv) {
			continue
		}
		if oOK {
			muts = append(muts, Mutation{Kind: MutProperty, Field: field, Value: ov, Add: false})
		}
		if nOK {
			muts = append(muts, Mutation{Kind: MutProperty, Field: field, Value: nv, Add: true})
		}
	}
	return muts
}

func (b *Builder) diffBlob(old, new Indexable) []Mutation {
	var oldHash, newHash blob.Hash
	var oldOK, newOK bool
	if old != nil {
		oldHash, oldOK = old.BlobRef()
	}
	if new != nil {
		newHash, newOK = new.BlobRef()
	}
	if oldOK && newOK && oldHash == newHash {
		return nil
	}
	var muts []Mutation
	if oldOK {
		muts = append(muts, Mutation{Kind: MutBlob, BlobHash: oldHash, Add: false})
	}
	if newOK {
		muts = append(muts, Mutation{Kind: MutBlob, BlobHash: newHash, Add: true})
	}
	return muts
}

func (b *Builder) diffQuota(old, new Indexable, limit QuotaLimit) ([]Mutation, error) {
	var oldSize, newSize uint64
	if old != nil {
		oldSize = old.Size()
	}
	if new != nil {
		newSize = new.Size()
	}
	delta := int64(newSize) - int64(oldSize)
	if delta == 0 {
		return nil, nil
	}
	if delta > 0 && limit.HardBytes > 0 && limit.UsedBytes+delta > limit.HardBytes {
		metrics.QuotaExceededTotal.Inc()
		return nil, storeerr.New(storeerr.KindQuotaExceeded, "index.diffQuota",
			"writing this record would exceed the account's quota hard limit").WithAccount(limit.Account)
	}
	return []Mutation{{Kind: MutQuota, QuotaDelta: delta}}, nil
}

func (b *Builder) diffACL(old, new Indexable) []Mutation {
	var oldACL, newACL map[uint32]uint8
	if old != nil {
		oldACL = old.ACL()
	}
	if new != nil {
		newACL = new.ACL()
	}
	if len(oldACL) == 0 && len(newACL) == 0 {
		return nil
	}

	principals := map[uint32]bool{}
	for p := range oldACL {
		principals[p] = true
	}
	for p := range newACL {
		principals[p] = true
	}

	var muts []Mutation
	for p := range principals {
		ov, oOK := oldACL[p]
		nv, nOK := newACL[p]
		if oOK && nOK && ov == nv {
			continue
		}
		if oOK {
			muts = append(muts, Mutation{Kind: MutACL, ACLPrincipal: p, ACLGrants: ov, Add: false})
		}
		if nOK {
			muts = append(muts, Mutation{Kind: MutACL, ACLPrincipal: p, ACLGrants: nv, Add: true})
		}
	}
	return muts
}

// LogMutations builds the change-log append mutations for one commit:
// one MutLogItem per affected item-stream document and one
// MutLogContainer per affected container-stream document, per spec.md
// §4.7's "container vs item streams" requirement that index builders emit
// one log call per affected stream.
func LogMutations(itemKind LogKind, itemDoc keys.DocumentID, containerKind LogKind, containerDocs []keys.DocumentID) []Mutation {
	var muts []Mutation
	muts = append(muts, Mutation{Kind: MutLogItem, Field: uint8(itemKind), Value: encodeDoc(itemDoc)})
	for _, d := range containerDocs {
		muts = append(muts, Mutation{Kind: MutLogContainer, Field: uint8(containerKind), Value: encodeDoc(d)})
	}
	return muts
}

// LogKind tags whether a log mutation represents a create/update/destroy.
type LogKind uint8

const (
	LogCreated LogKind = iota
	LogUpdated
	LogDestroyed
	LogVanished
)

func encodeDoc(d keys.DocumentID) []byte {
	b := make([]byte, 4)
	b[0] = byte(d >> 24)
	b[1] = byte(d >> 16)
	b[2] = byte(d >> 8)
	b[3] = byte(d)
	return b
}

// DefaultReservedUploadTTL bounds how long a Reserved blob link survives
// without being promoted to Linked, per spec.md §4.3.
const DefaultReservedUploadTTL = 24 * time.Hour
