package index

import (
	"testing"

	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/stretchr/testify/assert"
)

type fakeRecord struct {
	text   map[keys.Field]string
	scalar map[keys.Field][]byte
	blob   blob.Hash
	hasBlob bool
	size   uint64
	acl    map[uint32]uint8
}

func (r fakeRecord) TextFields() map[keys.Field]string     { return r.text }
func (r fakeRecord) ScalarFields() map[keys.Field][]byte    { return r.scalar }
func (r fakeRecord) BlobRef() (blob.Hash, bool)             { return r.blob, r.hasBlob }
func (r fakeRecord) Size() uint64                           { return r.size }
func (r fakeRecord) ACL() map[uint32]uint8                  { return r.acl }

func TestDiffIdenticalRecordsYieldsNoMutations(t *testing.T) {
	b := NewBuilder()
	r := fakeRecord{
		text:   map[keys.Field]string{1: "hello world"},
		scalar: map[keys.Field][]byte{2: {0, 0, 0, 1}},
		size:   10,
	}
	muts, err := b.Diff(r, r, QuotaLimit{})
	assert.NoError(t, err)
	assert.Empty(t, muts)
}

func TestDiffInsertEmitsAllAsAdd(t *testing.T) {
	b := NewBuilder()
	r := fakeRecord{
		scalar: map[keys.Field][]byte{2: {0, 0, 0, 1}},
		size:   4096,
	}
	muts, err := b.Diff(nil, r, QuotaLimit{})
	assert.NoError(t, err)

	var sawQuota, sawProperty bool
	for _, m := range muts {
		if m.Kind == MutQuota {
			sawQuota = true
			assert.Equal(t, int64(4096), m.QuotaDelta)
		}
		if m.Kind == MutProperty {
			sawProperty = true
			assert.True(t, m.Add)
		}
	}
	assert.True(t, sawQuota)
	assert.True(t, sawProperty)
}

func TestDiffDeleteEmitsAllAsRemove(t *testing.T) {
	b := NewBuilder()
	r := fakeRecord{size: 100, hasBlob: true, blob: blob.Sum([]byte("x"))}
	muts, err := b.Diff(r, nil, QuotaLimit{})
	assert.NoError(t, err)

	var sawQuota, sawBlob bool
	for _, m := range muts {
		if m.Kind == MutQuota {
			sawQuota = true
			assert.Equal(t, int64(-100), m.QuotaDelta)
		}
		if m.Kind == MutBlob {
			sawBlob = true
			assert.False(t, m.Add)
		}
	}
	assert.True(t, sawQuota)
	assert.True(t, sawBlob)
}

func TestDiffTextChangeProducesAddedAndRemovedTokens(t *testing.T) {
	b := NewBuilder()
	old := fakeRecord{text: map[keys.Field]string{1: "hello world"}}
	new := fakeRecord{text: map[keys.Field]string{1: "hello friend"}}

	muts, err := b.Diff(old, new, QuotaLimit{})
	assert.NoError(t, err)

	var added, removed []string
	for _, m := range muts {
		if m.Kind != MutIndex {
			continue
		}
		if m.Add {
			added = append(added, string(m.Value))
		} else {
			removed = append(removed, string(m.Value))
		}
	}
	assert.Contains(t, added, "friend")
	assert.Contains(t, removed, "world")
	assert.NotContains(t, added, "hello")
	assert.NotContains(t, removed, "hello")
}

func TestDiffBlobUnchangedEmitsNoBlobMutation(t *testing.T) {
	b := NewBuilder()
	h := blob.Sum([]byte("same"))
	old := fakeRecord{hasBlob: true, blob: h}
	new := fakeRecord{hasBlob: true, blob: h}

	muts, err := b.Diff(old, new, QuotaLimit{})
	assert.NoError(t, err)
	for _, m := range muts {
		assert.NotEqual(t, MutBlob, m.Kind)
	}
}

func TestDiffRefusesWhenGrowthExceedsHardLimit(t *testing.T) {
	b := NewBuilder()
	r := fakeRecord{size: 100}

	muts, err := b.Diff(nil, r, QuotaLimit{Account: 7, UsedBytes: 950, HardBytes: 1000})
	assert.Error(t, err)
	assert.Nil(t, muts)
	assert.True(t, storeerr.Is(err, storeerr.KindQuotaExceeded))
}

func TestDiffAllowsGrowthWithinHardLimit(t *testing.T) {
	b := NewBuilder()
	r := fakeRecord{size: 50}

	muts, err := b.Diff(nil, r, QuotaLimit{Account: 7, UsedBytes: 950, HardBytes: 1000})
	assert.NoError(t, err)

	var sawQuota bool
	for _, m := range muts {
		if m.Kind == MutQuota {
			sawQuota = true
			assert.Equal(t, int64(50), m.QuotaDelta)
		}
	}
	assert.True(t, sawQuota)
}

func TestDiffShrinkingNeverRefusesEvenOverLimit(t *testing.T) {
	b := NewBuilder()
	old := fakeRecord{size: 2000}

	muts, err := b.Diff(old, nil, QuotaLimit{Account: 7, UsedBytes: 2000, HardBytes: 1000})
	assert.NoError(t, err)

	var sawQuota bool
	for _, m := range muts {
		if m.Kind == MutQuota {
			sawQuota = true
			assert.Equal(t, int64(-2000), m.QuotaDelta)
		}
	}
	assert.True(t, sawQuota)
}

func TestDiffACLChangeEmitsPerPrincipalMutations(t *testing.T) {
	b := NewBuilder()
	old := fakeRecord{acl: map[uint32]uint8{1: 0x01}}
	new := fakeRecord{acl: map[uint32]uint8{1: 0x03, 2: 0x01}}

	muts, err := b.Diff(old, new, QuotaLimit{})
	assert.NoError(t, err)

	var sawUpdate, sawNew bool
	for _, m := range muts {
		if m.Kind != MutACL {
			continue
		}
		if m.ACLPrincipal == 1 && m.Add && m.ACLGrants == 0x03 {
			sawUpdate = true
		}
		if m.ACLPrincipal == 2 && m.Add {
			sawNew = true
		}
	}
	assert.True(t, sawUpdate)
	assert.True(t, sawNew)
}
