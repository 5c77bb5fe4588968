// Package blob implements the content-addressed blob store of component C
// (spec.md §4.3): BLAKE3-hashed content stored once per hash, referenced
// by typed link rows in the kv store, with a background purge of
// unreferenced content. This package does no quota accounting of its own.
package blob

import (
	"context"
	"time"

	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"lukechampine.com/blake3"
)

// Hash is a 32-byte BLAKE3 content digest.
type Hash [32]byte

// Sum computes the content hash of data, per spec.md §6.
func Sum(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// ByteRange bounds a partial blob read; a zero-value Length means "to the
// end of the blob".
type ByteRange struct {
	Offset int64
	Length int64
}

// Backend stores and retrieves raw blob content by hash. It knows nothing
// about link rows or quota; that bookkeeping lives in Store.
type Backend interface {
	Read(ctx context.Context, hash Hash, r ByteRange) ([]byte, error)
	Write(ctx context.Context, hash Hash, data []byte) error
	Delete(ctx context.Context, hash Hash) error
}

// AccessToken is the opaque calling-principal contract component C needs;
// spec.md §1 says the core "consumes an opaque access token... makes no
// policy decisions about authentication". Façades implement this over
// their own principal/ACL model.
type AccessToken interface {
	// Account returns the account id the token was issued for.
	Account() keys.AccountID
	// OwnsAccount reports whether the token's principal owns account.
	OwnsAccount(account keys.AccountID) bool
	// CanReadItems reports whether the token's principal may read items
	// in (account, collection) via container document containerID.
	CanReadItems(account keys.AccountID, collection keys.Collection, containerID keys.DocumentID) bool
}

// Store wraps a kv.Store (for link rows) and a Backend (for bytes).
type Store struct {
	kv      kv.Store
	backend Backend
}

// New constructs a Store over kvStore and backend.
func New(kvStore kv.Store, backend Backend) *Store {
	return &Store{kv: kvStore, backend: backend}
}

// PutTemporary writes data's content (if not already present under its
// hash) and adds a Temporary link valid until deadline, per spec.md §4.3's
// blob lifecycle ("Blobs enter as Temporary with a deadline"). CAS-by-hash
// means two callers writing the same bytes race harmlessly (spec.md §5).
func (s *Store) PutTemporary(ctx context.Context, data []byte, deadline time.Time) (Hash, error) {
	hash := Sum(data)
	if err := s.backend.Write(ctx, hash, data); err != nil {
		return Hash{}, storeerr.Wrap(storeerr.KindIO, "blob.PutTemporary", err)
	}
	metrics.BlobWritesTotal.Inc()
	metrics.BlobBytesWrittenTotal.Add(float64(len(data)))

	b := &kv.Batch{}
	b.Set(keys.Blob(hash, keys.BlobLinkTemporary, keys.BlobTemporaryPayload(deadline.UnixMilli())), []byte{})
	if _, err := s.kv.Write(ctx, b); err != nil {
		return Hash{}, err
	}
	return hash, nil
}

// Reserve adds a Reserved{account,until} link to hash, pinning it for an
// upload/import pipeline. It records the link only: no temporary-upload
// quota is counted or checked here, and no access token is consulted.
// The account-wide hard quota limit is enforced at the archive-write path
// (store.Store.Insert/Update, via index.Builder.Diff) once the upload is
// promoted to a Linked reference.
func (s *Store) Reserve(ctx context.Context, hash Hash, account keys.AccountID, until time.Time) error {
	b := &kv.Batch{}
	b.Set(keys.Blob(hash, keys.BlobLinkReserved, keys.BlobReservedPayload(account, until.UnixMilli())), []byte{})
	_, err := s.kv.Write(ctx, b)
	return err
}

// LinkOwned adds a Linked{account,collection,document} reference to hash,
// into batch so it commits atomically with the archive row that
// references it (spec.md §3 invariant 3). Callers wanting a standalone
// commit can pass a fresh *kv.Batch and Write it themselves.
func LinkOwned(batch *kv.Batch, hash Hash, account keys.AccountID, collection keys.Collection, document keys.DocumentID) {
	batch.Set(keys.Blob(hash, keys.BlobLinkLinked, keys.BlobLinkedPayload(account, collection, document)), []byte{})
}

// UnlinkOwned removes a Linked{account,collection,document} reference to
// hash inside batch, for use when the owning record is deleted.
func UnlinkOwned(batch *kv.Batch, hash Hash, account keys.AccountID, collection keys.Collection, document keys.DocumentID) {
	batch.Clear(keys.Blob(hash, keys.BlobLinkLinked, keys.BlobLinkedPayload(account, collection, document)))
}

// HasAnyLink reports whether hash currently has at least one link row of
// any class, used by Purge to decide whether content can be removed.
func (s *Store) HasAnyLink(ctx context.Context, hash Hash) (bool, error) {
	found := false
	err := s.kv.Iterate(ctx, kv.Range{Start: keys.BlobPrefix(hash), End: prefixEnd(keys.BlobPrefix(hash))}, true, false, func(_, _ []byte) (bool, error) {
		found = true
		return false, nil
	})
	return found, err
}

// CanRead reports whether token may read hash's content: it must
// dominate at least one existing link row (own the account, or have
// ReadItems on the linked document's container).
func (s *Store) CanRead(ctx context.Context, hash Hash, token AccessToken) (bool, error) {
	allowed := false
	err := s.kv.Iterate(ctx, kv.Range{Start: keys.BlobPrefix(hash), End: prefixEnd(keys.BlobPrefix(hash))}, true, false, func(k, _ []byte) (bool, error) {
		class, payload := k[33], k[34:]
		switch keys.BlobLinkClass(class) {
		case keys.BlobLinkLinked:
			account, collection, document := parseLinkedPayload(payload)
			if token.OwnsAccount(account) || token.CanReadItems(account, collection, document) {
				allowed = true
				return false, nil
			}
		case keys.BlobLinkReserved, keys.BlobLinkTemporary:
			if len(payload) >= 4 {
				account := beUint32(payload)
				if token.OwnsAccount(account) {
					allowed = true
					return false, nil
				}
			}
		}
		return true, nil
	})
	return allowed, err
}

// Read returns hash's content bytes (optionally range-limited) after
// confirming token dominates some link.
func (s *Store) Read(ctx context.Context, hash Hash, r ByteRange, token AccessToken) ([]byte, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobReadDuration, "default")

	ok, err := s.CanRead(ctx, hash, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storeerr.New(storeerr.KindPermissionDenied, "blob.Read", "no link dominated by token")
	}
	return s.backend.Read(ctx, hash, r)
}

// Purge scans expired Reserved/Temporary link rows across all hashes,
// removes them, and removes content for any hash left with zero links.
// Idempotent and tolerant of partial failure: each hash is handled in its
// own small batch, so a failure on one hash doesn't block the rest.
func (s *Store) Purge(ctx context.Context, now time.Time) (removed int, err error) {
	type expiry struct {
		hash    Hash
		class   keys.BlobLinkClass
		payload []byte
	}
	var expired []expiry

	start := []byte{keysFamilyBlob}
	end := []byte{keysFamilyBlob + 1}
	scanErr := s.kv.Iterate(ctx, kv.Range{Start: start, End: end}, true, false, func(k, _ []byte) (bool, error) {
		var hash Hash
		copy(hash[:], k[1:33])
		class := keys.BlobLinkClass(k[33])
		payload := k[34:]

		var until int64
		switch class {
		case keys.BlobLinkReserved:
			if len(payload) < 12 {
				return true, nil
			}
			until = int64(beUint64(payload[4:12]))
		case keys.BlobLinkTemporary:
			if len(payload) < 8 {
				return true, nil
			}
			until = int64(beUint64(payload[:8]))
		default:
			return true, nil
		}
		if until <= now.UnixMilli() {
			expired = append(expired, expiry{hash: hash, class: class, payload: append([]byte{}, payload...)})
		}
		return true, nil
	})
	if scanErr != nil {
		return 0, scanErr
	}

	for _, e := range expired {
		b := &kv.Batch{}
		b.Clear(keys.Blob(e.hash, e.class, e.payload))
		if _, werr := s.kv.Write(ctx, b); werr != nil {
			continue
		}
		removed++

		hasLink, herr := s.HasAnyLink(ctx, e.hash)
		if herr != nil || hasLink {
			continue
		}
		if derr := s.backend.Delete(ctx, e.hash); derr == nil {
			metrics.BlobPurgedTotal.Inc()
			log.WithHash(e.hash).Debug().Msg("blob content purged, last link expired")
		}
	}
	return removed, nil
}

const keysFamilyBlob = keys.FamilyBlob

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

func parseLinkedPayload(p []byte) (keys.AccountID, keys.Collection, keys.DocumentID) {
	if len(p) < 9 {
		return 0, 0, 0
	}
	return beUint32(p), p[4], beUint32(p[5:])
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
