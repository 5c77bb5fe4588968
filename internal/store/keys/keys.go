// Package keys implements the key codec (component A): it turns typed
// tuples of account/collection/document/field into ordered byte strings.
//
// Every key starts with a one-byte family discriminator so that scans
// over one family never cross into another, and every multi-byte integer
// is encoded big-endian so that lexicographic byte order matches numeric
// order (RFC: spec.md §4.1). Variable-length components only ever appear
// as the last component of a key.
package keys

import (
	"encoding/binary"
)

// AccountID identifies an isolation domain. MetaAccount is reserved for
// cross-account bookkeeping (spec.md §3).
type AccountID = uint32

// MetaAccount is the reserved account id for cross-account metadata.
const MetaAccount AccountID = 0xFFFFFFFF

// DocumentID is dense within (account, collection).
type DocumentID = uint32

// Collection tags a record kind within an account.
type Collection = uint8

// SyncCollection groups item/container collections into one change-log stream.
type SyncCollection = uint8

// Field tags an attribute inside a collection.
type Field = uint8

// ArchiveField is the field tag most collections reserve for their
// archived record payload, grounded on crates/types/src/field.rs's
// ARCHIVE_FIELD = 50 constant (kept identical so migrated data from a
// reference deployment lines up field-for-field).
const ArchiveField Field = 50

// Family discriminator bytes. These values are part of the stable
// on-disk layout (spec.md §6) and must never be renumbered.
const (
	FamilyArchive Family = 0
	FamilyProperty Family = 1
	FamilyIndex    Family = 2
	FamilyBitmap   Family = 3
	FamilyLog      Family = 4
	FamilyBlob     Family = 5
	FamilyQuota    Family = 6
	FamilyCounter  Family = 7
	FamilyTask     Family = 8
)

// Family is the leading discriminator byte of every key.
type Family = uint8

func putU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// Archive builds the key for Archive(account, collection, document).
func Archive(account AccountID, collection Collection, document DocumentID) []byte {
	k := make([]byte, 1+4+1+4)
	k[0] = FamilyArchive
	putU32(k[1:5], account)
	k[5] = collection
	putU32(k[6:10], document)
	return k
}

// Property builds the key for Property(account, collection, document, field).
func Property(account AccountID, collection Collection, document DocumentID, field Field) []byte {
	k := make([]byte, 1+4+1+4+1)
	k[0] = FamilyProperty
	putU32(k[1:5], account)
	k[5] = collection
	putU32(k[6:10], document)
	k[10] = field
	return k
}

// Index builds the key for Index(account, collection, field, value, document).
// value is variable-length and must be the last component before document,
// but document is fixed-width and trails it so range scans over a fixed
// (account,collection,field) prefix still yield value-then-document order.
func Index(account AccountID, collection Collection, field Field, value []byte, document DocumentID) []byte {
	k := make([]byte, 1+4+1+1, 1+4+1+1+len(value)+4)
	k[0] = FamilyIndex
	putU32(k[1:5], account)
	k[5] = collection
	k[6] = field
	k = append(k, value...)
	d := make([]byte, 4)
	putU32(d, document)
	k = append(k, d...)
	return k
}

// IndexPrefix builds the scan prefix for a fixed (account, collection, field).
func IndexPrefix(account AccountID, collection Collection, field Field) []byte {
	k := make([]byte, 1+4+1+1)
	k[0] = FamilyIndex
	putU32(k[1:5], account)
	k[5] = collection
	k[6] = field
	return k
}

// IndexValuePrefix builds the scan prefix for a fixed (account, collection, field, value).
func IndexValuePrefix(account AccountID, collection Collection, field Field, value []byte) []byte {
	return append(IndexPrefix(account, collection, field), value...)
}

// Bitmap builds the key for Bitmap(account, collection, field, tag, chunk).
// tag is the value being indexed (e.g. a keyword or flag) and follows
// field; chunk is the caller-computed document-range bucket.
func Bitmap(account AccountID, collection Collection, field Field, tag []byte, chunk uint32) []byte {
	k := make([]byte, 1+4+1+1, 1+4+1+1+len(tag)+4)
	k[0] = FamilyBitmap
	putU32(k[1:5], account)
	k[5] = collection
	k[6] = field
	k = append(k, tag...)
	c := make([]byte, 4)
	putU32(c, chunk)
	return append(k, c...)
}

// BitmapPrefix builds the scan prefix for all chunks of one (account,collection,field,tag).
func BitmapPrefix(account AccountID, collection Collection, field Field, tag []byte) []byte {
	k := make([]byte, 1+4+1+1, 1+4+1+1+len(tag))
	k[0] = FamilyBitmap
	putU32(k[1:5], account)
	k[5] = collection
	k[6] = field
	return append(k, tag...)
}

// Log builds the key for Log(account, syncCollection, changeId).
func Log(account AccountID, syncCollection SyncCollection, changeID uint64) []byte {
	k := make([]byte, 1+4+1+8)
	k[0] = FamilyLog
	putU32(k[1:5], account)
	k[5] = syncCollection
	putU64(k[6:14], changeID)
	return k
}

// LogPrefix builds the scan prefix for all log entries of (account, syncCollection).
func LogPrefix(account AccountID, syncCollection SyncCollection) []byte {
	k := make([]byte, 1+4+1)
	k[0] = FamilyLog
	putU32(k[1:5], account)
	k[5] = syncCollection
	return k
}

// LogFrom builds the scan start key for entries of (account,syncCollection)
// with changeId >= from.
func LogFrom(account AccountID, syncCollection SyncCollection, from uint64) []byte {
	return Log(account, syncCollection, from)
}

// BlobLinkClass enumerates the three blob-link classes of spec.md §3/§4.3.
type BlobLinkClass uint8

const (
	BlobLinkLinked    BlobLinkClass = 0
	BlobLinkReserved  BlobLinkClass = 1
	BlobLinkTemporary BlobLinkClass = 2
)

// Blob builds a Blob(hash, class) key. The class-specific payload
// (account/collection/document for Linked, account/until for Reserved,
// until for Temporary) is appended after the class byte so that all link
// rows for one hash remain contiguous in a scan over BlobPrefix(hash).
func Blob(hash [32]byte, class BlobLinkClass, payload []byte) []byte {
	k := make([]byte, 1+32+1, 1+32+1+len(payload))
	k[0] = FamilyBlob
	copy(k[1:33], hash[:])
	k[33] = uint8(class)
	return append(k, payload...)
}

// BlobLinkedPayload encodes the Linked{account,collection,document} payload.
func BlobLinkedPayload(account AccountID, collection Collection, document DocumentID) []byte {
	p := make([]byte, 4+1+4)
	putU32(p[0:4], account)
	p[4] = collection
	putU32(p[5:9], document)
	return p
}

// BlobReservedPayload encodes the Reserved{account,until} payload. until is
// milliseconds since epoch.
func BlobReservedPayload(account AccountID, until int64) []byte {
	p := make([]byte, 4+8)
	putU32(p[0:4], account)
	putU64(p[4:12], uint64(until))
	return p
}

// BlobTemporaryPayload encodes the Temporary{until} payload.
func BlobTemporaryPayload(until int64) []byte {
	p := make([]byte, 8)
	putU64(p, uint64(until))
	return p
}

// BlobPrefix builds the scan prefix for all link rows of one hash.
func BlobPrefix(hash [32]byte) []byte {
	k := make([]byte, 1+32)
	k[0] = FamilyBlob
	copy(k[1:33], hash[:])
	return k
}

// Quota builds the key for Quota(account).
func Quota(account AccountID) []byte {
	k := make([]byte, 1+4)
	k[0] = FamilyQuota
	putU32(k[1:5], account)
	return k
}

// Counter builds the key for Counter(account, collection, name).
func Counter(account AccountID, collection Collection, name string) []byte {
	k := make([]byte, 1+4+1, 1+4+1+len(name))
	k[0] = FamilyCounter
	putU32(k[1:5], account)
	k[5] = collection
	return append(k, name...)
}

// ChangeCounterName is the reserved counter name used to allocate change
// ids per (account, syncCollection) at commit time (spec.md §4.6).
const ChangeCounterName = "changeid"

// Task builds the key for Task(dueMillis, kind, account, document, ...).
// Tail is an arbitrary caller-supplied suffix distinguishing tasks that
// share (dueMillis, kind, account, document), e.g. a blob hash for purge
// tasks.
func Task(dueMillis int64, kind uint8, account AccountID, document DocumentID, tail []byte) []byte {
	k := make([]byte, 1+8+1+4+4, 1+8+1+4+4+len(tail))
	k[0] = FamilyTask
	putU64(k[1:9], uint64(dueMillis))
	k[9] = kind
	putU32(k[10:14], account)
	putU32(k[14:18], document)
	return append(k, tail...)
}

// TaskDuePrefix builds the scan prefix for tasks due at or before upTo,
// used by workers to find candidate work: a range scan from the family
// byte through upTo's big-endian encoding.
func TaskDuePrefix(upTo int64) []byte {
	k := make([]byte, 1+8)
	k[0] = FamilyTask
	putU64(k[1:9], uint64(upTo))
	return k
}
