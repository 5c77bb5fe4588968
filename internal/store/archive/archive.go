// Package archive implements the archival codec of component D
// (spec.md §4.4): deterministic serialization of record types into a
// format that permits attribute access by offset without decoding the
// whole record, plus the trusted/untrusted unarchive split the spec
// requires for the migration path.
//
// spec.md §9's own design note says a target language without a safe
// bytes-to-typed-view cast (Go included) should fall back to "explicit
// deserialization into owned structs... at the cost of extra allocation".
// This package takes the middle path the note invites: the wire format
// keeps an offset table so a caller that only needs one field (e.g.
// Size, for quota accounting) can read it via FieldBytes without paying
// for a full Unarchive, while callers that want the whole record still
// get an ordinary Go struct from Unarchive.
package archive

import (
	"encoding/binary"

	"github.com/cuemby/warren/internal/store/storeerr"
)

// TypeTag identifies a record's Go type inside the archive envelope.
type TypeTag uint8

const (
	TypeMailbox TypeTag = iota
	TypeEmail
	TypeThread
	TypeAddressBook
	TypeContactCard
	TypeCalendar
	TypeCalendarEvent
	TypeFileNode
	TypeSieveScript
	TypePushSubscription
	TypeIdentity
	TypePrincipal
	TypeCalendarEventNotification
	TypeShareNotification
)

// CurrentSchemaVersion is the schema version new writes are stamped with.
// Migrators (migrate.go) carry records forward from any older version.
const CurrentSchemaVersion uint8 = 1

// FieldTLV is one field's raw bytes tagged by its Field number, the unit
// Owned.Fields/populate operate on before/after wire encoding.
type FieldTLV struct {
	Tag   uint8
	Value []byte
}

const envelopeHeaderLen = 1 + 1 + 2 // typeTag, schemaVersion, fieldCount
const offsetEntryLen = 1 + 4 + 4    // tag, offset, length

// Marshal writes the deterministic wire form: a fixed header, an offset
// table (one entry per field, so FieldBytes never scans), then the
// concatenated field bodies. No reflection: callers supply their fields
// as an ordered []FieldTLV built by a hand-written Fields() method.
func Marshal(typeTag TypeTag, version uint8, fields []FieldTLV) []byte {
	bodyLen := 0
	for _, f := range fields {
		bodyLen += len(f.Value)
	}
	out := make([]byte, envelopeHeaderLen+len(fields)*offsetEntryLen+bodyLen)
	out[0] = uint8(typeTag)
	out[1] = version
	binary.BigEndian.PutUint16(out[2:4], uint16(len(fields)))

	offsetBase := envelopeHeaderLen
	bodyBase := envelopeHeaderLen + len(fields)*offsetEntryLen
	cursor := bodyBase
	for i, f := range fields {
		entry := out[offsetBase+i*offsetEntryLen:]
		entry[0] = f.Tag
		binary.BigEndian.PutUint32(entry[1:5], uint32(cursor))
		binary.BigEndian.PutUint32(entry[5:9], uint32(len(f.Value)))
		copy(out[cursor:], f.Value)
		cursor += len(f.Value)
	}
	return out
}

// View is a decoded envelope: the offset table plus a reference to the
// raw bytes, so FieldBytes slices into raw without allocating.
type View struct {
	raw     []byte
	typ     TypeTag
	version uint8
	offsets map[uint8]fieldSpan
}

type fieldSpan struct {
	offset uint32
	length uint32
}

// TypeTag returns the record's type tag.
func (v *View) TypeTag() TypeTag { return v.typ }

// SchemaVersion returns the schema version the record was written with.
func (v *View) SchemaVersion() uint8 { return v.version }

// FieldBytes returns the raw bytes of field tag without decoding any
// other field, or false if the field isn't present in this record.
func (v *View) FieldBytes(tag uint8) ([]byte, bool) {
	span, ok := v.offsets[tag]
	if !ok {
		return nil, false
	}
	return v.raw[span.offset : span.offset+span.length], true
}

// Unarchive decodes raw assuming it was produced by this process's own
// Marshal (the trusted fast path of spec.md §4.4): it trusts the header
// and offset table without re-validating bounds.
func Unarchive(raw []byte) (*View, error) {
	if len(raw) < envelopeHeaderLen {
		return nil, storeerr.New(storeerr.KindCorruption, "archive.Unarchive", "envelope shorter than header")
	}
	count := int(binary.BigEndian.Uint16(raw[2:4]))
	offsets := make(map[uint8]fieldSpan, count)
	base := envelopeHeaderLen
	for i := 0; i < count; i++ {
		entry := raw[base+i*offsetEntryLen:]
		offsets[entry[0]] = fieldSpan{
			offset: binary.BigEndian.Uint32(entry[1:5]),
			length: binary.BigEndian.Uint32(entry[5:9]),
		}
	}
	return &View{raw: raw, typ: TypeTag(raw[0]), version: raw[1], offsets: offsets}, nil
}

// UnarchiveUntrusted decodes raw with full bounds validation, for use
// during schema migration and whenever bytes did not originate from this
// process's own writes (spec.md §4.4's trust-boundary requirement).
// Surfaces storeerr.KindCorruption naming the malformed envelope.
func UnarchiveUntrusted(raw []byte) (*View, error) {
	if len(raw) < envelopeHeaderLen {
		return nil, storeerr.New(storeerr.KindCorruption, "archive.UnarchiveUntrusted", "envelope shorter than header")
	}
	count := int(binary.BigEndian.Uint16(raw[2:4]))
	base := envelopeHeaderLen
	tableLen := count * offsetEntryLen
	if base+tableLen > len(raw) {
		return nil, storeerr.New(storeerr.KindCorruption, "archive.UnarchiveUntrusted", "offset table overruns envelope")
	}
	offsets := make(map[uint8]fieldSpan, count)
	for i := 0; i < count; i++ {
		entry := raw[base+i*offsetEntryLen:]
		off := binary.BigEndian.Uint32(entry[1:5])
		ln := binary.BigEndian.Uint32(entry[5:9])
		if uint64(off)+uint64(ln) > uint64(len(raw)) {
			return nil, storeerr.New(storeerr.KindCorruption, "archive.UnarchiveUntrusted", "field span overruns envelope")
		}
		offsets[entry[0]] = fieldSpan{offset: off, length: ln}
	}
	return &View{raw: raw, typ: TypeTag(raw[0]), version: raw[1], offsets: offsets}, nil
}
