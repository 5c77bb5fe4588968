package archive

import (
	"encoding/binary"

	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/storeerr"
)

// Small field-value encoders shared by every record type below. No
// reflection; each Owned type spells out its own Fields()/populate pair
// using these primitives, matching the teacher's preference for explicit
// per-type marshal code (seen throughout pkg/storage/boltdb.go, there via
// encoding/json.Marshal per bucket) generalized to this package's binary
// envelope.
func encU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decU64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func encI64(v int64) []byte { return encU64(uint64(v)) }
func decI64(b []byte) int64 { return int64(decU64(b)) }

func encStr(s string) []byte { return []byte(s) }
func decStr(b []byte) string { return string(b) }

func encU32List(ids []uint32) []byte {
	out := make([]byte, 4+4*len(ids))
	binary.BigEndian.PutUint32(out, uint32(len(ids)))
	for i, id := range ids {
		binary.BigEndian.PutUint32(out[4+4*i:], id)
	}
	return out
}

func decU32List(b []byte) ([]uint32, error) {
	if len(b) < 4 {
		return nil, storeerr.New(storeerr.KindCorruption, "archive.decU32List", "truncated list header")
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(len(b)) < 4+uint64(n)*4 {
		return nil, storeerr.New(storeerr.KindCorruption, "archive.decU32List", "truncated list body")
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(b[4+4*i:])
	}
	return out, nil
}

// Mailbox is the owned form of a mailbox container record.
type Mailbox struct {
	Name       string
	ParentID   uint32
	HasParent  bool
	Role       string
	UIDValidty uint32
	SortOrder  uint32
}

// Fields returns Mailbox's field list for Marshal.
func (m Mailbox) Fields() []FieldTLV {
	parent := uint32(0)
	if m.HasParent {
		parent = m.ParentID | 0x80000000
	}
	return []FieldTLV{
		{Tag: 1, Value: encStr(m.Name)},
		{Tag: 2, Value: encU64(uint64(parent))},
		{Tag: 3, Value: encStr(m.Role)},
		{Tag: 4, Value: encU64(uint64(m.UIDValidty))},
		{Tag: 5, Value: encU64(uint64(m.SortOrder))},
	}
}

// MailboxFromView decodes a Mailbox from a View produced by Unarchive.
func MailboxFromView(v *View) (Mailbox, error) {
	var m Mailbox
	if b, ok := v.FieldBytes(1); ok {
		m.Name = decStr(b)
	}
	if b, ok := v.FieldBytes(2); ok {
		raw := uint32(decU64(b))
		if raw&0x80000000 != 0 {
			m.HasParent = true
			m.ParentID = raw &^ 0x80000000
		}
	}
	if b, ok := v.FieldBytes(3); ok {
		m.Role = decStr(b)
	}
	if b, ok := v.FieldBytes(4); ok {
		m.UIDValidty = uint32(decU64(b))
	}
	if b, ok := v.FieldBytes(5); ok {
		m.SortOrder = uint32(decU64(b))
	}
	return m, nil
}

// MarshalMailbox serializes m as a TypeMailbox envelope.
func MarshalMailbox(m Mailbox) []byte {
	return Marshal(TypeMailbox, CurrentSchemaVersion, m.Fields())
}

// Email is the owned form of an email message record.
type Email struct {
	Subject       string
	MailboxIDs    []uint32
	Size          uint64
	ReceivedAt    int64
	SentAt        int64
	HasAttachment bool
	BlobHash      [32]byte
	HasBlob       bool
	From          []string
	To            []string
}

// Fields returns Email's field list for Marshal.
func (e Email) Fields() []FieldTLV {
	fields := []FieldTLV{
		{Tag: keys.FieldEmailSubject, Value: encStr(e.Subject)},
		{Tag: keys.FieldEmailMailboxIDs, Value: encU32List(e.MailboxIDs)},
		{Tag: keys.FieldEmailSize, Value: encU64(e.Size)},
		{Tag: keys.FieldEmailReceivedAt, Value: encI64(e.ReceivedAt)},
		{Tag: keys.FieldEmailSentAt, Value: encI64(e.SentAt)},
		{Tag: keys.FieldEmailFrom, Value: encStrList(e.From)},
		{Tag: keys.FieldEmailTo, Value: encStrList(e.To)},
	}
	attachment := uint64(0)
	if e.HasAttachment {
		attachment = 1
	}
	fields = append(fields, FieldTLV{Tag: keys.FieldEmailHasAttachment, Value: encU64(attachment)})
	if e.HasBlob {
		fields = append(fields, FieldTLV{Tag: 20, Value: append([]byte{}, e.BlobHash[:]...)})
	}
	return fields
}

// EmailFromView decodes an Email from a View produced by Unarchive.
func EmailFromView(v *View) (Email, error) {
	var e Email
	if b, ok := v.FieldBytes(keys.FieldEmailSubject); ok {
		e.Subject = decStr(b)
	}
	if b, ok := v.FieldBytes(keys.FieldEmailMailboxIDs); ok {
		ids, err := decU32List(b)
		if err != nil {
			return Email{}, err
		}
		e.MailboxIDs = ids
	}
	if b, ok := v.FieldBytes(keys.FieldEmailSize); ok {
		e.Size = decU64(b)
	}
	if b, ok := v.FieldBytes(keys.FieldEmailReceivedAt); ok {
		e.ReceivedAt = decI64(b)
	}
	if b, ok := v.FieldBytes(keys.FieldEmailSentAt); ok {
		e.SentAt = decI64(b)
	}
	if b, ok := v.FieldBytes(keys.FieldEmailFrom); ok {
		e.From = decStrList(b)
	}
	if b, ok := v.FieldBytes(keys.FieldEmailTo); ok {
		e.To = decStrList(b)
	}
	if b, ok := v.FieldBytes(keys.FieldEmailHasAttachment); ok {
		e.HasAttachment = decU64(b) != 0
	}
	if b, ok := v.FieldBytes(20); ok && len(b) == 32 {
		e.HasBlob = true
		copy(e.BlobHash[:], b)
	}
	return e, nil
}

// MarshalEmail serializes e as a TypeEmail envelope.
func MarshalEmail(e Email) []byte {
	return Marshal(TypeEmail, CurrentSchemaVersion, e.Fields())
}

func encStrList(ss []string) []byte {
	var out []byte
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(ss)))
	out = append(out, hdr...)
	for _, s := range ss {
		lb := make([]byte, 4)
		binary.BigEndian.PutUint32(lb, uint32(len(s)))
		out = append(out, lb...)
		out = append(out, s...)
	}
	return out
}

func decStrList(b []byte) []string {
	if len(b) < 4 {
		return nil
	}
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(b) < 4 {
			break
		}
		l := binary.BigEndian.Uint32(b)
		b = b[4:]
		if uint64(len(b)) < uint64(l) {
			break
		}
		out = append(out, string(b[:l]))
		b = b[l:]
	}
	return out
}

// ContactCard is the owned form of an address-book contact.
type ContactCard struct {
	UID     string
	Email   string
	Created int64
	Updated int64
	Text    string
}

// Fields returns ContactCard's field list for Marshal.
func (c ContactCard) Fields() []FieldTLV {
	return []FieldTLV{
		{Tag: keys.FieldContactUID, Value: encStr(c.UID)},
		{Tag: keys.FieldContactEmail, Value: encStr(c.Email)},
		{Tag: keys.FieldContactCreated, Value: encI64(c.Created)},
		{Tag: keys.FieldContactUpdated, Value: encI64(c.Updated)},
		{Tag: keys.FieldContactText, Value: encStr(c.Text)},
	}
}

// MarshalContactCard serializes c as a TypeContactCard envelope.
func MarshalContactCard(c ContactCard) []byte {
	return Marshal(TypeContactCard, CurrentSchemaVersion, c.Fields())
}

// ContactCardFromView decodes a ContactCard from a View.
func ContactCardFromView(v *View) (ContactCard, error) {
	var c ContactCard
	if b, ok := v.FieldBytes(keys.FieldContactUID); ok {
		c.UID = decStr(b)
	}
	if b, ok := v.FieldBytes(keys.FieldContactEmail); ok {
		c.Email = decStr(b)
	}
	if b, ok := v.FieldBytes(keys.FieldContactCreated); ok {
		c.Created = decI64(b)
	}
	if b, ok := v.FieldBytes(keys.FieldContactUpdated); ok {
		c.Updated = decI64(b)
	}
	if b, ok := v.FieldBytes(keys.FieldContactText); ok {
		c.Text = decStr(b)
	}
	return c, nil
}

// CalendarEvent is the owned form of a calendar event record.
type CalendarEvent struct {
	UID        string
	Summary    string
	Start      int64
	DurationS  int64
	CalendarID uint32
	Text       string
}

// Fields returns CalendarEvent's field list for Marshal.
func (e CalendarEvent) Fields() []FieldTLV {
	return []FieldTLV{
		{Tag: keys.FieldCalendarUID, Value: encStr(e.UID)},
		{Tag: keys.FieldCalendarText, Value: encStr(e.Text)},
		{Tag: keys.FieldCalendarStart, Value: encI64(e.Start)},
		{Tag: keys.FieldCalendarEventID, Value: encU64(uint64(e.CalendarID))},
		{Tag: 10, Value: encStr(e.Summary)},
		{Tag: 11, Value: encI64(e.DurationS)},
	}
}

// MarshalCalendarEvent serializes e as a TypeCalendarEvent envelope.
func MarshalCalendarEvent(e CalendarEvent) []byte {
	return Marshal(TypeCalendarEvent, CurrentSchemaVersion, e.Fields())
}

// CalendarEventFromView decodes a CalendarEvent from a View.
func CalendarEventFromView(v *View) (CalendarEvent, error) {
	var e CalendarEvent
	if b, ok := v.FieldBytes(keys.FieldCalendarUID); ok {
		e.UID = decStr(b)
	}
	if b, ok := v.FieldBytes(keys.FieldCalendarText); ok {
		e.Text = decStr(b)
	}
	if b, ok := v.FieldBytes(keys.FieldCalendarStart); ok {
		e.Start = decI64(b)
	}
	if b, ok := v.FieldBytes(keys.FieldCalendarEventID); ok {
		e.CalendarID = uint32(decU64(b))
	}
	if b, ok := v.FieldBytes(10); ok {
		e.Summary = decStr(b)
	}
	if b, ok := v.FieldBytes(11); ok {
		e.DurationS = decI64(b)
	}
	return e, nil
}

// SieveScript is the owned form of a Sieve script record.
type SieveScript struct {
	Name   string
	Source []byte
	Active bool
}

// Fields returns SieveScript's field list for Marshal.
func (s SieveScript) Fields() []FieldTLV {
	active := uint64(0)
	if s.Active {
		active = 1
	}
	return []FieldTLV{
		{Tag: keys.FieldSieveName, Value: encStr(s.Name)},
		{Tag: 10, Value: s.Source},
		{Tag: 11, Value: encU64(active)},
	}
}

// MarshalSieveScript serializes s as a TypeSieveScript envelope.
func MarshalSieveScript(s SieveScript) []byte {
	return Marshal(TypeSieveScript, CurrentSchemaVersion, s.Fields())
}

// SieveScriptFromView decodes a SieveScript from a View.
func SieveScriptFromView(v *View) (SieveScript, error) {
	var s SieveScript
	if b, ok := v.FieldBytes(keys.FieldSieveName); ok {
		s.Name = decStr(b)
	}
	if b, ok := v.FieldBytes(10); ok {
		s.Source = append([]byte{}, b...)
	}
	if b, ok := v.FieldBytes(11); ok {
		s.Active = decU64(b) != 0
	}
	return s, nil
}
