package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxRoundTrip(t *testing.T) {
	m := Mailbox{Name: "Inbox", Role: "inbox", UIDValidty: 42, SortOrder: 1}
	raw := MarshalMailbox(m)

	v, err := Unarchive(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeMailbox, v.TypeTag())

	got, err := MailboxFromView(v)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMailboxWithParentRoundTrip(t *testing.T) {
	m := Mailbox{Name: "Drafts", ParentID: 3, HasParent: true}
	raw := MarshalMailbox(m)
	v, err := Unarchive(raw)
	require.NoError(t, err)
	got, err := MailboxFromView(v)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEmailRoundTripAndFieldBytesWithoutFullDecode(t *testing.T) {
	e := Email{
		Subject:       "hello",
		MailboxIDs:    []uint32{1, 2, 3},
		Size:          4096,
		ReceivedAt:    1000,
		HasAttachment: true,
		From:          []string{"a@example.com"},
		To:            []string{"b@example.com", "c@example.com"},
	}
	raw := MarshalEmail(e)

	v, err := Unarchive(raw)
	require.NoError(t, err)

	sizeBytes, ok := v.FieldBytes(2) // FieldEmailSize
	require.True(t, ok)
	assert.Len(t, sizeBytes, 8)

	got, err := EmailFromView(v)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestUnarchiveUntrustedRejectsTruncatedEnvelope(t *testing.T) {
	_, err := UnarchiveUntrusted([]byte{0, 1})
	assert.Error(t, err)
}

func TestUnarchiveUntrustedRejectsOverrunOffsets(t *testing.T) {
	raw := MarshalMailbox(Mailbox{Name: "x"})
	// Corrupt the first offset-table length field to claim a huge span.
	raw[envelopeHeaderLen+5] = 0xFF
	raw[envelopeHeaderLen+6] = 0xFF
	_, err := UnarchiveUntrusted(raw)
	assert.Error(t, err)
}

func TestNeedsMigration(t *testing.T) {
	raw := MarshalMailbox(Mailbox{Name: "x"})
	typ, from, needed := NeedsMigration(raw)
	assert.Equal(t, TypeMailbox, typ)
	assert.Equal(t, CurrentSchemaVersion, from)
	assert.False(t, needed)
}
