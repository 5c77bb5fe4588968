package task

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/cuemby/warren/internal/store/archive"
	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/blob/fsblob"
	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/stretchr/testify/require"
)

func TestBlobPurgeHandlerRunsPurge(t *testing.T) {
	ctx := context.Background()
	kvStore := newTestStore(t)
	backend, err := fsblob.Open(t.TempDir())
	require.NoError(t, err)
	blobs := blob.New(kvStore, backend)

	hash, err := blobs.PutTemporary(ctx, []byte("stale"), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	h := NewBlobPurgeHandler(blobs)
	require.Equal(t, KindBlobPurge, h.Kind())

	ops, err := h.Handle(ctx, Task{})
	require.NoError(t, err)
	require.Nil(t, ops)

	has, err := blobs.HasAnyLink(ctx, hash)
	require.NoError(t, err)
	require.False(t, has)
}

func TestIndexExtractHandlerTokenizesSubject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	email := archive.Email{Subject: "quarterly results attached", Size: 128}
	raw := archive.MarshalEmail(email)
	archiveKey := keys.Archive(7, keys.CollectionEmail, 50)
	_, err := store.Write(ctx, &kv.Batch{Ops: []kv.Op{{Kind: kv.OpSet, Key: archiveKey, Value: raw}}})
	require.NoError(t, err)

	h := NewIndexExtractHandler(store)
	require.Equal(t, KindIndexExtract, h.Kind())

	task := Task{Account: 7, Document: 50, Tail: []byte{byte(keys.CollectionEmail)}}
	ops, err := h.Handle(ctx, task)
	require.NoError(t, err)
	require.NotEmpty(t, ops)

	found := false
	for _, op := range ops {
		if op.Kind == kv.OpSet && len(op.Value) == 0 {
			found = true
		}
	}
	require.True(t, found, "expected at least one index-set op with an empty marker value")
}

func TestIndexExtractHandlerMissingTailIsInvalid(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	h := NewIndexExtractHandler(store)

	_, err := h.Handle(ctx, Task{Account: 7, Document: 50})
	require.Error(t, err)
}

type fakeMailer struct {
	sent []string
}

func (m *fakeMailer) Send(ctx context.Context, account keys.AccountID, subject, body string) error {
	m.sent = append(m.sent, subject)
	return nil
}

func TestAlarmDeliveryHandlerCallsMailer(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{}
	h := NewAlarmDeliveryHandler(mailer)
	require.Equal(t, KindAlarmDelivery, h.Kind())

	task := Task{Account: 3, Payload: EncodeAlarmPayload("Reminder: standup", "starts in 10 minutes")}
	_, err := h.Handle(ctx, task)
	require.NoError(t, err)
	require.Equal(t, []string{"Reminder: standup"}, mailer.sent)
}

type fakeTrainer struct {
	samples [][]byte
	spam    []bool
}

func (tr *fakeTrainer) Train(ctx context.Context, account keys.AccountID, sample []byte, spam bool) error {
	tr.samples = append(tr.samples, sample)
	tr.spam = append(tr.spam, spam)
	return nil
}

func TestBayesTrainHandlerCallsTrainer(t *testing.T) {
	ctx := context.Background()
	trainer := &fakeTrainer{}
	h := NewBayesTrainHandler(trainer)
	require.Equal(t, KindBayesTrain, h.Kind())

	payload := append([]byte{1}, []byte("buy now")...)
	_, err := h.Handle(ctx, Task{Account: 3, Payload: payload})
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("buy now")}, trainer.samples)
	require.Equal(t, []bool{true}, trainer.spam)
}

func TestLogRetainHandlerPrunesOldRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for id := uint64(1); id <= 5; id++ {
		_, err := store.Write(ctx, &kv.Batch{Ops: []kv.Op{{
			Kind:  kv.OpSet,
			Key:   keys.Log(7, keys.SyncEmail, id),
			Value: []byte{0},
		}}})
		require.NoError(t, err)
	}

	h := NewLogRetainHandler(store)
	require.Equal(t, KindLogRetain, h.Kind())

	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, 4)
	task := Task{Account: 7, Tail: []byte{byte(keys.SyncEmail)}, Payload: payload}

	ops, err := h.Handle(ctx, task)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	for _, op := range ops {
		require.Equal(t, kv.OpClear, op.Kind)
	}
}

func TestRebuildIndexHandlerMigratesOldRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	archive.Register(archive.TypeMailbox, 0, func(raw []byte) ([]archive.FieldTLV, error) {
		view, err := archive.UnarchiveUntrusted(raw)
		if err != nil {
			return nil, err
		}
		mb, err := archive.MailboxFromView(view)
		if err != nil {
			return nil, err
		}
		mb.Role = "migrated"
		return mb.Fields(), nil
	})

	oldRaw := archive.Marshal(archive.TypeMailbox, 0, archive.Mailbox{Name: "Inbox"}.Fields())
	key := keys.Archive(7, keys.CollectionMailbox, 1)
	_, err := store.Write(ctx, &kv.Batch{Ops: []kv.Op{{Kind: kv.OpSet, Key: key, Value: oldRaw}}})
	require.NoError(t, err)

	h := NewRebuildIndexHandler(store)
	require.Equal(t, KindRebuildIndex, h.Kind())

	ops, err := h.Handle(ctx, Task{Account: 7})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, key, ops[0].Key)

	view, err := archive.Unarchive(ops[0].Value)
	require.NoError(t, err)
	mb, err := archive.MailboxFromView(view)
	require.NoError(t, err)
	require.Equal(t, "migrated", mb.Role)
}
