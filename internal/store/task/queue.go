// Package task implements the deferred task queue of component G
// (spec.md §4.8): due-time ordered work items leased by workers and
// completed atomically alongside whatever side effects their handler
// produces.
package task

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/storeerr"
)

// Kind tags which handler owns a task row.
type Kind uint8

const (
	KindBlobPurge Kind = iota
	KindIndexExtract
	KindAlarmDelivery
	KindBayesTrain
	KindLogRetain
	KindRebuildIndex
)

// Task is one due-time-ordered work item read back from the queue.
type Task struct {
	Key      []byte
	DueAt    time.Time
	Kind     Kind
	Account  keys.AccountID
	Document keys.DocumentID
	Tail     []byte

	LeaseOwner string
	LeaseUntil time.Time
	Payload    []byte

	rawValue []byte
}

// Queue stores Task(dueMillis, kind, account, document, tail) rows, per
// spec.md §4.8.
type Queue struct {
	store kv.Store
}

// NewQueue wraps store for task storage.
func NewQueue(store kv.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue schedules a task due at dueAt. tail distinguishes tasks that
// otherwise share (dueAt, kind, account, document), e.g. a blob hash for
// purge tasks.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, account keys.AccountID, document keys.DocumentID, dueAt time.Time, tail, payload []byte) error {
	key := keys.Task(dueAt.UnixMilli(), uint8(kind), account, document, tail)
	value := encodeTaskValue("", 0, payload)
	b := &kv.Batch{}
	b.Set(key, value)
	_, err := q.store.Write(ctx, b)
	return err
}

// Due scans tasks due at or before upTo, oldest first, up to limit rows
// (0 means unbounded).
func (q *Queue) Due(ctx context.Context, upTo time.Time, limit int) ([]Task, error) {
	start := []byte{keys.FamilyTask}
	end := keys.TaskDuePrefix(upTo.UnixMilli() + 1)

	var tasks []Task
	err := q.store.Iterate(ctx, kv.Range{Start: start, End: end}, true, true, func(k, v []byte) (bool, error) {
		t, perr := parseTask(k, v)
		if perr != nil {
			return true, nil
		}
		tasks = append(tasks, t)
		if limit > 0 && len(tasks) >= limit {
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Lease attempts to claim t for owner until deadline, failing with
// storeerr.KindConflict if another worker has already claimed or
// completed it since Due observed it.
func (q *Queue) Lease(ctx context.Context, t Task, owner string, deadline time.Time) (Task, error) {
	newValue := encodeTaskValue(owner, deadline.UnixMilli(), t.Payload)
	b := &kv.Batch{}
	b.AssertEq(t.Key, t.rawValue)
	b.Set(t.Key, newValue)
	if _, err := q.store.Write(ctx, b); err != nil {
		return Task{}, err
	}
	t.LeaseOwner = owner
	t.LeaseUntil = deadline
	t.rawValue = newValue
	return t, nil
}

// Complete removes t and applies extra ops (the handler's side effects)
// in the same atomic batch, failing with storeerr.KindConflict if the
// lease was lost in the meantime.
func (q *Queue) Complete(ctx context.Context, t Task, extra []kv.Op) error {
	b := &kv.Batch{}
	b.AssertEq(t.Key, t.rawValue)
	b.Clear(t.Key)
	b.Ops = append(b.Ops, extra...)
	_, err := q.store.Write(ctx, b)
	return err
}

// Release drops an acquired lease without completing the task, so it
// becomes eligible for another worker immediately.
func (q *Queue) Release(ctx context.Context, t Task) error {
	resetValue := encodeTaskValue("", 0, t.Payload)
	b := &kv.Batch{}
	b.AssertEq(t.Key, t.rawValue)
	b.Set(t.Key, resetValue)
	_, err := q.store.Write(ctx, b)
	return err
}

// Depth counts tasks due at or before now, for the TaskQueueDepth gauge.
func (q *Queue) Depth(ctx context.Context, now time.Time) (int, error) {
	tasks, err := q.Due(ctx, now, 0)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

func encodeTaskValue(owner string, leaseUntil int64, payload []byte) []byte {
	buf := make([]byte, 0, 1+len(owner)+8+4+len(payload))
	buf = append(buf, byte(len(owner)))
	buf = append(buf, owner...)
	lu := make([]byte, 8)
	binary.BigEndian.PutUint64(lu, uint64(leaseUntil))
	buf = append(buf, lu...)
	pl := make([]byte, 4)
	binary.BigEndian.PutUint32(pl, uint32(len(payload)))
	buf = append(buf, pl...)
	buf = append(buf, payload...)
	return buf
}

func decodeTaskValue(data []byte) (owner string, leaseUntil int64, payload []byte, err error) {
	if len(data) < 1 {
		return "", 0, nil, storeerr.New(storeerr.KindCorruption, "task.decodeTaskValue", "empty value")
	}
	ownerLen := int(data[0])
	data = data[1:]
	if len(data) < ownerLen+8+4 {
		return "", 0, nil, storeerr.New(storeerr.KindCorruption, "task.decodeTaskValue", "truncated value")
	}
	owner = string(data[:ownerLen])
	data = data[ownerLen:]
	leaseUntil = int64(binary.BigEndian.Uint64(data[:8]))
	data = data[8:]
	plen := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(plen) {
		return "", 0, nil, storeerr.New(storeerr.KindCorruption, "task.decodeTaskValue", "truncated payload")
	}
	payload = append([]byte{}, data[:plen]...)
	return owner, leaseUntil, payload, nil
}

// taskKeyHeaderLen is Family(1) + dueMillis(8) + kind(1) + account(4) + document(4).
const taskKeyHeaderLen = 1 + 8 + 1 + 4 + 4

func parseTask(key, value []byte) (Task, error) {
	if len(key) < taskKeyHeaderLen {
		return Task{}, storeerr.New(storeerr.KindCorruption, "task.parseTask", "truncated key")
	}
	dueMillis := int64(binary.BigEndian.Uint64(key[1:9]))
	kind := Kind(key[9])
	account := binary.BigEndian.Uint32(key[10:14])
	document := binary.BigEndian.Uint32(key[14:18])
	tail := append([]byte{}, key[18:]...)

	owner, leaseUntil, payload, err := decodeTaskValue(value)
	if err != nil {
		return Task{}, err
	}

	return Task{
		Key:        append([]byte{}, key...),
		DueAt:      time.UnixMilli(dueMillis),
		Kind:       kind,
		Account:    account,
		Document:   document,
		Tail:       tail,
		LeaseOwner: owner,
		LeaseUntil: time.UnixMilli(leaseUntil),
		Payload:    payload,
		rawValue:   append([]byte{}, value...),
	}, nil
}
