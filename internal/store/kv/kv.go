// Package kv defines the backend-neutral key-value adapter of spec.md §4.2:
// ordered byte-string storage with atomic batch commit, range iteration,
// and counter arithmetic. Concrete backends live in sibling packages
// (boltkv, badgerkv, sqlkv, raftkv); callers depend only on this package.
package kv

import (
	"context"

	"github.com/cuemby/warren/internal/store/storeerr"
)

// OpKind enumerates the primitive mutations a Batch may carry.
type OpKind uint8

const (
	// OpSet unconditionally sets key to Value.
	OpSet OpKind = iota
	// OpClear deletes key.
	OpClear
	// OpAdd performs an atomic signed delta against a counter key,
	// interpreting Delta as a little-endian-agnostic int64 add.
	OpAdd
	// OpAssertEq fails the whole batch with storeerr.KindConflict unless
	// the stored value under key equals Expect (nil Expect means "absent").
	OpAssertEq
)

// Op is a single primitive operation inside a Batch.
type Op struct {
	Kind   OpKind
	Key    []byte
	Value  []byte // OpSet
	Delta  int64  // OpAdd
	Expect []byte // OpAssertEq; nil means "key must be absent"
}

// Batch is an ordered sequence of operations applied atomically by Write.
// Ops execute in order within the backend's transaction; OpAssertEq entries
// may appear anywhere and abort the whole batch on mismatch.
type Batch struct {
	Ops []Op
}

// Set appends an OpSet.
func (b *Batch) Set(key, value []byte) {
	b.Ops = append(b.Ops, Op{Kind: OpSet, Key: key, Value: value})
}

// Clear appends an OpClear.
func (b *Batch) Clear(key []byte) {
	b.Ops = append(b.Ops, Op{Kind: OpClear, Key: key})
}

// Add appends an OpAdd.
func (b *Batch) Add(key []byte, delta int64) {
	b.Ops = append(b.Ops, Op{Kind: OpAdd, Key: key, Delta: delta})
}

// AssertEq appends an OpAssertEq. A nil expect asserts the key is absent.
func (b *Batch) AssertEq(key, expect []byte) {
	b.Ops = append(b.Ops, Op{Kind: OpAssertEq, Key: key, Expect: expect})
}

// CommitOutcome is the result of a successful Write.
type CommitOutcome struct {
	// Applied is the number of Ops actually applied (excludes assertions).
	Applied int
}

// Range bounds an Iterate scan. A nil End means "to the end of the
// subspace implied by Start's prefix"; callers normally pass a prefix
// upper-bound computed by the keys package.
type Range struct {
	Start []byte
	End   []byte
}

// IterFunc is invoked per (key, value) in order during Iterate. Returning
// false aborts the scan early. value is nil when withValues is false.
type IterFunc func(key, value []byte) (keepGoing bool, err error)

// Store is the uniform interface every backend implements. All methods may
// block and accept ctx for cancellation, per spec.md §5's suspension-point
// model.
type Store interface {
	// Get returns the value for key, or storeerr.KindNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Iterate scans [r.Start, r.End) in ascending or descending key order,
	// invoking fn per entry. withValues controls whether fn receives
	// value bytes or nil (cheaper key-only scans).
	Iterate(ctx context.Context, r Range, ascending, withValues bool, fn IterFunc) error

	// Write atomically applies batch. Returns *storeerr.Error with
	// KindConflict, KindRetry, KindQuotaExceeded, or KindIO on failure.
	Write(ctx context.Context, batch *Batch) (CommitOutcome, error)

	// CounterGet reads a counter's current value (0 if absent).
	CounterGet(ctx context.Context, key []byte) (int64, error)

	// CounterAdd atomically adds delta to a counter and returns the new
	// value. Equivalent to Write with a single OpAdd but avoids batch
	// overhead for the common single-counter case.
	CounterAdd(ctx context.Context, key []byte, delta int64) (int64, error)

	// Close releases backend resources.
	Close() error
}

// ErrNotFound is a convenience constructor matching storeerr's NotFound
// kind, used by backends that need a stock "no such key" error.
func ErrNotFound(location string) error {
	return storeerr.New(storeerr.KindNotFound, location, "key not found")
}
