// Package boltkv implements kv.Store over go.etcd.io/bbolt, the embedded
// B-tree backend of spec.md §1. Adapted from the teacher's
// pkg/storage/boltdb.go: one bucket per logical subspace, opened once at
// startup, with every batch applied inside a single bolt.Tx.
//
// Here the "bucket per kind" idea becomes "bucket per key-family byte":
// every key produced by internal/store/keys begins with a one-byte family
// discriminator, so that byte names the bucket and the remainder of the
// key is the bucket-local key.
package boltkv

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/storeerr"
	bolt "go.etcd.io/bbolt"
)

// Store implements kv.Store backed by a single BoltDB file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a BoltDB file at path and ensures every
// subspace bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "boltkv.Open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for family := byte(0); family < NumFamilies; family++ {
			if _, err := tx.CreateBucketIfNotExists([]byte{family}); err != nil {
				return fmt.Errorf("create bucket %d: %w", family, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, storeerr.Wrap(storeerr.KindIO, "boltkv.Open", err)
	}

	return &Store{db: db}, nil
}

// NumFamilies is an upper bound on keys.Family values; buckets are cheap
// to pre-create and this avoids a CreateBucketIfNotExists on every write.
const NumFamilies = 16

func split(key []byte) (bucket byte, rest []byte, err error) {
	if len(key) < 1 {
		return 0, nil, storeerr.New(storeerr.KindInvalid, "boltkv", "key too short to carry a family byte")
	}
	return key[0], key[1:], nil
}

// Get implements kv.Store.
func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	family, rest, err := split(key)
	if err != nil {
		return nil, err
	}

	var out []byte
	found := false
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte{family})
		if b == nil {
			return nil
		}
		v := b.Get(rest)
		if v == nil {
			return nil
		}
		found = true
		out = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "boltkv.Get", err)
	}
	if !found {
		return nil, storeerr.New(storeerr.KindNotFound, "boltkv.Get", "key not found")
	}
	return out, nil
}

// Iterate implements kv.Store.
func (s *Store) Iterate(_ context.Context, r kv.Range, ascending, withValues bool, fn kv.IterFunc) error {
	if len(r.Start) < 1 {
		return storeerr.New(storeerr.KindInvalid, "boltkv.Iterate", "range start too short")
	}
	family := r.Start[0]
	startRest := r.Start[1:]
	var endRest []byte
	if r.End != nil {
		if len(r.End) < 1 || r.End[0] != family {
			return storeerr.New(storeerr.KindInvalid, "boltkv.Iterate", "range must not cross a family boundary")
		}
		endRest = r.End[1:]
	}

	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte{family})
		if b == nil {
			return nil
		}
		c := b.Cursor()

		within := func(k []byte) bool {
			if endRest == nil {
				return true
			}
			return string(k) < string(endRest)
		}

		emit := func(k, v []byte) (bool, error) {
			var value []byte
			if withValues {
				value = v
			}
			return fn(append([]byte{family}, k...), value)
		}

		if ascending {
			for k, v := c.Seek(startRest); k != nil && within(k); k, v = c.Next() {
				keepGoing, err := emit(k, v)
				if err != nil {
					return err
				}
				if !keepGoing {
					return nil
				}
			}
			return nil
		}

		// Descending: seek to end (or last key) and walk backward while >= start.
		var k, v []byte
		if endRest != nil {
			k, v = c.Seek(endRest)
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		} else {
			k, v = c.Last()
		}
		for ; k != nil && string(k) >= string(startRest); k, v = c.Prev() {
			keepGoing, err := emit(k, v)
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
		}
		return nil
	})
}

// Write implements kv.Store, applying batch inside one bolt.Tx.
func (s *Store) Write(_ context.Context, batch *kv.Batch) (kv.CommitOutcome, error) {
	applied := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, op := range batch.Ops {
			family, rest, err := split(op.Key)
			if err != nil {
				return err
			}
			b := tx.Bucket([]byte{family})
			if b == nil {
				b, err = tx.CreateBucket([]byte{family})
				if err != nil {
					return err
				}
			}

			switch op.Kind {
			case kv.OpSet:
				if err := b.Put(rest, op.Value); err != nil {
					return err
				}
				applied++
			case kv.OpClear:
				if err := b.Delete(rest); err != nil {
					return err
				}
				applied++
			case kv.OpAdd:
				cur := decodeCounter(b.Get(rest))
				if err := b.Put(rest, encodeCounter(cur+op.Delta)); err != nil {
					return err
				}
				applied++
			case kv.OpAssertEq:
				got := b.Get(rest)
				if !bytesEqual(got, op.Expect) {
					return storeerr.New(storeerr.KindConflict, "boltkv.Write", "assertEq mismatch")
				}
			}
		}
		return nil
	})
	if err != nil {
		if se, ok := err.(*storeerr.Error); ok {
			return kv.CommitOutcome{}, se
		}
		return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindIO, "boltkv.Write", err)
	}
	return kv.CommitOutcome{Applied: applied}, nil
}

// CounterGet implements kv.Store.
func (s *Store) CounterGet(ctx context.Context, key []byte) (int64, error) {
	v, err := s.Get(ctx, key)
	if storeerr.Is(err, storeerr.KindNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeCounter(v), nil
}

// CounterAdd implements kv.Store.
func (s *Store) CounterAdd(_ context.Context, key []byte, delta int64) (int64, error) {
	family, rest, err := split(key)
	if err != nil {
		return 0, err
	}

	var newValue int64
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte{family})
		if err != nil {
			return err
		}
		newValue = decodeCounter(b.Get(rest)) + delta
		return b.Put(rest, encodeCounter(newValue))
	})
	if err != nil {
		return 0, storeerr.Wrap(storeerr.KindIO, "boltkv.CounterAdd", err)
	}
	return newValue, nil
}

// Close implements kv.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodeCounter(v []byte) int64 {
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

func encodeCounter(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
