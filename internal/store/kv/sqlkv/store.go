// Package sqlkv implements kv.Store over database/sql, the "SQL" backend
// of spec.md §1, wired to both github.com/mattn/go-sqlite3 and
// github.com/lib/pq so the same codec runs on an embedded file or a
// Postgres server. Grounded on the teacher's pkg/storage/boltdb.go shape
// (open-once, one transaction per batch) but replaces buckets with a
// single (key, value) row table, since SQL has no ordered-bucket
// primitive of its own — ordering comes from an index on key instead.
package sqlkv

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/storeerr"
)

// Dialect abstracts the handful of SQL differences between sqlite3 and
// postgres that this package needs: placeholder syntax, upsert clause,
// and how a transaction serializes concurrent read-modify-write cycles
// on the same row (OpAdd/OpAssertEq/CounterAdd all do one).
type Dialect interface {
	Placeholder(n int) string
	UpsertClause() string
	CreateTableDDL() string
	// BeginStmt is the raw SQL that starts a transaction already holding
	// whatever lock LockClause doesn't provide at the SELECT itself.
	BeginStmt() string
	// LockClause is appended to the SELECT in getForUpdate so the read
	// takes a row lock good for the rest of the transaction; "" if the
	// dialect's BeginStmt already serializes writers some other way.
	LockClause() string
}

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) UpsertClause() string {
	return "ON CONFLICT(k) DO UPDATE SET v = excluded.v"
}
func (sqliteDialect) CreateTableDDL() string {
	return `CREATE TABLE IF NOT EXISTS kv_store (k BLOB PRIMARY KEY, v BLOB NOT NULL)`
}

// BeginStmt uses BEGIN IMMEDIATE rather than plain BEGIN: SQLite's default
// deferred transactions don't take the write lock until the first write
// statement executes, which is too late to stop two transactions from
// both reading the pre-write value of a counter. IMMEDIATE takes the
// write lock at BEGIN, so the second transaction blocks at BEGIN until
// the first commits, and its own SELECT afterward observes the committed
// value. SQLite has no row-level locking, so LockClause is unused.
func (sqliteDialect) BeginStmt() string  { return "BEGIN IMMEDIATE" }
func (sqliteDialect) LockClause() string { return "" }

type postgresDialect struct{}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) UpsertClause() string {
	return "ON CONFLICT (k) DO UPDATE SET v = excluded.v"
}
func (postgresDialect) CreateTableDDL() string {
	return `CREATE TABLE IF NOT EXISTS kv_store (k BYTEA PRIMARY KEY, v BYTEA NOT NULL)`
}

// BeginStmt is a plain BEGIN: Postgres's default READ COMMITTED doesn't
// serialize writers on its own, so getForUpdate's SELECT ... FOR UPDATE
// (LockClause) is what holds the row until commit instead.
func (postgresDialect) BeginStmt() string  { return "BEGIN" }
func (postgresDialect) LockClause() string { return " FOR UPDATE" }

// SQLite and Postgres are the two Dialect implementations this package
// ships; callers pick one by driver name via Open.
var (
	SQLite   Dialect = sqliteDialect{}
	Postgres Dialect = postgresDialect{}
)

// Store implements kv.Store over a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens driverName/dsn (expected "sqlite3" or "postgres") and
// ensures the backing table exists.
func Open(driverName, dsn string, dialect Dialect) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "sqlkv.Open", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, storeerr.Wrap(storeerr.KindIO, "sqlkv.Open", err)
	}
	if _, err := db.Exec(dialect.CreateTableDDL()); err != nil {
		_ = db.Close()
		return nil, storeerr.Wrap(storeerr.KindIO, "sqlkv.Open", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	q := fmt.Sprintf("SELECT v FROM kv_store WHERE k = %s", s.dialect.Placeholder(1))
	var v []byte
	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, storeerr.New(storeerr.KindNotFound, "sqlkv.Get", "key not found")
	}
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "sqlkv.Get", err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

// Iterate implements kv.Store.
func (s *Store) Iterate(ctx context.Context, r kv.Range, ascending, withValues bool, fn kv.IterFunc) error {
	order := "ASC"
	if !ascending {
		order = "DESC"
	}
	cols := "k"
	if withValues {
		cols = "k, v"
	}

	var q string
	var args []any
	switch {
	case r.End != nil:
		q = fmt.Sprintf("SELECT %s FROM kv_store WHERE k >= %s AND k < %s ORDER BY k %s",
			cols, s.dialect.Placeholder(1), s.dialect.Placeholder(2), order)
		args = []any{r.Start, r.End}
	default:
		q = fmt.Sprintf("SELECT %s FROM kv_store WHERE k >= %s ORDER BY k %s",
			cols, s.dialect.Placeholder(1), order)
		args = []any{r.Start}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return storeerr.Wrap(storeerr.KindIO, "sqlkv.Iterate", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if withValues {
			if err := rows.Scan(&k, &v); err != nil {
				return storeerr.Wrap(storeerr.KindIO, "sqlkv.Iterate", err)
			}
		} else {
			if err := rows.Scan(&k); err != nil {
				return storeerr.Wrap(storeerr.KindIO, "sqlkv.Iterate", err)
			}
		}
		keepGoing, err := fn(k, v)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return rows.Err()
}

// beginTx checks out a dedicated connection and starts a transaction on
// it using the dialect's own BeginStmt, instead of sql.DB.BeginTx's plain
// BEGIN — see Dialect's doc comment for why that matters for
// OpAdd/OpAssertEq/CounterAdd.
func (s *Store) beginTx(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, s.dialect.BeginStmt()); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// rollback issues ROLLBACK and releases conn. Called via defer whenever a
// transaction started by beginTx doesn't reach COMMIT.
func rollback(ctx context.Context, conn *sql.Conn) {
	_, _ = conn.ExecContext(ctx, "ROLLBACK")
	conn.Close()
}

// Write implements kv.Store, applying batch inside one transaction.
func (s *Store) Write(ctx context.Context, batch *kv.Batch) (kv.CommitOutcome, error) {
	conn, err := s.beginTx(ctx)
	if err != nil {
		return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindIO, "sqlkv.Write", err)
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	applied := 0
	for _, op := range batch.Ops {
		switch op.Kind {
		case kv.OpSet:
			if err := s.upsert(ctx, conn, op.Key, op.Value); err != nil {
				return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindIO, "sqlkv.Write", err)
			}
			applied++
		case kv.OpClear:
			q := fmt.Sprintf("DELETE FROM kv_store WHERE k = %s", s.dialect.Placeholder(1))
			if _, err := conn.ExecContext(ctx, q, op.Key); err != nil {
				return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindIO, "sqlkv.Write", err)
			}
			applied++
		case kv.OpAdd:
			cur, err := s.getForUpdate(ctx, conn, op.Key)
			if err != nil {
				return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindIO, "sqlkv.Write", err)
			}
			if err := s.upsert(ctx, conn, op.Key, encodeCounter(decodeCounter(cur)+op.Delta)); err != nil {
				return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindIO, "sqlkv.Write", err)
			}
			applied++
		case kv.OpAssertEq:
			got, err := s.getForUpdate(ctx, conn, op.Key)
			if err != nil {
				return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindIO, "sqlkv.Write", err)
			}
			if !bytesEqual(got, op.Expect) {
				return kv.CommitOutcome{}, storeerr.New(storeerr.KindConflict, "sqlkv.Write", "assertEq mismatch")
			}
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return kv.CommitOutcome{}, storeerr.Wrap(storeerr.KindIO, "sqlkv.Write", err)
	}
	committed = true
	conn.Close()
	return kv.CommitOutcome{Applied: applied}, nil
}

func (s *Store) upsert(ctx context.Context, conn *sql.Conn, key, value []byte) error {
	q := fmt.Sprintf("INSERT INTO kv_store (k, v) VALUES (%s, %s) %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.UpsertClause())
	_, err := conn.ExecContext(ctx, q, key, value)
	return err
}

// getForUpdate returns nil (not an error) when key is absent, matching
// OpAssertEq's "nil Expect means absent" contract. Appends the dialect's
// LockClause so the read holds the row (or, on SQLite, relies on
// BeginStmt already holding the whole database) until the enclosing
// transaction commits or rolls back, closing the read-then-upsert race
// a plain SELECT would leave open under concurrent writers.
func (s *Store) getForUpdate(ctx context.Context, conn *sql.Conn, key []byte) ([]byte, error) {
	q := fmt.Sprintf("SELECT v FROM kv_store WHERE k = %s%s", s.dialect.Placeholder(1), s.dialect.LockClause())
	var v []byte
	err := conn.QueryRowContext(ctx, q, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
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
func (s *Store) CounterAdd(ctx context.Context, key []byte, delta int64) (int64, error) {
	conn, err := s.beginTx(ctx)
	if err != nil {
		return 0, storeerr.Wrap(storeerr.KindIO, "sqlkv.CounterAdd", err)
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	cur, err := s.getForUpdate(ctx, conn, key)
	if err != nil {
		return 0, storeerr.Wrap(storeerr.KindIO, "sqlkv.CounterAdd", err)
	}
	newValue := decodeCounter(cur) + delta
	if err := s.upsert(ctx, conn, key, encodeCounter(newValue)); err != nil {
		return 0, storeerr.Wrap(storeerr.KindIO, "sqlkv.CounterAdd", err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return 0, storeerr.Wrap(storeerr.KindIO, "sqlkv.CounterAdd", err)
	}
	committed = true
	conn.Close()
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
	var n int64
	for _, b := range v {
		n = (n << 8) | int64(b)
	}
	return n
}

func encodeCounter(v int64) []byte {
	buf := make([]byte, 8)
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(u)
		u >>= 8
	}
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
