package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS sequences (
	name BLOB PRIMARY KEY,
	n    INTEGER NOT NULL
) WITHOUT ROWID;`

// SQLiteDB implements DB on a single SQLite file using pure-Go SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite-backed key-value database.
// Use ":memory:" for an in-memory database.
func NewSQLite(path string, syncWrites bool) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	synchronous := "NORMAL"
	if syncWrites {
		synchronous = "FULL"
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=" + synchronous,
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// Get retrieves a value by key. Returns ErrNotFound if the key does not exist.
func (s *SQLiteDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	if val == nil {
		val = []byte{}
	}
	return val, nil
}

// Put stores a key-value pair.
func (s *SQLiteDB) Put(key, value []byte) error {
	if _, err := s.db.Exec(upsertKV, key, nonNil(value)); err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *SQLiteDB) Delete(key []byte) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Has checks if a key exists.
func (s *SQLiteDB) Has(key []byte) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM kv WHERE key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite has: %w", err)
	}
	return true, nil
}

// ForEach iterates over all keys with the given prefix in key order.
// Rows are read in full before fn runs, so fn may query the database.
func (s *SQLiteDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	var (
		rows *sql.Rows
		err  error
	)
	if end := prefixEnd(prefix); end != nil {
		rows, err = s.db.Query("SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key", nonNil(prefix), end)
	} else {
		rows, err = s.db.Query("SELECT key, value FROM kv WHERE key >= ? ORDER BY key", nonNil(prefix))
	}
	if err != nil {
		return fmt.Errorf("sqlite scan: %w", err)
	}

	type kv struct{ k, v []byte }
	var entries []kv
	for rows.Next() {
		var e kv
		if err := rows.Scan(&e.k, &e.v); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite scan row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("sqlite scan: %w", err)
	}
	rows.Close()

	for _, e := range entries {
		if err := fn(e.k, nonNil(e.v)); err != nil {
			return err
		}
	}
	return nil
}

// NextSequence atomically increments and returns the named counter, starting at 1.
func (s *SQLiteDB) NextSequence(key []byte) (uint64, error) {
	var n int64
	err := s.db.QueryRow(`
		INSERT INTO sequences (name, n) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET n = n + 1
		RETURNING n`, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite sequence: %w", err)
	}
	return uint64(n), nil
}

// NewBatch returns a batch applied inside one SQL transaction. The
// transaction starts as a write transaction at the first Get or at Commit,
// and holds the connection until Commit or Discard.
func (s *SQLiteDB) NewBatch() Batch {
	return &sqliteBatch{db: s.db}
}

// Close closes the database.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

const upsertKV = "INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"

type sqliteBatch struct {
	db   *sql.DB
	conn *sql.Conn
	ops  []memoryOp
}

// begin pins a connection and opens a write transaction on it.
func (b *sqliteBatch) begin(ctx context.Context) error {
	if b.conn != nil {
		return nil
	}
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlite batch conn: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return fmt.Errorf("sqlite batch begin: %w", err)
	}
	b.conn = conn
	return nil
}

// finish commits or rolls back the open transaction and returns the
// connection to the pool.
func (b *sqliteBatch) finish(ctx context.Context, commit bool) error {
	if b.conn == nil {
		return nil
	}
	var err error
	if commit {
		_, err = b.conn.ExecContext(ctx, "COMMIT")
	}
	if !commit || err != nil {
		b.conn.ExecContext(ctx, "ROLLBACK")
	}
	b.conn.Close()
	b.conn = nil
	return err
}

func (b *sqliteBatch) Get(key []byte) ([]byte, error) {
	if v, deleted, ok := pendingValue(b.ops, string(key)); ok {
		if deleted {
			return nil, ErrNotFound
		}
		return copyBytes(v), nil
	}
	ctx := context.Background()
	if err := b.begin(ctx); err != nil {
		return nil, err
	}
	var val []byte
	err := b.conn.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite batch get: %w", err)
	}
	return nonNil(val), nil
}

func (b *sqliteBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memoryOp{string(key), nonNil(copyBytes(value))})
	return nil
}

func (b *sqliteBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{string(key), nil})
	return nil
}

func (b *sqliteBatch) Commit() error {
	ctx := context.Background()
	if err := b.begin(ctx); err != nil {
		return err
	}
	for _, op := range b.ops {
		var err error
		if op.value == nil {
			_, err = b.conn.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", []byte(op.key))
		} else {
			_, err = b.conn.ExecContext(ctx, upsertKV, []byte(op.key), op.value)
		}
		if err != nil {
			b.finish(ctx, false)
			return fmt.Errorf("sqlite batch: %w", err)
		}
	}
	if err := b.finish(ctx, true); err != nil {
		return fmt.Errorf("sqlite batch commit: %w", err)
	}
	b.ops = nil
	return nil
}

func (b *sqliteBatch) Discard() {
	b.ops = nil
	b.finish(context.Background(), false)
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or nil if no such key exists (empty or all-0xFF prefix).
func prefixEnd(prefix []byte) []byte {
	end := copyBytes(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
