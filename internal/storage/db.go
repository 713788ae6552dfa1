// Package storage provides the key-value backends the lookup index persists to.
package storage

import (
	"errors"
	"fmt"

	klog "github.com/bsv-blockchain/ump-services/internal/log"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that are committed atomically. Get reads inside the
// same transaction, so a value read through the batch cannot change before
// Commit, and it sees the batch's own pending writes.
type Batch interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	// Discard abandons uncommitted writes and releases the transaction.
	// It is safe to call after Commit.
	Discard()
}

// Batcher is implemented by databases that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}

// Sequencer hands out strictly increasing numbers for a named counter.
// Numbers are never reused, including across restarts; gaps are allowed.
type Sequencer interface {
	NextSequence(key []byte) (uint64, error)
}

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open opens the named backend at path. syncWrites forces every commit to
// reach stable storage before returning; it has no effect on the memory backend.
func Open(backend, path string, syncWrites bool) (DB, error) {
	var (
		db  DB
		err error
	)
	switch backend {
	case BackendBadger, "":
		backend = BackendBadger
		db, err = NewBadger(path, syncWrites)
	case BackendSQLite:
		db, err = NewSQLite(path, syncWrites)
	case BackendMemory:
		db, path = NewMemory(), ""
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	klog.Storage.Debug().
		Str("backend", backend).
		Str("path", path).
		Bool("sync_writes", syncWrites).
		Msg("Database opened")
	return db, nil
}
