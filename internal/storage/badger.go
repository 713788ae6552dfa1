package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// sequenceBandwidth is how many sequence numbers badger leases per disk write.
// Unused numbers from a lease are skipped after a restart.
const sequenceBandwidth = 64

// BadgerDB implements DB using Badger.
type BadgerDB struct {
	db *badger.DB

	seqMu sync.Mutex
	seqs  map[string]*badger.Sequence
}

// NewBadger creates a new Badger database at the given path.
// With syncWrites every commit is fsynced before it returns.
func NewBadger(path string, syncWrites bool) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path).WithSyncWrites(syncWrites)
	opts.Logger = nil // Disable badger's built-in logging.

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("database at %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &BadgerDB{db: db, seqs: make(map[string]*badger.Sequence)}, nil
}

// Get retrieves a value by key. Returns ErrNotFound if the key does not exist.
func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

// Put stores a key-value pair.
func (b *BadgerDB) Put(key, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (b *BadgerDB) Delete(key []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Has checks if a key exists.
func (b *BadgerDB) Has(key []byte) (bool, error) {
	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badger has: %w", err)
	}
	return exists, nil
}

// ForEach iterates over all keys with the given prefix in key order.
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

// NextSequence returns the next value of the named badger sequence, starting at 1.
func (b *BadgerDB) NextSequence(key []byte) (uint64, error) {
	b.seqMu.Lock()
	seq, ok := b.seqs[string(key)]
	if !ok {
		var err error
		seq, err = b.db.GetSequence(key, sequenceBandwidth)
		if err != nil {
			b.seqMu.Unlock()
			return 0, fmt.Errorf("badger sequence: %w", err)
		}
		b.seqs[string(key)] = seq
	}
	b.seqMu.Unlock()

	// badger sequences start at zero; zero is reserved for "unassigned".
	n, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("badger sequence next: %w", err)
	}
	return n + 1, nil
}

// NewBatch returns a batch backed by a single read-write transaction.
// Commit fails with badger.ErrConflict if a key read through the batch was
// written by another transaction in the meantime.
func (b *BadgerDB) NewBatch() Batch {
	return &badgerBatch{txn: b.db.NewTransaction(true)}
}

// Close releases leased sequences and closes the database.
func (b *BadgerDB) Close() error {
	b.seqMu.Lock()
	for k, seq := range b.seqs {
		seq.Release()
		delete(b.seqs, k)
	}
	b.seqMu.Unlock()
	return b.db.Close()
}

type badgerBatch struct {
	txn *badger.Txn
}

func (bb *badgerBatch) Get(key []byte) ([]byte, error) {
	item, err := bb.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger batch get: %w", err)
	}
	return item.ValueCopy(nil)
}

func (bb *badgerBatch) Put(key, value []byte) error {
	if err := bb.txn.Set(copyBytes(key), copyBytes(value)); err != nil {
		return fmt.Errorf("badger batch put: %w", err)
	}
	return nil
}

func (bb *badgerBatch) Delete(key []byte) error {
	if err := bb.txn.Delete(copyBytes(key)); err != nil {
		return fmt.Errorf("badger batch delete: %w", err)
	}
	return nil
}

func (bb *badgerBatch) Commit() error {
	defer bb.txn.Discard()
	if err := bb.txn.Commit(); err != nil {
		return fmt.Errorf("badger batch commit: %w", err)
	}
	return nil
}

func (bb *badgerBatch) Discard() {
	bb.txn.Discard()
}
