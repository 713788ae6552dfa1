package storage

import "fmt"

// PrefixDB wraps a DB and prepends a fixed prefix to all keys.
// This isolates one logical collection within a single underlying database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixDB{inner: inner, prefix: p}
}

// prefixed returns key with the prefix prepended.
func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, len(p.prefix)+len(key))
	copy(out, p.prefix)
	copy(out[len(p.prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates over all keys with the given prefix (within the PrefixDB namespace).
// The callback receives keys with the PrefixDB prefix stripped, so callers see only
// their logical keyspace.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	fullPrefix := p.prefixed(prefix)
	return p.inner.ForEach(fullPrefix, func(key, value []byte) error {
		// Strip the PrefixDB prefix so the caller sees only its logical key.
		stripped := key[len(p.prefix):]
		return fn(stripped, value)
	})
}

// deleteChunk bounds the number of deletes per batch in DeleteAll.
const deleteChunk = 1000

// DeleteAll removes every key in the collection. Deletes are committed in
// chunks, so a failure can leave part of the collection behind.
func (p *PrefixDB) DeleteAll() error {
	var keys [][]byte
	err := p.inner.ForEach(p.prefix, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}

	batcher, ok := p.inner.(Batcher)
	if !ok {
		for _, key := range keys {
			if err := p.inner.Delete(key); err != nil {
				return err
			}
		}
		return nil
	}
	for len(keys) > 0 {
		n := min(len(keys), deleteChunk)
		b := batcher.NewBatch()
		for _, key := range keys[:n] {
			if err := b.Delete(key); err != nil {
				b.Discard()
				return err
			}
		}
		if err := b.Commit(); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}

// NextSequence advances a counter namespaced under the prefix.
func (p *PrefixDB) NextSequence(key []byte) (uint64, error) {
	seq, ok := p.inner.(Sequencer)
	if !ok {
		return 0, fmt.Errorf("storage: %T does not support sequences", p.inner)
	}
	return seq.NextSequence(p.prefixed(key))
}

// Close is a no-op. The outer DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch returns an atomic batch over the inner DB's keyspace. If the inner
// DB cannot batch, every operation on the returned batch fails; writes are
// never split into individual puts.
func (p *PrefixDB) NewBatch() Batch {
	batcher, ok := p.inner.(Batcher)
	if !ok {
		return failedBatch{fmt.Errorf("storage: %T does not support atomic batches", p.inner)}
	}
	return &prefixBatch{inner: batcher.NewBatch(), db: p}
}

type prefixBatch struct {
	inner Batch
	db    *PrefixDB
}

func (pb *prefixBatch) Get(key []byte) ([]byte, error) {
	return pb.inner.Get(pb.db.prefixed(key))
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(pb.db.prefixed(key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(pb.db.prefixed(key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}

func (pb *prefixBatch) Discard() {
	pb.inner.Discard()
}

// failedBatch reports err from every operation.
type failedBatch struct {
	err error
}

func (fb failedBatch) Get([]byte) ([]byte, error) { return nil, fb.err }
func (fb failedBatch) Put(_, _ []byte) error { return fb.err }
func (fb failedBatch) Delete([]byte) error { return fb.err }
func (fb failedBatch) Commit() error { return fb.err }
func (fb failedBatch) Discard() {}
