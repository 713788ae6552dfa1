package storage

import (
	"strings"
	"sync"
)

// MemoryDB implements DB using an in-memory map.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
	seqs map[string]uint64
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
		seqs: make(map[string]uint64),
	}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(v), nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = copyBytes(value)
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix.
// Matches are snapshotted first so fn may call back into the database.
// Iteration order is unspecified.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	type kv struct {
		k string
		v []byte
	}
	m.mu.RLock()
	var matches []kv
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			matches = append(matches, kv{k, copyBytes(v)})
		}
	}
	m.mu.RUnlock()

	for _, e := range matches {
		if err := fn([]byte(e.k), e.v); err != nil {
			return err
		}
	}
	return nil
}

// NextSequence returns the next value of the named counter, starting at 1.
func (m *MemoryDB) NextSequence(key []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[string(key)]++
	return m.seqs[string(key)], nil
}

// NewBatch returns a batch applied under a single lock on Commit. The first
// Get through the batch takes the lock and holds it until Commit or Discard.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

type memoryOp struct {
	key   string
	value []byte // nil means delete
}

// pendingValue reports the newest write to key among ops, if any.
func pendingValue(ops []memoryOp, key string) (value []byte, deleted, ok bool) {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].key == key {
			return ops[i].value, ops[i].value == nil, true
		}
	}
	return nil, false, false
}

type memoryBatch struct {
	db     *MemoryDB
	ops    []memoryOp
	locked bool
}

func (b *memoryBatch) lock() {
	if !b.locked {
		b.db.mu.Lock()
		b.locked = true
	}
}

func (b *memoryBatch) unlock() {
	if b.locked {
		b.db.mu.Unlock()
		b.locked = false
	}
}

func (b *memoryBatch) Get(key []byte) ([]byte, error) {
	b.lock()
	if v, deleted, ok := pendingValue(b.ops, string(key)); ok {
		if deleted {
			return nil, ErrNotFound
		}
		return copyBytes(v), nil
	}
	v, ok := b.db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(v), nil
}

func (b *memoryBatch) Put(key, value []byte) error {
	v := copyBytes(value)
	if v == nil {
		v = []byte{}
	}
	b.ops = append(b.ops, memoryOp{string(key), v})
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{string(key), nil})
	return nil
}

func (b *memoryBatch) Commit() error {
	b.lock()
	defer b.unlock()
	for _, op := range b.ops {
		if op.value == nil {
			delete(b.db.data, op.key)
		} else {
			b.db.data[op.key] = op.value
		}
	}
	b.ops = nil
	return nil
}

func (b *memoryBatch) Discard() {
	b.ops = nil
	b.unlock()
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
