package ump

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	klog "github.com/bsv-blockchain/ump-services/internal/log"
	"github.com/bsv-blockchain/ump-services/internal/storage"
	"github.com/bsv-blockchain/ump-services/pkg/types"
)

// ErrStorage wraps every failure reported by the underlying database.
// The driver error stays in the chain.
var ErrStorage = errors.New("storage failure")

// Key prefixes for the record store.
var (
	prefixRecord       = []byte("r/") // r/<txid><index(4)> -> Record JSON
	prefixPresentation = []byte("p/") // p/<hash(32)><seq(8)> -> <txid><index(4)>
	prefixRecovery     = []byte("v/") // v/<hash(32)><seq(8)> -> <txid><index(4)>
	sequenceKey        = []byte("s/records")
)

// reindexBatchSize bounds the number of writes per batch during Reindex.
const reindexBatchSize = 256

type db interface {
	storage.DB
	storage.Batcher
	storage.Sequencer
}

// Store indexes Records by outpoint, presentation hash and recovery hash.
type Store struct {
	db db

	// writeMu serializes mutations so that sequence order matches commit
	// order. The batch read of the previous record keeps the upsert atomic
	// even against writers outside this Store.
	writeMu sync.Mutex
}

// NewStore creates a record store backed by the given database. The database
// must support atomic batches and sequences.
func NewStore(d storage.DB) (*Store, error) {
	full, ok := d.(db)
	if !ok {
		return nil, fmt.Errorf("ump store: %T must implement storage.Batcher and storage.Sequencer", d)
	}
	return &Store{db: full}, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// identity encodes an outpoint as <txid><index(4)>.
func identity(op types.Outpoint) []byte {
	id := make([]byte, len(op.TxID)+4)
	copy(id, op.TxID)
	binary.BigEndian.PutUint32(id[len(op.TxID):], op.Index)
	return id
}

func parseIdentity(id []byte) (types.Outpoint, bool) {
	if len(id) <= 4 {
		return types.Outpoint{}, false
	}
	n := len(id) - 4
	return types.Outpoint{TxID: string(id[:n]), Index: binary.BigEndian.Uint32(id[n:])}, true
}

func recordKey(op types.Outpoint) []byte {
	return append(append([]byte{}, prefixRecord...), identity(op)...)
}

// hashPrefix builds "<prefix><hash(32)>".
func hashPrefix(prefix []byte, h types.Hash) []byte {
	key := make([]byte, len(prefix)+types.HashSize)
	copy(key, prefix)
	copy(key[len(prefix):], h[:])
	return key
}

// indexKey builds "<prefix><hash(32)><seq(8)>".
func indexKey(prefix []byte, h types.Hash, seq uint64) []byte {
	key := make([]byte, len(prefix)+types.HashSize+8)
	copy(key, hashPrefix(prefix, h))
	binary.BigEndian.PutUint64(key[len(prefix)+types.HashSize:], seq)
	return key
}

type getter interface {
	Get(key []byte) ([]byte, error)
}

// loadRecord reads the record stored under op from g, which may be the
// database or an open batch. It returns nil if the outpoint is not indexed.
func loadRecord(g getter, op types.Outpoint) (*Record, error) {
	data, err := g.Get(recordKey(op))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get record", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, storageErr("decode record", err)
	}
	return &rec, nil
}

// Insert stores rec, assigning it the next sequence number. A record already
// stored under the same outpoint is replaced along with its index entries.
func (s *Store) Insert(rec *Record) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	seq, err := s.db.NextSequence(sequenceKey)
	if err != nil {
		return storageErr("next sequence", err)
	}
	stored := *rec
	stored.Sequence = seq
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Discard()
	prev, err := loadRecord(b, rec.Outpoint)
	if err != nil {
		return err
	}
	if prev != nil {
		if err := deleteIndexes(b, prev); err != nil {
			return storageErr("insert record", err)
		}
	}
	id := identity(rec.Outpoint)
	err = errors.Join(
		b.Put(recordKey(rec.Outpoint), data),
		b.Put(indexKey(prefixPresentation, rec.PresentationHash, seq), id),
		b.Put(indexKey(prefixRecovery, rec.RecoveryHash, seq), id),
	)
	if err == nil {
		err = b.Commit()
	}
	if err != nil {
		return storageErr("insert record", err)
	}
	rec.Sequence = seq
	return nil
}

func deleteIndexes(b storage.Batch, rec *Record) error {
	return errors.Join(
		b.Delete(indexKey(prefixPresentation, rec.PresentationHash, rec.Sequence)),
		b.Delete(indexKey(prefixRecovery, rec.RecoveryHash, rec.Sequence)),
	)
}

// DeleteByIdentity removes the record stored under op. Deleting an outpoint
// that is not indexed is a no-op.
func (s *Store) DeleteByIdentity(op types.Outpoint) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	b := s.db.NewBatch()
	defer b.Discard()
	rec, err := loadRecord(b, op)
	if err != nil || rec == nil {
		return err
	}
	err = errors.Join(deleteIndexes(b, rec), b.Delete(recordKey(op)))
	if err == nil {
		err = b.Commit()
	}
	if err != nil {
		return storageErr("delete record", err)
	}
	return nil
}

// FindNewest returns the matching record with the greatest sequence number,
// or nil if nothing matches.
func (s *Store) FindNewest(q Query) (*Record, error) {
	switch q.Kind {
	case ByOutpoint:
		return loadRecord(s.db, q.Outpoint)
	case ByPresentationHash:
		return s.findNewestIndexed(prefixPresentation, q.Hash, func(r *Record) types.Hash { return r.PresentationHash })
	case ByRecoveryHash:
		return s.findNewestIndexed(prefixRecovery, q.Hash, func(r *Record) types.Hash { return r.RecoveryHash })
	default:
		return nil, ErrUnsupportedQuery
	}
}

type indexEntry struct {
	seq uint64
	op  types.Outpoint
}

// findNewestIndexed scans the index entries for h and returns the record of
// the highest-sequence entry that still describes its record. An entry whose
// record has since been replaced or removed is skipped.
func (s *Store) findNewestIndexed(prefix []byte, h types.Hash, hashOf func(*Record) types.Hash) (*Record, error) {
	scan := hashPrefix(prefix, h)

	var entries []indexEntry
	err := s.db.ForEach(scan, func(key, value []byte) error {
		if len(key) != len(scan)+8 {
			return nil // Malformed key, skip.
		}
		op, ok := parseIdentity(value)
		if !ok {
			return fmt.Errorf("corrupt index entry %x", value)
		}
		entries = append(entries, indexEntry{binary.BigEndian.Uint64(key[len(scan):]), op})
		return nil
	})
	if err != nil {
		return nil, storageErr("scan index", err)
	}

	// Backends differ in iteration order, so order by sequence explicitly.
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })
	for _, e := range entries {
		rec, err := loadRecord(s.db, e.op)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Sequence == e.seq && hashOf(rec) == h {
			return rec, nil
		}
	}
	return nil, nil
}

// ForEach iterates over all stored records.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEach(fn func(*Record) error) error {
	return s.db.ForEach(prefixRecord, func(_, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return storageErr("decode record", err)
		}
		return fn(&rec)
	})
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.ForEach(prefixRecord, func(_, _ []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, storageErr("count records", err)
	}
	return n, nil
}

// Reindex drops both hash indexes and rebuilds them from the stored records.
// Records keep their sequence numbers.
func (s *Store) Reindex() error {
	defer klog.Benchmark("reindex")()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	w := &chunkedWriter{db: s.db}
	defer w.discard()
	for _, prefix := range [][]byte{prefixPresentation, prefixRecovery} {
		var keys [][]byte
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			keys = append(keys, key)
			return nil
		}); err != nil {
			return storageErr("scan index", err)
		}
		for _, k := range keys {
			if err := w.delete(k); err != nil {
				return err
			}
		}
	}
	if err := w.flush(); err != nil {
		return err
	}

	err := s.ForEach(func(rec *Record) error {
		id := identity(rec.Outpoint)
		if err := w.put(indexKey(prefixPresentation, rec.PresentationHash, rec.Sequence), id); err != nil {
			return err
		}
		return w.put(indexKey(prefixRecovery, rec.RecoveryHash, rec.Sequence), id)
	})
	if err != nil {
		return err
	}
	return w.flush()
}

// chunkedWriter groups writes into batches of reindexBatchSize.
type chunkedWriter struct {
	db    storage.Batcher
	batch storage.Batch
	n     int
}

func (w *chunkedWriter) put(key, value []byte) error {
	w.ensure()
	if err := w.batch.Put(key, value); err != nil {
		return storageErr("reindex", err)
	}
	return w.step()
}

func (w *chunkedWriter) delete(key []byte) error {
	w.ensure()
	if err := w.batch.Delete(key); err != nil {
		return storageErr("reindex", err)
	}
	return w.step()
}

func (w *chunkedWriter) ensure() {
	if w.batch == nil {
		w.batch = w.db.NewBatch()
	}
}

func (w *chunkedWriter) step() error {
	w.n++
	if w.n >= reindexBatchSize {
		return w.flush()
	}
	return nil
}

func (w *chunkedWriter) discard() {
	if w.batch != nil {
		w.batch.Discard()
		w.batch, w.n = nil, 0
	}
}

func (w *chunkedWriter) flush() error {
	if w.batch == nil {
		return nil
	}
	err := w.batch.Commit()
	w.batch, w.n = nil, 0
	if err != nil {
		return storageErr("reindex", err)
	}
	return nil
}
