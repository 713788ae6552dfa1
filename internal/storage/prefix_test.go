package storage

import (
	"errors"
	"fmt"
	"sort"
	"testing"
)

// topicDB scopes inner the way the CLI scopes one topic's index.
func topicDB(inner DB, topic string) *PrefixDB {
	return NewPrefixDB(inner, append([]byte(topic), 0))
}

func TestPrefixDB_Collection(t *testing.T) {
	db := topicDB(NewMemory(), "tm_users")
	testDB(t, db)
}

func TestPrefixDB_TopicsAreIsolated(t *testing.T) {
	inner := NewMemory()
	users := topicDB(inner, "tm_users")
	// A topic that is a byte prefix of another must not see its keys.
	short := topicDB(inner, "tm_user")

	if err := users.Put([]byte("r/k"), []byte("users")); err != nil {
		t.Fatal(err)
	}
	if err := short.Put([]byte("r/k"), []byte("short")); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		db   *PrefixDB
		want string
	}{{users, "users"}, {short, "short"}} {
		got, err := tt.db.Get([]byte("r/k"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Errorf("Get = %q, want %q", got, tt.want)
		}
	}

	var keys []string
	if err := short.ForEach(nil, func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "r/k" {
		t.Errorf("short.ForEach keys = %q, want [r/k]", keys)
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	db := topicDB(NewMemory(), "tm_users")
	db.Put([]byte("r/1"), []byte("a"))
	db.Put([]byte("r/2"), []byte("b"))
	db.Put([]byte("p/3"), []byte("c"))

	var keys []string
	err := db.ForEach([]byte("r/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "r/1" || keys[1] != "r/2" {
		t.Fatalf("ForEach keys = %q, want [r/1 r/2]", keys)
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	backends := map[string]func(t *testing.T) DB{
		"memory": func(t *testing.T) DB { return NewMemory() },
		"badger": func(t *testing.T) DB {
			db, err := NewBadger(t.TempDir(), false)
			if err != nil {
				t.Fatalf("NewBadger: %v", err)
			}
			return db
		},
		"plain": func(t *testing.T) DB { return plainDB{NewMemory()} },
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			inner := open(t)
			defer inner.Close()
			users := topicDB(inner, "tm_users")
			other := topicDB(inner, "tm_other")

			// More than one delete chunk.
			const n = deleteChunk + 17
			for i := 0; i < n; i++ {
				if err := users.Put([]byte(fmt.Sprintf("r/%05d", i)), []byte("v")); err != nil {
					t.Fatal(err)
				}
			}
			other.Put([]byte("r/keep"), []byte("v"))

			if err := users.DeleteAll(); err != nil {
				t.Fatalf("DeleteAll: %v", err)
			}
			left := 0
			users.ForEach(nil, func(_, _ []byte) error { left++; return nil })
			if left != 0 {
				t.Errorf("%d keys left after DeleteAll", left)
			}
			if ok, _ := other.Has([]byte("r/keep")); !ok {
				t.Error("DeleteAll removed another collection's key")
			}
			if err := users.DeleteAll(); err != nil {
				t.Errorf("DeleteAll on empty collection: %v", err)
			}
		})
	}
}

func TestPrefixDB_CloseIsNoop(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("x/"))
	db.Put([]byte("key"), []byte("val"))

	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got, err := inner.Get([]byte("x/key")); err != nil || string(got) != "val" {
		t.Fatalf("inner.Get after Close = %q, %v", got, err)
	}
}

func TestPrefixDB_NextSequence(t *testing.T) {
	inner := NewMemory()
	users := topicDB(inner, "tm_users")
	other := topicDB(inner, "tm_other")

	for want := uint64(1); want <= 3; want++ {
		got, err := users.NextSequence([]byte("seq"))
		if err != nil {
			t.Fatalf("NextSequence: %v", err)
		}
		if got != want {
			t.Fatalf("NextSequence = %d, want %d", got, want)
		}
	}
	if got, _ := other.NextSequence([]byte("seq")); got != 1 {
		t.Fatalf("other topic NextSequence = %d, want 1", got)
	}
}

// plainDB hides every optional interface of the wrapped DB.
type plainDB struct{ DB }

func TestPrefixDB_UnsupportedInner(t *testing.T) {
	db := NewPrefixDB(plainDB{NewMemory()}, []byte("x/"))
	if _, err := db.NextSequence([]byte("seq")); err == nil {
		t.Error("NextSequence: expected error when inner DB has no sequences")
	}

	b := db.NewBatch()
	defer b.Discard()
	if err := b.Put([]byte("k"), []byte("v")); err == nil {
		t.Error("batch Put: expected error when inner DB cannot batch")
	}
	if err := b.Commit(); err == nil {
		t.Error("batch Commit: expected error when inner DB cannot batch")
	}
	if ok, _ := db.Has([]byte("k")); ok {
		t.Error("write reached the inner DB without a batch")
	}
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	db := topicDB(inner, "tm_users")
	db.Put([]byte("old"), []byte("x"))

	b := db.NewBatch()
	defer b.Discard()
	if got, err := b.Get([]byte("old")); err != nil || string(got) != "x" {
		t.Fatalf("batch Get(old) = %q, %v", got, err)
	}
	b.Put([]byte("k1"), []byte("v1"))
	b.Delete([]byte("old"))
	if _, err := b.Get([]byte("old")); !errors.Is(err, ErrNotFound) {
		t.Errorf("batch Get(old) after Delete error = %v, want ErrNotFound", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got, err := inner.Get([]byte("tm_users\x00k1")); err != nil || string(got) != "v1" {
		t.Fatalf("inner.Get = %q, %v", got, err)
	}
	if ok, _ := db.Has([]byte("old")); ok {
		t.Fatal("batched delete not applied")
	}
}
