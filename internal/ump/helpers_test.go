package ump

import (
	"crypto/sha256"
	"io"
	"path/filepath"
	"testing"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	klog "github.com/bsv-blockchain/ump-services/internal/log"
	"github.com/bsv-blockchain/ump-services/internal/pushdrop"
	"github.com/bsv-blockchain/ump-services/internal/storage"
	"github.com/bsv-blockchain/ump-services/pkg/types"
)

func init() {
	klog.SetOutput(io.Discard, "off")
}

func hashOf(s string) types.Hash {
	return types.Hash(sha256.Sum256([]byte(s)))
}

func op(txid string, index uint32) types.Outpoint {
	return types.Outpoint{TxID: txid, Index: index}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(storage.NewMemory())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

// forEachBackend runs fn against a store on every storage backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Helper()
	backends := []struct {
		name string
		open func(t *testing.T) storage.DB
	}{
		{"memory", func(t *testing.T) storage.DB { return storage.NewMemory() }},
		{"badger", func(t *testing.T) storage.DB {
			db, err := storage.NewBadger(t.TempDir(), true)
			if err != nil {
				t.Fatalf("NewBadger: %v", err)
			}
			return db
		}},
		{"sqlite", func(t *testing.T) storage.DB {
			db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "ump.db"), true)
			if err != nil {
				t.Fatalf("NewSQLite: %v", err)
			}
			return db
		}},
		{"prefixed", func(t *testing.T) storage.DB {
			return storage.NewPrefixDB(storage.NewMemory(), []byte("ump/"))
		}},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			db := b.open(t)
			t.Cleanup(func() { db.Close() })
			s, err := NewStore(db)
			if err != nil {
				t.Fatalf("NewStore: %v", err)
			}
			fn(t, s)
		})
	}
}

// tokenScript builds a UMP token locking script with the given hashes in
// fields 6 and 7.
func tokenScript(t *testing.T, presentation, recovery types.Hash) *script.Script {
	t.Helper()
	fields := [][]byte{
		[]byte("passwordPresentationPrimary"),
		[]byte("passwordRecoveryPrimary"),
		[]byte("presentationRecoveryPrimary"),
		[]byte("passwordPrimaryPrivileged"),
		[]byte("presentationRecoveryPrivileged"),
		[]byte("passwordSalt"),
		presentation[:],
		recovery[:],
		[]byte("presentationKeyEncrypted"),
		[]byte("recoveryKeyEncrypted"),
		[]byte("passwordKeyEncrypted"),
	}
	return lockFields(t, fields)
}

func lockFields(t *testing.T, fields [][]byte) *script.Script {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	s, err := pushdrop.Lock(priv.PubKey(), fields)
	if err != nil {
		t.Fatalf("pushdrop.Lock: %v", err)
	}
	return s
}
