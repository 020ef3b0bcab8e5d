package wasp

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestDBOpenInsertGetClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.wasp")
	db, err := Open(path, OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = db.Mutate(func(txn *Txn, root PageID) (PageID, error) {
		return Insert(txn, root, []byte("k1"), []byte("v1"))
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	val, found, err := Get(db.Store(), db.Root(), []byte("k1"))
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if !bytes.Equal(val, []byte("v1")) {
		t.Fatalf("expected v1, got %q", val)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDBReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.wasp")
	db, err := Open(path, OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 20; i++ {
		key := []byte{byte('a' + i)}
		if err := db.Mutate(func(txn *Txn, root PageID) (PageID, error) {
			return Insert(txn, root, key, []byte("value"))
		}); err != nil {
			t.Fatalf("mutate %d: %v", i, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(path, OpenOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	for i := 0; i < 20; i++ {
		key := []byte{byte('a' + i)}
		val, found, err := Get(db2.Store(), db2.Root(), key)
		if err != nil || !found {
			t.Fatalf("key %q missing after reopen: found=%v err=%v", key, found, err)
		}
		if !bytes.Equal(val, []byte("value")) {
			t.Fatalf("key %q: got %q", key, val)
		}
	}
}

func TestDBCheckpointReclaimsAfterReadersDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.wasp")
	db, err := Open(path, OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Mutate(func(txn *Txn, root PageID) (PageID, error) {
		return Insert(txn, root, []byte("a"), []byte("1"))
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	epoch := db.BeginReader()
	if err := db.Mutate(func(txn *Txn, root PageID) (PageID, error) {
		return Insert(txn, root, []byte("b"), []byte("2"))
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	pendingBefore := db.store.alloc.PendingCount()
	if pendingBefore == 0 {
		t.Fatal("expected a freed page pending reclamation while a reader is open")
	}
	if err := db.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if db.store.alloc.PendingCount() == 0 {
		t.Fatal("page should remain pending while the old reader epoch is still open")
	}

	db.EndReader(epoch)
	if err := db.Checkpoint(); err != nil {
		t.Fatalf("checkpoint after reader drained: %v", err)
	}
	if db.store.alloc.PendingCount() != 0 {
		t.Fatalf("expected pending pages reclaimed once reader drained, got %d", db.store.alloc.PendingCount())
	}
}

func TestDBSingleWriterLockRejectsSecondOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.wasp")
	db, err := Open(path, OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	_, err = Open(path, OpenOptions{})
	if err == nil {
		t.Fatal("expected second Open to fail while the first holds the writer lock")
	}
}
