package wasp

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotWriteAndLoadRoundTrip(t *testing.T) {
	st := openTestStore(t)
	root := runMutation(t, st, 1, func(txn *Txn) (PageID, error) { return CreateTree(txn), nil })

	want := map[string]string{}
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("doc-%03d", i)
		val := fmt.Sprintf("payload-%03d", i)
		want[key] = val
		root = runMutation(t, st, TxID(i+2), func(txn *Txn) (PageID, error) {
			return Insert(txn, root, []byte(key), []byte(val))
		})
	}

	path := filepath.Join(t.TempDir(), "snap.bin")
	count, err := WriteSnapshotFile(path, st, root)
	if err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if count != len(want) {
		t.Fatalf("expected %d records written, got %d", len(want), count)
	}

	st2 := openTestStore(t)
	newRoot := runMutation(t, st2, 1, func(txn *Txn) (PageID, error) {
		return LoadSnapshot(path, txn)
	})

	for key, val := range want {
		got, found, err := Get(st2, newRoot, []byte(key))
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if !found {
			t.Fatalf("key %s missing after snapshot load", key)
		}
		if !bytes.Equal(got, []byte(val)) {
			t.Fatalf("key %s: got %q, want %q", key, got, val)
		}
	}
}

func TestSnapshotBadMagicRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	st := openTestStore(t)
	txn := newTxn(1, st)
	if err := os.WriteFile(path, []byte("NOTWSNPdata"), 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}
	if _, err := LoadSnapshot(path, txn); err == nil {
		t.Fatal("expected error loading a non-snapshot file")
	}
}
