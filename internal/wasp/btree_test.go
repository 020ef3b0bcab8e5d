package wasp

import (
	"bytes"
	"fmt"
	"testing"
)

// runMutation applies fn within a fresh transaction and flushes its dirty
// pages to the store, mirroring (without WAL/manifest plumbing) what
// DB.Mutate does for a single commit.
func runMutation(t *testing.T, st *Store, txID TxID, fn func(txn *Txn) (PageID, error)) PageID {
	t.Helper()
	txn := newTxn(txID, st)
	root, err := fn(txn)
	if err != nil {
		t.Fatalf("mutation: %v", err)
	}
	if err := st.WritePages(txn.pages()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return root
}

func TestBTreeInsertAndGetSingleKey(t *testing.T) {
	st := openTestStore(t)
	root := runMutation(t, st, 1, func(txn *Txn) (PageID, error) { return CreateTree(txn), nil })
	root = runMutation(t, st, 2, func(txn *Txn) (PageID, error) {
		return Insert(txn, root, []byte("k1"), []byte("v1"))
	})

	val, found, err := Get(st, root, []byte("k1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || !bytes.Equal(val, []byte("v1")) {
		t.Fatalf("expected v1, got %q found=%v", val, found)
	}

	if _, found, _ := Get(st, root, []byte("missing")); found {
		t.Fatal("did not expect to find missing key")
	}
}

func TestBTreeInsertManyCausesSplitsAndStaysSorted(t *testing.T) {
	st := openTestStore(t)
	root := runMutation(t, st, 1, func(txn *Txn) (PageID, error) { return CreateTree(txn), nil })

	const n = 500
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		val := []byte(fmt.Sprintf("value-%05d", i))
		root = runMutation(t, st, TxID(i+2), func(txn *Txn) (PageID, error) {
			return Insert(txn, root, key, val)
		})
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		want := []byte(fmt.Sprintf("value-%05d", i))
		got, found, err := Get(st, root, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if !found {
			t.Fatalf("key %s missing after %d inserts", key, n)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("key %s: got %q, want %q", key, got, want)
		}
	}

	count, err := Count(st, root)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != n {
		t.Fatalf("expected %d live entries, got %d", n, count)
	}

	var prev []byte
	err = ScanRange(st, root, []byte{}, nil, func(key, value []byte) bool {
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			t.Fatalf("scan order violated: %q came after %q", key, prev)
		}
		prev = append([]byte{}, key...)
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
}

func TestBTreeOverwriteExistingKey(t *testing.T) {
	st := openTestStore(t)
	root := runMutation(t, st, 1, func(txn *Txn) (PageID, error) { return CreateTree(txn), nil })
	root = runMutation(t, st, 2, func(txn *Txn) (PageID, error) {
		return Insert(txn, root, []byte("k"), []byte("v1"))
	})
	root = runMutation(t, st, 3, func(txn *Txn) (PageID, error) {
		return Insert(txn, root, []byte("k"), []byte("v2"))
	})

	val, found, err := Get(st, root, []byte("k"))
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if !bytes.Equal(val, []byte("v2")) {
		t.Fatalf("expected overwritten value v2, got %q", val)
	}

	count, _ := Count(st, root)
	if count != 1 {
		t.Fatalf("expected 1 entry after overwrite, got %d", count)
	}
}

func TestBTreeLargeValueUsesOverflow(t *testing.T) {
	st := openTestStore(t)
	root := runMutation(t, st, 1, func(txn *Txn) (PageID, error) { return CreateTree(txn), nil })

	big := bytes.Repeat([]byte("x"), OverflowThreshold*3)
	root = runMutation(t, st, 2, func(txn *Txn) (PageID, error) {
		return Insert(txn, root, []byte("big"), big)
	})

	val, found, err := Get(st, root, []byte("big"))
	if err != nil || !found {
		t.Fatalf("get big: found=%v err=%v", found, err)
	}
	if !bytes.Equal(val, big) {
		t.Fatal("overflowed value roundtrip mismatch")
	}
}

func TestBTreeDeleteRemovesKey(t *testing.T) {
	st := openTestStore(t)
	root := runMutation(t, st, 1, func(txn *Txn) (PageID, error) { return CreateTree(txn), nil })
	root = runMutation(t, st, 2, func(txn *Txn) (PageID, error) {
		return Insert(txn, root, []byte("a"), []byte("1"))
	})
	root = runMutation(t, st, 3, func(txn *Txn) (PageID, error) {
		return Insert(txn, root, []byte("b"), []byte("2"))
	})

	var found bool
	root = runMutation(t, st, 4, func(txn *Txn) (PageID, error) {
		var newRoot PageID
		var err error
		newRoot, found, err = Delete(txn, root, []byte("a"))
		return newRoot, err
	})
	if !found {
		t.Fatal("expected delete to find key a")
	}
	if _, ok, _ := Get(st, root, []byte("a")); ok {
		t.Fatal("key a should be gone after delete")
	}
	if _, ok, _ := Get(st, root, []byte("b")); !ok {
		t.Fatal("key b should survive deleting a")
	}
}

func TestBTreeDeleteAcrossManySplitLevels(t *testing.T) {
	st := openTestStore(t)
	root := runMutation(t, st, 1, func(txn *Txn) (PageID, error) { return CreateTree(txn), nil })

	const n = 300
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		root = runMutation(t, st, TxID(i+2), func(txn *Txn) (PageID, error) {
			return Insert(txn, root, key, []byte("v"))
		})
	}

	for i := 0; i < n; i += 2 {
		key := []byte(fmt.Sprintf("key-%05d", i))
		root = runMutation(t, st, TxID(i+1000), func(txn *Txn) (PageID, error) {
			newRoot, _, err := Delete(txn, root, key)
			return newRoot, err
		})
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		_, found, err := Get(st, root, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		wantFound := i%2 != 0
		if found != wantFound {
			t.Fatalf("key %s: found=%v, want=%v", key, found, wantFound)
		}
	}
}
