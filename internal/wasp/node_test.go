package wasp

import "testing"

func TestNodeLeafInsertAndFind(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	n := InitNode(buf, 1, true)

	if _, err := n.InsertLeafEntry(LeafEntry{Key: []byte("b"), Value: []byte("2")}); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if _, err := n.InsertLeafEntry(LeafEntry{Key: []byte("a"), Value: []byte("1")}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if _, err := n.InsertLeafEntry(LeafEntry{Key: []byte("c"), Value: []byte("3")}); err != nil {
		t.Fatalf("insert c: %v", err)
	}

	entries := n.GetAllLeafEntries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(entries[i].Key) != want {
			t.Fatalf("entries not sorted: position %d = %q, want %q", i, entries[i].Key, want)
		}
	}

	pos, ok := n.FindLeafEntry([]byte("b"))
	if !ok {
		t.Fatal("expected to find key b")
	}
	if string(n.GetLeafEntry(pos).Value) != "2" {
		t.Fatalf("wrong value for b: %q", n.GetLeafEntry(pos).Value)
	}

	if _, ok := n.FindLeafEntry([]byte("z")); ok {
		t.Fatal("did not expect to find key z")
	}
}

func TestNodeLeafDelete(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	n := InitNode(buf, 1, true)
	n.InsertLeafEntry(LeafEntry{Key: []byte("a"), Value: []byte("1")})
	n.InsertLeafEntry(LeafEntry{Key: []byte("b"), Value: []byte("2")})

	pos, ok := n.FindLeafEntry([]byte("a"))
	if !ok {
		t.Fatal("expected to find a")
	}
	if err := n.DeleteLeafEntry(pos); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n.KeyCount() != 1 {
		t.Fatalf("expected 1 key remaining, got %d", n.KeyCount())
	}
	if _, ok := n.FindLeafEntry([]byte("a")); ok {
		t.Fatal("key a should be gone")
	}
}

func TestNodeInternalFindChild(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	n := InitNode(buf, 1, false)
	n.InsertInternalEntry(InternalEntry{ChildID: 10, Key: []byte("m")})
	n.InsertInternalEntry(InternalEntry{ChildID: 20, Key: []byte("t")})
	n.SetRightChild(30)

	cases := []struct {
		key  string
		want PageID
	}{
		{"a", 10},
		{"m", 20},
		{"n", 20},
		{"t", 30},
		{"z", 30},
	}
	for _, c := range cases {
		if got := n.FindChild([]byte(c.key)); got != c.want {
			t.Errorf("FindChild(%q) = %d, want %d", c.key, got, c.want)
		}
	}
}

func TestNodeCompactPreservesRecords(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	n := InitNode(buf, 1, true)
	n.InsertLeafEntry(LeafEntry{Key: []byte("a"), Value: []byte("1111")})
	n.InsertLeafEntry(LeafEntry{Key: []byte("b"), Value: []byte("2222")})
	pos, _ := n.FindLeafEntry([]byte("a"))
	n.DeleteLeafEntry(pos)
	n.InsertLeafEntry(LeafEntry{Key: []byte("c"), Value: []byte("3333")})

	before := n.FreeSpace()
	n.Compact()
	after := n.FreeSpace()
	if after < before {
		t.Fatalf("compact should not shrink free space: before=%d after=%d", before, after)
	}

	entries := n.GetAllLeafEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 live entries after compact, got %d", len(entries))
	}
}

func TestNodeFreeSpaceShrinksOnInsert(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	n := InitNode(buf, 1, true)
	initial := n.FreeSpace()
	n.InsertLeafEntry(LeafEntry{Key: []byte("a"), Value: []byte("hello")})
	if n.FreeSpace() >= initial {
		t.Fatal("free space should shrink after insert")
	}
}
