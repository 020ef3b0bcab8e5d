package engine

import (
	"path/filepath"
	"testing"
)

func TestSnapshotEncodeDecodeRoundTrips(t *testing.T) {
	e := openTestEngine(t)
	e.CreateCollection("users")
	if _, err := e.CreateIndex("users", "email", HashIndex); err != nil {
		t.Fatalf("create index: %v", err)
	}
	e.CreateCollection("orders")
	if _, err := e.CreateIndex("orders", "total", BTreeIndex); err != nil {
		t.Fatalf("create index: %v", err)
	}

	want := e.BuildSnapshot()
	data, err := EncodeSnapshot(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got.Collections) != len(want.Collections) {
		t.Fatalf("collection count mismatch: got %d want %d", len(got.Collections), len(want.Collections))
	}
	for i := range want.Collections {
		if got.Collections[i].Name != want.Collections[i].Name {
			t.Fatalf("collection[%d] name: got %q want %q", i, got.Collections[i].Name, want.Collections[i].Name)
		}
		if len(got.Collections[i].Indexes) != len(want.Collections[i].Indexes) {
			t.Fatalf("collection[%d] index count: got %d want %d", i, len(got.Collections[i].Indexes), len(want.Collections[i].Indexes))
		}
		for j := range want.Collections[i].Indexes {
			if got.Collections[i].Indexes[j] != want.Collections[i].Indexes[j] {
				t.Fatalf("collection[%d] index[%d]: got %+v want %+v", i, j, got.Collections[i].Indexes[j], want.Collections[i].Indexes[j])
			}
		}
	}
}

func TestDecodeSnapshotRejectsBadMagicAndFutureVersion(t *testing.T) {
	if _, err := DecodeSnapshot([]byte("not a snapshot")); err == nil {
		t.Fatal("expected error for bad magic")
	}
	if _, err := DecodeSnapshot([]byte{'N', 'L', 'D', 'B'}); err == nil {
		t.Fatal("expected error for truncated header")
	}

	data, err := EncodeSnapshot(Snapshot{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data[4] = 0xFF // bump version byte past what DecodeSnapshot accepts
	data[5] = 0xFF
	if _, err := DecodeSnapshot(data); err == nil {
		t.Fatal("expected error for future version")
	}
}

func TestCheckpointWritesLoadableSnapshot(t *testing.T) {
	e := openTestEngine(t)
	e.CreateCollection("widgets")
	if _, err := e.CreateIndex("widgets", "sku", HashIndex); err != nil {
		t.Fatalf("create index: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "checkpoint.db")
	if err := e.Checkpoint(outPath); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	snap, err := LoadSnapshotFile(outPath)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	var widgets *CollectionSnapshot
	for i := range snap.Collections {
		if snap.Collections[i].Name == "widgets" {
			widgets = &snap.Collections[i]
		}
	}
	if widgets == nil {
		t.Fatal("expected widgets collection in checkpoint snapshot")
	}
	if len(widgets.Indexes) != 1 || widgets.Indexes[0].Field != "sku" {
		t.Fatalf("expected sku index descriptor, got %+v", widgets.Indexes)
	}
}
