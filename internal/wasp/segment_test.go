package wasp

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSegmentFlushAndReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.bin")
	seg, err := OpenSegmentFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer seg.Close()

	pages := []SegmentPage{
		{Key: []byte("bar"), Value: []byte("foo")},
		{Key: []byte("foo"), Value: []byte("bar")},
	}
	footer := BuildFooter(pages, 1)

	if err := seg.FlushSegment(pages, &footer); err != nil {
		t.Fatalf("flush: %v", err)
	}

	gotPages, gotFooter, err := seg.ReadSegment()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(gotPages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(gotPages))
	}
	if !bytes.Equal(gotPages[0].Value, []byte("foo")) || !bytes.Equal(gotPages[1].Value, []byte("bar")) {
		t.Fatalf("page values mismatch: %+v", gotPages)
	}
	if !bytes.Equal(gotFooter.KeyRangeLo, []byte("bar")) || !bytes.Equal(gotFooter.KeyRangeHi, []byte("foo")) {
		t.Fatalf("footer key range mismatch: %+v", gotFooter)
	}
}

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	bf := NewBloomFilter(256, 4)
	keys := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	for _, k := range keys {
		bf.Insert(k)
	}
	for _, k := range keys {
		if !bf.Contains(k) {
			t.Fatalf("bloom filter false negative for %q", k)
		}
	}
}

func TestSegmentFooterMightContainRespectsKeyRange(t *testing.T) {
	pages := []SegmentPage{
		{Key: []byte("d"), Value: []byte("1")},
		{Key: []byte("m"), Value: []byte("2")},
		{Key: []byte("z"), Value: []byte("3")},
	}
	footer := BuildFooter(pages, 1)

	if !footer.MightContain([]byte("m")) {
		t.Fatal("expected key within range and inserted to be a candidate")
	}
	if footer.MightContain([]byte("a")) {
		t.Fatal("key below range should be pruned by the key-range check")
	}
	if footer.MightContain([]byte("zz")) {
		t.Fatal("key above range should be pruned by the key-range check")
	}
}
