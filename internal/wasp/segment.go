package wasp

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"io"
	"os"
)

// ───────────────────────────────────────────────────────────────────────────
// Segment files — cold, append-only page groups
// ───────────────────────────────────────────────────────────────────────────
//
// A segment is a batch of pages written once and read many times. Nothing
// outside this package's tests writes or reads segment files; the B-tree
// commit path and checkpoint do not use them. Each segment carries a footer with the key range it covers,
// a sparse set of fence keys for binary-search narrowing, and a bloom
// filter so a lookup that cannot possibly be in the segment skips reading
// it at all.

const (
	segmentMagic   = "WSEG"
	segmentVersion = 1
)

// SegmentPage is one page payload stored in a segment, identified by the
// key it holds (segments store logical key/value pairs, not raw B-tree
// page images, since a segment must remain replayable independent of the
// allocator state it was produced under).
type SegmentPage struct {
	Key   []byte
	Value []byte
}

// SegmentFooter describes a segment's contents for pruning during lookups.
type SegmentFooter struct {
	KeyRangeLo  []byte
	KeyRangeHi  []byte
	FenceKeys   [][]byte
	BloomFilter BloomFilter
}

// BloomFilter is a fixed-size bit array with k independent hash probes:
// a byte array treated as one-bit-per-slot, k hash functions derived by
// salting a single FNV hash with the probe index.
type BloomFilter struct {
	Bits []byte
	K    uint8
}

// NewBloomFilter allocates a filter with the given number of slots and
// probe count.
func NewBloomFilter(size int, k uint8) BloomFilter {
	return BloomFilter{Bits: make([]byte, size), K: k}
}

func (b *BloomFilter) hash(key []byte, i uint8) int {
	h := fnv.New64a()
	h.Write(key)
	h.Write([]byte{i})
	if len(b.Bits) == 0 {
		return 0
	}
	return int(h.Sum64() % uint64(len(b.Bits)))
}

// Insert marks key as present.
func (b *BloomFilter) Insert(key []byte) {
	for i := uint8(0); i < b.K; i++ {
		b.Bits[b.hash(key, i)] = 1
	}
}

// Contains reports whether key might be present. False positives are
// possible; false negatives are not.
func (b *BloomFilter) Contains(key []byte) bool {
	for i := uint8(0); i < b.K; i++ {
		if b.Bits[b.hash(key, i)] == 0 {
			return false
		}
	}
	return true
}

// SegmentFile is an append-only file of flushed page groups, each
// followed by a length-prefixed gob-encoded footer.
type SegmentFile struct {
	f    *os.File
	path string
}

// OpenSegmentFile opens or creates a segment file for appending and reading.
func OpenSegmentFile(path string) (*SegmentFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	return &SegmentFile{f: f, path: path}, nil
}

// FlushSegment appends one batch of pages with its footer to the file.
// Layout per batch: [4]Magic [2]Version [4]PageCount, PageCount gob
// length-prefixed SegmentPage records, then [4]FooterLen, gob-encoded footer.
func (s *SegmentFile) FlushSegment(pages []SegmentPage, footer *SegmentFooter) error {
	var buf bytes.Buffer
	buf.WriteString(segmentMagic)
	binary.Write(&buf, binary.LittleEndian, uint16(segmentVersion))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pages)))

	for _, p := range pages {
		var rec bytes.Buffer
		if err := gob.NewEncoder(&rec).Encode(p); err != nil {
			return err
		}
		binary.Write(&buf, binary.LittleEndian, uint32(rec.Len()))
		buf.Write(rec.Bytes())
	}

	var footBuf bytes.Buffer
	if err := gob.NewEncoder(&footBuf).Encode(footer); err != nil {
		return err
	}
	binary.Write(&buf, binary.LittleEndian, uint32(footBuf.Len()))
	buf.Write(footBuf.Bytes())

	if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return err
	}
	return s.f.Sync()
}

// ReadSegment reads the batch written by FlushSegment. It reads from the
// start of the file, so a file holding several batches yields only the
// first.
func (s *SegmentFile) ReadSegment() ([]SegmentPage, SegmentFooter, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, SegmentFooter{}, err
	}
	return s.readSegmentFrom(s.f)
}

func (s *SegmentFile) readSegmentFrom(r io.Reader) ([]SegmentPage, SegmentFooter, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, SegmentFooter{}, err
	}
	if string(magic) != segmentMagic {
		return nil, SegmentFooter{}, fmt.Errorf("wasp: not a segment file (bad magic)")
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, SegmentFooter{}, err
	}
	if version > segmentVersion {
		return nil, SegmentFooter{}, fmt.Errorf("wasp: segment version %d newer than supported %d", version, segmentVersion)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, SegmentFooter{}, err
	}

	pages := make([]SegmentPage, 0, count)
	for i := uint32(0); i < count; i++ {
		var recLen uint32
		if err := binary.Read(r, binary.LittleEndian, &recLen); err != nil {
			return nil, SegmentFooter{}, err
		}
		body := make([]byte, recLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, SegmentFooter{}, err
		}
		var p SegmentPage
		if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&p); err != nil {
			return nil, SegmentFooter{}, err
		}
		pages = append(pages, p)
	}

	var footLen uint32
	if err := binary.Read(r, binary.LittleEndian, &footLen); err != nil {
		return nil, SegmentFooter{}, err
	}
	footBody := make([]byte, footLen)
	if _, err := io.ReadFull(r, footBody); err != nil {
		return nil, SegmentFooter{}, err
	}
	var footer SegmentFooter
	if err := gob.NewDecoder(bytes.NewReader(footBody)).Decode(&footer); err != nil {
		return nil, SegmentFooter{}, err
	}
	return pages, footer, nil
}

// BuildFooter derives a footer from a sorted batch of pages: the key
// range, an evenly-sampled set of fence keys, and a populated bloom filter
// sized for the batch.
func BuildFooter(pages []SegmentPage, fenceStride int) SegmentFooter {
	if len(pages) == 0 {
		return SegmentFooter{BloomFilter: NewBloomFilter(64, 4)}
	}
	bf := NewBloomFilter(bloomSizeFor(len(pages)), 4)
	var fences [][]byte
	for i, p := range pages {
		bf.Insert(p.Key)
		if fenceStride > 0 && i%fenceStride == 0 {
			fences = append(fences, p.Key)
		}
	}
	return SegmentFooter{
		KeyRangeLo:  pages[0].Key,
		KeyRangeHi:  pages[len(pages)-1].Key,
		FenceKeys:   fences,
		BloomFilter: bf,
	}
}

func bloomSizeFor(n int) int {
	size := n * 10
	if size < 64 {
		size = 64
	}
	return size
}

// MightContain reports whether key could plausibly live in a segment
// described by footer, combining the cheap key-range check with the
// bloom filter probe so callers can skip opening the segment entirely.
func (f *SegmentFooter) MightContain(key []byte) bool {
	if bytes.Compare(key, f.KeyRangeLo) < 0 || bytes.Compare(key, f.KeyRangeHi) > 0 {
		return false
	}
	return f.BloomFilter.Contains(key)
}

// Close closes the underlying file.
func (s *SegmentFile) Close() error { return s.f.Close() }
