package wasp

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// ───────────────────────────────────────────────────────────────────────────
// Snapshot codec — portable logical dump
// ───────────────────────────────────────────────────────────────────────────
//
// A snapshot is not a copy of the page file; it is a logical key/value
// stream that can be replayed into a brand-new, empty tree on any machine,
// independent of page size or allocator state. WriteSnapshot and
// WriteSnapshotFile produce it; LoadSnapshot reads it back.
//
// File layout: [4]Magic("WSNP") [2]Version [4]RecordCount, then
// RecordCount gob-encoded snapshotRecord values framed with a length
// prefix. gob stands in for the original's bincode: the ecosystem this
// module draws on has no bincode-equivalent binary codec, and gob is the
// idiomatic Go answer for exactly this kind of "encode my own struct,
// decode it back in Go" use case.

const (
	snapshotMagic   = "WSNP"
	snapshotVersion = 1
)

type snapshotRecord struct {
	Key   []byte
	Value []byte
}

// WriteSnapshot drains every key/value pair in the tree rooted at root to w.
func WriteSnapshot(w io.Writer, store *Store, root PageID) (int, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return 0, err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(snapshotVersion)); err != nil {
		return 0, err
	}

	countOff := make([]byte, 4) // left zero: w may not be seekable; WriteSnapshotFile writes the real count
	if _, err := bw.Write(countOff); err != nil {
		return 0, err
	}

	count := 0
	var scanErr error
	err := ScanRange(store, root, []byte{}, nil, func(key, value []byte) bool {
		rec := snapshotRecord{Key: append([]byte{}, key...), Value: append([]byte{}, value...)}
		var buf countingBuffer
		if e := gob.NewEncoder(&buf).Encode(rec); e != nil {
			scanErr = e
			return false
		}
		if e := binary.Write(bw, binary.LittleEndian, uint32(buf.Len())); e != nil {
			scanErr = e
			return false
		}
		if e := gob.NewEncoder(bw).Encode(rec); e != nil {
			scanErr = e
			return false
		}
		count++
		return true
	})
	if err != nil {
		return 0, err
	}
	if scanErr != nil {
		return 0, scanErr
	}
	return count, bw.Flush()
}

// WriteSnapshotFile writes a complete, self-contained snapshot file,
// including the record count header that WriteSnapshot leaves unpatched
// when streaming to a non-seekable writer.
func WriteSnapshotFile(path string, store *Store, root PageID) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.WriteString(snapshotMagic); err != nil {
		return 0, err
	}
	if err := binary.Write(f, binary.LittleEndian, uint16(snapshotVersion)); err != nil {
		return 0, err
	}
	countPos, _ := f.Seek(0, io.SeekCurrent)
	if _, err := f.Write(make([]byte, 4)); err != nil {
		return 0, err
	}

	count := 0
	var scanErr error
	err = ScanRange(store, root, []byte{}, nil, func(key, value []byte) bool {
		rec := snapshotRecord{Key: append([]byte{}, key...), Value: append([]byte{}, value...)}
		var buf countingBuffer
		if e := gob.NewEncoder(&buf).Encode(rec); e != nil {
			scanErr = e
			return false
		}
		if e := binary.Write(f, binary.LittleEndian, uint32(buf.Len())); e != nil {
			scanErr = e
			return false
		}
		if e := gob.NewEncoder(f).Encode(rec); e != nil {
			scanErr = e
			return false
		}
		count++
		return true
	})
	if err != nil {
		return 0, err
	}
	if scanErr != nil {
		return 0, scanErr
	}

	if _, err := f.WriteAt(uint32ToBytes(uint32(count)), countPos); err != nil {
		return 0, err
	}
	return count, f.Sync()
}

// LoadSnapshot replays a snapshot file into a fresh tree via txn, returning
// the new root.
func LoadSnapshot(path string, t *Txn) (PageID, error) {
	f, err := os.Open(path)
	if err != nil {
		return InvalidPageID, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return InvalidPageID, err
	}
	if string(magic) != snapshotMagic {
		return InvalidPageID, fmt.Errorf("wasp: not a snapshot file (bad magic)")
	}
	var version uint16
	if err := binary.Read(f, binary.LittleEndian, &version); err != nil {
		return InvalidPageID, err
	}
	if version > snapshotVersion {
		return InvalidPageID, fmt.Errorf("wasp: snapshot version %d newer than supported %d", version, snapshotVersion)
	}
	var count uint32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return InvalidPageID, err
	}

	root := CreateTree(t)
	for i := uint32(0); i < count; i++ {
		var recLen uint32
		if err := binary.Read(f, binary.LittleEndian, &recLen); err != nil {
			return InvalidPageID, err
		}
		body := make([]byte, recLen)
		if _, err := io.ReadFull(f, body); err != nil {
			return InvalidPageID, err
		}
		var rec snapshotRecord
		if err := gob.NewDecoder(bytesReader(body)).Decode(&rec); err != nil {
			return InvalidPageID, err
		}
		root, err = Insert(t, root, rec.Key, rec.Value)
		if err != nil {
			return InvalidPageID, err
		}
	}
	return root, nil
}

// countingBuffer discards bytes but counts them, used to measure an
// encoded record's length before writing the real length-prefixed stream.
type countingBuffer struct{ n int }

func (c *countingBuffer) Write(p []byte) (int, error) {
	c.n += len(p)
	return len(p), nil
}
func (c *countingBuffer) Len() int { return c.n }

func uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func bytesReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b   []byte
	off int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.off >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.off:])
	r.off += n
	return n, nil
}
