package wasp

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// TinyWAL — framed, append-only commit log
// ───────────────────────────────────────────────────────────────────────────
//
// Every commit appends exactly one record holding the full set of page
// images the transaction produced (a true CoW commit never touches a page
// in place, so a transaction's dirty set is always fresh pages plus the
// new manifest root — batching them into one record keeps replay atomic
// per-transaction without needing separate BEGIN/COMMIT markers).
//
// Record framing:
//   [0:4]   RecordLen  (uint32 LE) — bytes following this field
//   [4:8]   RecordCRC  (uint32 LE) — CRC32-C over the rest of the record
//   [8:16]  TxID       (uint64 LE)
//   [16:20] PageCount  (uint32 LE)
//   [20:28] NewRoot    (uint64 LE) — new manifest root page after this commit
//   [28:36] Epoch      (uint64 LE) — manifest epoch this commit publishes
//   repeated PageCount times: [4]PageID [4]PageLen [PageLen]PageBytes
//
// A record whose length or CRC fails to validate — including one cut off
// mid-write by a crash — marks the torn tail: recovery stops replaying at
// that offset and truncates the file there, per the engine's torn-tail
// tolerance requirement.

const walRecordFixedSize = 4 + 4 + 8 + 4 + 8 + 8

// WALRecord is one decoded commit record.
type WALRecord struct {
	TxID    TxID
	NewRoot PageID
	Epoch   uint64
	Pages   []WALPageImage
}

// WALPageImage is one page's fresh image within a commit record.
type WALPageImage struct {
	ID   PageID
	Data []byte
}

// EncodeWALRecord serializes a commit record.
func EncodeWALRecord(r WALRecord) []byte {
	body := make([]byte, 0, walRecordFixedSize-8)
	tmp := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp, uint64(r.TxID))
	body = append(body, tmp...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(r.Pages)))
	body = append(body, tmp[:4]...)
	binary.LittleEndian.PutUint64(tmp, uint64(r.NewRoot))
	body = append(body, tmp...)
	binary.LittleEndian.PutUint64(tmp, r.Epoch)
	body = append(body, tmp...)
	for _, pi := range r.Pages {
		binary.LittleEndian.PutUint32(tmp[:4], uint32(pi.ID))
		body = append(body, tmp[:4]...)
		binary.LittleEndian.PutUint32(tmp[:4], uint32(len(pi.Data)))
		body = append(body, tmp[:4]...)
		body = append(body, pi.Data...)
	}

	crc := crc32.Checksum(body, crcTable)
	out := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(out[4:8], crc)
	copy(out[8:], body)
	return out
}

// DecodeWALRecord parses one record body (post length+CRC framing) back
// into a WALRecord.
func DecodeWALRecord(body []byte) (WALRecord, error) {
	if len(body) < 28 {
		return WALRecord{}, fmt.Errorf("wasp: WAL record too short")
	}
	r := WALRecord{
		TxID:    TxID(binary.LittleEndian.Uint64(body[0:8])),
		NewRoot: PageID(binary.LittleEndian.Uint64(body[12:20])),
		Epoch:   binary.LittleEndian.Uint64(body[20:28]),
	}
	pageCount := int(binary.LittleEndian.Uint32(body[8:12]))
	off := 28
	for i := 0; i < pageCount; i++ {
		if off+8 > len(body) {
			return WALRecord{}, fmt.Errorf("wasp: truncated WAL page header")
		}
		pid := PageID(binary.LittleEndian.Uint32(body[off : off+4]))
		plen := int(binary.LittleEndian.Uint32(body[off+4 : off+8]))
		off += 8
		if off+plen > len(body) {
			return WALRecord{}, fmt.Errorf("wasp: truncated WAL page body")
		}
		r.Pages = append(r.Pages, WALPageImage{ID: pid, Data: body[off : off+plen]})
		off += plen
	}
	return r, nil
}

// WAL is the append-only log file.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenWAL opens or creates a WAL file for append.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}
	return &WAL{file: f, path: path}, nil
}

// Append writes one commit record and fsyncs it durable.
func (w *WAL) Append(r WALRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := EncodeWALRecord(r)
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("append WAL record: %w", err)
	}
	return w.file.Sync()
}

// ReadAll replays every well-formed record from the start of the file,
// stopping — without error — at the first malformed or truncated record,
// which is treated as a torn tail from an interrupted write.
func (w *WAL) ReadAll() ([]WALRecord, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}
	data, err := io.ReadAll(w.file)
	if err != nil {
		return nil, 0, err
	}

	var records []WALRecord
	off := int64(0)
	for off+8 <= int64(len(data)) {
		recLen := binary.LittleEndian.Uint32(data[off : off+4])
		recCRC := binary.LittleEndian.Uint32(data[off+4 : off+8])
		bodyStart := off + 8
		bodyEnd := bodyStart + int64(recLen)
		if bodyEnd > int64(len(data)) {
			break // torn tail: declared length runs past EOF
		}
		body := data[bodyStart:bodyEnd]
		if crc32.Checksum(body, crcTable) != recCRC {
			break // torn tail: partial/corrupt write
		}
		rec, decErr := DecodeWALRecord(body)
		if decErr != nil {
			break
		}
		records = append(records, rec)
		off = bodyEnd
	}
	return records, off, nil
}

// Truncate resets the WAL to empty, called after a successful checkpoint
// makes every prior record durable in the main file.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, io.SeekStart)
	return err
}

// TruncateTornTail truncates the file at validOffset, discarding a torn
// tail left by a crash mid-append.
func (w *WAL) TruncateTornTail(validOffset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Truncate(validOffset)
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Sync fsyncs the WAL file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}
