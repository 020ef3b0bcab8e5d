package wasp

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Overflow pages
// ───────────────────────────────────────────────────────────────────────────
//
// Large document payloads that do not fit inline in a leaf record spill into
// a singly-linked chain of overflow pages.
//
//   [0:32]   Common PageHeader (Type=Overflow)
//   [32:36]  NextOverflow (uint32 LE), 0 = end of chain
//   [36:40]  DataLen      (uint32 LE)
//   [40:..]  Payload

const (
	overflowNextOff    = PageHeaderSize
	overflowDataLenOff = overflowNextOff + 4
	overflowDataOff    = overflowDataLenOff + 4
)

// OverflowCapacity returns the payload bytes a single overflow page can hold.
func OverflowCapacity(pageSize int) int { return pageSize - overflowDataOff }

// OverflowPage wraps a page buffer as an overflow-chain link.
type OverflowPage struct {
	buf      []byte
	pageSize int
}

// WrapOverflowPage wraps an already-initialized overflow page buffer.
func WrapOverflowPage(buf []byte) *OverflowPage {
	return &OverflowPage{buf: buf, pageSize: len(buf)}
}

// InitOverflowPage initializes buf as a fresh overflow page.
func InitOverflowPage(buf []byte, id PageID) *OverflowPage {
	MarshalHeader(&PageHeader{Type: PageTypeOverflow, ID: id}, buf)
	binary.LittleEndian.PutUint32(buf[overflowNextOff:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint32(buf[overflowDataLenOff:], 0)
	return &OverflowPage{buf: buf, pageSize: len(buf)}
}

func (op *OverflowPage) NextOverflow() PageID {
	return PageID(binary.LittleEndian.Uint32(op.buf[overflowNextOff:]))
}

func (op *OverflowPage) SetNextOverflow(pid PageID) {
	binary.LittleEndian.PutUint32(op.buf[overflowNextOff:], uint32(pid))
}

func (op *OverflowPage) DataLen() int {
	return int(binary.LittleEndian.Uint32(op.buf[overflowDataLenOff:]))
}

// SetData writes payload into the page, failing if it exceeds capacity.
func (op *OverflowPage) SetData(data []byte) error {
	capacity := OverflowCapacity(op.pageSize)
	if len(data) > capacity {
		return fmt.Errorf("wasp: overflow chunk %d bytes exceeds capacity %d", len(data), capacity)
	}
	binary.LittleEndian.PutUint32(op.buf[overflowDataLenOff:], uint32(len(data)))
	copy(op.buf[overflowDataOff:], data)
	return nil
}

func (op *OverflowPage) Data() []byte {
	dl := op.DataLen()
	return op.buf[overflowDataOff : overflowDataOff+dl]
}

func (op *OverflowPage) Bytes() []byte { return op.buf }

// writeOverflowChain splits data across as many fresh overflow pages as
// needed and stages them in txn, returning the chain head's page ID.
func writeOverflowChain(t *Txn, data []byte) (PageID, error) {
	pageSize := t.store.PageSize()
	capacity := OverflowCapacity(pageSize)

	var ids []PageID
	bufs := make(map[PageID][]byte)
	for off := 0; off < len(data); off += capacity {
		end := off + capacity
		if end > len(data) {
			end = len(data)
		}
		id := t.alloc()
		buf := NewPage(pageSize, PageTypeOverflow, id)
		op := InitOverflowPage(buf, id)
		if err := op.SetData(data[off:end]); err != nil {
			return InvalidPageID, err
		}
		ids = append(ids, id)
		bufs[id] = op.Bytes()
	}
	if len(ids) == 0 {
		id := t.alloc()
		buf := NewPage(pageSize, PageTypeOverflow, id)
		InitOverflowPage(buf, id)
		t.put(id, buf)
		return id, nil
	}
	// Link the chain tail-first so each page's next pointer is finalized
	// before it is staged.
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		op := WrapOverflowPage(bufs[id])
		if i+1 < len(ids) {
			op.SetNextOverflow(ids[i+1])
		}
		t.put(id, op.Bytes())
	}
	return ids[0], nil
}

// readOverflowChain reassembles a value spread across an overflow chain.
func readOverflowChain(store *Store, head PageID, totalSize uint32) ([]byte, error) {
	out := make([]byte, 0, totalSize)
	pid := head
	for pid != InvalidPageID {
		buf, err := store.ReadPage(pid)
		if err != nil {
			return nil, err
		}
		op := WrapOverflowPage(buf)
		out = append(out, op.Data()...)
		pid = op.NextOverflow()
	}
	return out, nil
}

// freeOverflowChain marks every page in the chain as obsolete within txn.
// It reads through the transaction's own view so a chain written and then
// immediately superseded within the same transaction is freed correctly.
func freeOverflowChain(t *Txn, head PageID) {
	pid := head
	for pid != InvalidPageID {
		buf, err := t.getRaw(pid)
		if err != nil {
			return
		}
		op := WrapOverflowPage(buf)
		next := op.NextOverflow()
		t.free(pid)
		pid = next
	}
}
