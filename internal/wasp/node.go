package wasp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// B-tree node page format
// ───────────────────────────────────────────────────────────────────────────
//
// Internal and leaf pages both use a slotted layout: a small fixed header,
// a slot directory that grows forward from the header, and records that
// grow backward from the end of the page.
//
// Page-level metadata immediately after the common PageHeader:
//   [32:33]  IsLeaf      (uint8 — 1=leaf, 0=internal)
//   [33:35]  KeyCount    (uint16 LE)
//   [35:39]  RightChild  (uint32 LE) — internal pages only
//   [35:39]  NextLeaf    (uint32 LE) — leaf pages only (sibling pointer)
//   [39:43]  PrevLeaf    (uint32 LE) — leaf pages only (sibling pointer)
//   [43:45]  SlotCount   (uint16 LE)
//   [45:47]  FreeSpaceEnd (uint16 LE)
//   [47:...] Slot directory, 4 bytes per slot (Offset uint16, Length uint16)
//
// Internal record: [4]ChildID [2]KeyLen [KeyLen]Key
// Leaf record:     [2]KeyLen [KeyLen]Key [2]Flags
//                     no-overflow: [2]ValLen [ValLen]Value
//                     overflow:    [4]OverflowPageID [4]TotalSize

const (
	nodeMetaOff       = PageHeaderSize // 32
	nodeIsLeafOff     = nodeMetaOff    // 32, 1 byte
	nodeKeyCountOff   = nodeMetaOff + 1
	nodeRightChildOff = nodeMetaOff + 3 // internal
	nodeNextLeafOff   = nodeMetaOff + 3 // leaf
	nodePrevLeafOff   = nodeMetaOff + 7 // leaf
	nodeSlotHdrOff    = nodeMetaOff + 11
	nodeSlotDirOff    = nodeSlotHdrOff + 4
	slotEntrySize     = 4

	leafFlagOverflow uint16 = 1 << 0
)

// SlotEntry describes one entry in a node's slot directory.
type SlotEntry struct {
	Offset uint16
	Length uint16
}

// Node wraps a page buffer as a B-tree node (internal or leaf).
type Node struct {
	buf      []byte
	pageSize int
}

// WrapNode wraps an already-initialized node page buffer.
func WrapNode(buf []byte) *Node {
	return &Node{buf: buf, pageSize: len(buf)}
}

// InitNode initializes buf as an empty node page.
func InitNode(buf []byte, id PageID, leaf bool) *Node {
	pt := PageTypeBTreeInternal
	if leaf {
		pt = PageTypeBTreeLeaf
	}
	MarshalHeader(&PageHeader{Type: pt, ID: id}, buf)
	if leaf {
		buf[nodeIsLeafOff] = 1
	} else {
		buf[nodeIsLeafOff] = 0
	}
	binary.LittleEndian.PutUint16(buf[nodeKeyCountOff:], 0)
	binary.LittleEndian.PutUint32(buf[nodeRightChildOff:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint32(buf[nodePrevLeafOff:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint16(buf[nodeSlotHdrOff:], 0)
	binary.LittleEndian.PutUint16(buf[nodeSlotHdrOff+2:], uint16(len(buf)))
	return &Node{buf: buf, pageSize: len(buf)}
}

func (n *Node) IsLeaf() bool { return n.buf[nodeIsLeafOff] == 1 }

func (n *Node) KeyCount() int { return int(binary.LittleEndian.Uint16(n.buf[nodeKeyCountOff:])) }

func (n *Node) setKeyCount(c int) { binary.LittleEndian.PutUint16(n.buf[nodeKeyCountOff:], uint16(c)) }

func (n *Node) PageID() PageID { return HeaderPageID(n.buf) }

func (n *Node) RightChild() PageID {
	return PageID(binary.LittleEndian.Uint32(n.buf[nodeRightChildOff:]))
}

func (n *Node) SetRightChild(pid PageID) {
	binary.LittleEndian.PutUint32(n.buf[nodeRightChildOff:], uint32(pid))
}

func (n *Node) NextLeaf() PageID { return PageID(binary.LittleEndian.Uint32(n.buf[nodeNextLeafOff:])) }

func (n *Node) SetNextLeaf(pid PageID) {
	binary.LittleEndian.PutUint32(n.buf[nodeNextLeafOff:], uint32(pid))
}

func (n *Node) PrevLeaf() PageID { return PageID(binary.LittleEndian.Uint32(n.buf[nodePrevLeafOff:])) }

func (n *Node) SetPrevLeaf(pid PageID) {
	binary.LittleEndian.PutUint32(n.buf[nodePrevLeafOff:], uint32(pid))
}

func (n *Node) Bytes() []byte { return n.buf }

// ── Slotted storage ────────────────────────────────────────────────────────

func (n *Node) slotCount() int { return int(binary.LittleEndian.Uint16(n.buf[nodeSlotHdrOff:])) }

func (n *Node) setSlotCount(c int) { binary.LittleEndian.PutUint16(n.buf[nodeSlotHdrOff:], uint16(c)) }

func (n *Node) freeSpaceEnd() int { return int(binary.LittleEndian.Uint16(n.buf[nodeSlotHdrOff+2:])) }

func (n *Node) setFreeSpaceEnd(off int) {
	binary.LittleEndian.PutUint16(n.buf[nodeSlotHdrOff+2:], uint16(off))
}

func (n *Node) slotDirEnd() int { return nodeSlotDirOff + n.slotCount()*slotEntrySize }

// FreeSpace returns bytes available for one more record plus its slot entry.
func (n *Node) FreeSpace() int { return n.freeSpaceEnd() - n.slotDirEnd() - slotEntrySize }

func (n *Node) getSlot(i int) SlotEntry {
	off := nodeSlotDirOff + i*slotEntrySize
	return SlotEntry{
		Offset: binary.LittleEndian.Uint16(n.buf[off:]),
		Length: binary.LittleEndian.Uint16(n.buf[off+2:]),
	}
}

func (n *Node) setSlot(i int, e SlotEntry) {
	off := nodeSlotDirOff + i*slotEntrySize
	binary.LittleEndian.PutUint16(n.buf[off:], e.Offset)
	binary.LittleEndian.PutUint16(n.buf[off+2:], e.Length)
}

func (n *Node) getRecord(i int) []byte {
	e := n.getSlot(i)
	return n.buf[e.Offset : e.Offset+e.Length]
}

func (n *Node) appendRecord(data []byte) (int, error) {
	if n.FreeSpace() < len(data) {
		return -1, fmt.Errorf("%w: need %d bytes, have %d", ErrPageFull, len(data), n.FreeSpace())
	}
	newEnd := n.freeSpaceEnd() - len(data)
	copy(n.buf[newEnd:], data)
	n.setFreeSpaceEnd(newEnd)
	idx := n.slotCount()
	n.setSlot(idx, SlotEntry{Offset: uint16(newEnd), Length: uint16(len(data))})
	n.setSlotCount(idx + 1)
	return idx, nil
}

func (n *Node) insertRecordAt(pos int, data []byte) error {
	if n.FreeSpace() < len(data) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrPageFull, len(data), n.FreeSpace())
	}
	newEnd := n.freeSpaceEnd() - len(data)
	copy(n.buf[newEnd:], data)
	n.setFreeSpaceEnd(newEnd)

	sc := n.slotCount()
	n.setSlotCount(sc + 1)
	for i := sc; i > pos; i-- {
		n.setSlot(i, n.getSlot(i-1))
	}
	n.setSlot(pos, SlotEntry{Offset: uint16(newEnd), Length: uint16(len(data))})
	return nil
}

func (n *Node) deleteRecordAt(pos int) {
	sc := n.slotCount()
	for i := pos; i < sc-1; i++ {
		n.setSlot(i, n.getSlot(i+1))
	}
	n.setSlot(sc-1, SlotEntry{})
	n.setSlotCount(sc - 1)
}

// Compact reclaims space fragmented by updates/deletes by rewriting every
// live record contiguously from the end of the page. Nothing in the tree
// code calls it.
func (n *Node) Compact() {
	sc := n.slotCount()
	type rec struct {
		idx  int
		data []byte
	}
	live := make([]rec, sc)
	for i := 0; i < sc; i++ {
		live[i] = rec{idx: i, data: append([]byte{}, n.getRecord(i)...)}
	}
	n.setFreeSpaceEnd(n.pageSize)
	for _, r := range live {
		newEnd := n.freeSpaceEnd() - len(r.data)
		copy(n.buf[newEnd:], r.data)
		n.setFreeSpaceEnd(newEnd)
		n.setSlot(r.idx, SlotEntry{Offset: uint16(newEnd), Length: uint16(len(r.data))})
	}
}

// ── Internal-node entries ──────────────────────────────────────────────────

// InternalEntry is a separator key plus its left-child pointer.
type InternalEntry struct {
	ChildID PageID
	Key     []byte
}

func marshalInternalRecord(e InternalEntry) []byte {
	rec := make([]byte, 4+2+len(e.Key))
	binary.LittleEndian.PutUint32(rec[0:4], uint32(e.ChildID))
	binary.LittleEndian.PutUint16(rec[4:6], uint16(len(e.Key)))
	copy(rec[6:], e.Key)
	return rec
}

func unmarshalInternalRecord(rec []byte) InternalEntry {
	child := PageID(binary.LittleEndian.Uint32(rec[0:4]))
	kl := int(binary.LittleEndian.Uint16(rec[4:6]))
	key := append([]byte{}, rec[6:6+kl]...)
	return InternalEntry{ChildID: child, Key: key}
}

func (n *Node) GetInternalEntry(i int) InternalEntry { return unmarshalInternalRecord(n.getRecord(i)) }

func (n *Node) GetAllInternalEntries() []InternalEntry {
	sc := n.slotCount()
	out := make([]InternalEntry, sc)
	for i := 0; i < sc; i++ {
		out[i] = n.GetInternalEntry(i)
	}
	return out
}

// InsertInternalEntry inserts a separator key at its sorted position.
func (n *Node) InsertInternalEntry(e InternalEntry) error {
	pos := n.searchInternal(e.Key)
	if err := n.insertRecordAt(pos, marshalInternalRecord(e)); err != nil {
		return err
	}
	n.setKeyCount(n.KeyCount() + 1)
	return nil
}

func (n *Node) searchInternal(key []byte) int {
	sc := n.slotCount()
	lo, hi := 0, sc
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(n.GetInternalEntry(mid).Key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FindChild returns the child page to descend into for the given key.
func (n *Node) FindChild(key []byte) PageID {
	sc := n.slotCount()
	for i := 0; i < sc; i++ {
		if bytes.Compare(key, n.GetInternalEntry(i).Key) < 0 {
			return n.GetInternalEntry(i).ChildID
		}
	}
	return n.RightChild()
}

// ── Leaf-node entries ──────────────────────────────────────────────────────

// LeafEntry is a key-value pair, inline or overflow-chained.
type LeafEntry struct {
	Key            []byte
	Value          []byte
	Overflow       bool
	OverflowPageID PageID
	TotalSize      uint32
}

func marshalLeafRecord(e LeafEntry) []byte {
	kl := len(e.Key)
	if e.Overflow {
		rec := make([]byte, 2+kl+2+4+4)
		binary.LittleEndian.PutUint16(rec[0:2], uint16(kl))
		copy(rec[2:2+kl], e.Key)
		off := 2 + kl
		binary.LittleEndian.PutUint16(rec[off:off+2], leafFlagOverflow)
		binary.LittleEndian.PutUint32(rec[off+2:off+6], uint32(e.OverflowPageID))
		binary.LittleEndian.PutUint32(rec[off+6:off+10], e.TotalSize)
		return rec
	}
	vl := len(e.Value)
	rec := make([]byte, 2+kl+2+2+vl)
	binary.LittleEndian.PutUint16(rec[0:2], uint16(kl))
	copy(rec[2:2+kl], e.Key)
	off := 2 + kl
	binary.LittleEndian.PutUint16(rec[off:off+2], 0)
	binary.LittleEndian.PutUint16(rec[off+2:off+4], uint16(vl))
	copy(rec[off+4:], e.Value)
	return rec
}

func unmarshalLeafRecord(rec []byte) LeafEntry {
	kl := int(binary.LittleEndian.Uint16(rec[0:2]))
	key := append([]byte{}, rec[2:2+kl]...)
	off := 2 + kl
	flags := binary.LittleEndian.Uint16(rec[off : off+2])
	if flags&leafFlagOverflow != 0 {
		opid := PageID(binary.LittleEndian.Uint32(rec[off+2 : off+6]))
		ts := binary.LittleEndian.Uint32(rec[off+6 : off+10])
		return LeafEntry{Key: key, Overflow: true, OverflowPageID: opid, TotalSize: ts}
	}
	vl := int(binary.LittleEndian.Uint16(rec[off+2 : off+4]))
	val := append([]byte{}, rec[off+4:off+4+vl]...)
	return LeafEntry{Key: key, Value: val}
}

func (n *Node) GetLeafEntry(i int) LeafEntry { return unmarshalLeafRecord(n.getRecord(i)) }

func (n *Node) GetAllLeafEntries() []LeafEntry {
	sc := n.slotCount()
	out := make([]LeafEntry, sc)
	for i := 0; i < sc; i++ {
		out[i] = n.GetLeafEntry(i)
	}
	return out
}

// InsertLeafEntry inserts a key-value pair at its sorted position.
func (n *Node) InsertLeafEntry(e LeafEntry) (int, error) {
	pos := n.searchLeaf(e.Key)
	if err := n.insertRecordAt(pos, marshalLeafRecord(e)); err != nil {
		return -1, err
	}
	n.setKeyCount(n.KeyCount() + 1)
	return pos, nil
}

// DeleteLeafEntry removes the entry at sorted position pos.
func (n *Node) DeleteLeafEntry(pos int) error {
	if pos < 0 || pos >= n.slotCount() {
		return fmt.Errorf("wasp: delete slot %d out of range [0,%d)", pos, n.slotCount())
	}
	n.deleteRecordAt(pos)
	n.setKeyCount(n.KeyCount() - 1)
	return nil
}

func (n *Node) searchLeaf(key []byte) int {
	sc := n.slotCount()
	lo, hi := 0, sc
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(n.GetLeafEntry(mid).Key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FindLeafEntry searches for an exact key match.
func (n *Node) FindLeafEntry(key []byte) (int, bool) {
	pos := n.searchLeaf(key)
	if pos < n.slotCount() && bytes.Equal(n.GetLeafEntry(pos).Key, key) {
		return pos, true
	}
	return -1, false
}
