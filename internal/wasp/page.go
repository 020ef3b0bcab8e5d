// Package wasp implements the paged, copy-on-write storage engine that
// backs every NexusLite collection: a single data file holding fixed-size
// pages, a dual-slot manifest for atomic root publication, a framed
// write-ahead log for crash-consistent commits, and a block cache sitting
// in front of the page file.
//
// The on-disk format consists of a main database file with fixed-size
// pages (default 4 KiB) and a sequential WAL file. Pages 0 and 1 are the
// two manifest slots; every other page is typed (B-tree internal, B-tree
// leaf, overflow, free-list). Every page carries a header with type,
// page ID, LSN, and a CRC32-C checksum. Crash recovery replays committed
// WAL records whose epoch is newer than the published manifest's epoch.
package wasp

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// DefaultPageSize is the default page size in bytes.
	DefaultPageSize = 4096

	// MinPageSize is the minimum allowed page size.
	MinPageSize = 4096

	// MaxPageSize is the maximum allowed page size.
	MaxPageSize = 65536

	// PageHeaderSize is the size of the common page header in bytes.
	//   [0]     PageType   (1 byte)
	//   [1]     Flags      (1 byte)
	//   [2:4]   Reserved   (2 bytes)
	//   [4:8]   PageID     (4 bytes, uint32 LE)
	//   [8:16]  LSN        (8 bytes, uint64 LE)
	//   [16:20] CRC32      (4 bytes, uint32 LE)
	//   [20:32] Reserved   (12 bytes)
	PageHeaderSize = 32

	// InvalidPageID represents a null page pointer.
	InvalidPageID PageID = 0

	// ManifestSlotAPage and ManifestSlotBPage are the two fixed manifest
	// slots; all other page IDs are allocated starting from 2.
	ManifestSlotAPage PageID = 0
	ManifestSlotBPage PageID = 1

	// FirstAllocatablePage is the lowest page ID the allocator may hand out.
	FirstAllocatablePage PageID = 2

	// OverflowThreshold is the inline value size above which a leaf entry
	// spills into an overflow chain. Sized to roughly an eighth of a
	// default-size page's usable leaf space.
	OverflowThreshold = 512
)

// PageType identifies the kind of data stored in a page.
type PageType uint8

const (
	PageTypeManifest      PageType = 0x01
	PageTypeBTreeInternal PageType = 0x02
	PageTypeBTreeLeaf     PageType = 0x03
	PageTypeOverflow      PageType = 0x04
	PageTypeFreeList      PageType = 0x05
)

func (pt PageType) String() string {
	switch pt {
	case PageTypeManifest:
		return "Manifest"
	case PageTypeBTreeInternal:
		return "BTree-Internal"
	case PageTypeBTreeLeaf:
		return "BTree-Leaf"
	case PageTypeOverflow:
		return "Overflow"
	case PageTypeFreeList:
		return "FreeList"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(pt))
	}
}

// PageID is a 32-bit page identifier. Pages 0 and 1 are the manifest slots.
type PageID uint32

// LSN is a monotonically increasing log sequence number.
type LSN uint64

// TxID is a transaction identifier, monotonically increasing per commit.
type TxID uint64

// PageHeader is the 32-byte header present at the start of every page.
type PageHeader struct {
	Type     PageType
	Flags    uint8
	Reserved uint16
	ID       PageID
	LSN      LSN
	CRC      uint32
	Pad      [12]byte
}

// MarshalHeader writes h into the first PageHeaderSize bytes of buf.
func MarshalHeader(h *PageHeader, buf []byte) {
	if len(buf) < PageHeaderSize {
		panic("wasp: buffer too small for PageHeader")
	}
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.ID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.LSN))
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC)
	copy(buf[20:32], h.Pad[:])
}

// UnmarshalHeader reads a PageHeader from the first PageHeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) PageHeader {
	var h PageHeader
	h.Type = PageType(buf[0])
	h.Flags = buf[1]
	h.Reserved = binary.LittleEndian.Uint16(buf[2:4])
	h.ID = PageID(binary.LittleEndian.Uint32(buf[4:8]))
	h.LSN = LSN(binary.LittleEndian.Uint64(buf[8:16]))
	h.CRC = binary.LittleEndian.Uint32(buf[16:20])
	copy(h.Pad[:], buf[20:32])
	return h
}

// HeaderPageID reads just the page ID field without a full unmarshal.
func HeaderPageID(buf []byte) PageID {
	return PageID(binary.LittleEndian.Uint32(buf[4:8]))
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full page, treating the CRC
// field (bytes 16:20) as zero during computation.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:16])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(page[20:])
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	binary.LittleEndian.PutUint32(page[16:20], ComputePageCRC(page))
}

// VerifyPageCRC checks the CRC32-C checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.LittleEndian.Uint32(page[16:20])
	computed := ComputePageCRC(page)
	if stored != computed {
		return fmt.Errorf("%w: page %d stored=%08x computed=%08x",
			ErrChecksumMismatch, HeaderPageID(page), stored, computed)
	}
	return nil
}

// NewPage allocates a zeroed page buffer of the given size and writes its header.
func NewPage(pageSize int, pt PageType, id PageID) []byte {
	buf := make([]byte, pageSize)
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return buf
}

// ValidatePageSize reports whether size is an acceptable page size.
func ValidatePageSize(size int) error {
	if size < MinPageSize || size > MaxPageSize {
		return fmt.Errorf("%w: %d (must be %d..%d)", ErrInvalidPageSize, size, MinPageSize, MaxPageSize)
	}
	return nil
}
