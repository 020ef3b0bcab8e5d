package wasp

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Manifest — dual-slot root pointer with epoch precedence
// ───────────────────────────────────────────────────────────────────────────
//
// Page 0 and page 1 alternate as the published manifest. Each publish
// writes the *other* slot (never the one a reader might currently be
// reading) and bumps Epoch. On open, whichever valid slot has the higher
// epoch wins; if one slot fails CRC validation the other is authoritative
// outright, giving atomic, torn-write-tolerant root publication without
// ever touching the slot the last reader saw.
//
// Layout (after the common PageHeader):
//   [32:36]  Magic         ("WASP" in ASCII)
//   [36:38]  FormatVersion (uint16 LE)
//   [38:42]  FeatureFlags  (uint32 LE, bitmask)
//   [42:46]  PageSize      (uint32 LE)
//   [46:54]  Epoch         (uint64 LE)
//   [54:58]  RootPage      (uint32 LE) — B-tree root
//   [58:62]  FreeListRoot  (uint32 LE) — head of persisted free chain
//   [62:70]  NextPageID    (uint64 LE) — allocator high-water mark
//   [70:78]  CheckpointLSN (uint64 LE) — WAL records at/below this are durable
//   [78:86]  DocCount      (uint64 LE) — advisory total live documents
//   [86:90]  CollRoot      (uint32 LE) — collection directory root (0 = none)

const (
	manifestMagicOff     = PageHeaderSize
	manifestVersionOff   = manifestMagicOff + 4
	manifestFlagsOff     = manifestVersionOff + 2
	manifestPageSizeOff  = manifestFlagsOff + 4
	manifestEpochOff     = manifestPageSizeOff + 4
	manifestRootOff      = manifestEpochOff + 8
	manifestFreeRootOff  = manifestRootOff + 4
	manifestNextPageOff  = manifestFreeRootOff + 4
	manifestCheckLSNOff  = manifestNextPageOff + 8
	manifestDocCountOff  = manifestCheckLSNOff + 8
	manifestCollRootOff  = manifestDocCountOff + 8
	manifestCurrentMagic = "WASP"
	manifestVersion      = 1
)

// Manifest is the decoded, in-memory form of one manifest slot.
type Manifest struct {
	FormatVersion uint16
	FeatureFlags  uint32
	PageSize      uint32
	Epoch         uint64
	RootPage      PageID
	FreeListRoot  PageID
	NextPageID    PageID
	CheckpointLSN LSN
	DocCount      uint64
	CollRoot      PageID
}

// EncodeManifest serializes m into a zeroed page buffer of the given slot.
func EncodeManifest(m *Manifest, slot PageID, pageSize int) []byte {
	buf := make([]byte, pageSize)
	MarshalHeader(&PageHeader{Type: PageTypeManifest, ID: slot}, buf)
	copy(buf[manifestMagicOff:], manifestCurrentMagic)
	binary.LittleEndian.PutUint16(buf[manifestVersionOff:], m.FormatVersion)
	binary.LittleEndian.PutUint32(buf[manifestFlagsOff:], m.FeatureFlags)
	binary.LittleEndian.PutUint32(buf[manifestPageSizeOff:], m.PageSize)
	binary.LittleEndian.PutUint64(buf[manifestEpochOff:], m.Epoch)
	binary.LittleEndian.PutUint32(buf[manifestRootOff:], uint32(m.RootPage))
	binary.LittleEndian.PutUint32(buf[manifestFreeRootOff:], uint32(m.FreeListRoot))
	binary.LittleEndian.PutUint64(buf[manifestNextPageOff:], uint64(m.NextPageID))
	binary.LittleEndian.PutUint64(buf[manifestCheckLSNOff:], uint64(m.CheckpointLSN))
	binary.LittleEndian.PutUint64(buf[manifestDocCountOff:], m.DocCount)
	binary.LittleEndian.PutUint32(buf[manifestCollRootOff:], uint32(m.CollRoot))
	SetPageCRC(buf)
	return buf
}

// DecodeManifest validates and parses one manifest slot. Returns
// ErrChecksumMismatch or a magic/version error if the slot is unusable.
func DecodeManifest(buf []byte) (*Manifest, error) {
	if err := VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	h := UnmarshalHeader(buf)
	if h.Type != PageTypeManifest {
		return nil, fmt.Errorf("%w: slot page type is %s, not Manifest", ErrManifestCorrupt, h.Type)
	}
	if string(buf[manifestMagicOff:manifestMagicOff+4]) != manifestCurrentMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrManifestCorrupt)
	}
	m := &Manifest{
		FormatVersion: binary.LittleEndian.Uint16(buf[manifestVersionOff:]),
		FeatureFlags:  binary.LittleEndian.Uint32(buf[manifestFlagsOff:]),
		PageSize:      binary.LittleEndian.Uint32(buf[manifestPageSizeOff:]),
		Epoch:         binary.LittleEndian.Uint64(buf[manifestEpochOff:]),
		RootPage:      PageID(binary.LittleEndian.Uint32(buf[manifestRootOff:])),
		FreeListRoot:  PageID(binary.LittleEndian.Uint32(buf[manifestFreeRootOff:])),
		NextPageID:    PageID(binary.LittleEndian.Uint64(buf[manifestNextPageOff:])),
		CheckpointLSN: LSN(binary.LittleEndian.Uint64(buf[manifestCheckLSNOff:])),
		DocCount:      binary.LittleEndian.Uint64(buf[manifestDocCountOff:]),
		CollRoot:      PageID(binary.LittleEndian.Uint32(buf[manifestCollRootOff:])),
	}
	if m.FormatVersion > manifestVersion {
		return nil, fmt.Errorf("%w: format version %d newer than supported %d",
			ErrManifestCorrupt, m.FormatVersion, manifestVersion)
	}
	return m, nil
}

// ReadBothSlots decodes both manifest slots from raw page buffers, returning
// nil for any slot that fails validation rather than erroring out — the
// caller decides precedence.
func ReadBothSlots(slotA, slotB []byte) (a, b *Manifest) {
	if m, err := DecodeManifest(slotA); err == nil {
		a = m
	}
	if m, err := DecodeManifest(slotB); err == nil {
		b = m
	}
	return a, b
}

// ChoosePublished picks the manifest with the higher epoch among two
// decoded (possibly nil) slots, and reports which physical slot it lives
// in so the next publish targets the other one.
func ChoosePublished(a, b *Manifest) (m *Manifest, slot PageID, err error) {
	switch {
	case a == nil && b == nil:
		return nil, 0, ErrManifestCorrupt
	case a == nil:
		return b, ManifestSlotBPage, nil
	case b == nil:
		return a, ManifestSlotAPage, nil
	case a.Epoch >= b.Epoch:
		return a, ManifestSlotAPage, nil
	default:
		return b, ManifestSlotBPage, nil
	}
}

// OtherSlot returns the manifest slot not currently holding the published
// manifest — the next publish always targets this one.
func OtherSlot(published PageID) PageID {
	if published == ManifestSlotAPage {
		return ManifestSlotBPage
	}
	return ManifestSlotAPage
}

// ConsistencyReport summarizes a verify_manifests pass over both slots.
type ConsistencyReport struct {
	SlotAValid   bool
	SlotBValid   bool
	SlotAEpoch   uint64
	SlotBEpoch   uint64
	Published    PageID
	NeedsRepair  bool
	RepairDetail string
}

// CheckConsistency inspects both slots without mutating anything.
func CheckConsistency(slotA, slotB []byte) ConsistencyReport {
	a, b := ReadBothSlots(slotA, slotB)
	rep := ConsistencyReport{SlotAValid: a != nil, SlotBValid: b != nil}
	if a != nil {
		rep.SlotAEpoch = a.Epoch
	}
	if b != nil {
		rep.SlotBEpoch = b.Epoch
	}
	if !rep.SlotAValid && !rep.SlotBValid {
		rep.NeedsRepair = true
		rep.RepairDetail = "both manifest slots failed validation"
		return rep
	}
	if !rep.SlotAValid || !rep.SlotBValid {
		rep.NeedsRepair = true
		rep.RepairDetail = "one manifest slot failed validation; repair will duplicate the valid slot"
	}
	m, slot, _ := ChoosePublished(a, b)
	if m != nil {
		rep.Published = slot
	}
	return rep
}

// RepairManifests duplicates the valid/newer slot over the broken/older one,
// returning the repaired manifest and the page buffer to write to the
// broken slot.
func RepairManifests(slotA, slotB []byte, pageSize int) (repaired *Manifest, fixBuf []byte, fixSlot PageID, err error) {
	a, b := ReadBothSlots(slotA, slotB)
	m, goodSlot, chooseErr := ChoosePublished(a, b)
	if chooseErr != nil {
		return nil, nil, 0, chooseErr
	}
	brokenSlot := OtherSlot(goodSlot)
	// The repaired copy keeps the good slot's epoch, so both slots then
	// hold the same manifest.
	repairedManifest := *m
	repairedManifest.Epoch = m.Epoch
	return &repairedManifest, EncodeManifest(&repairedManifest, brokenSlot, pageSize), brokenSlot, nil
}
