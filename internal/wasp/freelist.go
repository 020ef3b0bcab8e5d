package wasp

import (
	"encoding/binary"
	"sort"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// Block allocator
// ───────────────────────────────────────────────────────────────────────────
//
// Because the B-tree is copy-on-write, a page released by a mutation cannot
// be handed back out immediately: a reader that began before the mutation's
// manifest publish may still be walking the old tree shape and could read a
// page the allocator has already reused for something else. A released page
// therefore sits in a pending set, tagged with the epoch at which it was
// freed, until both:
//
//   1. the manifest slot that stopped referencing it has been published
//      (the freeing transaction's epoch is <= the published epoch), and
//   2. every reader epoch active at the time of release has drained
//      (every open reader's epoch is at or after the freeing epoch).
//
// Only then does Reclaim() move the page from pending to free, where Alloc
// can hand it out again. The epoch gate exists because concurrent readers
// can hold a root that predates the freeing transaction.

// pendingFree records a page released at a specific epoch.
type pendingFree struct {
	page  PageID
	epoch uint64
}

// Allocator manages page-ID allocation and epoch-gated reuse.
type Allocator struct {
	mu      sync.Mutex
	next    PageID        // high-water mark for brand-new pages
	free    []PageID      // immediately reusable pages
	pending []pendingFree // released but not yet safe to reuse
}

// NewAllocator creates an allocator whose first new page is `next`.
func NewAllocator(next PageID) *Allocator {
	if next < FirstAllocatablePage {
		next = FirstAllocatablePage
	}
	return &Allocator{next: next}
}

// Alloc returns a fresh page ID, preferring a reclaimed page over growing
// the file.
func (a *Allocator) Alloc() PageID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.free); n > 0 {
		pid := a.free[n-1]
		a.free = a.free[:n-1]
		return pid
	}
	pid := a.next
	a.next++
	return pid
}

// Free marks pid as released as of the given epoch. It is not reusable
// until Reclaim later proves it safe.
func (a *Allocator) Free(pid PageID, epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, pendingFree{page: pid, epoch: epoch})
}

// Reclaim moves pending pages into the reusable free list once both the
// manifest publish epoch and the minimum active reader epoch have passed
// the page's free epoch. minReaderEpoch should be the oldest epoch among
// currently open readers, or publishedEpoch+1 if none are open.
func (a *Allocator) Reclaim(publishedEpoch, minReaderEpoch uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	safeBound := publishedEpoch
	if minReaderEpoch < safeBound {
		safeBound = minReaderEpoch
	}
	var keep []pendingFree
	reclaimed := 0
	for _, pf := range a.pending {
		if pf.epoch <= safeBound {
			a.free = append(a.free, pf.page)
			reclaimed++
		} else {
			keep = append(keep, pf)
		}
	}
	a.pending = keep
	return reclaimed
}

// Count returns the number of immediately reusable pages.
func (a *Allocator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// PendingCount returns the number of pages awaiting epoch clearance.
func (a *Allocator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// NextPageID returns the allocator's high-water mark.
func (a *Allocator) NextPageID() PageID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Snapshot returns the reusable page IDs, sorted, and a copy of the
// pending entries; checkpoint persists only the reusable IDs into
// FreeList chain pages.
func (a *Allocator) Snapshot() (free []PageID, pending []pendingFree) {
	a.mu.Lock()
	defer a.mu.Unlock()
	free = append([]PageID{}, a.free...)
	pending = append([]pendingFree{}, a.pending...)
	sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })
	return free, pending
}

// ───────────────────────────────────────────────────────────────────────────
// FreeList chain pages — on-disk persistence of the free set
// ───────────────────────────────────────────────────────────────────────────
//
//   [32:36] NextFreeList (uint32 LE), 0 = end of chain
//   [36:40] Count        (uint32 LE)
//   [40:..] Count * 4 bytes of PageID

const (
	freeListNextOff  = PageHeaderSize
	freeListCountOff = freeListNextOff + 4
	freeListDataOff  = freeListCountOff + 4
)

// FreeListPage wraps a page buffer as one link of the persisted free chain.
type FreeListPage struct {
	buf      []byte
	pageSize int
}

func WrapFreeListPage(buf []byte) *FreeListPage {
	return &FreeListPage{buf: buf, pageSize: len(buf)}
}

func InitFreeListPage(buf []byte, id PageID) *FreeListPage {
	MarshalHeader(&PageHeader{Type: PageTypeFreeList, ID: id}, buf)
	binary.LittleEndian.PutUint32(buf[freeListNextOff:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint32(buf[freeListCountOff:], 0)
	return &FreeListPage{buf: buf, pageSize: len(buf)}
}

func (fl *FreeListPage) NextFreeList() PageID {
	return PageID(binary.LittleEndian.Uint32(fl.buf[freeListNextOff:]))
}

func (fl *FreeListPage) SetNextFreeList(pid PageID) {
	binary.LittleEndian.PutUint32(fl.buf[freeListNextOff:], uint32(pid))
}

// Capacity returns how many page IDs fit in a single free-list page.
func (fl *FreeListPage) Capacity() int { return (fl.pageSize - freeListDataOff) / 4 }

// SetPageIDs writes up to Capacity() page IDs into this page.
func (fl *FreeListPage) SetPageIDs(ids []PageID) {
	n := len(ids)
	if n > fl.Capacity() {
		n = fl.Capacity()
	}
	binary.LittleEndian.PutUint32(fl.buf[freeListCountOff:], uint32(n))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(fl.buf[freeListDataOff+i*4:], uint32(ids[i]))
	}
}

// PageIDs returns the page IDs stored in this page.
func (fl *FreeListPage) PageIDs() []PageID {
	n := int(binary.LittleEndian.Uint32(fl.buf[freeListCountOff:]))
	out := make([]PageID, n)
	for i := 0; i < n; i++ {
		out[i] = PageID(binary.LittleEndian.Uint32(fl.buf[freeListDataOff+i*4:]))
	}
	return out
}

func (fl *FreeListPage) Bytes() []byte { return fl.buf }
