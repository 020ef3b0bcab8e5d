package wasp

import (
	"fmt"
	"sync"
	"time"
)

// DB is the top-level handle to one WASP-backed file: the page store, the
// dual-slot manifest, the write-ahead log, and the block cache, wired
// together for copy-on-write semantics and reader-epoch tracking.
type DB struct {
	mu sync.Mutex // serializes writers; this engine has exactly one writer

	store *Store
	wal   *WAL
	lock  *FileLock

	path         string
	pageSize     int
	manifestSlot PageID // physical slot currently holding the published manifest
	manifest     Manifest
	nextEpoch    uint64
	nextTx       uint64

	readers *readerSet
	closed  bool
}

// OpenOptions configures Open.
type OpenOptions struct {
	PageSize int
	Cache    CacheConfig
	// LockTimeoutMs, if non-zero, makes Open poll for the writer lock instead
	// of failing immediately when another process holds it.
	LockTimeoutMs int
}

// Open opens or creates a WASP database file at path, acquiring the
// single-writer lock and running crash recovery if the WAL holds
// unapplied commits.
func Open(path string, opts OpenOptions) (*DB, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if err := ValidatePageSize(pageSize); err != nil {
		return nil, err
	}

	lockPath := path + ".lock"
	var lock *FileLock
	var err error
	if opts.LockTimeoutMs > 0 {
		lock, err = AcquireFileLockTimeout(lockPath, time.Duration(opts.LockTimeoutMs)*time.Millisecond)
	} else {
		lock, err = AcquireFileLock(lockPath)
	}
	if err != nil {
		return nil, err
	}

	cache := NewCache(opts.Cache)
	store, err := OpenStore(path, pageSize, FirstAllocatablePage, cache)
	if err != nil {
		lock.Release()
		return nil, err
	}

	wal, err := OpenWAL(path + ".wal")
	if err != nil {
		store.Close()
		lock.Release()
		return nil, err
	}

	db := &DB{
		store:   store,
		wal:     wal,
		lock:    lock,
		path:    path,
		pageSize: pageSize,
		readers: newReaderSet(),
	}

	if err := db.bootstrapOrLoad(); err != nil {
		db.closeInternal()
		return nil, err
	}
	if err := db.recoverFromWAL(); err != nil {
		db.closeInternal()
		return nil, err
	}
	cache.StartPurge()
	return db, nil
}

func (db *DB) bootstrapOrLoad() error {
	slotA, errA := db.store.ReadPage(ManifestSlotAPage)
	slotB, errB := db.store.ReadPage(ManifestSlotBPage)

	if errA == nil && errB == nil {
		if a, decErrA := DecodeManifest(slotA); decErrA == nil {
			if b, decErrB := DecodeManifest(slotB); decErrB == nil {
				m, slot, _ := ChoosePublished(a, b)
				db.manifest = *m
				db.manifestSlot = slot
				db.nextEpoch = m.Epoch + 1
				db.store.alloc = NewAllocator(m.NextPageID)
				return nil
			}
			db.manifest = *a
			db.manifestSlot = ManifestSlotAPage
			db.nextEpoch = a.Epoch + 1
			db.store.alloc = NewAllocator(a.NextPageID)
			return nil
		}
		if b, decErrB := DecodeManifest(slotB); decErrB == nil {
			db.manifest = *b
			db.manifestSlot = ManifestSlotBPage
			db.nextEpoch = b.Epoch + 1
			db.store.alloc = NewAllocator(b.NextPageID)
			return nil
		}
	}

	// Fresh database: create an empty tree and publish both slots.
	t := newTxn(0, db.store)
	root := CreateTree(t)
	if err := db.store.WritePages(t.pages()); err != nil {
		return err
	}
	db.manifest = Manifest{
		FormatVersion: manifestVersion,
		PageSize:      uint32(db.pageSize),
		Epoch:         0,
		RootPage:      root,
		FreeListRoot:  InvalidPageID,
		NextPageID:    db.store.alloc.NextPageID(),
		CheckpointLSN: 0,
	}
	bufA := EncodeManifest(&db.manifest, ManifestSlotAPage, db.pageSize)
	bufB := EncodeManifest(&db.manifest, ManifestSlotBPage, db.pageSize)
	if err := db.store.WritePage(ManifestSlotAPage, bufA); err != nil {
		return err
	}
	if err := db.store.WritePage(ManifestSlotBPage, bufB); err != nil {
		return err
	}
	db.manifestSlot = ManifestSlotAPage
	db.nextEpoch = 1
	db.nextTx = 1
	return db.store.Sync()
}

// recoverFromWAL replays any commit records the manifest has not yet
// absorbed, then republishes the manifest and truncates the log. A torn
// tail — a record cut short by a crash mid-append — is discarded rather
// than treated as fatal.
func (db *DB) recoverFromWAL() error {
	records, validOffset, err := db.wal.ReadAll()
	if err != nil {
		return err
	}
	applied := false
	for _, rec := range records {
		if rec.Epoch <= db.manifest.Epoch {
			continue // already reflected in the published manifest
		}
		if err := db.store.WritePages(rec.Pages); err != nil {
			return fmt.Errorf("replay tx %d: %w", rec.TxID, err)
		}
		db.manifest.RootPage = rec.NewRoot
		db.manifest.Epoch = rec.Epoch
		db.manifest.NextPageID = db.store.alloc.NextPageID()
		applied = true
		if uint64(rec.TxID) >= db.nextTx {
			db.nextTx = uint64(rec.TxID) + 1
		}
	}
	if applied {
		if err := db.publishManifest(); err != nil {
			return err
		}
	}
	if err := db.wal.TruncateTornTail(validOffset); err != nil {
		return err
	}
	return db.wal.Truncate()
}

func (db *DB) publishManifest() error {
	target := OtherSlot(db.manifestSlot)
	buf := EncodeManifest(&db.manifest, target, db.pageSize)
	if err := db.store.WritePage(target, buf); err != nil {
		return err
	}
	if err := db.store.Sync(); err != nil {
		return err
	}
	db.manifestSlot = target
	return nil
}

// Root returns the currently published B-tree root page.
func (db *DB) Root() PageID {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.manifest.RootPage
}

// PageSize returns the configured page size.
func (db *DB) PageSize() int { return db.pageSize }

// Store exposes the underlying page store for read-only traversal helpers
// in the engine layer (Get/ScanRange operate directly on *Store).
func (db *DB) Store() *Store { return db.store }

// BeginReader registers a new reader epoch, returning a token to pass to
// EndReader once the read is done. Held epochs block page reclamation.
func (db *DB) BeginReader() uint64 {
	db.mu.Lock()
	epoch := db.manifest.Epoch
	db.mu.Unlock()
	db.readers.add(epoch)
	return epoch
}

// EndReader releases a reader epoch registered by BeginReader.
func (db *DB) EndReader(epoch uint64) { db.readers.remove(epoch) }

// Mutate runs fn against a fresh Txn rooted at the current published root
// and, on success, durably commits the result as the new published root.
// Exactly one mutation runs at a time (single-writer).
func (db *DB) Mutate(fn func(t *Txn, root PageID) (PageID, error)) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	txID := TxID(db.nextTx)
	db.nextTx++
	t := newTxn(txID, db.store)

	newRoot, err := fn(t, db.manifest.RootPage)
	if err != nil {
		return err
	}

	epoch := db.nextEpoch
	db.nextEpoch++

	rec := WALRecord{TxID: txID, NewRoot: newRoot, Epoch: epoch, Pages: t.pages()}
	if err := db.wal.Append(rec); err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	if err := db.store.WritePages(t.pages()); err != nil {
		return fmt.Errorf("write dirty pages: %w", err)
	}

	db.manifest.RootPage = newRoot
	db.manifest.Epoch = epoch
	db.manifest.NextPageID = db.store.alloc.NextPageID()
	for _, pid := range t.freed {
		db.store.alloc.Free(pid, epoch)
		db.store.InvalidateCache(pid)
	}

	return db.publishManifest()
}

// Checkpoint forces a manifest publish (already current after every
// Mutate), reclaims any pages that are now provably unreachable by any
// open reader, persists the free list, and truncates the WAL. Run on
// demand since every commit already publishes durably.
func (db *DB) Checkpoint() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	minReader := db.readers.min()
	reclaimBound := db.manifest.Epoch
	if minReader == noReaders {
		minReader = db.manifest.Epoch
	}
	db.store.alloc.Reclaim(reclaimBound, minReader)

	if err := db.persistFreeList(); err != nil {
		return err
	}
	if err := db.publishManifest(); err != nil {
		return err
	}
	return db.wal.Truncate()
}

func (db *DB) persistFreeList() error {
	free, _ := db.store.alloc.Snapshot()
	if len(free) == 0 {
		db.manifest.FreeListRoot = InvalidPageID
		return nil
	}

	t := newTxn(TxID(db.nextTx), db.store)
	db.nextTx++

	capacityPerPage := (db.pageSize - freeListDataOff) / 4
	var headID PageID = InvalidPageID
	var prevID PageID = InvalidPageID
	for off := 0; off < len(free); off += capacityPerPage {
		end := off + capacityPerPage
		if end > len(free) {
			end = len(free)
		}
		id := t.alloc()
		buf := NewPage(db.pageSize, PageTypeFreeList, id)
		fl := InitFreeListPage(buf, id)
		fl.SetPageIDs(free[off:end])
		t.put(id, fl.Bytes())
		if headID == InvalidPageID {
			headID = id
		}
		if prevID != InvalidPageID {
			prevBuf, _ := t.getRaw(prevID)
			prevFL := WrapFreeListPage(prevBuf)
			prevFL.SetNextFreeList(id)
			t.put(prevID, prevFL.Bytes())
		}
		prevID = id
	}
	if err := db.store.WritePages(t.pages()); err != nil {
		return err
	}
	db.manifest.FreeListRoot = headID
	return nil
}

func (db *DB) closeInternal() error {
	db.closed = true
	var firstErr error
	if db.wal != nil {
		if err := db.wal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if db.store != nil {
		if err := db.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if db.lock != nil {
		if err := db.lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close checkpoints, then releases the writer lock and closes all files.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.mu.Unlock()

	if err := db.Checkpoint(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closeInternal()
}

// ───────────────────────────────────────────────────────────────────────────
// Reader epoch tracking
// ───────────────────────────────────────────────────────────────────────────

const noReaders = ^uint64(0)

// readerSet tracks the epochs of currently open readers so Checkpoint can
// compute the oldest epoch still in use before reclaiming freed pages.
type readerSet struct {
	mu     sync.Mutex
	counts map[uint64]int
}

func newReaderSet() *readerSet { return &readerSet{counts: make(map[uint64]int)} }

func (r *readerSet) add(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[epoch]++
}

func (r *readerSet) remove(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts[epoch] <= 1 {
		delete(r.counts, epoch)
	} else {
		r.counts[epoch]--
	}
}

// min returns the oldest epoch with an open reader, or noReaders if none.
func (r *readerSet) min() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := noReaders
	for epoch := range r.counts {
		if epoch < m {
			m = epoch
		}
	}
	return m
}
