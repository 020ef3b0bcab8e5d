package wasp

import (
	"fmt"
	"os"
	"sync"
)

// Store is the raw page file: fixed-size slot reads/writes plus the page
// allocator. It knows nothing about B-tree shape, transactions, or the
// WAL — those live in Txn and DB. File-handling is split out on its own
// so the cache can sit cleanly in front of it.
type Store struct {
	mu       sync.RWMutex
	file     *os.File
	pageSize int
	alloc    *Allocator
	cache    *Cache
}

// OpenStore opens (or creates, growing to at least 2 pages for the
// manifest slots) the backing file.
func OpenStore(path string, pageSize int, nextPageID PageID, cache *Cache) (*Store, error) {
	if err := ValidatePageSize(pageSize); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st := &Store{file: f, pageSize: pageSize, alloc: NewAllocator(nextPageID), cache: cache}
	if err := st.ensureMinSize(); err != nil {
		f.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) ensureMinSize() error {
	info, err := s.file.Stat()
	if err != nil {
		return err
	}
	minSize := int64(2 * s.pageSize)
	if info.Size() < minSize {
		return s.file.Truncate(minSize)
	}
	return nil
}

// PageSize returns the store's fixed page size.
func (s *Store) PageSize() int { return s.pageSize }

// Allocator exposes the underlying block allocator.
func (s *Store) Allocator() *Allocator { return s.alloc }

// ReadPage reads a page's raw bytes, consulting the cache first and
// verifying its checksum on a cold read.
func (s *Store) ReadPage(id PageID) ([]byte, error) {
	if s.cache != nil {
		if buf, ok := s.cache.Get(id); ok {
			return buf, nil
		}
	}
	s.mu.RLock()
	buf := make([]byte, s.pageSize)
	_, err := s.file.ReadAt(buf, int64(id)*int64(s.pageSize))
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", id, err)
	}
	if err := VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(id, buf)
	}
	return buf, nil
}

// WritePage writes one page's bytes at its slot, without fsync, and
// refreshes the cache. The caller must have already set the page's CRC.
func (s *Store) WritePage(id PageID, buf []byte) error {
	s.mu.Lock()
	_, err := s.file.WriteAt(buf, int64(id)*int64(s.pageSize))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	if s.cache != nil {
		s.cache.Put(id, append([]byte{}, buf...))
	}
	return nil
}

// WritePages writes a batch of pages and fsyncs once at the end.
func (s *Store) WritePages(pages []WALPageImage) error {
	for _, p := range pages {
		if err := s.WritePage(p.ID, p.Data); err != nil {
			return err
		}
	}
	return s.Sync()
}

// Sync fsyncs the page file.
func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Sync()
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.file.Close()
}

// InvalidateCache drops a page from the cache, e.g. once it has been freed
// and should no longer be served to new readers.
func (s *Store) InvalidateCache(id PageID) {
	if s.cache != nil {
		s.cache.Remove(id)
	}
}
