package wasp

// Txn accumulates the fresh page images a single copy-on-write mutation
// produces, plus the set of pages it made obsolete. Nothing is written to
// the store until DB.Mutate writes them — every node on a mutated root-to-leaf path is
// built in memory against a brand-new page ID, never overwriting the page
// it replaces, so a concurrent reader holding the previous manifest root
// keeps seeing a fully consistent tree throughout the mutation.
type Txn struct {
	id       TxID
	store    *Store
	dirty    map[PageID][]byte
	freed    []PageID
	dirtyOrd []PageID // preserves write order for deterministic WAL records
}

// newTxn starts a transaction against store, identified by id.
func newTxn(id TxID, store *Store) *Txn {
	return &Txn{id: id, store: store, dirty: make(map[PageID][]byte)}
}

// alloc reserves a fresh page ID for this transaction.
func (t *Txn) alloc() PageID {
	return t.store.alloc.Alloc()
}

// put stages a page image to be written at commit time.
func (t *Txn) put(id PageID, buf []byte) {
	SetPageCRC(buf)
	if _, exists := t.dirty[id]; !exists {
		t.dirtyOrd = append(t.dirtyOrd, id)
	}
	t.dirty[id] = buf
}

// free marks a page obsolete as of this transaction. It is not reused
// until the allocator proves no reader can still reach it.
func (t *Txn) free(id PageID) {
	t.freed = append(t.freed, id)
}

// get reads a page as a B-tree node, preferring this transaction's own
// uncommitted writes (needed when a single mutation touches the same page
// twice, e.g. a freshly split sibling).
func (t *Txn) get(id PageID) (*Node, error) {
	buf, err := t.getRaw(id)
	if err != nil {
		return nil, err
	}
	return WrapNode(buf), nil
}

// getRaw reads a page's bytes without assuming its page type, preferring
// this transaction's own uncommitted writes.
func (t *Txn) getRaw(id PageID) ([]byte, error) {
	if buf, ok := t.dirty[id]; ok {
		return buf, nil
	}
	return t.store.ReadPage(id)
}

// pages returns the staged page images in write order.
func (t *Txn) pages() []WALPageImage {
	out := make([]WALPageImage, 0, len(t.dirtyOrd))
	for _, id := range t.dirtyOrd {
		out = append(out, WALPageImage{ID: id, Data: t.dirty[id]})
	}
	return out
}
