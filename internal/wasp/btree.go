package wasp

import "bytes"

// ───────────────────────────────────────────────────────────────────────────
// Copy-on-write B-tree
// ───────────────────────────────────────────────────────────────────────────
//
// Every mutation rebuilds the entire root-to-leaf path with fresh page
// IDs: a leaf is copied, modified, and staged under a new ID; each
// ancestor is likewise copied so its child pointer can be updated to the
// new child ID, all the way to a new root. The old path's pages are
// marked freed (epoch-gated — see freelist.go) but never touched, so a
// reader still holding the previous root observes the pre-mutation tree
// exactly as it was, unlike an in-place update scheme that mutates leaf
// and internal pages directly.
//
// Deletion removes the key from its leaf but does not merge underfull
// siblings or collapse the tree — acceptable because WASP pages hold
// hundreds of small document-index entries, so underfilled nodes are rare.
// A leaf that becomes wholly empty stays in the tree.

// CreateTree allocates and stages a brand-new, empty leaf root.
func CreateTree(t *Txn) PageID {
	id := t.alloc()
	buf := NewPage(t.store.PageSize(), PageTypeBTreeLeaf, id)
	InitNode(buf, id, true)
	t.put(id, buf)
	return id
}

// Get performs a read-only point lookup. It never allocates and talks
// directly to the store so plain reads need no transaction.
func Get(store *Store, root PageID, key []byte) ([]byte, bool, error) {
	pid := root
	for {
		buf, err := store.ReadPage(pid)
		if err != nil {
			return nil, false, err
		}
		n := WrapNode(buf)
		if n.IsLeaf() {
			idx, found := n.FindLeafEntry(key)
			if !found {
				return nil, false, nil
			}
			e := n.GetLeafEntry(idx)
			if !e.Overflow {
				return e.Value, true, nil
			}
			val, err := readOverflowChain(store, e.OverflowPageID, e.TotalSize)
			return val, true, err
		}
		pid = n.FindChild(key)
	}
}

// ScanRange walks leaf entries in [start, end) in key order, calling fn for
// each. A nil end means "no upper bound". Stops early if fn returns false.
func ScanRange(store *Store, root PageID, start, end []byte, fn func(key, value []byte) bool) error {
	pid := root
	var next []byte // smallest separator above start on this descent; nil at the right edge
	for {
		buf, err := store.ReadPage(pid)
		if err != nil {
			return err
		}
		n := WrapNode(buf)
		if !n.IsLeaf() {
			for i := n.slotCount() - 1; i >= 0 && bytes.Compare(start, n.GetInternalEntry(i).Key) < 0; i-- {
				next = append([]byte(nil), n.GetInternalEntry(i).Key...)
			}
			pid = n.FindChild(start)
			continue
		}
		entries := n.GetAllLeafEntries()
		for _, e := range entries {
			if bytes.Compare(e.Key, start) < 0 {
				continue
			}
			if end != nil && bytes.Compare(e.Key, end) >= 0 {
				return nil
			}
			val := e.Value
			if e.Overflow {
				val, err = readOverflowChain(store, e.OverflowPageID, e.TotalSize)
				if err != nil {
					return err
				}
			}
			if !fn(e.Key, val) {
				return nil
			}
		}
		// Re-descend from the root rather than follow NextLeaf: a CoW rewrite
		// of a leaf leaves its left sibling pointing at the superseded copy.
		if next == nil || (end != nil && bytes.Compare(next, end) >= 0) {
			return nil
		}
		start, pid, next = next, root, nil
	}
}

// splitResult describes a node that had to split during a CoW rewrite.
type splitResult struct {
	leftID   PageID
	sepKey   []byte
	rightID  PageID
	didSplit bool
}

// Insert upserts key/value under root within txn, returning the new root.
func Insert(t *Txn, root PageID, key, value []byte) (PageID, error) {
	res, err := insertRec(t, root, key, value)
	if err != nil {
		return root, err
	}
	if !res.didSplit {
		return res.leftID, nil
	}
	// Root split: create a fresh internal root with two children.
	newRootID := t.alloc()
	buf := NewPage(t.store.PageSize(), PageTypeBTreeInternal, newRootID)
	rootNode := InitNode(buf, newRootID, false)
	if err := rootNode.InsertInternalEntry(InternalEntry{ChildID: res.leftID, Key: res.sepKey}); err != nil {
		return root, err
	}
	rootNode.SetRightChild(res.rightID)
	t.put(newRootID, rootNode.Bytes())
	return newRootID, nil
}

func insertRec(t *Txn, pid PageID, key, value []byte) (splitResult, error) {
	old, err := t.get(pid)
	if err != nil {
		return splitResult{}, err
	}

	if old.IsLeaf() {
		return insertLeaf(t, old, key, value)
	}
	return insertInternal(t, old, key, value)
}

func insertLeaf(t *Txn, old *Node, key, value []byte) (splitResult, error) {
	newID := t.alloc()
	buf := append([]byte{}, old.Bytes()...)
	n := WrapNode(buf)

	entry := LeafEntry{Key: key, Value: value}
	if len(value) > OverflowThreshold {
		headID, err := writeOverflowChain(t, value)
		if err != nil {
			return splitResult{}, err
		}
		entry = LeafEntry{Key: key, Overflow: true, OverflowPageID: headID, TotalSize: uint32(len(value))}
	}

	if pos, found := n.FindLeafEntry(key); found {
		old := n.GetLeafEntry(pos)
		if old.Overflow {
			freeOverflowChain(t, old.OverflowPageID)
		}
		_ = n.DeleteLeafEntry(pos)
	}

	if _, err := n.InsertLeafEntry(entry); err == nil {
		t.free(old.PageID())
		t.put(newID, n.Bytes())
		return splitResult{leftID: newID}, nil
	}

	// Page full — split the (already copied) leaf.
	return splitLeafAndInsert(t, old, entry)
}

func splitLeafAndInsert(t *Txn, old *Node, entry LeafEntry) (splitResult, error) {
	all := old.GetAllLeafEntries()
	// Merge entry into sorted order.
	merged := make([]LeafEntry, 0, len(all)+1)
	inserted := false
	for _, e := range all {
		if !inserted && bytes.Compare(entry.Key, e.Key) < 0 {
			merged = append(merged, entry)
			inserted = true
		}
		if bytes.Equal(e.Key, entry.Key) {
			continue // superseded by entry
		}
		merged = append(merged, e)
	}
	if !inserted {
		merged = append(merged, entry)
	}

	mid := len(merged) / 2
	leftEntries, rightEntries := merged[:mid], merged[mid:]

	leftID := t.alloc()
	rightID := t.alloc()
	leftBuf := NewPage(t.store.PageSize(), PageTypeBTreeLeaf, leftID)
	rightBuf := NewPage(t.store.PageSize(), PageTypeBTreeLeaf, rightID)
	leftNode := InitNode(leftBuf, leftID, true)
	rightNode := InitNode(rightBuf, rightID, true)

	for _, e := range leftEntries {
		if _, err := leftNode.InsertLeafEntry(e); err != nil {
			return splitResult{}, err
		}
	}
	for _, e := range rightEntries {
		if _, err := rightNode.InsertLeafEntry(e); err != nil {
			return splitResult{}, err
		}
	}

	leftNode.SetNextLeaf(rightID)
	rightNode.SetPrevLeaf(leftID)
	rightNode.SetNextLeaf(old.NextLeaf())
	leftNode.SetPrevLeaf(old.PrevLeaf())

	t.free(old.PageID())
	t.put(leftID, leftNode.Bytes())
	t.put(rightID, rightNode.Bytes())

	return splitResult{leftID: leftID, sepKey: rightEntries[0].Key, rightID: rightID, didSplit: true}, nil
}

func insertInternal(t *Txn, old *Node, key, value []byte) (splitResult, error) {
	childID := old.FindChild(key)
	childRes, err := insertRec(t, childID, key, value)
	if err != nil {
		return splitResult{}, err
	}

	newID := t.alloc()
	buf := append([]byte{}, old.Bytes()...)
	n := WrapNode(buf)

	if !childRes.didSplit {
		replaceChildPointer(n, childID, childRes.leftID)
		t.free(old.PageID())
		t.put(newID, n.Bytes())
		return splitResult{leftID: newID}, nil
	}

	// The child split into (leftID holding the lower range, sepKey,
	// rightID holding the upper range). The slot that used to point at
	// childID covered the whole range, so it now covers only the upper
	// half and must point at rightID; a fresh separator entry for the
	// lower half (leftID) is inserted immediately before it.
	replaceChildPointer(n, childID, childRes.rightID)
	newEntry := InternalEntry{ChildID: childRes.leftID, Key: childRes.sepKey}
	if err := n.InsertInternalEntry(newEntry); err == nil {
		t.free(old.PageID())
		t.put(newID, n.Bytes())
		return splitResult{leftID: newID}, nil
	}

	return splitInternalAndInsert(t, old, n, newEntry)
}

// replaceChildPointer updates every entry pointing at oldChild to point at
// newChild, including the trailing RightChild slot. Because n already
// holds a fresh CoW copy of the page bytes, this rewrites that copy in
// place — it never touches the page old was read from.
func replaceChildPointer(n *Node, oldChild, newChild PageID) {
	entries := n.GetAllInternalEntries()
	for i, e := range entries {
		if e.ChildID == oldChild {
			entries[i].ChildID = newChild
		}
	}
	rightChild := n.RightChild()
	if rightChild == oldChild {
		rightChild = newChild
	}
	fresh := InitNode(n.Bytes(), n.PageID(), false)
	for _, e := range entries {
		_ = fresh.InsertInternalEntry(e)
	}
	fresh.SetRightChild(rightChild)
}

// splitInternalAndInsert splits n (which already has childID remapped to
// the split child's upper half) after newEntry failed to fit, promoting
// the middle separator into the parent level.
func splitInternalAndInsert(t *Txn, old, n *Node, newEntry InternalEntry) (splitResult, error) {
	entries := n.GetAllInternalEntries()
	rightChild := n.RightChild()

	merged := make([]InternalEntry, 0, len(entries)+1)
	inserted := false
	for _, e := range entries {
		if !inserted && bytes.Compare(newEntry.Key, e.Key) < 0 {
			merged = append(merged, newEntry)
			inserted = true
		}
		merged = append(merged, e)
	}
	if !inserted {
		merged = append(merged, newEntry)
	}

	mid := len(merged) / 2
	promoted := merged[mid]
	leftEntries := merged[:mid]
	rightEntries := merged[mid+1:]

	leftID := t.alloc()
	rightID := t.alloc()
	leftBuf := NewPage(t.store.PageSize(), PageTypeBTreeInternal, leftID)
	rightBuf := NewPage(t.store.PageSize(), PageTypeBTreeInternal, rightID)
	leftNode := InitNode(leftBuf, leftID, false)
	rightNode := InitNode(rightBuf, rightID, false)

	for _, e := range leftEntries {
		_ = leftNode.InsertInternalEntry(e)
	}
	leftNode.SetRightChild(promoted.ChildID)
	for _, e := range rightEntries {
		_ = rightNode.InsertInternalEntry(e)
	}
	rightNode.SetRightChild(rightChild)

	t.free(old.PageID())
	t.put(leftID, leftNode.Bytes())
	t.put(rightID, rightNode.Bytes())

	return splitResult{leftID: leftID, sepKey: promoted.Key, rightID: rightID, didSplit: true}, nil
}

// Delete removes key from the tree, returning the new root and whether the
// key was present.
func Delete(t *Txn, root PageID, key []byte) (PageID, bool, error) {
	newRoot, found, err := deleteRec(t, root, key)
	return newRoot, found, err
}

func deleteRec(t *Txn, pid PageID, key []byte) (PageID, bool, error) {
	old, err := t.get(pid)
	if err != nil {
		return pid, false, err
	}

	if old.IsLeaf() {
		pos, found := old.FindLeafEntry(key)
		if !found {
			return pid, false, nil
		}
		newID := t.alloc()
		buf := append([]byte{}, old.Bytes()...)
		n := WrapNode(buf)
		e := n.GetLeafEntry(pos)
		if e.Overflow {
			freeOverflowChain(t, e.OverflowPageID)
		}
		if err := n.DeleteLeafEntry(pos); err != nil {
			return pid, false, err
		}
		t.free(old.PageID())
		t.put(newID, n.Bytes())
		return newID, true, nil
	}

	childID := old.FindChild(key)
	newChildID, found, err := deleteRec(t, childID, key)
	if err != nil || !found {
		return pid, found, err
	}

	newID := t.alloc()
	buf := append([]byte{}, old.Bytes()...)
	n := WrapNode(buf)
	replaceChildPointer(n, childID, newChildID)
	t.free(old.PageID())
	t.put(newID, n.Bytes())
	return newID, true, nil
}

// Count walks every leaf and counts live entries. Used by diagnostics, not
// on any hot path.
func Count(store *Store, root PageID) (int, error) {
	n := 0
	err := ScanRange(store, root, []byte{}, nil, func(k, v []byte) bool {
		n++
		return true
	})
	return n, err
}
