package engine

import "sort"

// IndexKind distinguishes an equality-oriented hash index from a
// range-capable ordered index.
type IndexKind int

const (
	HashIndex IndexKind = iota
	BTreeIndex
)

func (k IndexKind) String() string {
	if k == BTreeIndex {
		return "BTree"
	}
	return "Hash"
}

// IndexDescriptor names a secondary index: the field it covers and its
// kind. Descriptors are what the snapshot codec persists per collection.
type IndexDescriptor struct {
	Field string
	Kind  IndexKind
}

// SecondaryIndex maps a field value to the set of document ids holding
// it. A HashIndex answers only equality/In lookups; a BTreeIndex also
// supports ordered range scans over its sorted key list.
type SecondaryIndex struct {
	Descriptor IndexDescriptor
	entries    map[string]map[string]struct{}
}

func newSecondaryIndex(field string, kind IndexKind) *SecondaryIndex {
	return &SecondaryIndex{
		Descriptor: IndexDescriptor{Field: field, Kind: kind},
		entries:    make(map[string]map[string]struct{}),
	}
}

// Add records that docID holds keyStr for this index's field.
func (idx *SecondaryIndex) Add(keyStr, docID string) {
	set, ok := idx.entries[keyStr]
	if !ok {
		set = make(map[string]struct{})
		idx.entries[keyStr] = set
	}
	set[docID] = struct{}{}
}

// Remove undoes a prior Add.
func (idx *SecondaryIndex) Remove(keyStr, docID string) {
	set, ok := idx.entries[keyStr]
	if !ok {
		return
	}
	delete(set, docID)
	if len(set) == 0 {
		delete(idx.entries, keyStr)
	}
}

// Lookup returns the document ids recorded for an exact key.
func (idx *SecondaryIndex) Lookup(keyStr string) []string {
	set, ok := idx.entries[keyStr]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LookupIn is a union lookup across multiple keys, used by the In filter.
func (idx *SecondaryIndex) LookupIn(keys []string) []string {
	seen := make(map[string]struct{})
	for _, k := range keys {
		for _, id := range idx.Lookup(k) {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Range returns document ids for keys within [lo, hi] (inclusive),
// ordered by key. Only meaningful for BTreeIndex; HashIndex callers
// should prefer Lookup/LookupIn.
func (idx *SecondaryIndex) Range(lo, hi string, hasLo, hasHi bool) []string {
	keys := make([]string, 0, len(idx.entries))
	for k := range idx.entries {
		if hasLo && k < lo {
			continue
		}
		if hasHi && k > hi {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		out = append(out, idx.Lookup(k)...)
	}
	return out
}

// Selectivity estimates how discriminating a lookup against this index
// would be: fewer distinct matching ids per key means more selective.
// Used by the query executor to pick among multiple usable indexes.
func (idx *SecondaryIndex) Selectivity(keyStr string) int {
	return len(idx.entries[keyStr])
}

// Cardinality is the number of distinct keys currently indexed.
func (idx *SecondaryIndex) Cardinality() int {
	return len(idx.entries)
}
