package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Collection is a named map of document id to Document plus a set of
// secondary index descriptors kept consistent with every write. Its
// document map carries its own lock so that concurrent writes to
// different collections never contend with each other.
type Collection struct {
	name string

	mu        sync.RWMutex
	documents map[string]*Document
	indexes   map[string]*SecondaryIndex // keyed by field name
}

func newCollection(name string) *Collection {
	return &Collection{
		name:      name,
		documents: make(map[string]*Document),
		indexes:   make(map[string]*SecondaryIndex),
	}
}

func (c *Collection) nameStr() string { return c.name }

// createIndex registers a secondary index on field, backfilling it from
// documents already present. Idempotent: re-declaring the same field
// and kind is a no-op.
func (c *Collection) createIndex(field string, kind IndexKind) *SecondaryIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.indexes[field]; ok {
		return existing
	}
	idx := newSecondaryIndex(field, kind)
	for id, doc := range c.documents {
		if v, ok := doc.Data.Get(field); ok {
			idx.Add(indexKeyString(v), id)
		}
	}
	c.indexes[field] = idx
	return idx
}

func (c *Collection) indexFor(field string) (*SecondaryIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[field]
	return idx, ok
}

// IndexFor is the exported form of indexFor, used by the query
// executor's index-hint selection.
func (c *Collection) IndexFor(field string) (*SecondaryIndex, bool) {
	return c.indexFor(field)
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) indexDescriptors() []IndexDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]IndexDescriptor, 0, len(c.indexes))
	for _, idx := range c.indexes {
		out = append(out, idx.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// insertDocument adds doc to the collection and returns any index
// deltas produced, for the caller to fold into the durable frame.
func (c *Collection) insertDocument(doc *Document) []IndexDelta {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documents[doc.ID] = doc
	return c.indexDeltasLocked(doc, DeltaAdd)
}

// FindDocument is the exported form of findDocument.
func (c *Collection) FindDocument(id string) (*Document, bool) {
	return c.findDocument(id)
}

func (c *Collection) findDocument(id string) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.documents[id]
	if !ok {
		return nil, false
	}
	if doc.Expired(time.Now()) {
		return nil, false
	}
	return doc, true
}

// updateDocument merges patch into the existing document and returns
// remove deltas for every indexed field as it was before the merge,
// followed by add deltas for every indexed field after it, whether or
// not the field's value changed.
func (c *Collection) updateDocument(id string, patch *BSONMap) (*Document, []IndexDelta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[id]
	if !ok || doc.Expired(time.Now()) {
		return nil, nil, false
	}
	removes := c.indexDeltasLocked(doc, DeltaRemove)
	doc.Update(patch)
	adds := c.indexDeltasLocked(doc, DeltaAdd)
	return doc, append(removes, adds...), true
}

func (c *Collection) deleteDocument(id string) (*Document, []IndexDelta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[id]
	if !ok {
		return nil, nil, false
	}
	deltas := c.indexDeltasLocked(doc, DeltaRemove)
	delete(c.documents, id)
	return doc, deltas, true
}

// GetAllDocuments is the exported form of getAllDocuments, used by the
// query executor to scan a collection.
func (c *Collection) GetAllDocuments() []*Document {
	return c.getAllDocuments()
}

func (c *Collection) getAllDocuments() []*Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	out := make([]*Document, 0, len(c.documents))
	for _, doc := range c.documents {
		if doc.Expired(now) {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// purgeEphemeral removes ephemeral documents: only expired ones unless
// all is set, in which case every ephemeral document is dropped
// regardless of TTL state.
func (c *Collection) purgeEphemeral(all bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, doc := range c.documents {
		if doc.Metadata.DocumentType != Ephemeral {
			continue
		}
		if all || doc.Expired(now) {
			c.indexDeltasLocked(doc, DeltaRemove)
			delete(c.documents, id)
			removed++
		}
	}
	return removed
}

// indexDeltasLocked must be called with c.mu held; it applies op to
// every declared index for fields present on doc and returns the
// deltas produced.
func (c *Collection) indexDeltasLocked(doc *Document, op DeltaOp) []IndexDelta {
	var deltas []IndexDelta
	for field, idx := range c.indexes {
		v, ok := doc.Data.Get(field)
		if !ok {
			continue
		}
		key := indexKeyString(v)
		if op == DeltaAdd {
			idx.Add(key, doc.ID)
		} else {
			idx.Remove(key, doc.ID)
		}
		deltas = append(deltas, IndexDelta{
			Collection: c.name,
			Field:      field,
			Kind:       idx.Descriptor.Kind,
			Op:         op,
			Key:        key,
			DocumentID: doc.ID,
		})
	}
	return deltas
}

// applyIndexDelta replays a recovered IndexDelta against this
// collection's indexes, creating the index descriptor if recovery
// observed it before any createIndex call did.
func (c *Collection) applyIndexDelta(d IndexDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexes[d.Field]
	if !ok {
		idx = newSecondaryIndex(d.Field, d.Kind)
		c.indexes[d.Field] = idx
	}
	if d.Op == DeltaAdd {
		idx.Add(d.Key, d.DocumentID)
	} else {
		idx.Remove(d.Key, d.DocumentID)
	}
}

func indexKeyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
