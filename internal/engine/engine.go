package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexuslite/nexuslite/internal/wasp"
)

// TempDocumentsCollection is the built-in collection that receives
// every document created without an explicit collection name. Such
// documents must be Ephemeral.
const TempDocumentsCollection = "_tempDocuments"

// Engine owns the WASP-backed store and the in-memory collection
// catalog layered on top of it. Every document mutation updates the
// in-memory catalog and is then durably recorded as a WaspFrame before
// the call returns success.
type Engine struct {
	db *wasp.DB

	mu          sync.RWMutex
	collections map[string]*Collection
}

// New opens (or creates) the WASP store at path and rebuilds the
// collection catalog by scanning its contents. The built-in
// _tempDocuments collection always exists.
func New(path string) (*Engine, error) {
	db, err := wasp.Open(path, wasp.OpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}
	e := &Engine{db: db, collections: make(map[string]*Collection)}
	e.collections[TempDocumentsCollection] = newCollection(TempDocumentsCollection)
	if err := e.rebuildFromStore(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// Close flushes and releases the underlying store.
func (e *Engine) Close() error {
	return e.db.Close()
}

// rebuildFromStore scans every persisted frame key and replays it
// against the in-memory catalog: document frames reconstruct
// collections and documents, index frames reconstruct secondary
// indexes. This is the "replay IndexDelta frames" recovery path; the
// alternative "reload from snapshot descriptors then rebuild by
// scanning" path is exercised by LoadSnapshot-based restores.
func (e *Engine) rebuildFromStore() error {
	return wasp.ScanRange(e.db.Store(), e.db.Root(), []byte{}, nil, func(key, value []byte) bool {
		f, err := DecodeFrame(value)
		if err != nil {
			return true // skip undecodable/foreign keys
		}
		switch {
		case f.Op != nil:
			e.replayOperation(f.Op)
		case f.Idx != nil:
			e.replayIndexDelta(*f.Idx)
		}
		return true
	})
}

func (e *Engine) replayOperation(op *Operation) {
	col := e.ensureCollectionLocked(op.Collection)
	switch op.Kind {
	case OpInsert, OpUpdate:
		if op.Document != nil {
			col.mu.Lock()
			col.documents[op.DocumentID] = op.Document
			col.mu.Unlock()
		}
	case OpDelete:
		col.mu.Lock()
		delete(col.documents, op.DocumentID)
		col.mu.Unlock()
	}
}

func (e *Engine) replayIndexDelta(d IndexDelta) {
	col := e.ensureCollectionLocked(d.Collection)
	col.applyIndexDelta(d)
}

func (e *Engine) ensureCollectionLocked(name string) *Collection {
	e.mu.Lock()
	defer e.mu.Unlock()
	col, ok := e.collections[name]
	if !ok {
		col = newCollection(name)
		e.collections[name] = col
	}
	return col
}

// CreateCollection idempotently creates a named collection and returns
// it, creating it fresh on first call.
func (e *Engine) CreateCollection(name string) *Collection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if col, ok := e.collections[name]; ok {
		return col
	}
	col := newCollection(name)
	e.collections[name] = col
	return col
}

// DeleteCollection removes a collection and reports whether it existed.
func (e *Engine) DeleteCollection(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collections[name]; !ok {
		return false
	}
	delete(e.collections, name)
	return true
}

// ListCollectionNames returns a stable (sorted) snapshot of collection
// names, including the built-in _tempDocuments.
func (e *Engine) ListCollectionNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetCollection looks up a collection by name.
func (e *Engine) GetCollection(name string) (*Collection, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	col, ok := e.collections[name]
	return col, ok
}

// CreateIndex declares a secondary index on field for a collection,
// backfilling it from existing documents.
func (e *Engine) CreateIndex(collection, field string, kind IndexKind) (*SecondaryIndex, error) {
	col, ok := e.GetCollection(collection)
	if !ok {
		return nil, ErrNoSuchCollection
	}
	return col.createIndex(field, kind), nil
}

// InsertDocument creates a document in the named collection (or, when
// collection is empty, in _tempDocuments, which requires ephemeral to
// be true) and durably appends its frame plus any index deltas to the
// store before returning the new document id.
func (e *Engine) InsertDocument(collection string, data *BSONMap, docType DocumentType, ttl *time.Duration) (string, error) {
	name := collection
	if name == "" {
		name = TempDocumentsCollection
		if docType != Ephemeral {
			return "", fmt.Errorf("engine: documents without a collection must be ephemeral")
		}
	}
	col := e.CreateCollection(name)

	doc := NewDocument(data, docType, ttl)
	deltas := col.insertDocument(doc)

	if err := e.appendOperation(OpInsert, name, doc.ID, doc); err != nil {
		return "", err
	}
	if err := e.appendIndexDeltas(deltas); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// FindDocument looks up a single document by id within a collection.
func (e *Engine) FindDocument(collection, id string) (*Document, error) {
	col, ok := e.GetCollection(collection)
	if !ok {
		return nil, ErrNoSuchCollection
	}
	doc, ok := col.findDocument(id)
	if !ok {
		return nil, ErrNoSuchDocument
	}
	return doc.Clone(), nil
}

// UpdateDocument merges patch into an existing document's data.
func (e *Engine) UpdateDocument(collection, id string, patch *BSONMap) error {
	col, ok := e.GetCollection(collection)
	if !ok {
		return ErrNoSuchCollection
	}
	doc, deltas, ok := col.updateDocument(id, patch)
	if !ok {
		return ErrNoSuchDocument
	}
	if err := e.appendOperation(OpUpdate, collection, id, doc); err != nil {
		return err
	}
	return e.appendIndexDeltas(deltas)
}

// DeleteDocument removes a document from a collection.
func (e *Engine) DeleteDocument(collection, id string) error {
	col, ok := e.GetCollection(collection)
	if !ok {
		return ErrNoSuchCollection
	}
	_, deltas, ok := col.deleteDocument(id)
	if !ok {
		return ErrNoSuchDocument
	}
	if err := e.appendOperation(OpDelete, collection, id, nil); err != nil {
		return err
	}
	return e.appendIndexDeltas(deltas)
}

// GetAllDocuments returns every non-expired document in a collection.
func (e *Engine) GetAllDocuments(collection string) ([]*Document, error) {
	col, ok := e.GetCollection(collection)
	if !ok {
		return nil, ErrNoSuchCollection
	}
	return col.getAllDocuments(), nil
}

// PurgeEphemeral removes ephemeral documents across every collection:
// only expired ones unless all is true.
func (e *Engine) PurgeEphemeral(all bool) int {
	e.mu.RLock()
	cols := make([]*Collection, 0, len(e.collections))
	for _, c := range e.collections {
		cols = append(cols, c)
	}
	e.mu.RUnlock()

	total := 0
	for _, c := range cols {
		total += c.purgeEphemeral(all)
	}
	return total
}

func (e *Engine) appendOperation(kind OperationKind, collection, docID string, doc *Document) error {
	frame := &WaspFrame{Op: &Operation{Kind: kind, Collection: collection, DocumentID: docID, Document: doc}}
	payload, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	key := []byte("d:" + collection + ":" + docID)
	return e.db.Mutate(func(t *wasp.Txn, root wasp.PageID) (wasp.PageID, error) {
		if kind == OpDelete {
			newRoot, _, err := wasp.Delete(t, root, key)
			return newRoot, err
		}
		return wasp.Insert(t, root, key, payload)
	})
}

func (e *Engine) appendIndexDeltas(deltas []IndexDelta) error {
	for _, d := range deltas {
		delta := d
		frame := &WaspFrame{Idx: &delta}
		payload, err := EncodeFrame(frame)
		if err != nil {
			return err
		}
		key := []byte(fmt.Sprintf("i:%s:%s:%s:%s", delta.Collection, delta.Field, delta.Key, delta.DocumentID))
		err = e.db.Mutate(func(t *wasp.Txn, root wasp.PageID) (wasp.PageID, error) {
			if delta.Op == DeltaRemove {
				newRoot, _, err := wasp.Delete(t, root, key)
				return newRoot, err
			}
			return wasp.Insert(t, root, key, payload)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
