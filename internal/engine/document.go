package engine

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/google/uuid"
)

// DocumentType distinguishes documents that survive checkpoints from
// documents that exist only for the lifetime of a TTL window.
type DocumentType int

const (
	Persistent DocumentType = iota
	Ephemeral
)

func (t DocumentType) String() string {
	if t == Ephemeral {
		return "Ephemeral"
	}
	return "Persistent"
}

// BSONMap is a minimal stand-in for a bson.Document: an ordered set of
// fields reimplemented locally since nothing in the dependency pack
// ships a BSON encoder. It keeps insertion order, which matters for
// round-tripping through gob-encoded WaspFrames and for projection.
type BSONMap struct {
	keys   []string
	values map[string]interface{}
}

// NewBSONMap builds a BSONMap from a plain Go map. Iteration order of
// the source map is not guaranteed, so callers that care about field
// order should build one field at a time with Set.
func NewBSONMap(from map[string]interface{}) *BSONMap {
	m := &BSONMap{values: make(map[string]interface{}, len(from))}
	for k, v := range from {
		m.Set(k, v)
	}
	return m
}

func (m *BSONMap) Set(key string, value interface{}) {
	if m.values == nil {
		m.values = make(map[string]interface{})
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *BSONMap) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *BSONMap) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *BSONMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// gobBSONMap is the exported shape gob actually encodes; BSONMap's own
// fields are unexported and would otherwise be silently dropped.
type gobBSONMap struct {
	Keys   []string
	Values map[string]interface{}
}

func (m *BSONMap) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobBSONMap{Keys: m.keys, Values: m.values}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *BSONMap) GobDecode(data []byte) error {
	var g gobBSONMap
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	m.keys = g.Keys
	m.values = g.Values
	return nil
}

func (m *BSONMap) Clone() *BSONMap {
	c := &BSONMap{keys: make([]string, len(m.keys)), values: make(map[string]interface{}, len(m.values))}
	copy(c.keys, m.keys)
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}

// DocumentMetadata carries the fields that govern lifecycle rather than
// payload content.
type DocumentMetadata struct {
	DocumentType DocumentType
	CreatedAt    time.Time
	TTL          *time.Duration
	ExpiresAt    *time.Time
}

// Document is a single stored record: an immutable id, a BSON-shaped
// payload, and lifecycle metadata.
type Document struct {
	ID       string
	Data     *BSONMap
	Metadata DocumentMetadata
}

// NewDocument creates a document with a fresh id. ttl is only honored
// when docType is Ephemeral; a TTL on a Persistent document is dropped
// silently, matching set_ttl's no-op behavior on persistent documents.
func NewDocument(data *BSONMap, docType DocumentType, ttl *time.Duration) *Document {
	d := &Document{
		ID:   uuid.NewString(),
		Data: data,
		Metadata: DocumentMetadata{
			DocumentType: docType,
			CreatedAt:    time.Now(),
		},
	}
	d.SetTTL(ttl)
	return d
}

// SetTTL applies a TTL to an Ephemeral document. Called on a Persistent
// document, it is a no-op: persistent documents never expire.
func (d *Document) SetTTL(ttl *time.Duration) {
	if d.Metadata.DocumentType != Ephemeral || ttl == nil {
		return
	}
	d.Metadata.TTL = ttl
	exp := d.Metadata.CreatedAt.Add(*ttl)
	d.Metadata.ExpiresAt = &exp
}

// Expired reports whether an Ephemeral document's TTL has elapsed.
// Persistent documents are never expired.
func (d *Document) Expired(now time.Time) bool {
	if d.Metadata.DocumentType != Ephemeral || d.Metadata.ExpiresAt == nil {
		return false
	}
	return now.After(*d.Metadata.ExpiresAt)
}

// Update merges fields from patch into the document's data in place.
func (d *Document) Update(patch *BSONMap) {
	for _, k := range patch.Keys() {
		v, _ := patch.Get(k)
		d.Data.Set(k, v)
	}
}

// Clone returns a deep-enough copy suitable for returning to callers
// without aliasing the stored document's mutable map.
func (d *Document) Clone() *Document {
	c := *d
	c.Data = d.Data.Clone()
	return &c
}
