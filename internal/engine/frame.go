package engine

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// DeltaOp distinguishes adding a key to a secondary index from removing
// one, as recorded by an IndexDelta.
type DeltaOp int

const (
	DeltaAdd DeltaOp = iota
	DeltaRemove
)

// IndexDelta describes one change to a secondary index, emitted
// alongside every document write so the index can be rebuilt by replay
// without rescanning the owning collection.
type IndexDelta struct {
	Collection string
	Field      string
	Kind       IndexKind
	Op         DeltaOp
	Key        string
	DocumentID string
}

// OperationKind names the document-level mutation carried by an
// Operation frame.
type OperationKind int

const (
	OpInsert OperationKind = iota
	OpUpdate
	OpDelete
)

// Operation is the document-mutation half of a WaspFrame: enough state
// to redo an insert/update/delete against a collection during recovery.
type Operation struct {
	Kind       OperationKind
	Collection string
	DocumentID string
	// Document is populated for OpInsert and OpUpdate; nil for OpDelete.
	Document *Document
}

// WaspFrame is the tagged union persisted for every durable
// engine-level write, stored as the value of a keyed entry in the wasp
// B-tree: either a document Operation or an IndexDelta.
// Exactly one of the two fields is populated, mirroring the original
// Op(Operation) | Idx(IndexDelta) enum.
type WaspFrame struct {
	Op  *Operation
	Idx *IndexDelta
}

func init() {
	gob.Register(Operation{})
	gob.Register(IndexDelta{})
	gob.Register(BSONMap{})
	// Field values inside a BSONMap are stored as interface{}; gob
	// requires every concrete type that crosses an interface boundary
	// to be registered, including builtins.
	gob.Register("")
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register([]interface{}(nil))
	gob.Register(map[string]interface{}(nil))
}

// EncodeFrame serializes a WaspFrame with gob, the idiomatic Go
// stand-in for the original's bincode framing (no ecosystem binary
// codec in the dependency pack covers tagged unions as directly).
func EncodeFrame(f *WaspFrame) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, fmt.Errorf("engine: encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(data []byte) (*WaspFrame, error) {
	var f WaspFrame
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, fmt.Errorf("engine: decode frame: %w", err)
	}
	return &f, nil
}
