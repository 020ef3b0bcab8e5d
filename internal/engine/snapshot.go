package engine

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
)

// ───────────────────────────────────────────────────────────────────────────
// Snapshot codec — portable catalog dump
// ───────────────────────────────────────────────────────────────────────────
//
// A snapshot is not a copy of document data: that already lives durably in
// the WASP store and is rebuilt on open by replaying WaspFrames. A snapshot
// is the collection catalog -- every collection name and the secondary
// index descriptors declared on it -- so that a checkpoint produces a small,
// portable, engine-independent file describing the shape of the database
// without re-scanning the whole store.
//
// File layout: [4]Magic("NLDB") [2]Version(LE) then a gob-encoded
// Snapshot. Unknown (newer) versions are rejected with ErrSnapshot.

const (
	snapshotMagic   = "NLDB"
	snapshotVersion = uint16(1)
)

// CollectionSnapshot names one collection and the secondary indexes
// declared on it, in field order.
type CollectionSnapshot struct {
	Name    string
	Indexes []IndexDescriptor
}

// Snapshot is the full catalog captured by a checkpoint.
type Snapshot struct {
	Collections []CollectionSnapshot
}

// BuildSnapshot captures the current collection/index catalog. Collections
// are returned in the stable order ListCollectionNames uses.
func (e *Engine) BuildSnapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := Snapshot{Collections: make([]CollectionSnapshot, 0, len(names))}
	for _, name := range names {
		col := e.collections[name]
		snap.Collections = append(snap.Collections, CollectionSnapshot{
			Name:    name,
			Indexes: col.indexDescriptors(),
		})
	}
	return snap
}

// EncodeSnapshot serializes a Snapshot to its on-disk byte representation.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(snap); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrSnapshot, err)
	}

	var out bytes.Buffer
	out.WriteString(snapshotMagic)
	if err := binary.Write(&out, binary.LittleEndian, snapshotVersion); err != nil {
		return nil, fmt.Errorf("%w: write version: %v", ErrSnapshot, err)
	}
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot. It never panics on
// malformed input: truncated, non-magic, or future-versioned bytes are
// reported as ErrSnapshot rather than causing a decode panic.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	if len(data) < len(snapshotMagic)+2 {
		return Snapshot{}, fmt.Errorf("%w: truncated header", ErrSnapshot)
	}
	if string(data[:len(snapshotMagic)]) != snapshotMagic {
		return Snapshot{}, fmt.Errorf("%w: bad magic", ErrSnapshot)
	}
	rest := data[len(snapshotMagic):]
	version := binary.LittleEndian.Uint16(rest[:2])
	if version > snapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: snapshot version %d newer than supported %d", ErrSnapshot, version, snapshotVersion)
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(rest[2:])).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode: %v", ErrSnapshot, err)
	}
	return snap, nil
}

// Checkpoint reclaims freed pages and truncates the WAL (delegating to
// the storage layer), then writes a snapshot of the collection/index
// catalog to outPath. This is the operation behind the CLI's
// `checkpoint` subcommand and the scheduled-checkpoint cron job.
func (e *Engine) Checkpoint(outPath string) error {
	return e.CheckpointWithTransform(outPath, nil)
}

// CheckpointWithTransform performs the same checkpoint as Checkpoint,
// but passes the encoded snapshot bytes through transform (when
// non-nil) before writing outPath. This is how checkpoint_encrypted is
// composed at the CLI layer: transform there is
// crypto.EncryptForPublicKey bound to a recipient's public key. Kept
// here rather than importing a crypto package directly so the engine
// package carries no dependency on the concern that encrypts its
// output.
func (e *Engine) CheckpointWithTransform(outPath string, transform func([]byte) ([]byte, error)) error {
	if err := e.db.Checkpoint(); err != nil {
		return err
	}
	data, err := EncodeSnapshot(e.BuildSnapshot())
	if err != nil {
		return err
	}
	if transform != nil {
		if data, err = transform(data); err != nil {
			return fmt.Errorf("%w: transform: %v", ErrSnapshot, err)
		}
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrSnapshot, outPath, err)
	}
	return nil
}

// LoadSnapshotFile reads and decodes a snapshot previously written by
// Checkpoint.
func LoadSnapshotFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read %s: %v", ErrSnapshot, path, err)
	}
	return DecodeSnapshot(data)
}
