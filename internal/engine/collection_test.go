package engine

import (
	"testing"
	"time"
)

func TestCollectionInsertFindDelete(t *testing.T) {
	col := newCollection("users")
	doc := NewDocument(NewBSONMap(map[string]interface{}{"name": "alice"}), Persistent, nil)
	col.insertDocument(doc)

	got, ok := col.findDocument(doc.ID)
	if !ok {
		t.Fatal("expected to find inserted document")
	}
	if v, _ := got.Data.Get("name"); v != "alice" {
		t.Fatalf("expected name=alice, got %v", v)
	}

	removed, _, ok := col.deleteDocument(doc.ID)
	if !ok || removed.ID != doc.ID {
		t.Fatal("expected delete to return the removed document")
	}
	if _, ok := col.findDocument(doc.ID); ok {
		t.Fatal("document should be gone after delete")
	}
}

func TestCollectionIndexTracksInsertsAndDeletes(t *testing.T) {
	col := newCollection("users")
	idx := col.createIndex("email", HashIndex)

	doc := NewDocument(NewBSONMap(map[string]interface{}{"email": "a@example.com"}), Persistent, nil)
	deltas := col.insertDocument(doc)
	if len(deltas) != 1 || deltas[0].Op != DeltaAdd {
		t.Fatalf("expected one add delta, got %+v", deltas)
	}
	if got := idx.Lookup("a@example.com"); len(got) != 1 || got[0] != doc.ID {
		t.Fatalf("expected index to resolve to inserted doc, got %v", got)
	}

	_, deltas, ok := col.deleteDocument(doc.ID)
	if !ok || len(deltas) != 1 || deltas[0].Op != DeltaRemove {
		t.Fatalf("expected one remove delta on delete, got %+v", deltas)
	}
	if got := idx.Lookup("a@example.com"); len(got) != 0 {
		t.Fatalf("expected index entry gone after delete, got %v", got)
	}
}

func TestCollectionCreateIndexBackfillsExistingDocuments(t *testing.T) {
	col := newCollection("users")
	doc := NewDocument(NewBSONMap(map[string]interface{}{"email": "b@example.com"}), Persistent, nil)
	col.insertDocument(doc)

	idx := col.createIndex("email", HashIndex)
	if got := idx.Lookup("b@example.com"); len(got) != 1 || got[0] != doc.ID {
		t.Fatalf("expected backfilled index to find pre-existing document, got %v", got)
	}
}

func TestCollectionPurgeEphemeralOnlyExpiredByDefault(t *testing.T) {
	col := newCollection(TempDocumentsCollection)

	expiredTTL := -time.Millisecond
	liveTTL := time.Hour
	expired := NewDocument(NewBSONMap(nil), Ephemeral, &expiredTTL)
	live := NewDocument(NewBSONMap(nil), Ephemeral, &liveTTL)
	col.insertDocument(expired)
	col.insertDocument(live)

	removed := col.purgeEphemeral(false)
	if removed != 1 {
		t.Fatalf("expected only the expired document purged, got %d", removed)
	}
	if _, ok := col.findDocument(live.ID); !ok {
		t.Fatal("live ephemeral document should survive a non-all purge")
	}
}

func TestCollectionPurgeEphemeralAllRemovesEverything(t *testing.T) {
	col := newCollection(TempDocumentsCollection)
	liveTTL := time.Hour
	live := NewDocument(NewBSONMap(nil), Ephemeral, &liveTTL)
	col.insertDocument(live)

	removed := col.purgeEphemeral(true)
	if removed != 1 {
		t.Fatalf("expected purge(all=true) to remove every ephemeral doc, got %d", removed)
	}
}
