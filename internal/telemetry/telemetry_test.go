package telemetry

import "testing"

func TestSnapshotReflectsIncrements(t *testing.T) {
	c := &Counters{}
	c.DocumentsInserted.Add(3)
	c.QueriesExecuted.Add(1)
	c.RateLimited.Add(2)

	snap := c.Snapshot()
	if snap.DocumentsInserted != 3 {
		t.Fatalf("expected 3 inserts, got %d", snap.DocumentsInserted)
	}
	if snap.QueriesExecuted != 1 {
		t.Fatalf("expected 1 query, got %d", snap.QueriesExecuted)
	}
	if snap.RateLimited != 2 {
		t.Fatalf("expected 2 rate-limited, got %d", snap.RateLimited)
	}
	if snap.DocumentsDeleted != 0 {
		t.Fatalf("expected 0 deletes, got %d", snap.DocumentsDeleted)
	}
}
