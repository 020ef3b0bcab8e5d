package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckpointSchedulerWritesSnapshotOnSchedule(t *testing.T) {
	e := openTestEngine(t)
	e.CreateCollection("users")

	outPath := filepath.Join(t.TempDir(), "scheduled.db")
	s := NewCheckpointScheduler(e, outPath, nil)
	if err := s.Start("@every 50ms"); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(outPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduled checkpoint never wrote a snapshot file")
		}
		time.Sleep(20 * time.Millisecond)
	}

	snap, err := LoadSnapshotFile(outPath)
	if err != nil {
		t.Fatalf("load scheduled snapshot: %v", err)
	}
	found := false
	for _, c := range snap.Collections {
		if c.Name == "users" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected scheduled snapshot to include %q, got %+v", "users", snap.Collections)
	}
}

func TestCheckpointSchedulerStartTwiceReplacesSchedule(t *testing.T) {
	e := openTestEngine(t)
	outPath := filepath.Join(t.TempDir(), "scheduled.db")
	s := NewCheckpointScheduler(e, outPath, nil)

	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("second start: %v", err)
	}
	s.Stop()
}
