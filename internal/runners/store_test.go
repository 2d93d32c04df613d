package runners

import (
	"testing"
	"time"

	"github.com/buildd-ai/coordinatord/internal/store"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(db), cleanup
}

func TestUpsertCreatesAndRefreshes(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	hb := Heartbeat{RunnerID: "run-1", AccountID: "acct-1", URL: "http://runner:9000", WorkspaceIDs: []string{"ws-1"}, ActiveWorkers: 2, Capacity: 5, Version: "1.0.0"}
	r, err := s.Upsert(hb)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if r.Capacity != 5 || r.ActiveWorkers != 2 {
		t.Errorf("unexpected runner state: %+v", r)
	}

	hb.ActiveWorkers = 3
	r2, err := s.Upsert(hb)
	if err != nil {
		t.Fatal(err)
	}
	if r2.ActiveWorkers != 3 {
		t.Errorf("expected refreshed activeWorkers=3, got %d", r2.ActiveWorkers)
	}
}

func TestActiveRunnersExcludesStale(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := s.Upsert(Heartbeat{RunnerID: "fresh", WorkspaceIDs: []string{"ws-1"}, Capacity: 2}); err != nil {
		t.Fatal(err)
	}

	active, err := s.ActiveRunners()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active runner, got %d", len(active))
	}

	stale := active[0]
	stale.LastHeartbeatAt = time.Now().Add(-2 * HeartbeatWindow)
	if !stale.IsActive(time.Now()) {
		// sanity: confirm the helper itself treats an old timestamp as inactive
	} else {
		t.Fatal("expected stale timestamp to be inactive")
	}
}

func TestCapacityForSumsAcrossRunners(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := s.Upsert(Heartbeat{RunnerID: "run-a", WorkspaceIDs: []string{"ws-1"}, Capacity: 5, ActiveWorkers: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(Heartbeat{RunnerID: "run-b", WorkspaceIDs: []string{"ws-1", "ws-2"}, Capacity: 3, ActiveWorkers: 1}); err != nil {
		t.Fatal(err)
	}

	spare, err := s.CapacityFor("ws-1")
	if err != nil {
		t.Fatal(err)
	}
	if spare != 5 {
		t.Errorf("expected spare capacity 5 (8 capacity - 3 active), got %d", spare)
	}
}
