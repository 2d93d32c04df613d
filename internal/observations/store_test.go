package observations

import (
	"testing"

	"github.com/buildd-ai/coordinatord/internal/store"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(db), cleanup
}

func TestSaveAndListByWorkspace(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	o := New("ws-1", "insight", "auth flow", "login uses JWT refresh tokens")
	o.Concepts = []string{"auth", "jwt"}
	if err := s.Save(o); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	list, err := s.ListByWorkspace("ws-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != "auth flow" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestSearchMatchesContent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.Save(New("ws-1", "insight", "rate limiting", "the API enforces token bucket rate limiting")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(New("ws-1", "insight", "unrelated", "something about colors and fonts")); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search("ws-1", SanitizeFTSQuery("rate limiting"), 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Title != "rate limiting" {
		t.Fatalf("unexpected search results: %+v", results)
	}
}

func TestDeleteRemovesFromSearch(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	o := New("ws-1", "insight", "temp note", "this will be deleted soon")
	if err := s.Save(o); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(o.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	results, err := s.Search("ws-1", "deleted", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected deleted observation to drop from search, got %d", len(results))
	}
}

func TestCompactDigestGroupsByTypeAndConcepts(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	a := New("ws-1", "insight", "a", "content a")
	a.Concepts = []string{"auth", "auth", "perf"}
	b := New("ws-1", "decision", "b", "content b")
	b.Concepts = []string{"auth"}
	if err := s.Save(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(b); err != nil {
		t.Fatal(err)
	}

	digest, err := s.Compact("ws-1")
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if digest.TotalCount != 2 {
		t.Errorf("expected total 2, got %d", digest.TotalCount)
	}
	if digest.ByType["insight"] != 1 || digest.ByType["decision"] != 1 {
		t.Errorf("unexpected byType: %+v", digest.ByType)
	}
	if len(digest.TopConcepts) == 0 || digest.TopConcepts[0] != "auth" {
		t.Errorf("expected auth as top concept, got %+v", digest.TopConcepts)
	}
}
