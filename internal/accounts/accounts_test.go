package accounts

import (
	"testing"

	"github.com/buildd-ai/coordinatord/internal/store"
)

func TestCreateAndResolve(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	s := NewStore(db)
	if err := s.Create("acct-1", 5, "sk-test-123"); err != nil {
		t.Fatal(err)
	}

	if got := s.ResolveAccountID("sk-test-123"); got != "acct-1" {
		t.Errorf("expected acct-1, got %q", got)
	}
	if got := s.ResolveAccountID("unknown"); got != "" {
		t.Errorf("expected empty string for unknown key, got %q", got)
	}

	account, err := s.GetAccount("acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if account == nil || account.MaxConcurrentWorkers != 5 {
		t.Errorf("expected MaxConcurrentWorkers=5, got %+v", account)
	}
}

func TestGetAccountMissingReturnsNil(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	s := NewStore(db)
	account, err := s.GetAccount("nope")
	if err != nil {
		t.Fatal(err)
	}
	if account != nil {
		t.Errorf("expected nil account, got %+v", account)
	}
}
