package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildd-ai/coordinatord/internal/claim"
	"github.com/buildd-ai/coordinatord/internal/store"
)

const testAPIKey = "test-key"
const testAccountID = "acct-1"

type fakeAuth struct{}

func (fakeAuth) ResolveAccountID(apiKey string) string {
	if apiKey == testAPIKey {
		return testAccountID
	}
	return ""
}

type fakeAccounts struct {
	limit int
}

func (f fakeAccounts) GetAccount(id string) (*claim.Account, error) {
	if id != testAccountID {
		return nil, nil
	}
	return &claim.Account{ID: testAccountID, MaxConcurrentWorkers: f.limit}, nil
}

// newTestServer builds a Server over a throwaway SQLite database with an
// account admitted under testAPIKey, mirroring the teacher's
// setupTestServer helper convention.
func newTestServer(t *testing.T, concurrencyLimit int) (*Server, func()) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	s := New(db, fakeAuth{}, fakeAccounts{limit: concurrencyLimit}, nil, 0)
	return s, cleanup
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response body %q: %v", w.Body.String(), err)
	}
}
