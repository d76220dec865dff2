package controlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jordanhubbard/refactorctl/internal/authn"
	"github.com/jordanhubbard/refactorctl/internal/events"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
	"github.com/jordanhubbard/refactorctl/internal/statemachine"
)

func reqCtx() context.Context { return context.Background() }

func newTestServer(t *testing.T, userID string) (*Server, projectstore.Store) {
	t.Helper()
	store := projectstore.NewMemoryStore()
	machine := statemachine.New(store, events.NoopPublisher{})
	a := stubAuthenticator{userID: userID}
	s := New(Deps{
		Store:   store,
		Machine: machine,
		Auth:    a,
	})
	return s, store
}

type stubAuthenticator struct{ userID string }

func (s stubAuthenticator) Authenticate(_ context.Context, _ string) (authn.Identity, error) {
	return authn.Identity{UserID: s.userID, Role: "owner"}, nil
}

func TestCreateAndListProjectsScopedToOwner(t *testing.T) {
	s, _ := newTestServer(t, "user-1")
	h := s.Handler()

	body := strings.NewReader(`{"title":"demo","project_type":"SANDBOX"}`)
	req := httptest.NewRequest(http.MethodPost, "/projects", body)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/projects", nil)
	listReq.Header.Set("Authorization", "Bearer anything")
	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	var projects []*projectstore.Project
	if err := json.Unmarshal(listRec.Body.Bytes(), &projects); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("len(projects) = %d, want 1", len(projects))
	}
}

func TestGetProjectForbiddenForNonOwner(t *testing.T) {
	s, store := newTestServer(t, "user-1")
	proj, err := store.Create(reqCtx(), projectstore.CreateInput{OwnerID: "someone-else", Kind: projectstore.KindSandbox})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	h := s.Handler()
	req := httptest.NewRequest(http.MethodGet, "/projects/"+proj.ID, nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestUnknownProjectReturns404(t *testing.T) {
	s, _ := newTestServer(t, "user-1")
	h := s.Handler()
	req := httptest.NewRequest(http.MethodGet, "/projects/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateRefactorProjectRejectsUnsafeRepoURL(t *testing.T) {
	s, store := newTestServer(t, "user-1")
	h := s.Handler()

	body := strings.NewReader(`{"project_type":"REFACTOR","repo_url":"https://github.com/owner/repo.git; rm -rf /","branch":"main"}`)
	req := httptest.NewRequest(http.MethodPost, "/projects", body)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}

	projects, err := store.List(reqCtx(), "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("len(projects) = %d, want 0 (rejected create must not persist)", len(projects))
	}
}

func TestStopAlreadyStoppedProjectIsIdempotent(t *testing.T) {
	s, store := newTestServer(t, "user-1")
	proj, err := store.Create(reqCtx(), projectstore.CreateInput{OwnerID: "user-1", Kind: projectstore.KindSandbox})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.CompareAndSwap(reqCtx(), proj.ID, proj.Status, func(p *projectstore.Project) {
		p.Status = projectstore.StatusStopped
	}); err != nil {
		t.Fatalf("CompareAndSwap: %v", err)
	}

	h := s.Handler()
	req := httptest.NewRequest(http.MethodPost, "/projects/"+proj.ID+"/stop", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHealthzBypassesAuth(t *testing.T) {
	s, _ := newTestServer(t, "user-1")
	h := s.Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
