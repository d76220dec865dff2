package projectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
)

func TestMemoryStoreCreateGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p, err := s.Create(ctx, CreateInput{OwnerID: "u1", Kind: KindRefactor, RepoURL: "https://github.com/o/r.git", Branch: "main", Spec: "do the thing"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Status != StatusCreated {
		t.Fatalf("new project status = %s, want CREATED", p.Status)
	}
	if p.ContainerID != "" {
		t.Fatalf("new project container_id should be empty, got %q", p.ContainerID)
	}

	got, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("Get returned wrong project: %s", got.ID)
	}

	if err := s.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, p.ID); !errors.Is(err, ctlerrors.ErrProjectNotFound) {
		t.Fatalf("Get after delete = %v, want ErrProjectNotFound", err)
	}
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p, _ := s.Create(ctx, CreateInput{OwnerID: "u1", Kind: KindSandbox})

	updated, err := s.CompareAndSwap(ctx, p.ID, StatusCreated, func(pr *Project) {
		pr.Status = StatusProvisioning
	})
	if err != nil {
		t.Fatalf("CompareAndSwap failed: %v", err)
	}
	if updated.Status != StatusProvisioning {
		t.Fatalf("status = %s, want PROVISIONING", updated.Status)
	}

	// Second CAS from the now-stale "CREATED" precondition must lose the race.
	if _, err := s.CompareAndSwap(ctx, p.ID, StatusCreated, func(pr *Project) {
		pr.Status = StatusReady
	}); !errors.Is(err, ctlerrors.ErrConflictingState) {
		t.Fatalf("stale CAS = %v, want ErrConflictingState", err)
	}
}

func TestMemoryStoreListFiltersByOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Create(ctx, CreateInput{OwnerID: "u1", Kind: KindSandbox}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, CreateInput{OwnerID: "u2", Kind: KindSandbox}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	owned, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(owned) != 1 {
		t.Fatalf("List(u1) returned %d projects, want 1", len(owned))
	}
}
