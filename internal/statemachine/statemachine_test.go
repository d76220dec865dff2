package statemachine

import (
	"context"
	"errors"
	"testing"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
	"github.com/jordanhubbard/refactorctl/internal/events"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
)

func TestBeginProvisionFromCreated(t *testing.T) {
	store := projectstore.NewMemoryStore()
	m := New(store, events.NoopPublisher{})
	ctx := context.Background()

	p, err := store.Create(ctx, projectstore.CreateInput{OwnerID: "u1", Kind: projectstore.KindSandbox})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := m.Begin(ctx, p.ID, "provision", projectstore.StatusProvisioning)
	if err != nil {
		t.Fatalf("Begin(provision) failed: %v", err)
	}
	if updated.Status != projectstore.StatusProvisioning {
		t.Fatalf("status = %s, want PROVISIONING", updated.Status)
	}
}

func TestBeginRejectsIllegalTransition(t *testing.T) {
	store := projectstore.NewMemoryStore()
	m := New(store, events.NoopPublisher{})
	ctx := context.Background()

	p, _ := store.Create(ctx, projectstore.CreateInput{OwnerID: "u1", Kind: projectstore.KindSandbox})

	if _, err := m.Begin(ctx, p.ID, "run", projectstore.StatusRunning); !errors.Is(err, ctlerrors.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestSucceedSetsContainerIDAndReady(t *testing.T) {
	store := projectstore.NewMemoryStore()
	m := New(store, events.NoopPublisher{})
	ctx := context.Background()

	p, _ := store.Create(ctx, projectstore.CreateInput{OwnerID: "u1", Kind: projectstore.KindSandbox})
	if _, err := m.Begin(ctx, p.ID, "provision", projectstore.StatusProvisioning); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	updated, err := m.Succeed(ctx, p.ID, "container-abc")
	if err != nil {
		t.Fatalf("Succeed failed: %v", err)
	}
	if updated.Status != projectstore.StatusReady || updated.ContainerID != "container-abc" {
		t.Fatalf("unexpected project after Succeed: %+v", updated)
	}
}

func TestStopRequiresRunningContainer(t *testing.T) {
	store := projectstore.NewMemoryStore()
	m := New(store, events.NoopPublisher{})
	ctx := context.Background()

	p, _ := store.Create(ctx, projectstore.CreateInput{OwnerID: "u1", Kind: projectstore.KindSandbox})

	if _, err := m.Stop(ctx, p.ID); !errors.Is(err, ctlerrors.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestFailRecordsLastError(t *testing.T) {
	store := projectstore.NewMemoryStore()
	m := New(store, events.NoopPublisher{})
	ctx := context.Background()

	p, _ := store.Create(ctx, projectstore.CreateInput{OwnerID: "u1", Kind: projectstore.KindSandbox})
	if _, err := m.Begin(ctx, p.ID, "provision", projectstore.StatusProvisioning); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	updated, err := m.Fail(ctx, p.ID, projectstore.StatusProvisioning, "git clone failed: exit 128")
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if updated.Status != projectstore.StatusFailed || updated.LastError == "" {
		t.Fatalf("unexpected project after Fail: %+v", updated)
	}
}
