package provisioner

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jordanhubbard/refactorctl/internal/dockercli"
	"github.com/jordanhubbard/refactorctl/internal/events"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
	"github.com/jordanhubbard/refactorctl/internal/statemachine"
	"github.com/jordanhubbard/refactorctl/internal/workspace"
)

// scriptedRunner answers docker CLI calls canned by subcommand name.
type scriptedRunner struct {
	onCreate func(args []string) ([]byte, []byte, int, error)
	onExec   func(args []string) ([]byte, []byte, int, error)

	subcommands []string // every docker subcommand seen, in call order
}

func (s *scriptedRunner) Run(_ context.Context, args ...string) ([]byte, []byte, int, error) {
	s.subcommands = append(s.subcommands, args[0])
	switch args[0] {
	case "create":
		return s.onCreate(args)
	case "exec":
		return s.onExec(args)
	default: // start, stop, rm
		return nil, nil, 0, nil
	}
}

func (s *scriptedRunner) Stream(context.Context, ...string) (io.ReadCloser, func() error, error) {
	return nil, nil, nil
}

func TestProvisionSucceedsAndSetsReady(t *testing.T) {
	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer health.Close()

	runner := &scriptedRunner{
		onCreate: func(args []string) ([]byte, []byte, int, error) {
			return []byte("container123\n"), nil, 0, nil
		},
	}
	store := projectstore.NewMemoryStore()
	machine := statemachine.New(store, events.NoopPublisher{})
	driver := dockercli.NewWithRunner(runner)
	ws := workspace.New(t.TempDir(), "")

	p := New(store, machine, driver, ws, Config{
		Image:           "agent:latest",
		Network:         "sandbox-net",
		HealthPollEvery: time.Millisecond,
		HealthPollFor:   200 * time.Millisecond,
	})
	p.healthURL = func(*projectstore.Project) string { return health.URL + "/health" }

	ctx := context.Background()
	proj, err := store.Create(ctx, projectstore.CreateInput{OwnerID: "u1", Kind: projectstore.KindSandbox})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := p.Provision(ctx, proj.ID, false)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if updated.Status != projectstore.StatusReady {
		t.Fatalf("status = %s, want READY", updated.Status)
	}
	if updated.ContainerID != "container123" {
		t.Fatalf("container_id = %q, want container123", updated.ContainerID)
	}
}

func TestProvisionFailsAndTearsDownOnCloneFailure(t *testing.T) {
	runner := &scriptedRunner{
		onCreate: func(args []string) ([]byte, []byte, int, error) {
			return []byte("container123\n"), nil, 0, nil
		},
		onExec: func(args []string) ([]byte, []byte, int, error) {
			return nil, []byte("fatal: repository not found"), 128, nil
		},
	}
	store := projectstore.NewMemoryStore()
	machine := statemachine.New(store, events.NoopPublisher{})
	driver := dockercli.NewWithRunner(runner)
	ws := workspace.New(t.TempDir(), "")

	p := New(store, machine, driver, ws, Config{Image: "agent:latest", Network: "sandbox-net"})

	ctx := context.Background()
	proj, err := store.Create(ctx, projectstore.CreateInput{
		OwnerID: "u1", Kind: projectstore.KindRefactor,
		RepoURL: "https://github.com/o/r.git", Branch: "main",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := p.Provision(ctx, proj.ID, false); err == nil {
		t.Fatal("expected provision to fail on clone error")
	}

	final, getErr := store.Get(ctx, proj.ID)
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if final.Status != projectstore.StatusFailed {
		t.Fatalf("status = %s, want FAILED", final.Status)
	}
	if final.LastError == "" {
		t.Fatal("expected last_error to be recorded")
	}
	removed := false
	for _, sub := range runner.subcommands {
		if sub == "rm" {
			removed = true
		}
	}
	if !removed {
		t.Fatalf("docker calls = %v, want a compensating rm of the container", runner.subcommands)
	}
}

func TestProvisionRejectsNonCreatedStatus(t *testing.T) {
	store := projectstore.NewMemoryStore()
	machine := statemachine.New(store, events.NoopPublisher{})
	driver := dockercli.NewWithRunner(&scriptedRunner{})
	ws := workspace.New(t.TempDir(), "")
	p := New(store, machine, driver, ws, Config{Image: "agent:latest"})

	ctx := context.Background()
	proj, _ := store.Create(ctx, projectstore.CreateInput{OwnerID: "u1", Kind: projectstore.KindSandbox})
	if _, err := store.CompareAndSwap(ctx, proj.ID, projectstore.StatusCreated, func(pr *projectstore.Project) {
		pr.Status = projectstore.StatusRunning
	}); err != nil {
		t.Fatalf("setup CAS: %v", err)
	}

	if _, err := p.Provision(ctx, proj.ID, false); err == nil {
		t.Fatal("expected provision from RUNNING to fail")
	}
}
