// Package statemachine enforces the legal status transitions of a
// Project (spec.md §4.4) on top of projectstore's optimistic-concurrency
// CompareAndSwap, and publishes a best-effort event on every successful
// transition.
package statemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
	"github.com/jordanhubbard/refactorctl/internal/events"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
)

// Machine wraps a projectstore.Store with the transition table.
type Machine struct {
	store     projectstore.Store
	publisher events.Publisher
}

// New builds a Machine. publisher may be events.NoopPublisher{} when no
// message bus is configured.
func New(store projectstore.Store, publisher events.Publisher) *Machine {
	return &Machine{store: store, publisher: publisher}
}

// legalFrom maps a transition name to the statuses it may start from.
var legalFrom = map[string][]projectstore.Status{
	"provision":   {projectstore.StatusCreated},
	"reprovision": {projectstore.StatusReady, projectstore.StatusStopped, projectstore.StatusFailed},
	"run":         {projectstore.StatusReady},
	"stop":        {projectstore.StatusRunning},
	"finish":      {projectstore.StatusRunning},
	"fail":        {projectstore.StatusProvisioning, projectstore.StatusRunning},
}

// Begin asserts the project is in a legal starting status for the named
// transition and atomically moves it to `to`, clearing last_error. It
// does not touch container_id; callers set that via Succeed once the
// container exists.
func (m *Machine) Begin(ctx context.Context, projectID, transition string, to projectstore.Status) (*projectstore.Project, error) {
	froms, ok := legalFrom[transition]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transition %q", ctlerrors.ErrIllegalTransition, transition)
	}

	current, err := m.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !contains(froms, current.Status) {
		return nil, fmt.Errorf("%w: %s cannot %s from %s", ctlerrors.ErrIllegalTransition, projectID, transition, current.Status)
	}

	updated, err := m.store.CompareAndSwap(ctx, projectID, current.Status, func(p *projectstore.Project) {
		p.Status = to
		p.LastError = ""
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, updated)
	return updated, nil
}

// Succeed transitions PROVISIONING -> READY, recording the container id.
func (m *Machine) Succeed(ctx context.Context, projectID, containerID string) (*projectstore.Project, error) {
	updated, err := m.store.CompareAndSwap(ctx, projectID, projectstore.StatusProvisioning, func(p *projectstore.Project) {
		p.Status = projectstore.StatusReady
		p.ContainerID = containerID
		p.LastError = ""
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, updated)
	return updated, nil
}

// Fail moves the project to FAILED from any status that allows it,
// recording a human-readable diagnostic. Every failing transition in the
// Provisioner routes through here (spec.md §4.4).
func (m *Machine) Fail(ctx context.Context, projectID string, from projectstore.Status, reason string) (*projectstore.Project, error) {
	if !contains(legalFrom["fail"], from) {
		return nil, fmt.Errorf("%w: %s cannot fail from %s", ctlerrors.ErrIllegalTransition, projectID, from)
	}
	updated, err := m.store.CompareAndSwap(ctx, projectID, from, func(p *projectstore.Project) {
		p.Status = projectstore.StatusFailed
		p.LastError = reason
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, updated)
	return updated, nil
}

// Stop transitions RUNNING -> STOPPED. Per spec.md §4.4, a stop failure
// leaves the project in its prior status and returns the error as-is
// rather than routing through Fail.
func (m *Machine) Stop(ctx context.Context, projectID string) (*projectstore.Project, error) {
	current, err := m.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if current.ContainerID == "" || current.Status != projectstore.StatusRunning {
		return nil, fmt.Errorf("%w: %s has no running container to stop", ctlerrors.ErrIllegalTransition, projectID)
	}
	updated, err := m.store.CompareAndSwap(ctx, projectID, projectstore.StatusRunning, func(p *projectstore.Project) {
		p.Status = projectstore.StatusStopped
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, updated)
	return updated, nil
}

// ClearContainer clears container_id ahead of a reprovision, once the
// old container has been torn down.
func (m *Machine) ClearContainer(ctx context.Context, projectID string, from projectstore.Status) (*projectstore.Project, error) {
	updated, err := m.store.CompareAndSwap(ctx, projectID, from, func(p *projectstore.Project) {
		p.ContainerID = ""
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (m *Machine) publish(ctx context.Context, p *projectstore.Project) {
	if m.publisher == nil {
		return
	}
	m.publisher.PublishStatusChanged(ctx, events.StatusChanged{
		ProjectID: p.ID,
		Status:    string(p.Status),
		At:        time.Now().UTC(),
	})
}

func contains(list []projectstore.Status, s projectstore.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
