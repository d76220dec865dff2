package projectstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
)

// MemoryStore is an in-memory Store, used in tests and in single-process
// deployments without a configured database DSN. It mirrors the locking
// idiom of the teacher's original in-memory project manager.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[string]*Project)}
}

func (s *MemoryStore) Create(_ context.Context, in CreateInput) (*Project, error) {
	now := time.Now().UTC()
	p := &Project{
		ID:          "proj-" + uuid.NewString(),
		OwnerID:     in.OwnerID,
		Title:       in.Title,
		Description: in.Description,
		Kind:        in.Kind,
		RepoURL:     in.RepoURL,
		Branch:      in.Branch,
		Spec:        in.Spec,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ctlerrors.ErrProjectNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Project, 0, len(s.projects))
	for _, p := range s.projects {
		if ownerID != "" && p.OwnerID != ownerID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, in UpdateInput) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ctlerrors.ErrProjectNotFound, id)
	}
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Spec != nil {
		p.Spec = *in.Spec
	}
	p.UpdatedAt = time.Now().UTC()

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("%w: %s", ctlerrors.ErrProjectNotFound, id)
	}
	delete(s.projects, id)
	return nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, id string, from Status, mutate func(*Project)) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ctlerrors.ErrProjectNotFound, id)
	}
	if p.Status != from {
		return nil, fmt.Errorf("%w: project %s is %s, wanted %s", ctlerrors.ErrConflictingState, id, p.Status, from)
	}

	cp := *p
	mutate(&cp)
	cp.UpdatedAt = time.Now().UTC()
	s.projects[id] = &cp

	out := cp
	return &out, nil
}
