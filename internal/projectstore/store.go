// Package projectstore persists Project records and provides the
// optimistic-concurrency primitive every status transition goes
// through. CompareAndSwap is the only writer of
// status/container_id/last_error.
package projectstore

import (
	"context"
)

// Store is the Project Store contract. Both the Postgres-backed and
// in-memory implementations satisfy it identically.
type Store interface {
	Create(ctx context.Context, in CreateInput) (*Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context, ownerID string) ([]*Project, error)
	Update(ctx context.Context, id string, in UpdateInput) (*Project, error)
	Delete(ctx context.Context, id string) error

	// CompareAndSwap loads the project, asserts its current status
	// equals from, applies mutate to a copy, and persists the copy only
	// if status was still `from` at write time. On a lost race it
	// returns ctlerrors.ErrConflictingState. mutate may only touch
	// Status, ContainerID, LastError, and RefactorThreadID; other
	// fields are ignored on write.
	CompareAndSwap(ctx context.Context, id string, from Status, mutate func(*Project)) (*Project, error)
}
