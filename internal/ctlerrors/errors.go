// Package ctlerrors holds the sentinel error values shared across the
// control plane. Layers wrap these with fmt.Errorf("...: %w", err) and
// the HTTP edge recovers the kind with errors.Is.
package ctlerrors

import "errors"

var (
	// ErrInvalidGitURL is returned by the sanitizers when a repo URL fails validation.
	ErrInvalidGitURL = errors.New("invalid git url")
	// ErrInvalidBranch is returned by the sanitizers when a branch name fails validation.
	ErrInvalidBranch = errors.New("invalid branch name")
	// ErrInvalidPath is returned by the sanitizers when a workspace path fails validation.
	ErrInvalidPath = errors.New("invalid path")

	// ErrProjectNotFound is returned by the Project Store when no record matches an id.
	ErrProjectNotFound = errors.New("project not found")
	// ErrForbidden is returned when the caller does not own the project.
	ErrForbidden = errors.New("forbidden")
	// ErrConflictingState is returned by the state machine's CAS when a transition races.
	ErrConflictingState = errors.New("conflicting state")
	// ErrIllegalTransition is returned when a transition is attempted from a state that does not allow it.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrContainerCreateFailed wraps a failed container creation, carrying stderr.
	ErrContainerCreateFailed = errors.New("container create failed")
	// ErrExecTimeout is returned when a container exec exceeds its timeout.
	ErrExecTimeout = errors.New("container exec timed out")
	// ErrContainerNotFound is returned by inspect when the container is missing.
	ErrContainerNotFound = errors.New("container not found")

	// ErrProjectNotReady is returned by the Agent Relay when the project container is not up.
	ErrProjectNotReady = errors.New("project not ready")
	// ErrAgentUnreachable is returned when the in-container agent cannot be reached.
	ErrAgentUnreachable = errors.New("agent unreachable")

	// ErrUnauthenticated is returned when no valid bearer token is present.
	ErrUnauthenticated = errors.New("unauthenticated")
)
