// Package workspace owns the per-project host directory tree that gets
// bind-mounted into a project's container (spec.md §4.3).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jordanhubbard/refactorctl/internal/dockercli"
)

// Layout is the set of host paths owned by the control plane for one project.
type Layout struct {
	Root      string // <WORKSPACE_ROOT>/<project_id>
	Repo      string // Root/repo, mounted at /workspace/repo
	Artifacts string // Root/artifacts, mounted at /workspace/artifacts
}

// Manager creates and tears down project host directories and derives
// the container Mount list for the Provisioner.
type Manager struct {
	root string // WORKSPACE_ROOT

	// CredentialsMount, when non-empty, is bind-mounted read-only into
	// every container at /workspace/credentials. It is a deployment-wide
	// setting, not per-project (spec.md §4.3).
	CredentialsMount string
}

// New returns a Manager rooted at root. root must already exist.
func New(root string, credentialsMount string) *Manager {
	return &Manager{root: root, CredentialsMount: credentialsMount}
}

// Layout computes (without creating) the host paths for a project id.
func (m *Manager) Layout(projectID string) Layout {
	root := filepath.Join(m.root, projectID)
	return Layout{
		Root:      root,
		Repo:      filepath.Join(root, "repo"),
		Artifacts: filepath.Join(root, "artifacts"),
	}
}

// Ensure creates the project's repo/ and artifacts/ directories if absent.
func (m *Manager) Ensure(projectID string) (Layout, error) {
	l := m.Layout(projectID)
	for _, dir := range []string{l.Repo, l.Artifacts} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return l, nil
}

// Mounts derives the container bind mounts for a project, including the
// shared read-only credentials mount when configured.
func (m *Manager) Mounts(projectID string) []dockercli.Mount {
	l := m.Layout(projectID)
	mounts := []dockercli.Mount{
		{HostPath: l.Repo, ContainerPath: "/workspace/repo"},
		{HostPath: l.Artifacts, ContainerPath: "/workspace/artifacts"},
	}
	if m.CredentialsMount != "" {
		mounts = append(mounts, dockercli.Mount{
			HostPath:      m.CredentialsMount,
			ContainerPath: "/workspace/credentials",
			ReadOnly:      true,
		})
	}
	return mounts
}

// Remove deletes the project's host directory tree. Callers invoke this
// only after the container has been successfully removed; a failure here
// is logged by the caller, never fatal (spec.md §4.3).
func (m *Manager) Remove(projectID string) error {
	l := m.Layout(projectID)
	return os.RemoveAll(l.Root)
}
