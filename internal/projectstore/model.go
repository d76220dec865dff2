package projectstore

import "time"

// Kind distinguishes a project that drives a refactor run against a
// cloned repository from a bare sandbox with no repository attached.
type Kind string

const (
	KindRefactor Kind = "REFACTOR"
	KindSandbox  Kind = "SANDBOX"
)

// Status is the project's position in the state machine (spec.md §4.4).
type Status string

const (
	StatusCreated      Status = "CREATED"
	StatusProvisioning Status = "PROVISIONING"
	StatusReady        Status = "READY"
	StatusRunning      Status = "RUNNING"
	StatusStopped      Status = "STOPPED"
	StatusFailed       Status = "FAILED"
)

// Project is the primary entity of the control plane (spec.md §3).
type Project struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Kind             Kind      `json:"project_type"`
	RepoURL          string    `json:"repo_url"`
	Branch           string    `json:"branch"`
	Spec             string    `json:"spec"`
	Status           Status    `json:"status"`
	ContainerID      string    `json:"container_id"`
	LastError        string    `json:"last_error"`
	RefactorThreadID string    `json:"refactor_thread_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ContainerName derives the canonical container name from the project
// id. Code should address containers by this derivation rather than
// trusting the persisted ContainerID (spec.md §9).
func (p *Project) ContainerName() string {
	return "refactor-project-" + p.ID
}

// CreateInput is the payload accepted by Store.Create.
type CreateInput struct {
	OwnerID     string
	Title       string
	Description string
	Kind        Kind
	RepoURL     string
	Branch      string
	Spec        string
}

// UpdateInput is a partial update of the free-text fields. It carries no
// repo_url, so Update never changes repo_url in any status.
type UpdateInput struct {
	Title       *string
	Description *string
	Spec        *string
}
