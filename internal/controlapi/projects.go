package controlapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
	"github.com/jordanhubbard/refactorctl/internal/dockercli"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
	"github.com/jordanhubbard/refactorctl/internal/sanitize"
)

type createProjectRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Kind        projectstore.Kind `json:"project_type"`
	RepoURL     string            `json:"repo_url"`
	Branch      string            `json:"branch"`
	Spec        string            `json:"spec"`
}

type updateProjectRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Spec        *string `json:"spec"`
}

// projectView is the read-side representation, including the optional
// live docker_status reconciliation field (spec.md §4.2).
type projectView struct {
	*projectstore.Project
	DockerStatus *dockerStatus `json:"docker_status,omitempty"`
}

type dockerStatus struct {
	State        string `json:"state"`
	Inconsistent bool   `json:"inconsistent"`
}

// handleProjects serves POST /projects (create) and GET /projects (list, owned).
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	switch r.Method {
	case http.MethodPost:
		var req createProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Kind == "" {
			req.Kind = projectstore.KindSandbox
		}
		if req.Kind == projectstore.KindRefactor {
			if req.RepoURL == "" || req.Branch == "" {
				respondError(w, http.StatusBadRequest, "REFACTOR projects require repo_url and branch")
				return
			}
			if err := sanitize.GitURL(req.RepoURL); err != nil {
				respondError(w, statusFromErr(err), err.Error())
				return
			}
			if err := sanitize.Branch(req.Branch); err != nil {
				respondError(w, statusFromErr(err), err.Error())
				return
			}
		}
		proj, err := s.store.Create(r.Context(), projectstore.CreateInput{
			OwnerID:     id.UserID,
			Title:       req.Title,
			Description: req.Description,
			Kind:        req.Kind,
			RepoURL:     req.RepoURL,
			Branch:      req.Branch,
			Spec:        req.Spec,
		})
		if err != nil {
			respondError(w, statusFromErr(err), err.Error())
			return
		}
		respondJSON(w, http.StatusCreated, proj)

	case http.MethodGet:
		projects, err := s.store.List(r.Context(), id.UserID)
		if err != nil {
			respondError(w, statusFromErr(err), err.Error())
			return
		}
		respondJSON(w, http.StatusOK, projects)

	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleProject dispatches every /projects/{id}[/action] route.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/projects/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if parts[0] == "" {
		respondError(w, http.StatusNotFound, "missing project id")
		return
	}
	projectID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	proj, err := s.loadOwned(r.Context(), projectID)
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.readProject(w, r, proj)
	case action == "" && r.Method == http.MethodPut:
		s.updateProject(w, r, proj)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteProject(w, r, proj)
	case action == "provision" && r.Method == http.MethodPost:
		s.provisionProject(w, r, proj, false)
	case action == "reprovision" && r.Method == http.MethodPost:
		s.provisionProject(w, r, proj, true)
	case action == "stop" && r.Method == http.MethodPost:
		s.stopProject(w, r, proj)
	case action == "exec" && r.Method == http.MethodPost:
		s.execProject(w, r, proj)
	case action == "logs/stream" && r.Method == http.MethodGet:
		s.streamLogs(w, r, proj)
	case action == "files/tree" && r.Method == http.MethodGet:
		s.fileTree(w, r, proj)
	case action == "files/content" && r.Method == http.MethodGet:
		s.fileContent(w, r, proj)
	case action == "agent/reset-session" && r.Method == http.MethodPost:
		s.resetAgentSession(w, r, proj)
	case strings.HasPrefix(action, "agent/"):
		s.handleAgentRoute(w, r, proj, strings.TrimPrefix(action, "agent/"))
	default:
		respondError(w, http.StatusNotFound, "unknown route")
	}
}

// loadOwned loads a project and enforces project.owner == caller.
func (s *Server) loadOwned(ctx context.Context, projectID string) (*projectstore.Project, error) {
	proj, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	id, ok := identityFrom(ctx)
	if !ok || proj.OwnerID != id.UserID {
		return nil, ctlerrors.ErrForbidden
	}
	return proj, nil
}

func (s *Server) readProject(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	view := projectView{Project: proj}
	if proj.ContainerID != "" && s.driver != nil {
		insp, err := s.driver.Inspect(r.Context(), proj.ContainerID)
		if err == nil && insp.State == dockercli.StateMissing {
			view.DockerStatus = &dockerStatus{State: "not_found", Inconsistent: true}
		} else if err == nil {
			view.DockerStatus = &dockerStatus{State: string(insp.State)}
		}
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	var req updateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := s.store.Update(r.Context(), proj.ID, projectstore.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Spec:        req.Spec,
	})
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	if proj.ContainerID != "" && s.driver != nil {
		if err := s.driver.Remove(r.Context(), proj.ContainerID, true); err != nil {
			log.Printf("controlapi: container teardown failed for project %s: %v", proj.ID, err)
		}
	}
	if err := s.store.Delete(r.Context(), proj.ID); err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) provisionProject(w http.ResponseWriter, r *http.Request, proj *projectstore.Project, reprovision bool) {
	devMode := r.URL.Query().Get("dev_mode") == "true"
	var (
		updated *projectstore.Project
		err     error
	)
	if reprovision {
		updated, err = s.provisioner.Reprovision(r.Context(), proj.ID, devMode)
	} else {
		updated, err = s.provisioner.Provision(r.Context(), proj.ID, devMode)
	}
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) stopProject(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	if proj.Status == projectstore.StatusStopped {
		respondJSON(w, http.StatusOK, proj)
		return
	}
	if proj.ContainerID != "" && s.driver != nil {
		if err := s.driver.Stop(r.Context(), proj.ContainerID, 0); err != nil {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
	}
	updated, err := s.machine.Stop(r.Context(), proj.ID)
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type execRequest struct {
	Argv    []string `json:"argv"`
	Workdir string   `json:"workdir"`
}

func (s *Server) execProject(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Argv) == 0 {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if proj.ContainerID == "" {
		respondError(w, http.StatusConflict, "project has no container")
		return
	}
	result, err := s.driver.Exec(r.Context(), proj.ContainerID, req.Argv, req.Workdir, 0)
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// resetAgentSession clears refactor_thread_id without changing status,
// so the next run opens a fresh conversation with the in-container agent.
func (s *Server) resetAgentSession(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	updated, err := s.store.CompareAndSwap(r.Context(), proj.ID, proj.Status, func(p *projectstore.Project) {
		p.RefactorThreadID = ""
	})
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
