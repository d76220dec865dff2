package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jordanhubbard/refactorctl/internal/agentrelay"
	"github.com/jordanhubbard/refactorctl/internal/logstream"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
)

func sseHeaders(w http.ResponseWriter) (http.Flusher, bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := w.(http.Flusher)
	return flusher, ok
}

func (s *Server) streamLogs(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	if proj.ContainerID == "" {
		respondError(w, http.StatusConflict, "project has no container")
		return
	}
	flusher, ok := sseHeaders(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	tail := 200
	if v := r.URL.Query().Get("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			tail = n
		}
	}
	follow := true
	if v := r.URL.Query().Get("follow"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			follow = b
		}
	}
	if s.metrics != nil {
		s.metrics.OpenSSEStreams.Inc()
		defer s.metrics.OpenSSEStreams.Dec()
	}

	err := s.logs.Stream(r.Context(), proj.ContainerID, tail, follow, func(f logstream.Frame) error {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, f.Data)
		flusher.Flush()
		return nil
	})
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
	}
}

func (s *Server) fileTree(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	if proj.ContainerID == "" {
		respondError(w, http.StatusConflict, "project has no container")
		return
	}
	node, err := s.fs.Tree(r.Context(), proj.ContainerID)
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, node)
}

func (s *Server) fileContent(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	if proj.ContainerID == "" {
		respondError(w, http.StatusConflict, "project has no container")
		return
	}
	rel := r.URL.Query().Get("path")
	content, truncated, err := s.fs.Content(r.Context(), proj.ContainerID, rel)
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"content":   content,
		"truncated": truncated,
	})
}

// handleAgentRoute serves every /projects/{id}/agent/... route that is
// not reset-session: run, runs, runs/{run_id}, runs/{run_id}/stop,
// runs/{run_id}/stream.
func (s *Server) handleAgentRoute(w http.ResponseWriter, r *http.Request, proj *projectstore.Project, sub string) {
	if sub == "run" && r.Method == http.MethodPost {
		s.agentRun(w, r, proj)
		return
	}
	if sub == "runs" && r.Method == http.MethodGet {
		s.agentList(w, r, proj)
		return
	}

	rest := strings.TrimPrefix(sub, "runs/")
	if rest == sub {
		respondError(w, http.StatusNotFound, "unknown agent route")
		return
	}
	segs := strings.SplitN(rest, "/", 2)
	runID := segs[0]

	switch {
	case len(segs) == 1 && r.Method == http.MethodGet:
		s.agentStatus(w, r, proj, runID)
	case len(segs) == 2 && segs[1] == "stop" && r.Method == http.MethodPost:
		s.agentStop(w, r, proj, runID)
	case len(segs) == 2 && segs[1] == "stream" && r.Method == http.MethodGet:
		s.agentStream(w, r, proj, runID)
	default:
		respondError(w, http.StatusNotFound, "unknown agent route")
	}
}

// runStartedResponse is the run-start shape from spec.md §6 and §8
// scenario S1: a run has already begun by the time this responds, so it
// reports RUNNING rather than the bare run/thread handle the agent itself
// returns.
type runStartedResponse struct {
	RunID     string    `json:"run_id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

func (s *Server) agentRun(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	var req agentrelay.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	handle, err := s.relay.Run(r.Context(), proj.ID, req)
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runStartedResponse{
		RunID:     handle.RunID,
		ProjectID: proj.ID,
		Status:    string(agentrelay.RunRunning),
		Phase:     "starting",
		CreatedAt: time.Now().UTC(),
		Message:   "run started",
	})
}

func (s *Server) agentList(w http.ResponseWriter, r *http.Request, proj *projectstore.Project) {
	tasks, err := s.relay.List(r.Context(), proj.ID)
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}

func (s *Server) agentStatus(w http.ResponseWriter, r *http.Request, proj *projectstore.Project, runID string) {
	status, err := s.relay.Status(r.Context(), proj.ID, runID)
	if err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) agentStop(w http.ResponseWriter, r *http.Request, proj *projectstore.Project, runID string) {
	if err := s.relay.Stop(r.Context(), proj.ID, runID); err != nil {
		respondError(w, statusFromErr(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) agentStream(w http.ResponseWriter, r *http.Request, proj *projectstore.Project, runID string) {
	flusher, ok := sseHeaders(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if s.metrics != nil {
		s.metrics.OpenSSEStreams.Inc()
		defer s.metrics.OpenSSEStreams.Dec()
	}

	err := s.relay.StreamRun(r.Context(), proj.ID, runID, func(event, data string) error {
		if event == "" {
			fmt.Fprint(w, ": keep-alive\n\n")
		} else {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
	}
}
