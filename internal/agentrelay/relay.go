// Package agentrelay talks to the per-container AI agent over the
// shared container network and relays its task lifecycle and SSE event
// stream to the control plane's own HTTP surface (spec.md §4.6). The
// control plane stores no agent-run state of its own; this package is a
// pass-through.
package agentrelay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/refactorctl/internal/cpcache"
	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
)

// AgentStatus is the status vocabulary the in-container agent uses.
type AgentStatus string

const (
	AgentPending AgentStatus = "pending"
	AgentRunning AgentStatus = "running"
	AgentSuccess AgentStatus = "success"
	AgentFailed  AgentStatus = "failed"
	AgentStopped AgentStatus = "stopped"
)

// RunStatus is the client-visible status vocabulary (spec.md §4.6).
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunDone    RunStatus = "DONE"
	RunFailed  RunStatus = "FAILED"
	RunStopped RunStatus = "STOPPED"
)

func mapStatus(a AgentStatus) RunStatus {
	switch a {
	case AgentPending, AgentRunning:
		return RunRunning
	case AgentSuccess:
		return RunDone
	case AgentFailed:
		return RunFailed
	case AgentStopped:
		return RunStopped
	default:
		return RunFailed
	}
}

// RunRequest is the payload for starting a new agent run.
type RunRequest struct {
	Spec     string `json:"spec"`
	ThreadID string `json:"thread_id,omitempty"`
	Model    string `json:"model,omitempty"`
}

// RunHandle identifies a started run.
type RunHandle struct {
	RunID    string `json:"run_id"`
	ThreadID string `json:"thread_id"`
}

// TaskStatus mirrors the agent's /tasks/{id} response, client-facing.
type TaskStatus struct {
	RunID        string     `json:"run_id"`
	Status       RunStatus  `json:"status"`
	Phase        string     `json:"phase"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type agentTaskResponse struct {
	TaskID       string      `json:"task_id"`
	ThreadID     string      `json:"thread_id"`
	Status       AgentStatus `json:"status"`
	Phase        string      `json:"phase"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

func (r agentTaskResponse) toTaskStatus() TaskStatus {
	return TaskStatus{
		RunID:        r.TaskID,
		Status:       mapStatus(r.Status),
		Phase:        r.Phase,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		FinishedAt:   r.FinishedAt,
		ErrorMessage: r.ErrorMessage,
	}
}

// FileTreeRequest/FileReadRequest are passed through to the agent verbatim.
type FileTreeRequest struct {
	Path string `json:"path,omitempty"`
}

type FileReadRequest struct {
	Path string `json:"path"`
}

// statusCacheTTL bounds how long a polled run status is reused instead
// of re-fetched from the in-container agent. Clients that poll faster
// than this (e.g. a UI refreshing every second) don't each generate a
// new upstream call.
const statusCacheTTL = 2 * time.Second

// Relay resolves projects to their in-container agent and forwards calls.
type Relay struct {
	store      projectstore.Store
	port       int
	callClient *http.Client // 10s timeout, non-stream calls
	streamDial *http.Client // no timeout, stream calls
	cache      cpcache.Cache

	base string // non-empty only in tests, replaces DNS-derived baseURL
}

// SetCache installs a cache for Status lookups. Optional; Status works
// uncached (every call reaches the in-container agent) if never called.
func (r *Relay) SetCache(c cpcache.Cache) {
	r.cache = c
}

// baseURLOverride points the relay at a fixed base URL instead of
// deriving one from the container's DNS name. Test-only.
func (r *Relay) baseURLOverride(base string) {
	r.base = base
}

// New builds a Relay. port is the in-container agent's listen port (8000).
func New(store projectstore.Store, port int) *Relay {
	if port <= 0 {
		port = 8000
	}
	return &Relay{
		store:      store,
		port:       port,
		callClient: &http.Client{Timeout: 10 * time.Second},
		streamDial: &http.Client{}, // no Timeout: streaming reads run indefinitely
	}
}

func (r *Relay) baseURL(p *projectstore.Project) string {
	if r.base != "" {
		return r.base
	}
	return fmt.Sprintf("http://%s:%d", p.ContainerName(), r.port)
}

// resolve loads a project and enforces the status precondition: READY
// for mutating calls, READY or RUNNING for status/stop/stream reads.
func (r *Relay) resolve(ctx context.Context, projectID string, allowRunning bool) (*projectstore.Project, error) {
	p, err := r.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ok := p.Status == projectstore.StatusReady || (allowRunning && p.Status == projectstore.StatusRunning)
	if !ok {
		return nil, fmt.Errorf("%w: project %s is %s", ctlerrors.ErrProjectNotReady, projectID, p.Status)
	}
	return p, nil
}

// Run starts a new agent run.
func (r *Relay) Run(ctx context.Context, projectID string, req RunRequest) (RunHandle, error) {
	p, err := r.resolve(ctx, projectID, false)
	if err != nil {
		return RunHandle{}, err
	}

	body, _ := json.Marshal(req)
	resp, err := r.doCall(ctx, http.MethodPost, r.baseURL(p)+"/run", body)
	if err != nil {
		return RunHandle{}, err
	}
	defer resp.Body.Close()

	var out struct {
		TaskID   string `json:"task_id"`
		ThreadID string `json:"thread_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RunHandle{}, fmt.Errorf("decode agent /run response: %w", err)
	}
	return RunHandle{RunID: out.TaskID, ThreadID: out.ThreadID}, nil
}

// Stop requests the agent stop a run.
func (r *Relay) Stop(ctx context.Context, projectID, runID string) error {
	p, err := r.resolve(ctx, projectID, true)
	if err != nil {
		return err
	}
	resp, err := r.doCall(ctx, http.MethodPost, fmt.Sprintf("%s/tasks/%s/stop", r.baseURL(p), runID), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Status fetches a single run's status, served from cache when a
// recent lookup for the same run is still fresh.
func (r *Relay) Status(ctx context.Context, projectID, runID string) (TaskStatus, error) {
	cacheKey := projectID + "/" + runID
	if r.cache != nil {
		if cached, ok, err := r.cache.Get(ctx, cacheKey); err == nil && ok {
			var ts TaskStatus
			if err := json.Unmarshal([]byte(cached), &ts); err == nil {
				return ts, nil
			}
		}
	}

	p, err := r.resolve(ctx, projectID, true)
	if err != nil {
		return TaskStatus{}, err
	}
	resp, err := r.doCall(ctx, http.MethodGet, fmt.Sprintf("%s/tasks/%s", r.baseURL(p), runID), nil)
	if err != nil {
		return TaskStatus{}, err
	}
	defer resp.Body.Close()

	var out agentTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TaskStatus{}, fmt.Errorf("decode agent task status: %w", err)
	}
	status := out.toTaskStatus()
	if r.cache != nil {
		if encoded, err := json.Marshal(status); err == nil {
			_ = r.cache.Set(ctx, cacheKey, string(encoded), statusCacheTTL)
		}
	}
	return status, nil
}

// List fetches all runs for a project, most recent first.
func (r *Relay) List(ctx context.Context, projectID string) ([]TaskStatus, error) {
	p, err := r.resolve(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	resp, err := r.doCall(ctx, http.MethodGet, r.baseURL(p)+"/tasks", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw []agentTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode agent task list: %w", err)
	}
	out := make([]TaskStatus, len(raw))
	for i, t := range raw {
		out[i] = t.toTaskStatus()
	}
	return out, nil
}

// FileTree passes a tree request through to the agent.
func (r *Relay) FileTree(ctx context.Context, projectID string, req FileTreeRequest) (json.RawMessage, error) {
	p, err := r.resolve(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	body, _ := json.Marshal(req)
	resp, err := r.doCall(ctx, http.MethodPost, r.baseURL(p)+"/files/tree", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// FileRead passes a read request through to the agent.
func (r *Relay) FileRead(ctx context.Context, projectID string, req FileReadRequest) (json.RawMessage, error) {
	p, err := r.resolve(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	body, _ := json.Marshal(req)
	resp, err := r.doCall(ctx, http.MethodPost, r.baseURL(p)+"/files/read", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (r *Relay) doCall(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build agent request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.callClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ctlerrors.ErrAgentUnreachable, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

// StreamRun opens the upstream SSE stream for a run and forwards each
// frame to emit verbatim, in arrival order, until ctx is cancelled, the
// upstream closes, or the upstream errors (in which case a final "error"
// frame is synthesized). A colon-prefixed keep-alive comment is emitted
// every 30s of upstream inactivity. emit must not block indefinitely;
// the relay cancels the upstream read within 1s of ctx being done.
func (r *Relay) StreamRun(ctx context.Context, projectID, runID string, emit func(event, data string) error) error {
	p, err := r.resolve(ctx, projectID, true)
	if err != nil {
		return err
	}

	upstreamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(upstreamCtx, http.MethodGet,
		fmt.Sprintf("%s/tasks/%s/stream", r.baseURL(p), runID), nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := r.streamDial.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ctlerrors.ErrAgentUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent stream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-upstreamCtx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var event, data string
	flushFrame := func() error {
		if event == "" && data == "" {
			return nil
		}
		err := emit(event, data)
		event, data = "", ""
		return err
	}

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-keepAlive.C:
			if err := emit("", ""); err != nil {
				return err
			}

		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					_ = emit("error", fmt.Sprintf(`{"error":%q}`, err.Error()))
					return err
				}
				return nil
			}
			keepAlive.Reset(30 * time.Second)

			switch {
			case line == "":
				if err := flushFrame(); err != nil {
					return err
				}
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}
}
