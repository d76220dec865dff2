// Package provisioner implements the compound provision operation
// (spec.md §4.5): create and start a project's container, clone its
// repository, wait for the in-container agent to come up, and transition
// the project to READY — or compensate and fail cleanly.
package provisioner

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
	"github.com/jordanhubbard/refactorctl/internal/dockercli"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
	"github.com/jordanhubbard/refactorctl/internal/sanitize"
	"github.com/jordanhubbard/refactorctl/internal/statemachine"
	"github.com/jordanhubbard/refactorctl/internal/workspace"
)

// Config holds the deployment-wide settings the Provisioner needs that
// are not per-project: the container image, resource caps, the shared
// network, clone depth/timeout, and the optional dev-mode source mount.
type Config struct {
	Image             string
	Network           string
	CPULimit          float64
	MemoryLimitM      int64
	CloneDepth        int
	CloneTimeout      time.Duration
	HealthPollEvery   time.Duration
	HealthPollFor     time.Duration
	AgentPort         int
	DevModeSourcePath string // host path bind-mounted into the agent image when dev-mode is active
	DevModeMountDst   string
	PersistentDBURL   string // passed to the agent container as an env var
}

func (c Config) withDefaults() Config {
	if c.CloneDepth <= 0 {
		c.CloneDepth = 1
	}
	if c.CloneTimeout <= 0 {
		c.CloneTimeout = 120 * time.Second
	}
	if c.HealthPollEvery <= 0 {
		c.HealthPollEvery = 500 * time.Millisecond
	}
	if c.HealthPollFor <= 0 {
		c.HealthPollFor = 30 * time.Second
	}
	if c.AgentPort <= 0 {
		c.AgentPort = 8000
	}
	return c
}

// Provisioner ties the Container Driver, Workspace Manager, and State
// Machine together to drive a project from CREATED to READY.
type Provisioner struct {
	store     projectstore.Store
	machine   *statemachine.Machine
	driver    *dockercli.Driver
	workspace *workspace.Manager
	cfg       Config

	// httpClient is used for the agent health check; overridable in tests.
	httpClient *http.Client

	// healthURL builds the agent health-check URL for a project. Defaults
	// to the container's DNS name on the shared network; tests substitute
	// a loopback httptest server.
	healthURL func(proj *projectstore.Project) string
}

// New builds a Provisioner.
func New(store projectstore.Store, machine *statemachine.Machine, driver *dockercli.Driver, ws *workspace.Manager, cfg Config) *Provisioner {
	cfg = cfg.withDefaults()
	p := &Provisioner{
		store:      store,
		machine:    machine,
		driver:     driver,
		workspace:  ws,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	p.healthURL = func(proj *projectstore.Project) string {
		return fmt.Sprintf("http://%s:%d/health", proj.ContainerName(), cfg.AgentPort)
	}
	return p
}

// Provision runs the full provision sequence for an existing project in
// CREATED status. devModeOverride, when true, bind-mounts a local agent
// source tree into the container regardless of global configuration.
func (p *Provisioner) Provision(ctx context.Context, projectID string, devModeOverride bool) (*projectstore.Project, error) {
	return p.run(ctx, projectID, "provision", projectstore.StatusCreated, devModeOverride)
}

// Reprovision tears down any existing container for a project in
// {READY, STOPPED, FAILED} and runs the provision sequence again.
func (p *Provisioner) Reprovision(ctx context.Context, projectID string, devModeOverride bool) (*projectstore.Project, error) {
	proj, err := p.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	switch proj.Status {
	case projectstore.StatusReady, projectstore.StatusStopped, projectstore.StatusFailed:
	default:
		return nil, fmt.Errorf("%w: %s cannot reprovision from %s", ctlerrors.ErrIllegalTransition, projectID, proj.Status)
	}
	if proj.ContainerID != "" {
		p.teardown(ctx, proj.ContainerID) // best-effort, errors logged internally
	}
	if _, err := p.machine.ClearContainer(ctx, projectID, proj.Status); err != nil {
		return nil, err
	}
	return p.run(ctx, projectID, "reprovision", proj.Status, devModeOverride)
}

func (p *Provisioner) run(ctx context.Context, projectID, transition string, from projectstore.Status, devModeOverride bool) (*projectstore.Project, error) {
	proj, err := p.machine.Begin(ctx, projectID, transition, projectstore.StatusProvisioning)
	if err != nil {
		return nil, err
	}

	containerID, stepErr := p.createAndStart(ctx, proj, devModeOverride)
	if stepErr == nil && proj.Kind == projectstore.KindRefactor {
		stepErr = p.cloneRepo(ctx, containerID, proj)
	}
	if stepErr == nil {
		stepErr = p.waitHealthy(ctx, proj)
	}

	if stepErr != nil {
		if containerID != "" {
			p.teardown(ctx, containerID)
		}
		failed, failErr := p.machine.Fail(ctx, projectID, projectstore.StatusProvisioning, stepErr.Error())
		if failErr != nil {
			return nil, fmt.Errorf("provision failed (%v) and could not record failure: %w", stepErr, failErr)
		}
		return failed, fmt.Errorf("provision %s: %w", projectID, stepErr)
	}

	return p.machine.Succeed(ctx, projectID, containerID)
}

func (p *Provisioner) createAndStart(ctx context.Context, proj *projectstore.Project, devModeOverride bool) (string, error) {
	if _, err := p.workspace.Ensure(proj.ID); err != nil {
		return "", fmt.Errorf("ensure workspace: %w", err)
	}

	mounts := p.workspace.Mounts(proj.ID)
	if devModeOverride && p.cfg.DevModeSourcePath != "" {
		mounts = append(mounts, dockercli.Mount{
			HostPath:      p.cfg.DevModeSourcePath,
			ContainerPath: p.cfg.DevModeMountDst,
		})
	}

	env := map[string]string{
		"PROJECT_ID": proj.ID,
	}
	if p.cfg.PersistentDBURL != "" {
		env["AGENT_DB_URL"] = p.cfg.PersistentDBURL
	}

	containerID, err := p.driver.Create(ctx, dockercli.CreateOpts{
		Name:         proj.ContainerName(),
		Image:        p.cfg.Image,
		Env:          env,
		Mounts:       mounts,
		CPULimit:     p.cfg.CPULimit,
		MemoryLimitM: p.cfg.MemoryLimitM,
		Network:      p.cfg.Network,
	})
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := p.driver.Start(ctx, containerID); err != nil {
		return containerID, fmt.Errorf("start container: %w", err)
	}
	return containerID, nil
}

func (p *Provisioner) cloneRepo(ctx context.Context, containerID string, proj *projectstore.Project) error {
	if err := sanitize.GitURL(proj.RepoURL); err != nil {
		return fmt.Errorf("repo url: %w", err)
	}
	if err := sanitize.Branch(proj.Branch); err != nil {
		return fmt.Errorf("branch: %w", err)
	}

	argv := []string{
		"git", "clone",
		"--depth", strconv.Itoa(p.cfg.CloneDepth),
		"--branch", proj.Branch,
		proj.RepoURL,
		"/workspace/repo",
	}
	res, err := p.driver.Exec(ctx, containerID, argv, "", p.cfg.CloneTimeout)
	if err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git clone exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (p *Provisioner) waitHealthy(ctx context.Context, proj *projectstore.Project) error {
	deadline := time.Now().Add(p.cfg.HealthPollFor)
	url := p.healthURL(proj)

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := p.httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("agent health check timed out after %s", p.cfg.HealthPollFor)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.HealthPollEvery):
		}
	}
}

// teardown best-effort stops and force-removes a container. Its own
// errors are logged, never propagated, per spec.md §4.5.
func (p *Provisioner) teardown(ctx context.Context, containerID string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := p.driver.Stop(stopCtx, containerID, 10*time.Second); err != nil {
		log.Printf("provisioner: compensating stop of %s failed: %v", containerID, err)
	}
	if err := p.driver.Remove(stopCtx, containerID, true); err != nil {
		log.Printf("provisioner: compensating remove of %s failed: %v", containerID, err)
	}
}
