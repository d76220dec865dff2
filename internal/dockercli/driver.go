// Package dockercli is a thin typed wrapper around the host `docker`
// CLI. Every operation runs the binary with an argument vector — never
// a shell string — so that no client-derived value can be interpreted
// as shell syntax. Callers are expected to have already run any
// client-derived argument through package sanitize.
package dockercli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
)

// Mount describes one bind mount passed to `docker create -v`.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// CreateOpts are the arguments to Driver.Create.
type CreateOpts struct {
	Name         string
	Image        string
	Env          map[string]string
	Mounts       []Mount
	CPULimit     float64 // cores, e.g. 2.0
	MemoryLimitM int64   // MiB
	Network      string
}

// ExecResult is the outcome of a non-streaming exec.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// InspectResult is the outcome of Driver.Inspect.
type InspectResult struct {
	State ContainerState
	Name  string
	Image string
}

// ContainerState is the coarse lifecycle state reported by Inspect.
type ContainerState string

const (
	StateRunning ContainerState = "running"
	StateExited  ContainerState = "exited"
	StateMissing ContainerState = "missing"
)

// Runner abstracts process execution so tests can substitute a fake
// without touching the real docker binary.
type Runner interface {
	Run(ctx context.Context, args ...string) (stdout, stderr []byte, exitCode int, err error)
	Stream(ctx context.Context, args ...string) (io.ReadCloser, func() error, error)
}

// execRunner is the production Runner, invoking the real docker CLI.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdout.Bytes(), stderr.Bytes(), -1, err
		}
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, nil
}

func (execRunner) Stream(ctx context.Context, args ...string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	cmd.Stderr = cmd.Stdout // combined stream, matching spec.md §4.2's "combined stdout+stderr"
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return stdout, cmd.Wait, nil
}

// Driver is the Container Driver (spec.md §4.2).
type Driver struct {
	run Runner
}

// New returns a Driver backed by the real docker CLI.
func New() *Driver {
	return &Driver{run: execRunner{}}
}

// NewWithRunner is used by tests to inject a fake Runner.
func NewWithRunner(r Runner) *Driver {
	return &Driver{run: r}
}

// Create creates (but does not start) a named container.
func (d *Driver) Create(ctx context.Context, opts CreateOpts) (string, error) {
	args := []string{"create", "--name", opts.Name}
	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
	}
	if opts.CPULimit > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(opts.CPULimit, 'f', -1, 64))
	}
	if opts.MemoryLimitM > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", opts.MemoryLimitM))
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	for _, m := range opts.Mounts {
		spec := fmt.Sprintf("%s:%s", m.HostPath, m.ContainerPath)
		if m.ReadOnly {
			spec += ":ro"
		}
		args = append(args, "-v", spec)
	}
	args = append(args, opts.Image)

	stdout, stderr, exitCode, err := d.run.Run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ctlerrors.ErrContainerCreateFailed, err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("%w: %s", ctlerrors.ErrContainerCreateFailed, strings.TrimSpace(string(stderr)))
	}
	return strings.TrimSpace(string(stdout)), nil
}

// Start starts a created container.
func (d *Driver) Start(ctx context.Context, id string) error {
	return d.simple(ctx, "start", id)
}

// Stop issues a graceful stop with the given timeout (seconds, default 10),
// after which docker hard-kills the container itself.
func (d *Driver) Stop(ctx context.Context, id string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return d.simple(ctx, "stop", "--time", strconv.Itoa(int(timeout.Seconds())), id)
}

// Remove removes a container. force=true tolerates a running container.
func (d *Driver) Remove(ctx context.Context, id string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, id)
	return d.simple(ctx, args...)
}

func (d *Driver) simple(ctx context.Context, args ...string) error {
	_, stderr, exitCode, err := d.run.Run(ctx, args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("docker %s: %s", args[0], strings.TrimSpace(string(stderr)))
	}
	return nil
}

// Inspect reports a container's coarse lifecycle state. A missing
// container returns StateMissing rather than an error.
func (d *Driver) Inspect(ctx context.Context, id string) (InspectResult, error) {
	stdout, _, exitCode, err := d.run.Run(ctx, "inspect",
		"--format", "{{.State.Running}}\t{{.Name}}\t{{.Config.Image}}", id)
	if err != nil {
		return InspectResult{}, err
	}
	if exitCode != 0 {
		return InspectResult{State: StateMissing}, nil
	}

	fields := strings.SplitN(strings.TrimSpace(string(stdout)), "\t", 3)
	if len(fields) != 3 {
		return InspectResult{State: StateMissing}, nil
	}
	state := StateExited
	if fields[0] == "true" {
		state = StateRunning
	}
	return InspectResult{
		State: state,
		Name:  strings.TrimPrefix(fields[1], "/"),
		Image: fields[2],
	}, nil
}

// Exec runs argv inside the container and waits for it to finish or
// for timeout (default 300s) to elapse.
func (d *Driver) Exec(ctx context.Context, id string, argv []string, workdir string, timeout time.Duration) (ExecResult, error) {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"exec"}
	if workdir != "" {
		args = append(args, "-w", workdir)
	}
	args = append(args, id)
	args = append(args, argv...)

	stdout, stderr, exitCode, err := d.run.Run(ctx, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ExecResult{}, fmt.Errorf("%w", ctlerrors.ErrExecTimeout)
		}
		return ExecResult{}, err
	}
	return ExecResult{
		ExitCode: exitCode,
		Stdout:   replaceInvalidUTF8(string(stdout)),
		Stderr:   replaceInvalidUTF8(string(stderr)),
	}, nil
}

// LogLine is one line of combined stdout/stderr from LogsFollow.
type LogLine struct {
	Text string
	Err  error // non-nil only for the final terminal line, if the stream broke
}

// LogsFollow returns an async stream of the container's combined
// stdout+stderr, beginning with the last tailLines lines. When follow is
// true it continues until ctx is cancelled or the container exits;
// otherwise the channel closes once the existing backlog is drained.
func (d *Driver) LogsFollow(ctx context.Context, id string, tailLines int, follow bool) (<-chan LogLine, error) {
	args := []string{"logs", "--timestamps=false"}
	if follow {
		args = append(args, "--follow")
	}
	if tailLines > 0 {
		args = append(args, "--tail", strconv.Itoa(tailLines))
	}
	args = append(args, id)

	stdout, wait, err := d.run.Stream(ctx, args...)
	if err != nil {
		return nil, err
	}

	out := make(chan LogLine, 64)
	go func() {
		defer close(out)
		defer stdout.Close()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			out <- LogLine{Text: replaceInvalidUTF8(scanner.Text())}
		}
		if err := scanner.Err(); err != nil {
			out <- LogLine{Err: err}
		}
		_ = wait()
	}()
	return out, nil
}

// CopyTo copies a file from the host into a stopped-or-running container.
func (d *Driver) CopyTo(ctx context.Context, id, hostPath, containerPath string) error {
	return d.simple(ctx, "cp", hostPath, id+":"+containerPath)
}

func replaceInvalidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
