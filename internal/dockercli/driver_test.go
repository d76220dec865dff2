package dockercli

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
)

// fakeRunner lets tests script docker CLI responses without touching the
// real binary.
type fakeRunner struct {
	calls [][]string

	runFn    func(args []string) ([]byte, []byte, int, error)
	streamFn func(args []string) (io.ReadCloser, func() error, error)
}

func (f *fakeRunner) Run(_ context.Context, args ...string) ([]byte, []byte, int, error) {
	f.calls = append(f.calls, args)
	if f.runFn != nil {
		return f.runFn(args)
	}
	return nil, nil, 0, nil
}

func (f *fakeRunner) Stream(_ context.Context, args ...string) (io.ReadCloser, func() error, error) {
	f.calls = append(f.calls, args)
	return f.streamFn(args)
}

func TestDriverCreateBuildsArgv(t *testing.T) {
	fr := &fakeRunner{runFn: func(args []string) ([]byte, []byte, int, error) {
		return []byte("abc123\n"), nil, 0, nil
	}}
	d := NewWithRunner(fr)

	id, err := d.Create(context.Background(), CreateOpts{
		Name:         "proj-x",
		Image:        "agent:latest",
		Env:          map[string]string{"FOO": "bar"},
		Mounts:       []Mount{{HostPath: "/host/w", ContainerPath: "/workspace"}},
		CPULimit:     2,
		MemoryLimitM: 512,
		Network:      "sandbox-net",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "abc123" {
		t.Fatalf("id = %q, want abc123", id)
	}

	args := fr.calls[0]
	if args[0] != "create" {
		t.Fatalf("first arg = %q, want create", args[0])
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"--name proj-x", "--network sandbox-net", "--cpus 2", "--memory 512m", "-e FOO=bar", "-v /host/w:/workspace", "agent:latest"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("argv %q missing %q", joined, want)
		}
	}
}

func TestDriverCreateFailurePropagatesStderr(t *testing.T) {
	fr := &fakeRunner{runFn: func(args []string) ([]byte, []byte, int, error) {
		return nil, []byte("no such image"), 1, nil
	}}
	d := NewWithRunner(fr)

	if _, err := d.Create(context.Background(), CreateOpts{Name: "x", Image: "missing"}); err == nil {
		t.Fatal("expected error, got nil")
	} else if !strings.Contains(err.Error(), "no such image") {
		t.Fatalf("error = %v, want to mention stderr", err)
	}
}

func TestDriverInspectMissingContainer(t *testing.T) {
	fr := &fakeRunner{runFn: func(args []string) ([]byte, []byte, int, error) {
		return nil, []byte("Error: No such object"), 1, nil
	}}
	d := NewWithRunner(fr)

	res, err := d.Inspect(context.Background(), "gone")
	if err != nil {
		t.Fatalf("Inspect returned error for missing container: %v", err)
	}
	if res.State != StateMissing {
		t.Fatalf("state = %s, want missing", res.State)
	}
}

func TestDriverInspectRunning(t *testing.T) {
	fr := &fakeRunner{runFn: func(args []string) ([]byte, []byte, int, error) {
		return []byte("true\t/proj-x\tagent:latest\n"), nil, 0, nil
	}}
	d := NewWithRunner(fr)

	res, err := d.Inspect(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if res.State != StateRunning || res.Name != "proj-x" || res.Image != "agent:latest" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDriverExecTimeout(t *testing.T) {
	fr := &fakeRunner{runFn: func(args []string) ([]byte, []byte, int, error) {
		return nil, nil, 0, context.DeadlineExceeded
	}}
	d := NewWithRunner(fr)

	_, err := d.Exec(context.Background(), "abc123", []string{"sleep", "100"}, "", 1)
	if !errors.Is(err, ctlerrors.ErrExecTimeout) {
		t.Fatalf("err = %v, want ErrExecTimeout", err)
	}
}

func TestDriverLogsFollowStreamsLines(t *testing.T) {
	r := io.NopCloser(strings.NewReader("line one\nline two\n"))
	fr := &fakeRunner{streamFn: func(args []string) (io.ReadCloser, func() error, error) {
		return r, func() error { return nil }, nil
	}}
	d := NewWithRunner(fr)

	ch, err := d.LogsFollow(context.Background(), "abc123", 100, true)
	if err != nil {
		t.Fatalf("LogsFollow failed: %v", err)
	}

	var lines []string
	for line := range ch {
		if line.Err != nil {
			t.Fatalf("unexpected stream error: %v", line.Err)
		}
		lines = append(lines, line.Text)
	}
	if len(lines) != 2 || lines[0] != "line one" || lines[1] != "line two" {
		t.Fatalf("lines = %v", lines)
	}
}
