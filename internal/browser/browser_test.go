package browser

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/jordanhubbard/refactorctl/internal/dockercli"
)

type fakeRunner struct {
	findOutput string
	catOutput  string
}

func (f fakeRunner) Run(_ context.Context, args ...string) ([]byte, []byte, int, error) {
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "find ") {
		return []byte(f.findOutput), nil, 0, nil
	}
	return []byte(f.catOutput), nil, 0, nil
}

func (fakeRunner) Stream(context.Context, ...string) (io.ReadCloser, func() error, error) {
	return nil, nil, nil
}

func TestTreeParsesFindOutputIntoNestedNodes(t *testing.T) {
	findOut := "d /workspace\n" +
		"d /workspace/repo\n" +
		"f /workspace/repo/main.go\n" +
		"d /workspace/artifacts\n"
	driver := dockercli.NewWithRunner(fakeRunner{findOutput: findOut})
	b := New(driver, 0, 0)

	root, err := b.Tree(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Tree failed: %v", err)
	}
	if root.Type != "directory" || root.Path != "/workspace" {
		t.Fatalf("root = %+v", root)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(root.Children))
	}

	var repo *Node
	for _, c := range root.Children {
		if c.Name == "repo" {
			repo = c
		}
	}
	if repo == nil || len(repo.Children) != 1 || repo.Children[0].Name != "main.go" {
		t.Fatalf("repo node = %+v", repo)
	}
}

func TestContentRejectsTraversal(t *testing.T) {
	driver := dockercli.NewWithRunner(fakeRunner{})
	b := New(driver, 0, 0)

	if _, _, err := b.Content(context.Background(), "abc123", "../../etc/passwd"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestContentTruncatesOversizedFiles(t *testing.T) {
	driver := dockercli.NewWithRunner(fakeRunner{catOutput: string(make([]byte, 100))})
	b := New(driver, 0, 10)

	content, truncated, err := b.Content(context.Background(), "abc123", "big.txt")
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if !truncated || len(content) != 10 {
		t.Fatalf("truncated=%v len=%d, want truncated len=10", truncated, len(content))
	}
}
