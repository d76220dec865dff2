// Package browser implements the read-only filesystem browser over a
// project's container (spec.md §4.8). All access goes through the
// Container Driver's exec operation against /workspace inside the
// container — never the host filesystem directly.
package browser

import (
	"bufio"
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jordanhubbard/refactorctl/internal/dockercli"
	"github.com/jordanhubbard/refactorctl/internal/sanitize"
)

const (
	execTimeout     = 5 * time.Second
	defaultMaxDepth = 6
	defaultMaxBytes = 1 << 20 // 1 MiB
)

// Node is one entry in the filesystem tree.
type Node struct {
	Type     string  `json:"type"` // "file" | "directory"
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Children []*Node `json:"children,omitempty"`
}

// Browser answers tree and content requests against a container's /workspace.
type Browser struct {
	driver   *dockercli.Driver
	maxDepth int
	maxBytes int64
}

// New builds a Browser. maxDepth<=0 defaults to 6, maxBytes<=0 to 1 MiB.
func New(driver *dockercli.Driver, maxDepth int, maxBytes int64) *Browser {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Browser{driver: driver, maxDepth: maxDepth, maxBytes: maxBytes}
}

// Tree runs `find /workspace -maxdepth D -printf '%y %p\n'` inside the
// container and assembles the result into a nested Node tree rooted at
// /workspace.
func (b *Browser) Tree(ctx context.Context, containerID string) (*Node, error) {
	argv := []string{"sh", "-c", fmt.Sprintf("find /workspace -maxdepth %d -printf '%%y %%p\\n'", b.maxDepth)}
	res, err := b.driver.Exec(ctx, containerID, argv, "", execTimeout)
	if err != nil {
		return nil, fmt.Errorf("exec find: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("find exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return parseFindOutput(res.Stdout)
}

// parseFindOutput builds the tree from find's "<type> <path>" lines.
// find emits parents before children, so a single pass with a path->node
// map is sufficient.
func parseFindOutput(output string) (*Node, error) {
	nodes := map[string]*Node{}
	var root *Node

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			continue
		}
		typeChar, p := line[:sp], line[sp+1:]

		nodeType := "file"
		if typeChar == "d" {
			nodeType = "directory"
		}
		n := &Node{Type: nodeType, Name: path.Base(p), Path: p}
		nodes[p] = n

		if p == "/workspace" {
			root = n
			continue
		}
		parent, ok := nodes[path.Dir(p)]
		if !ok {
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	if root == nil {
		return &Node{Type: "directory", Name: "workspace", Path: "/workspace"}, nil
	}
	return root, nil
}

// Content reads a file's content via `cat`. rel is validated against
// traversal before being joined onto /workspace. Output larger than
// maxBytes is truncated.
func (b *Browser) Content(ctx context.Context, containerID, rel string) (content string, truncated bool, err error) {
	absPath, err := sanitize.WorkspacePath("/workspace", rel)
	if err != nil {
		return "", false, err
	}

	res, err := b.driver.Exec(ctx, containerID, []string{"cat", absPath}, "", execTimeout)
	if err != nil {
		return "", false, fmt.Errorf("exec cat: %w", err)
	}
	if res.ExitCode != 0 {
		return "", false, fmt.Errorf("cat exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	data := res.Stdout
	if int64(len(data)) > b.maxBytes {
		data = data[:b.maxBytes]
		truncated = true
	}
	if !utf8.ValidString(data) {
		data = strings.ToValidUTF8(data, string(utf8.RuneError))
	}
	return data, truncated, nil
}
