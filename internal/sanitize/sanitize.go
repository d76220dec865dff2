// Package sanitize validates every string that crosses from an HTTP
// request into a shell-bound operation: git URLs, branch names, and
// workspace-relative file paths. Validation always runs before any
// container CLI invocation is built from the same value.
package sanitize

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
)

// shellMetacharacters are rejected anywhere in a git URL or path, beyond
// the structural delimiters each grammar below allows.
const shellMetacharacters = ";&|$`(){}[]<>!\n\r'\"\\"

var (
	httpsGitURL = regexp.MustCompile(`^https://[A-Za-z0-9.-]+/[A-Za-z0-9._/\-]+(\.git)?$`)
	sshGitURL   = regexp.MustCompile(`^git@[A-Za-z0-9.-]+:[A-Za-z0-9._/\-]+(\.git)?$`)
	branchRe    = regexp.MustCompile(`^[A-Za-z0-9._/\-]{1,255}$`)
)

// GitURL validates a repository URL against the https:// and git@ forms.
// Anything containing a shell metacharacter or unexpected whitespace is
// rejected with ctlerrors.ErrInvalidGitURL before any CLI invocation sees it.
func GitURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ctlerrors.ErrInvalidGitURL)
	}
	if strings.ContainsAny(raw, shellMetacharacters) {
		return fmt.Errorf("%w: contains shell metacharacter", ctlerrors.ErrInvalidGitURL)
	}
	if strings.ContainsAny(raw, " \t") {
		return fmt.Errorf("%w: contains whitespace", ctlerrors.ErrInvalidGitURL)
	}
	if httpsGitURL.MatchString(raw) || sshGitURL.MatchString(raw) {
		return nil
	}
	return fmt.Errorf("%w: %q", ctlerrors.ErrInvalidGitURL, raw)
}

// Branch validates a git ref name: [A-Za-z0-9._/-]{1,255}, not starting
// with '-', never containing "..", and never ending in '/' or '.'.
func Branch(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ctlerrors.ErrInvalidBranch)
	}
	if !branchRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ctlerrors.ErrInvalidBranch, name)
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: starts with '-'", ctlerrors.ErrInvalidBranch)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: contains '..'", ctlerrors.ErrInvalidBranch)
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("%w: trailing '/' or '.'", ctlerrors.ErrInvalidBranch)
	}
	return nil
}

// WorkspacePath validates a client-supplied relative path for the
// filesystem browser, then resolves it against root and confirms the
// result stays inside root. It decodes one layer of URL-encoding before
// rejecting traversal markers, matching the contract in spec.md §4.1.
func WorkspacePath(root, rel string) (string, error) {
	if rel == "" {
		rel = "."
	}

	decoded := rel
	if unescaped, err := url.QueryUnescape(rel); err == nil {
		decoded = unescaped
	}
	lower := strings.ToLower(decoded)
	if strings.Contains(lower, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e%252e") {
		return "", fmt.Errorf("%w: traversal marker", ctlerrors.ErrInvalidPath)
	}
	if strings.HasPrefix(decoded, "/") {
		return "", fmt.Errorf("%w: absolute path", ctlerrors.ErrInvalidPath)
	}
	if strings.ContainsRune(decoded, 0) {
		return "", fmt.Errorf("%w: NUL byte", ctlerrors.ErrInvalidPath)
	}
	if strings.ContainsAny(decoded, shellMetacharacters) {
		return "", fmt.Errorf("%w: contains shell metacharacter", ctlerrors.ErrInvalidPath)
	}

	clean := filepath.Clean(decoded)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute after clean", ctlerrors.ErrInvalidPath)
	}

	rootClean := filepath.Clean(root)
	joined := filepath.Join(rootClean, clean)
	if joined != rootClean && !strings.HasPrefix(joined, rootClean+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: escapes workspace root", ctlerrors.ErrInvalidPath)
	}

	return joined, nil
}
