package toolbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sandbox jails filesystem tool paths to a workspace root, with optional
// doublestar patterns for paths allowed outside it.
type Sandbox struct {
	root    string
	allowed []string
}

// NewSandbox creates a sandbox rooted at root. allowed holds glob
// patterns (doublestar syntax) for absolute paths usable outside root.
func NewSandbox(root string, allowed []string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Sandbox{root: abs, allowed: allowed}, nil
}

// Root returns the workspace root.
func (s *Sandbox) Root() string { return s.root }

// Resolve turns a tool-supplied path into an absolute one inside the
// sandbox, or fails with AccessError. Relative paths resolve against the
// root; symlinks are resolved best-effort so links cannot escape.
func (s *Sandbox) Resolve(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.root, resolved)
	}
	resolved = filepath.Clean(resolved)

	if real, err := evalSymlinksExisting(resolved); err == nil {
		resolved = real
	}

	if isUnder(resolved, s.root) {
		return resolved, nil
	}
	for _, pattern := range s.allowed {
		if ok, err := doublestar.Match(pattern, resolved); err == nil && ok {
			return resolved, nil
		}
	}
	return "", &AccessError{Path: path, Root: s.root}
}

// isUnder returns true if child is equal to or a descendant of parent.
func isUnder(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// evalSymlinksExisting resolves symlinks for the longest existing prefix
// of a path, so not-yet-created leaves still validate.
func evalSymlinksExisting(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == path {
		return "", err
	}

	resolvedDir, err := evalSymlinksExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
