package home

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Scope is a scratch directory owned by one unit of work: a run, a search
// within the run, or a single evaluation within the search. Scopes nest;
// siblings never share a path. Release removes the directory and is safe to
// call more than once.
type Scope struct {
	path string
	once sync.Once
	err  error
}

// AcquireRun creates the workspace of one run under root, or under the
// home work directory when root is empty.
func (d *Dir) AcquireRun(root, runID string) (*Scope, error) {
	if root == "" {
		root = d.WorkPath()
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	return acquire(filepath.Join(root, runID))
}

// Path returns the scope's directory.
func (s *Scope) Path() string {
	return s.path
}

// Sub acquires a child scope. Any leftover directory with the same name is
// cleared first.
func (s *Scope) Sub(name string) (*Scope, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid scope name: %q", name)
	}
	return acquire(filepath.Join(s.path, name))
}

// Release removes the scope's directory and everything under it.
func (s *Scope) Release() error {
	s.once.Do(func() {
		if err := os.RemoveAll(s.path); err != nil {
			s.err = fmt.Errorf("failed to release workspace %s: %w", s.path, err)
		}
	})
	return s.err
}

func acquire(path string) (*Scope, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear workspace %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", path, err)
	}
	return &Scope{path: path}, nil
}
