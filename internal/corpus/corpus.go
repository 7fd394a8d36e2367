// Package corpus enumerates the ordered set of source PDFs to bind.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmpty is returned when a source directory yields no documents.
var ErrEmpty = errors.New("corpus is empty")

// Document is an immutable reference to one source PDF.
type Document struct {
	Path    string `json:"path" yaml:"path"`
	Name    string `json:"name" yaml:"name"`
	Ordinal int    `json:"ordinal" yaml:"ordinal"` // 0-based position in the corpus
}

// Options controls which files Enumerate skips.
type Options struct {
	// ExcludeNames are exact file names to skip, e.g. a previous output.
	ExcludeNames []string
	// ExcludePrefixes skips any file whose name starts with one of these.
	ExcludePrefixes []string
}

// Skips reports whether a file name is excluded.
func (o Options) Skips(name string) bool {
	for _, n := range o.ExcludeNames {
		if n == name {
			return true
		}
	}
	return hasAnyPrefix(name, o.ExcludePrefixes)
}

// Enumerate lists PDFs in dir sorted lexicographically by name.
// Returns ErrEmpty if nothing qualifies.
func Enumerate(dir string, opts Options) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			continue
		}
		if opts.Skips(name) {
			continue
		}
		names = append(names, name)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no PDFs in %s", ErrEmpty, dir)
	}

	sort.Strings(names)
	return FromPaths(joinAll(dir, names)), nil
}

// FromPaths builds documents from an already-ordered list of paths.
func FromPaths(paths []string) []Document {
	docs := make([]Document, len(paths))
	for i, p := range paths {
		docs[i] = Document{
			Path:    p,
			Name:    filepath.Base(p),
			Ordinal: i,
		}
	}
	return docs
}

// Names returns the file names of docs, in order.
func Names(docs []Document) []string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return names
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func joinAll(dir string, names []string) []string {
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths
}
