// Package toc parses the table of contents that drives
// bookmark titles and group partitioning.
//
// A tree has two levels: sections, each holding an ordered list of entries.
// Every entry carries its position in the flattened entry sequence; that
// position, not the title, is what ties an entry to a source document.
package toc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformed is returned when a table of contents cannot be turned into a tree.
var ErrMalformed = errors.New("malformed table of contents")

// Entry is one bookmark title. Index is its position in Tree.Flatten().
type Entry struct {
	Title string `json:"title" yaml:"title"`
	Index int    `json:"index" yaml:"index"`
}

// Section is a top-level bookmark with no page target of its own.
type Section struct {
	Title   string  `json:"title" yaml:"title"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Tree is a parsed table of contents. Read-only once built.
type Tree struct {
	Sections []Section `json:"sections" yaml:"sections"`
}

// New builds a tree from section titles and their entry titles, assigning
// flat indices in order.
func New(sections []string, entries [][]string) Tree {
	var tree Tree
	idx := 0
	for i, title := range sections {
		sec := Section{Title: title}
		if i < len(entries) {
			for _, e := range entries[i] {
				sec.Entries = append(sec.Entries, Entry{Title: e, Index: idx})
				idx++
			}
		}
		tree.Sections = append(tree.Sections, sec)
	}
	return tree
}

// Flatten returns every entry in order.
func (t Tree) Flatten() []Entry {
	var flat []Entry
	for _, sec := range t.Sections {
		flat = append(flat, sec.Entries...)
	}
	return flat
}

// EntryCount returns the number of entries across all sections.
func (t Tree) EntryCount() int {
	n := 0
	for _, sec := range t.Sections {
		n += len(sec.Entries)
	}
	return n
}

// SectionOf returns the index of the section holding the entry at flat
// index idx, or -1 if idx is out of range.
func (t Tree) SectionOf(idx int) int {
	for i, sec := range t.Sections {
		for _, e := range sec.Entries {
			if e.Index == idx {
				return i
			}
		}
	}
	return -1
}

// Slice returns a tree containing only the section at index i. Entry
// indices keep their corpus-wide values.
func (t Tree) Slice(i int) Tree {
	if i < 0 || i >= len(t.Sections) {
		return Tree{}
	}
	return Tree{Sections: []Section{t.Sections[i]}}
}

// Validate checks the invariants every parser must uphold.
func (t Tree) Validate() error {
	if len(t.Sections) == 0 {
		return fmt.Errorf("%w: no sections found", ErrMalformed)
	}
	expected := 0
	for i, sec := range t.Sections {
		if strings.TrimSpace(sec.Title) == "" {
			return fmt.Errorf("%w: section %d has an empty title", ErrMalformed, i+1)
		}
		for _, e := range sec.Entries {
			if strings.TrimSpace(e.Title) == "" {
				return fmt.Errorf("%w: empty entry in section %q", ErrMalformed, sec.Title)
			}
			if e.Index != expected {
				return fmt.Errorf("%w: entry %q has index %d, expected %d", ErrMalformed, e.Title, e.Index, expected)
			}
			expected++
		}
	}
	return nil
}

// Load reads and parses the table of contents at path. YAML and JSON files are
// decoded as structured documents; anything else is read as a markdown list.
func Load(path string) (Tree, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Tree{}, fmt.Errorf("failed to read table of contents: %w", err)
	}

	var tree Tree
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		tree, err = ParseStructured(src)
	default:
		tree, err = ParseMarkdown(src)
	}
	if err != nil {
		return Tree{}, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}
