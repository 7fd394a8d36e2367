// Package partition splits a corpus into groups aligned with the sections
// of its table of contents.
package partition

import (
	"sort"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/toc"
)

// Group is the set of documents that belong to one section.
type Group struct {
	Title        string            `json:"title" yaml:"title"`
	SectionIndex int               `json:"section_index" yaml:"section_index"`
	Documents    []corpus.Document `json:"documents" yaml:"documents"`
	TOC          toc.Tree          `json:"-" yaml:"-"`
}

// Assignment records which entry a document was mapped to.
type Assignment struct {
	Document corpus.Document `json:"document" yaml:"document"`
	Entry    string          `json:"entry" yaml:"entry"`
	Section  string          `json:"section" yaml:"section"`
}

// Result is the outcome of Partition.
type Result struct {
	Groups      []Group           `json:"groups" yaml:"groups"`
	Assignments []Assignment      `json:"assignments" yaml:"assignments"`
	Unmatched   []corpus.Document `json:"unmatched,omitempty" yaml:"unmatched,omitempty"`
}

// Total returns the number of documents assigned to a group.
func (r Result) Total() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Documents)
	}
	return n
}

// Partition pairs docs with the flattened entries of tree by position. The
// document at position i joins the group of the section holding entry i.
// Documents without an entry are unmatched and belong to no group.
//
// Groups never hold zero documents. They are ordered by descending document
// count; equal counts keep section order.
func Partition(docs []corpus.Document, tree toc.Tree) Result {
	flat := tree.Flatten()

	bySection := make(map[int]*Group)
	var res Result
	for i, doc := range docs {
		if i >= len(flat) {
			res.Unmatched = append(res.Unmatched, doc)
			continue
		}
		entry := flat[i]
		secIdx := tree.SectionOf(entry.Index)
		if secIdx < 0 {
			res.Unmatched = append(res.Unmatched, doc)
			continue
		}

		g, ok := bySection[secIdx]
		if !ok {
			g = &Group{
				Title:        tree.Sections[secIdx].Title,
				SectionIndex: secIdx,
				TOC:          tree.Slice(secIdx),
			}
			bySection[secIdx] = g
		}
		g.Documents = append(g.Documents, doc)
		res.Assignments = append(res.Assignments, Assignment{
			Document: doc,
			Entry:    entry.Title,
			Section:  g.Title,
		})
	}

	for i := range tree.Sections {
		if g, ok := bySection[i]; ok {
			res.Groups = append(res.Groups, *g)
		}
	}
	sort.SliceStable(res.Groups, func(i, j int) bool {
		return len(res.Groups[i].Documents) > len(res.Groups[j].Documents)
	})
	return res
}
