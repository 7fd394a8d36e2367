// Package outline reconciles a table of contents with the documents that
// actually made it into one artifact.
package outline

import (
	"github.com/jackzampolin/fitbind/internal/toc"
)

// Node is one bookmark. Page is 1-based; 0 means the node has no target
// (sections).
type Node struct {
	Title    string `json:"title" yaml:"title"`
	Page     int    `json:"page,omitempty" yaml:"page,omitempty"`
	Children []Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// Placement is one document included in an artifact, in artifact order.
type Placement struct {
	Ordinal int // corpus position, matched to the entry with the same flat index
	Pages   int
}

// Offsets returns the 0-based starting page of each placed document keyed
// by ordinal: the sum of the page counts of the documents before it in
// this artifact.
func Offsets(placements []Placement) map[int]int {
	offsets := make(map[int]int, len(placements))
	cursor := 0
	for _, p := range placements {
		offsets[p.Ordinal] = cursor
		cursor += p.Pages
	}
	return offsets
}

// TotalPages sums the page counts of placements.
func TotalPages(placements []Placement) int {
	total := 0
	for _, p := range placements {
		total += p.Pages
	}
	return total
}

// Reconcile builds the bookmark tree for one artifact. Every section of
// tree becomes a parent node; an entry becomes a child pointing at its
// document's first page only if that document is present in placements.
func Reconcile(tree toc.Tree, placements []Placement) []Node {
	offsets := Offsets(placements)

	nodes := make([]Node, 0, len(tree.Sections))
	for _, sec := range tree.Sections {
		parent := Node{Title: sec.Title}
		for _, e := range sec.Entries {
			offset, ok := offsets[e.Index]
			if !ok {
				continue
			}
			parent.Children = append(parent.Children, Node{Title: e.Title, Page: offset + 1})
		}
		nodes = append(nodes, parent)
	}
	return nodes
}

// Count returns the number of entry nodes (nodes with a page) in nodes.
func Count(nodes []Node) int {
	n := 0
	for _, node := range nodes {
		if node.Page > 0 {
			n++
		}
		n += Count(node.Children)
	}
	return n
}
