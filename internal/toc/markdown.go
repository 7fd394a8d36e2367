package toc

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ParseMarkdown reads a bullet-list table of contents:
//
//	- Section one:
//	  - First entry
//	  - Second entry
//	- Section two:
//	  - Third entry
//
// Top-level items are sections (surrounding colons are dropped), nested
// items are entries. Titles are taken verbatim, so "- 1. Zeugnisse:" is a
// section named "1. Zeugnisse". Headings and paragraphs around the list are
// ignored.
func ParseMarkdown(src []byte) (Tree, error) {
	src = escapeNumbered(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var (
		sections []string
		entries  [][]string
	)

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		list, ok := n.(*ast.List)
		if !ok {
			continue
		}
		for item := list.FirstChild(); item != nil; item = item.NextSibling() {
			title, children, err := splitItem(item, src)
			if err != nil {
				return Tree{}, err
			}
			sections = append(sections, strings.TrimSpace(strings.Trim(title, ":")))
			entries = append(entries, children)
		}
	}

	tree := New(sections, entries)
	if err := tree.Validate(); err != nil {
		return Tree{}, err
	}
	return tree, nil
}

// splitItem returns a section item's own title and the titles of its
// nested entries. Nesting below entries is rejected.
func splitItem(item ast.Node, src []byte) (string, []string, error) {
	var (
		title    string
		children []string
	)
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.List:
			for sub := node.FirstChild(); sub != nil; sub = sub.NextSibling() {
				entry, nested, err := splitItem(sub, src)
				if err != nil {
					return "", nil, err
				}
				if len(nested) > 0 {
					return "", nil, fmt.Errorf("%w: entry %q has nested items, only two levels are supported", ErrMalformed, entry)
				}
				children = append(children, entry)
			}
		default:
			if t := blockText(c, src); t != "" {
				if title != "" {
					title += " "
				}
				title += t
			}
		}
	}
	return unescapeNumbered(title), children, nil
}

// A bullet whose text starts with "1." or "1)" would otherwise open an
// ordered list inside the item and leave the item without a title.
var (
	numberedItem  = regexp.MustCompile(`(?m)^([ \t]*[-*+][ \t]+)(\d{1,9})([.)])([ \t]|$)`)
	escapedNumber = regexp.MustCompile(`^(\d{1,9})\\([.)])`)
)

func escapeNumbered(src []byte) []byte {
	return numberedItem.ReplaceAll(src, []byte(`${1}${2}\${3}${4}`))
}

func unescapeNumbered(title string) string {
	return escapedNumber.ReplaceAllString(title, "${1}${2}")
}

// blockText joins the raw lines of a block node.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.Write(bytes.TrimSpace(seg.Value(src)))
	}
	return strings.TrimSpace(buf.String())
}
