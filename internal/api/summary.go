package api

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jackzampolin/fitbind/internal/partition"
	"github.com/jackzampolin/fitbind/internal/pipeline"
	"github.com/jackzampolin/fitbind/internal/toc"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// FormatBytes renders n as MiB with two decimals.
func FormatBytes(n int64) string {
	return fmt.Sprintf("%.2f MiB", float64(n)/(1024*1024))
}

// WriteRunSummary renders a finished run.
func WriteRunSummary(w io.Writer, res *pipeline.Result, budget int64) {
	var b strings.Builder

	mode := "single artifact"
	if res.Mode == pipeline.ModeGroups {
		mode = "split by section"
	}
	fmt.Fprintf(&b, "%s %s  %s %s\n",
		dimStyle.Render("Mode:"), titleStyle.Render(mode),
		dimStyle.Render("Budget:"), FormatBytes(budget))

	for _, art := range res.Artifacts {
		fmt.Fprintf(&b, "%s %s  %s  %s  %d pages  %d bookmarks\n",
			successStyle.Render("✓"), filepath.Base(art.Path),
			dimStyle.Render(art.Config.String()),
			FormatBytes(art.Size), art.Pages, art.Bookmarks)
		for _, d := range art.Dropped {
			fmt.Fprintf(&b, "  %s dropped %s\n", warnStyle.Render("!"), d)
		}
	}
	for _, f := range res.Failures {
		fmt.Fprintf(&b, "%s %s  %s\n", errorStyle.Render("✗"), f.Group, dimStyle.Render(f.Error))
	}
	for _, d := range res.Unmatched {
		fmt.Fprintf(&b, "%s unmatched %s\n", warnStyle.Render("!"), d.Name)
	}

	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// Plan is a partition preview together with the source page counts.
type Plan struct {
	partition.Result `yaml:",inline"`

	Pages      map[string]int `json:"pages" yaml:"pages"`
	TotalPages int            `json:"total_pages" yaml:"total_pages"`
}

// WritePlan renders the document to section mapping of a plan. Documents
// whose page count is unknown show no count.
func WritePlan(w io.Writer, plan Plan) {
	var b strings.Builder
	section := ""
	for _, a := range plan.Assignments {
		if a.Section != section {
			section = a.Section
			fmt.Fprintln(&b, titleStyle.Render(section))
		}
		pages := ""
		if n, ok := plan.Pages[a.Document.Name]; ok {
			pages = dimStyle.Render(fmt.Sprintf(" (%d p.)", n))
		}
		fmt.Fprintf(&b, "  %s%s %s %s\n", a.Document.Name, pages, dimStyle.Render("→"), a.Entry)
	}
	for _, d := range plan.Unmatched {
		fmt.Fprintf(&b, "%s %s has no entry\n", warnStyle.Render("!"), d.Name)
	}
	if plan.TotalPages > 0 {
		fmt.Fprintf(&b, "%s %d\n", dimStyle.Render("Pages:"), plan.TotalPages)
	}
	fmt.Fprintln(w, strings.TrimRight(b.String(), "\n"))
}

// WriteTOC renders a parsed table of contents.
func WriteTOC(w io.Writer, tree toc.Tree) {
	for _, sec := range tree.Sections {
		fmt.Fprintln(w, titleStyle.Render(sec.Title))
		for _, e := range sec.Entries {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%3d", e.Index+1)), e.Title)
		}
	}
}
