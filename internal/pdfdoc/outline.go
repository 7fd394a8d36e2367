package pdfdoc

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/jackzampolin/fitbind/internal/outline"
)

// WriteOutline embeds nodes as the bookmark tree of inFile, writing the
// result to outFile (which may equal inFile). Existing bookmarks are
// replaced.
//
// PDF outline items need a destination, so a section node without a page
// points at its first child's page. A section with no children has nowhere
// to point and is left out.
func (t *Toolkit) WriteOutline(inFile, outFile string, nodes []outline.Node) error {
	bms := toBookmarks(nodes)
	if len(bms) == 0 {
		t.logger.Debug("no bookmarks to write", "file", inFile)
		if inFile == outFile {
			return nil
		}
		return copyFile(inFile, outFile)
	}
	if err := api.AddBookmarksFile(inFile, outFile, bms, true, t.conf); err != nil {
		return fmt.Errorf("failed to write outline: %w", err)
	}
	return nil
}

func toBookmarks(nodes []outline.Node) []pdfcpu.Bookmark {
	var bms []pdfcpu.Bookmark
	for _, n := range nodes {
		kids := toBookmarks(n.Children)
		page := n.Page
		if page == 0 {
			if len(kids) == 0 {
				continue
			}
			page = kids[0].PageFrom
		}
		bms = append(bms, pdfcpu.Bookmark{
			Title:    n.Title,
			PageFrom: page,
			Kids:     kids,
		})
	}
	return bms
}
