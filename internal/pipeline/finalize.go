package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/outline"
	"github.com/jackzampolin/fitbind/internal/search"
	"github.com/jackzampolin/fitbind/internal/toc"
)

// finalize writes the reconciled outline into the best probe and moves the
// result to dest. The file appears at dest only once complete.
func (b *Binder) finalize(best *search.BestFit, tree toc.Tree, docs []corpus.Document, dest string, opts Options) (Artifact, error) {
	probe := best.Probe

	placements := make([]outline.Placement, len(probe.Parts))
	included := make(map[int]bool, len(probe.Parts))
	art := Artifact{Config: best.Config}
	for i, p := range probe.Parts {
		placements[i] = outline.Placement{Ordinal: p.Ordinal, Pages: p.Pages}
		included[p.Ordinal] = true
		art.Documents = append(art.Documents, p.Name)
	}
	for _, d := range docs {
		if !included[d.Ordinal] {
			art.Dropped = append(art.Dropped, d.Name)
		}
	}
	nodes := outline.Reconcile(tree, placements)
	art.Bookmarks = outline.Count(nodes)
	art.Pages = outline.TotalPages(placements)

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	partial := filepath.Join(dir, "."+filepath.Base(dest)+".partial")
	if err := b.toolkit.WriteOutline(probe.Path, partial, nodes); err != nil {
		os.Remove(partial)
		return Artifact{}, err
	}
	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return Artifact{}, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	final := dest
	if opts.DeliverDir != "" {
		delivered, err := deliver(dest, opts.DeliverDir)
		if err != nil {
			return Artifact{}, err
		}
		final = delivered
	}

	info, err := os.Stat(final)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to stat artifact: %w", err)
	}
	art.Path = final
	art.Size = info.Size()

	if art.Size > opts.Budget {
		b.logger.Warn("outline pushed artifact over budget", "file", final, "size", art.Size, "budget", opts.Budget)
	}
	return art, nil
}

// deliver moves path into dir, falling back to copy and remove across
// filesystems.
func deliver(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create deliver directory: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(path))

	err := os.Rename(path, dest)
	if err == nil {
		return dest, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("failed to deliver %s: %w", path, err)
	}

	if err := copyAtomic(path, dest); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to remove %s after delivery: %w", path, err)
	}
	return dest, nil
}

func copyAtomic(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	partial := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".partial")
	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", partial, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(partial)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to write %s: %w", partial, err)
	}
	return os.Rename(partial, dest)
}

var unsafeChars = strings.NewReplacer(
	":", "",
	"/", "-",
	"\\", "-",
	" ", "_",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// GroupFileName returns the artifact name for a section, e.g.
// "Anlagen-Zeugnisse_und_Nachweise.pdf".
func GroupFileName(prefix, title string) string {
	name := strings.Trim(unsafeChars.Replace(strings.TrimSpace(title)), ".")
	if name == "" {
		name = "section"
	}
	return prefix + "-" + name + ".pdf"
}

// groupFileNames assigns a unique file name to every group, in order.
func groupFileNames(prefix string, titles []string) []string {
	seen := make(map[string]int, len(titles))
	names := make([]string, len(titles))
	for i, title := range titles {
		name := GroupFileName(prefix, title)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = strings.TrimSuffix(name, ".pdf") + fmt.Sprintf("-%d.pdf", n)
		}
		names[i] = name
	}
	return names
}
