package render

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jackzampolin/fitbind/internal/fidelity"
)

// Pdftoppm renders with poppler's pdftoppm.
type Pdftoppm struct {
	// Binary overrides the executable (default "pdftoppm" on PATH).
	Binary string
}

// Name returns "pdftoppm".
func (p *Pdftoppm) Name() string { return BackendPdftoppm }

// Render runs one pdftoppm process for the whole document.
func (p *Pdftoppm) Render(ctx context.Context, src string, cfg fidelity.Configuration, outDir string) ([]string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftoppm"
	}

	prefix := filepath.Join(outDir, "page")

	// -jpeg: JPEG output
	// -jpegopt quality=N: encoder quality
	// -r N: resolution in DPI
	cmd := exec.CommandContext(ctx, bin,
		"-jpeg",
		"-jpegopt", "quality="+strconv.Itoa(cfg.Quality),
		"-r", strconv.Itoa(cfg.DPI),
		src,
		prefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: pdftoppm: %v (output: %s)", ErrRender, err, string(output))
	}

	// pdftoppm names pages <prefix>-N.jpg, zero-padded to the width of the
	// page count, so lexical order is page order.
	pages, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no pages for %s", ErrRender, src)
	}
	sort.Strings(pages)
	return pages, nil
}
