package render

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/jackzampolin/fitbind/internal/fidelity"
)

// Fitz renders in-process with MuPDF.
type Fitz struct{}

// Name returns "fitz".
func (f *Fitz) Name() string { return BackendFitz }

// Render rasterizes each page at cfg.DPI and encodes it at cfg.Quality.
func (f *Fitz) Render(ctx context.Context, src string, cfg fidelity.Configuration, outDir string) ([]string, error) {
	doc, err := fitz.New(src)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrRender, src, err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if count == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", ErrRender, src)
	}

	pages := make([]string, 0, count)
	for n := 0; n < count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(n, float64(cfg.DPI))
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrRender, n+1, err)
		}

		path := filepath.Join(outDir, fmt.Sprintf("page-%04d.jpg", n+1))
		out, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: cfg.Quality})
		out.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrEncode, n+1, err)
		}

		pages = append(pages, path)
	}
	return pages, nil
}
