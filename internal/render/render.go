// Package render rasterizes source PDFs at a fidelity configuration and
// rebuilds them as image-only PDFs.
package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackzampolin/fitbind/internal/fidelity"
)

var (
	// ErrRender marks a failure to rasterize a source document.
	ErrRender = errors.New("render failed")
	// ErrEncode marks a failure to assemble rendered pages into a PDF.
	ErrEncode = errors.New("encode failed")
)

// Renderer rasterizes every page of src into JPEG files under outDir and
// returns their paths in page order.
type Renderer interface {
	Name() string
	Render(ctx context.Context, src string, cfg fidelity.Configuration, outDir string) ([]string, error)
}

// Backend names accepted by New.
const (
	BackendPdftoppm = "pdftoppm"
	BackendFitz     = "fitz"
)

// New returns the renderer registered under name.
func New(name string) (Renderer, error) {
	switch name {
	case BackendPdftoppm, "":
		return &Pdftoppm{}, nil
	case BackendFitz:
		return &Fitz{}, nil
	default:
		return nil, fmt.Errorf("unknown renderer: %q", name)
	}
}
