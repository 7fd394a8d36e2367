package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/fitbind/internal/fidelity"
)

// Output is one compressed single-document PDF.
type Output struct {
	Path  string
	Pages int
	Size  int64
}

// Compressor turns one source PDF into a compact PDF at cfg.
type Compressor interface {
	Compress(ctx context.Context, src string, cfg fidelity.Configuration, outDir string) (Output, error)
}

// ImageImporter builds a PDF from page images. *pdfdoc.Toolkit implements it.
type ImageImporter interface {
	ImportImages(images []string, outFile string) error
}

// PDFCompressor rasterizes with a Renderer and rebuilds the PDF from the
// page images.
type PDFCompressor struct {
	renderer Renderer
	importer ImageImporter
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// CompressorConfig configures a PDFCompressor.
type CompressorConfig struct {
	Renderer Renderer
	Importer ImageImporter
	// Attempts is the number of times rendering is tried (default 1).
	Attempts int
	// RetryDelay is the pause between attempts (default 500ms).
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// NewCompressor creates a PDFCompressor.
func NewCompressor(cfg CompressorConfig) (*PDFCompressor, error) {
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if cfg.Importer == nil {
		return nil, fmt.Errorf("image importer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	return &PDFCompressor{
		renderer: cfg.Renderer,
		importer: cfg.Importer,
		attempts: uint(attempts),
		delay:    delay,
		logger:   logger.With("renderer", cfg.Renderer.Name()),
	}, nil
}

// Compress renders src into outDir/pages, imports the pages into
// outDir/<name>.pdf and removes the page images.
func (c *PDFCompressor) Compress(ctx context.Context, src string, cfg fidelity.Configuration, outDir string) (Output, error) {
	pageDir := filepath.Join(outDir, "pages")
	if err := os.MkdirAll(pageDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("failed to create page directory: %w", err)
	}
	defer os.RemoveAll(pageDir)

	var pages []string
	err := retry.Do(
		func() error {
			var rerr error
			pages, rerr = c.renderer.Render(ctx, src, cfg, pageDir)
			return rerr
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying render", "file", src, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return Output{}, err
	}

	out := filepath.Join(outDir, filepath.Base(src))
	if err := c.importer.ImportImages(pages, out); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	return Output{Path: out, Pages: len(pages), Size: info.Size()}, nil
}
