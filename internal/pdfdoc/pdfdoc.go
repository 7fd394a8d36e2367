// Package pdfdoc wraps the low-level PDF operations the binder needs:
// page counting, image import, concatenation and outline writing.
package pdfdoc

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/patrickmn/go-cache"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Toolkit performs PDF operations with pdfcpu. Safe for concurrent use.
type Toolkit struct {
	conf   *model.Configuration
	pages  *cache.Cache
	logger *slog.Logger
}

// Config configures a Toolkit.
type Config struct {
	Logger *slog.Logger
	// PageCacheTTL bounds how long page counts are remembered (default 1h).
	PageCacheTTL time.Duration
}

// New creates a Toolkit. pdfcpu's on-disk configuration directory is
// disabled so runs leave nothing behind in the user's home.
func New(cfg Config) *Toolkit {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.PageCacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &Toolkit{
		conf:   conf,
		pages:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// PageCount returns the number of pages in the PDF at path. Files pdfcpu
// rejects are retried with a more forgiving reader. Counts are cached by
// path, size and modification time.
func (t *Toolkit) PageCount(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if v, ok := t.pages.Get(key); ok {
		return v.(int), nil
	}

	count, err := api.PageCountFile(path)
	if err != nil {
		t.logger.Debug("pdfcpu could not count pages, trying fallback reader", "file", path, "error", err)
		fallback, ferr := fallbackPageCount(path)
		if ferr != nil {
			return 0, fmt.Errorf("failed to get page count for %s: %w", path, err)
		}
		count = fallback
	}

	t.pages.Set(key, count, cache.DefaultExpiration)
	return count, nil
}

func fallbackPageCount(path string) (int, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// ImportImages builds a PDF at outFile with one page per image, in order.
// JPEG data is embedded as-is, so the encoder's quality setting carries
// through to the output size.
func (t *Toolkit) ImportImages(images []string, outFile string) error {
	if len(images) == 0 {
		return fmt.Errorf("no images to import")
	}
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImagesFile(images, outFile, imp, t.conf); err != nil {
		return fmt.Errorf("failed to import images into %s: %w", outFile, err)
	}
	return nil
}

// Merge concatenates inputs, in order, into outFile.
func (t *Toolkit) Merge(inputs []string, outFile string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no PDFs to merge")
	}
	if len(inputs) == 1 {
		return copyFile(inputs[0], outFile)
	}
	if err := api.MergeCreateFile(inputs, outFile, false, t.conf); err != nil {
		return fmt.Errorf("failed to merge %d PDFs: %w", len(inputs), err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
