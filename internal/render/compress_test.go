package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jackzampolin/fitbind/internal/fidelity"
)

// fakeRenderer writes placeholder page files and can fail a set number of
// times before succeeding.
type fakeRenderer struct {
	pages    int
	failures int32
	calls    atomic.Int32
}

func (f *fakeRenderer) Name() string { return "fake" }

func (f *fakeRenderer) Render(_ context.Context, _ string, _ fidelity.Configuration, outDir string) ([]string, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, fmt.Errorf("%w: transient", ErrRender)
	}
	var paths []string
	for i := 1; i <= f.pages; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("page-%d.jpg", i))
		if err := os.WriteFile(p, []byte("jpeg"), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// fakeImporter concatenates the page files.
type fakeImporter struct {
	fail bool
}

func (f *fakeImporter) ImportImages(images []string, outFile string) error {
	if f.fail {
		return errors.New("broken image")
	}
	var buf strings.Builder
	for _, img := range images {
		data, err := os.ReadFile(img)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	return os.WriteFile(outFile, []byte(buf.String()), 0o644)
}

func TestCompress(t *testing.T) {
	cfg := fidelity.Configuration{DPI: 100, Quality: 50}

	t.Run("produces output and cleans page images", func(t *testing.T) {
		dir := t.TempDir()
		c, err := NewCompressor(CompressorConfig{
			Renderer: &fakeRenderer{pages: 3},
			Importer: &fakeImporter{},
		})
		if err != nil {
			t.Fatalf("NewCompressor() error = %v", err)
		}

		out, err := c.Compress(context.Background(), "/src/a.pdf", cfg, dir)
		if err != nil {
			t.Fatalf("Compress() error = %v", err)
		}
		if out.Pages != 3 {
			t.Errorf("Pages = %d, want 3", out.Pages)
		}
		if out.Size != int64(len("jpeg")*3) {
			t.Errorf("Size = %d, want %d", out.Size, len("jpeg")*3)
		}
		if out.Path != filepath.Join(dir, "a.pdf") {
			t.Errorf("Path = %s", out.Path)
		}
		if _, err := os.Stat(filepath.Join(dir, "pages")); !os.IsNotExist(err) {
			t.Error("page directory should be removed")
		}
	})

	t.Run("render failure is classified", func(t *testing.T) {
		c, _ := NewCompressor(CompressorConfig{
			Renderer: &fakeRenderer{pages: 1, failures: 5},
			Importer: &fakeImporter{},
		})
		_, err := c.Compress(context.Background(), "/src/a.pdf", cfg, t.TempDir())
		if !errors.Is(err, ErrRender) {
			t.Errorf("expected ErrRender, got %v", err)
		}
	})

	t.Run("encode failure is classified", func(t *testing.T) {
		c, _ := NewCompressor(CompressorConfig{
			Renderer: &fakeRenderer{pages: 1},
			Importer: &fakeImporter{fail: true},
		})
		_, err := c.Compress(context.Background(), "/src/a.pdf", cfg, t.TempDir())
		if !errors.Is(err, ErrEncode) {
			t.Errorf("expected ErrEncode, got %v", err)
		}
	})

	t.Run("retries transient render failures", func(t *testing.T) {
		r := &fakeRenderer{pages: 2, failures: 1}
		c, _ := NewCompressor(CompressorConfig{
			Renderer:   r,
			Importer:   &fakeImporter{},
			Attempts:   2,
			RetryDelay: 1,
		})
		if _, err := c.Compress(context.Background(), "/src/a.pdf", cfg, t.TempDir()); err != nil {
			t.Fatalf("Compress() error = %v", err)
		}
		if r.calls.Load() != 2 {
			t.Errorf("expected 2 render calls, got %d", r.calls.Load())
		}
	})

	t.Run("single attempt by default", func(t *testing.T) {
		r := &fakeRenderer{pages: 1, failures: 1}
		c, _ := NewCompressor(CompressorConfig{Renderer: r, Importer: &fakeImporter{}})
		if _, err := c.Compress(context.Background(), "/src/a.pdf", cfg, t.TempDir()); err == nil {
			t.Fatal("expected error")
		}
		if r.calls.Load() != 1 {
			t.Errorf("expected 1 render call, got %d", r.calls.Load())
		}
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", BackendPdftoppm, false},
		{"pdftoppm", BackendPdftoppm, false},
		{"fitz", BackendFitz, false},
		{"ghostscript", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err == nil && r.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", r.Name(), tt.want)
			}
		})
	}
}
