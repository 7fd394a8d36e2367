package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/render"
)

// stubCompressor writes one byte per page and fails the named documents.
type stubCompressor struct {
	pages  int
	failOn map[string]error
}

func (s *stubCompressor) Compress(_ context.Context, src string, _ fidelity.Configuration, outDir string) (render.Output, error) {
	if err, ok := s.failOn[filepath.Base(src)]; ok {
		return render.Output{}, err
	}
	out := filepath.Join(outDir, filepath.Base(src))
	if err := os.WriteFile(out, make([]byte, s.pages), 0o644); err != nil {
		return render.Output{}, err
	}
	return render.Output{Path: out, Pages: s.pages, Size: int64(s.pages)}, nil
}

func startPool(t *testing.T, c render.Compressor) *Dispatcher {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pool := NewCPUWorkerPool(CPUWorkerPoolConfig{WorkerCount: 4})
	pool.RegisterHandler(TaskCompress, CompressHandler(c))
	go pool.Start(ctx)
	return NewDispatcher(pool, nil)
}

func testDocs(n int) []corpus.Document {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("/src/doc%02d.pdf", i)
	}
	return corpus.FromPaths(paths)
}

func TestDispatch(t *testing.T) {
	cfg := fidelity.Configuration{DPI: 150, Quality: 60}

	t.Run("results keep corpus order", func(t *testing.T) {
		d := startPool(t, &stubCompressor{pages: 2})
		docs := testDocs(12)
		dir := t.TempDir()

		results := d.Dispatch(context.Background(), docs, cfg, dir)

		if len(results) != len(docs) {
			t.Fatalf("expected %d results, got %d", len(docs), len(results))
		}
		for i, r := range results {
			if !r.OK() {
				t.Fatalf("document %d failed: %v", i, r.Err)
			}
			if r.Document.Ordinal != i {
				t.Errorf("result %d has ordinal %d", i, r.Document.Ordinal)
			}
			if r.Pages != 2 || r.Config != cfg {
				t.Errorf("unexpected result: %+v", r)
			}
			if filepath.Dir(filepath.Dir(r.Path)) != dir {
				t.Errorf("output %s escaped %s", r.Path, dir)
			}
		}
	})

	t.Run("failures are isolated and classified", func(t *testing.T) {
		d := startPool(t, &stubCompressor{
			pages: 1,
			failOn: map[string]error{
				"doc01.pdf": fmt.Errorf("%w: corrupt", render.ErrRender),
				"doc03.pdf": fmt.Errorf("%w: bad image", render.ErrEncode),
			},
		})

		results := d.Dispatch(context.Background(), testDocs(5), cfg, t.TempDir())

		want := map[int]FailureKind{1: FailureRender, 3: FailureEncode}
		for i, r := range results {
			kind, shouldFail := want[i]
			if shouldFail {
				if r.OK() || r.Kind != kind {
					t.Errorf("document %d: got kind %q err %v, want %q", i, r.Kind, r.Err, kind)
				}
				continue
			}
			if !r.OK() {
				t.Errorf("document %d failed unexpectedly: %v", i, r.Err)
			}
		}
	})

	t.Run("cancelled context marks documents canceled", func(t *testing.T) {
		d := startPool(t, &stubCompressor{pages: 1})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := d.Dispatch(ctx, testDocs(3), cfg, t.TempDir())

		for i, r := range results {
			if r.OK() || r.Kind != FailureCanceled {
				t.Errorf("document %d: expected canceled, got %+v", i, r)
			}
		}
	})
}
