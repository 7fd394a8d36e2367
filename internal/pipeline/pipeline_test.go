package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/home"
	"github.com/jackzampolin/fitbind/internal/jobs"
	"github.com/jackzampolin/fitbind/internal/outline"
	"github.com/jackzampolin/fitbind/internal/partition"
	"github.com/jackzampolin/fitbind/internal/search"
	"github.com/jackzampolin/fitbind/internal/toc"
)

// sizedDispatcher writes dpi*quality/100 bytes per document, so a probe's
// size is predictable. Every document has two pages.
type sizedDispatcher struct {
	// failAt maps a configuration key to the ordinals that fail there.
	failAt map[string][]int

	mu    sync.Mutex
	calls int
}

func (d *sizedDispatcher) Dispatch(ctx context.Context, docs []corpus.Document, cfg fidelity.Configuration, dir string) []jobs.CompressionResult {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	failing := make(map[int]bool)
	for _, o := range d.failAt[cfg.Key()] {
		failing[o] = true
	}

	results := make([]jobs.CompressionResult, len(docs))
	for i, doc := range docs {
		results[i] = jobs.CompressionResult{Document: doc, Config: cfg}
		if ctx.Err() != nil {
			results[i].Err = ctx.Err()
			results[i].Kind = jobs.FailureCanceled
			continue
		}
		if failing[doc.Ordinal] {
			results[i].Err = errors.New("corrupt")
			results[i].Kind = jobs.FailureRender
			continue
		}
		out := filepath.Join(dir, fmt.Sprintf("%04d", doc.Ordinal), doc.Name)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			results[i].Err = err
			continue
		}
		size := cfg.DPI * cfg.Quality / 100
		if err := os.WriteFile(out, bytes.Repeat([]byte{'x'}, size), 0o644); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Path = out
		results[i].Size = int64(size)
		results[i].Pages = 2
	}
	return results
}

// catToolkit concatenates files and records every outline it writes.
type catToolkit struct {
	mu       sync.Mutex
	outlines map[string][]outline.Node // keyed by final file name
}

func (c *catToolkit) Merge(inputs []string, outFile string) error {
	var buf bytes.Buffer
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	return os.WriteFile(outFile, buf.Bytes(), 0o644)
}

func (c *catToolkit) WriteOutline(inFile, outFile string, nodes []outline.Node) error {
	data, err := os.ReadFile(inFile)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.outlines == nil {
		c.outlines = make(map[string][]outline.Node)
	}
	name := filepath.Base(outFile)
	name = name[1 : len(name)-len(".partial")]
	c.outlines[name] = nodes
	c.mu.Unlock()
	return os.WriteFile(outFile, data, 0o644)
}

type harness struct {
	binder     *Binder
	dispatcher *sizedDispatcher
	toolkit    *catToolkit
	home       *home.Dir
	outDir     string
}

func newHarness(t *testing.T, d *sizedDispatcher, hooks Hooks) *harness {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if d == nil {
		d = &sizedDispatcher{}
	}
	tk := &catToolkit{}
	b, err := New(Config{
		Dispatcher: d,
		Toolkit:    tk,
		Home:       h,
		Hooks:      hooks,
		Logger:     slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &harness{binder: b, dispatcher: d, toolkit: tk, home: h, outDir: t.TempDir()}
}

func (h *harness) options(budget int64) Options {
	return Options{
		Budget:       budget,
		Grid:         fidelity.Grid{DPI: []int{100, 200}, Quality: []int{50, 60}},
		Strategy:     search.StrategyGreedy,
		AllowPartial: true,
		Workers:      2,
		OutputDir:    h.outDir,
		OutputName:   "Anlagen.pdf",
		GroupPrefix:  "Anlagen",
	}
}

func testDocs(n int) []corpus.Document {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("/src/%02d.pdf", i)
	}
	return corpus.FromPaths(paths)
}

func flatTree(sections []string, counts []int) toc.Tree {
	entries := make([][]string, len(sections))
	for i, n := range counts {
		for j := 0; j < n; j++ {
			entries[i] = append(entries[i], fmt.Sprintf("%s-%d", sections[i], j))
		}
	}
	return toc.New(sections, entries)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Per-document sizes: 100/50 -> 50, 100/60 -> 60, 200/50 -> 100, 200/60 -> 120.

func TestRun_EverythingFits(t *testing.T) {
	h := newHarness(t, nil, Hooks{})
	docs := testDocs(3)

	res, err := h.binder.Run(context.Background(), docs, flatTree([]string{"A"}, []int{3}), h.options(1<<20))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Mode != ModeSingle || len(res.Artifacts) != 1 {
		t.Fatalf("expected one artifact, got %+v", res)
	}
	art := res.Artifacts[0]
	if art.Config != (fidelity.Configuration{DPI: 200, Quality: 60}) {
		t.Errorf("expected highest configuration, got %s", art.Config)
	}
	if art.Size != 360 || art.Pages != 6 || art.Bookmarks != 3 {
		t.Errorf("unexpected artifact: %+v", art)
	}
	if got := listDir(t, h.outDir); len(got) != 1 || got[0] != "Anlagen.pdf" {
		t.Errorf("output dir should hold only the artifact, got %v", got)
	}
	if got := listDir(t, h.home.WorkPath()); len(got) != 0 {
		t.Errorf("workspace not released: %v", got)
	}
}

func TestRun_StopsAtFirstViolation(t *testing.T) {
	h := newHarness(t, nil, Hooks{})

	// 5 documents: 250, 300, 500, 600. Only the first two fit.
	res, err := h.binder.Run(context.Background(), testDocs(5), flatTree([]string{"A"}, []int{5}), h.options(300))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := res.Artifacts[0].Config; got != (fidelity.Configuration{DPI: 100, Quality: 60}) {
		t.Errorf("expected 60@100dpi, got %s", got)
	}
	if n := len(res.Traces[0].Evaluations); n != 3 {
		t.Errorf("expected 3 evaluations, got %d", n)
	}
	if h.dispatcher.calls != 3 {
		t.Errorf("expected 3 dispatches, got %d", h.dispatcher.calls)
	}
}

func TestRun_OutlineOffsets(t *testing.T) {
	h := newHarness(t, nil, Hooks{})
	tree := flatTree([]string{"A", "B"}, []int{1, 2})

	if _, err := h.binder.Run(context.Background(), testDocs(3), tree, h.options(1<<20)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	nodes := h.toolkit.outlines["Anlagen.pdf"]
	if len(nodes) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(nodes))
	}
	if nodes[0].Children[0].Page != 1 {
		t.Errorf("first entry page = %d, want 1", nodes[0].Children[0].Page)
	}
	if nodes[1].Children[0].Page != 3 || nodes[1].Children[1].Page != 5 {
		t.Errorf("unexpected pages: %+v", nodes[1].Children)
	}
}

func TestRun_DroppedDocumentOmittedFromOutline(t *testing.T) {
	d := &sizedDispatcher{failAt: map[string][]int{"200_60": {1}}}
	h := newHarness(t, d, Hooks{})
	tree := flatTree([]string{"A"}, []int{3})

	res, err := h.binder.Run(context.Background(), testDocs(3), tree, h.options(1<<20))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	art := res.Artifacts[0]
	if len(art.Dropped) != 1 || art.Dropped[0] != "01.pdf" {
		t.Errorf("expected 01.pdf dropped, got %v", art.Dropped)
	}
	nodes := h.toolkit.outlines["Anlagen.pdf"]
	if len(nodes[0].Children) != 2 {
		t.Fatalf("expected 2 entries, got %+v", nodes[0].Children)
	}
	if nodes[0].Children[1].Title != "A-2" || nodes[0].Children[1].Page != 3 {
		t.Errorf("entry after the dropped document misplaced: %+v", nodes[0].Children[1])
	}
}

func TestRun_StrictPartialPolicy(t *testing.T) {
	d := &sizedDispatcher{failAt: map[string][]int{"200_60": {1}}}
	h := newHarness(t, d, Hooks{})
	opts := h.options(1 << 20)
	opts.AllowPartial = false

	res, err := h.binder.Run(context.Background(), testDocs(3), flatTree([]string{"A"}, []int{3}), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := res.Artifacts[0].Config; got != (fidelity.Configuration{DPI: 200, Quality: 50}) {
		t.Errorf("expected 50@200dpi, got %s", got)
	}
	if len(res.Artifacts[0].Dropped) != 0 {
		t.Errorf("strict policy must not drop documents: %v", res.Artifacts[0].Dropped)
	}
}

func TestRun_SingleDocumentTooLarge(t *testing.T) {
	h := newHarness(t, nil, Hooks{})

	res, err := h.binder.Run(context.Background(), testDocs(1), flatTree([]string{"A"}, []int{1}), h.options(10))
	if !errors.Is(err, search.ErrNoFit) {
		t.Fatalf("expected ErrNoFit, got %v", err)
	}
	if res.Mode != ModeGroups {
		t.Errorf("expected fallback to groups, got %s", res.Mode)
	}
	if len(res.Failures) != 1 || res.Failures[0].Documents != 1 {
		t.Errorf("expected one failed group with one document, got %+v", res.Failures)
	}
	if got := listDir(t, h.outDir); len(got) != 0 {
		t.Errorf("output dir should be empty, got %v", got)
	}
}

func TestRun_FallbackToGroups(t *testing.T) {
	var mu sync.Mutex
	var started []string
	h := newHarness(t, nil, Hooks{
		OnGroupStart: func(g partition.Group) {
			mu.Lock()
			started = append(started, g.Title)
			mu.Unlock()
		},
	})

	// A holds three documents (150 at the smallest point, never fits),
	// B holds one (fits up to 100), and one document is unmatched.
	tree := flatTree([]string{"B Nachweise", "A: Zeugnisse"}, []int{1, 3})
	docs := testDocs(5)

	res, err := h.binder.Run(context.Background(), docs, tree, h.options(100))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Mode != ModeGroups {
		t.Fatalf("expected groups mode, got %s", res.Mode)
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0].Ordinal != 4 {
		t.Errorf("expected ordinal 4 unmatched, got %+v", res.Unmatched)
	}
	if len(started) != 2 || started[0] != "A: Zeugnisse" {
		t.Errorf("larger group should start first, got %v", started)
	}

	if len(res.Artifacts) != 1 {
		t.Fatalf("expected one artifact, got %+v", res.Artifacts)
	}
	art := res.Artifacts[0]
	if filepath.Base(art.Path) != "Anlagen-B_Nachweise.pdf" {
		t.Errorf("unexpected artifact name %s", art.Path)
	}
	if art.Config != (fidelity.Configuration{DPI: 200, Quality: 50}) || art.Group != "B Nachweise" {
		t.Errorf("unexpected artifact: %+v", art)
	}

	if len(res.Failures) != 1 || res.Failures[0].Group != "A: Zeugnisse" {
		t.Errorf("expected group A to fail, got %+v", res.Failures)
	}

	nodes := h.toolkit.outlines["Anlagen-B_Nachweise.pdf"]
	if len(nodes) != 1 || nodes[0].Title != "B Nachweise" || nodes[0].Children[0].Page != 1 {
		t.Errorf("group outline should cover only its section from page 1: %+v", nodes)
	}
	if got := listDir(t, h.outDir); len(got) != 1 {
		t.Errorf("unexpected output files: %v", got)
	}
}

func TestRun_Fixed(t *testing.T) {
	t.Run("fixed configuration fits", func(t *testing.T) {
		h := newHarness(t, nil, Hooks{})
		opts := h.options(1 << 20)
		opts.Fixed = &fidelity.Configuration{DPI: 100, Quality: 60}

		res, err := h.binder.Run(context.Background(), testDocs(2), flatTree([]string{"A"}, []int{2}), opts)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if res.Artifacts[0].Config != *opts.Fixed {
			t.Errorf("expected fixed configuration, got %s", res.Artifacts[0].Config)
		}
		if len(res.Traces[0].Evaluations) != 1 {
			t.Errorf("expected a single evaluation, got %d", len(res.Traces[0].Evaluations))
		}
	})

	t.Run("over budget falls back to group search", func(t *testing.T) {
		h := newHarness(t, nil, Hooks{})
		opts := h.options(130)
		opts.Fixed = &fidelity.Configuration{DPI: 200, Quality: 60}

		res, err := h.binder.Run(context.Background(), testDocs(2), flatTree([]string{"A", "B"}, []int{1, 1}), opts)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if res.Mode != ModeGroups || len(res.Artifacts) != 2 {
			t.Fatalf("expected two group artifacts, got %+v", res)
		}
		for _, art := range res.Artifacts {
			if art.Config != (fidelity.Configuration{DPI: 200, Quality: 60}) {
				t.Errorf("group %s: expected full grid search result, got %s", art.Group, art.Config)
			}
		}
	})
}

func TestRun_Deliver(t *testing.T) {
	h := newHarness(t, nil, Hooks{})
	opts := h.options(1 << 20)
	opts.DeliverDir = filepath.Join(t.TempDir(), "Senden")

	res, err := h.binder.Run(context.Background(), testDocs(1), flatTree([]string{"A"}, []int{1}), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if filepath.Dir(res.Artifacts[0].Path) != opts.DeliverDir {
		t.Errorf("artifact not delivered: %s", res.Artifacts[0].Path)
	}
	if got := listDir(t, h.outDir); len(got) != 0 {
		t.Errorf("output dir should be empty after delivery, got %v", got)
	}
}

func TestRun_Hooks(t *testing.T) {
	var mu sync.Mutex
	evals := map[string]int{}
	searches := 0
	h := newHarness(t, nil, Hooks{
		OnSearchStart: func(scope string, n int) {
			mu.Lock()
			searches++
			mu.Unlock()
		},
		OnEvaluation: func(scope string, ev search.Evaluation) {
			mu.Lock()
			evals[scope]++
			mu.Unlock()
		},
	})

	if _, err := h.binder.Run(context.Background(), testDocs(2), flatTree([]string{"A"}, []int{2}), h.options(1<<20)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if searches != 1 || evals[corpusScope] != 4 {
		t.Errorf("unexpected hook calls: searches=%d evals=%v", searches, evals)
	}
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t, nil, Hooks{})
	docs := testDocs(4)
	tree := flatTree([]string{"A"}, []int{4})

	first, err := h.binder.Run(context.Background(), docs, tree, h.options(300))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	second, err := h.binder.Run(context.Background(), docs, tree, h.options(300))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if first.Artifacts[0].Config != second.Artifacts[0].Config {
		t.Errorf("configuration changed between runs: %s vs %s", first.Artifacts[0].Config, second.Artifacts[0].Config)
	}
}

func TestRun_Errors(t *testing.T) {
	h := newHarness(t, nil, Hooks{})

	t.Run("empty corpus", func(t *testing.T) {
		_, err := h.binder.Run(context.Background(), nil, flatTree([]string{"A"}, []int{1}), h.options(100))
		if !errors.Is(err, corpus.ErrEmpty) {
			t.Errorf("expected ErrEmpty, got %v", err)
		}
	})

	t.Run("malformed toc", func(t *testing.T) {
		_, err := h.binder.Run(context.Background(), testDocs(1), toc.Tree{}, h.options(100))
		if !errors.Is(err, toc.ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := h.binder.Run(ctx, testDocs(2), flatTree([]string{"A"}, []int{2}), h.options(1<<20))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if res != nil && len(res.Artifacts) != 0 {
			t.Errorf("cancelled run produced artifacts: %+v", res.Artifacts)
		}
		if got := listDir(t, h.outDir); len(got) != 0 {
			t.Errorf("cancelled run left files: %v", got)
		}
	})

	t.Run("nothing renders", func(t *testing.T) {
		all := map[string][]int{}
		for _, cfg := range h.options(0).Grid.All() {
			all[cfg.Key()] = []int{0}
		}
		hh := newHarness(t, &sizedDispatcher{failAt: all}, Hooks{})
		res, err := hh.binder.Run(context.Background(), testDocs(1), flatTree([]string{"A"}, []int{1}), hh.options(1<<20))
		if !errors.Is(err, search.ErrNoFit) {
			t.Fatalf("expected ErrNoFit, got %v", err)
		}
		if res.Mode != ModeSingle {
			t.Errorf("render failures must not trigger a split, got %s", res.Mode)
		}
	})
}

func TestGroupFileName(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Zeugnisse", "Anlagen-Zeugnisse.pdf"},
		{"Aus- und Weiterbildung", "Anlagen-Aus-_und_Weiterbildung.pdf"},
		{"Teil 1: Nachweise", "Anlagen-Teil_1_Nachweise.pdf"},
		{"Schule/Studium", "Anlagen-Schule-Studium.pdf"},
		{"  ", "Anlagen-section.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := GroupFileName("Anlagen", tt.title); got != tt.want {
				t.Errorf("GroupFileName(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}

	names := groupFileNames("Anlagen", []string{"A", "A", "B"})
	if names[1] != "Anlagen-A-2.pdf" {
		t.Errorf("duplicate titles must get distinct names, got %v", names)
	}
}

func TestCorpusOptions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"01.pdf", "02.pdf", "Anlagen.pdf", "Anlagen-A.pdf", "temp_01.pdf", ".Anlagen.pdf.partial"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := corpus.Enumerate(dir, CorpusOptions(Options{OutputName: "Anlagen.pdf", GroupPrefix: "Anlagen"}))
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if got := corpus.Names(docs); len(got) != 2 || got[0] != "01.pdf" || got[1] != "02.pdf" {
		t.Errorf("unexpected corpus: %v", got)
	}
}
