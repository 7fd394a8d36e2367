package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/home"
	"github.com/jackzampolin/fitbind/internal/search"
)

// scopeEvaluator evaluates one set of documents. Each configuration gets
// its own child of scope; the per-document outputs are removed as soon as
// they are merged, and the merged probe lives until the search releases it.
type scopeEvaluator struct {
	docs       []corpus.Document
	scope      *home.Scope
	dispatcher Dispatcher
	toolkit    Toolkit
	logger     *slog.Logger
}

func (e *scopeEvaluator) Evaluate(ctx context.Context, cfg fidelity.Configuration) (*search.Probe, error) {
	sub, err := e.scope.Sub(cfg.Key())
	if err != nil {
		return nil, err
	}
	release := func() {
		if err := sub.Release(); err != nil {
			e.logger.Warn("failed to release probe workspace", "error", err)
		}
	}

	docsDir := filepath.Join(sub.Path(), "docs")
	results := e.dispatcher.Dispatch(ctx, e.docs, cfg, docsDir)
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}

	probe := &search.Probe{Config: cfg, Release: release}
	var inputs []string
	for _, r := range results {
		if !r.OK() {
			probe.Failed = append(probe.Failed, r.Document.Ordinal)
			continue
		}
		inputs = append(inputs, r.Path)
		probe.Parts = append(probe.Parts, search.Part{
			Ordinal: r.Document.Ordinal,
			Name:    r.Document.Name,
			Path:    r.Path,
			Pages:   r.Pages,
		})
	}
	probe.Complete = len(probe.Failed) == 0

	if len(inputs) == 0 {
		release()
		return nil, fmt.Errorf("%w at %s: %d document(s) failed", ErrNothingRendered, cfg, len(probe.Failed))
	}

	probe.Path = filepath.Join(sub.Path(), "probe.pdf")
	if err := e.toolkit.Merge(inputs, probe.Path); err != nil {
		release()
		return nil, err
	}
	if err := os.RemoveAll(docsDir); err != nil {
		e.logger.Warn("failed to remove compressed documents", "error", err)
	}

	info, err := os.Stat(probe.Path)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to stat probe: %w", err)
	}
	probe.Size = info.Size()

	// Part paths pointed into docsDir, which is gone now.
	for i := range probe.Parts {
		probe.Parts[i].Path = ""
	}
	return probe, nil
}
