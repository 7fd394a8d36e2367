package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/home"
	"github.com/jackzampolin/fitbind/internal/partition"
	"github.com/jackzampolin/fitbind/internal/search"
	"github.com/jackzampolin/fitbind/internal/toc"
)

const corpusScope = "corpus"

// Run binds docs. On whole-corpus success the result holds one artifact;
// after a fallback it holds one per group that fit, plus the failures and
// unmatched documents. Run returns an error only when no artifact was
// produced or the run was cancelled.
func (b *Binder) Run(ctx context.Context, docs []corpus.Document, tree toc.Tree, opts Options) (*Result, error) {
	if len(docs) == 0 {
		return nil, corpus.ErrEmpty
	}
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Grid.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := b.logger.With("run_id", runID)

	ws, err := b.home.AcquireRun(opts.WorkDir, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			log.Warn("failed to release run workspace", "error", err)
		}
	}()

	result := &Result{RunID: runID, Mode: ModeSingle}

	grid := opts.Grid
	if opts.Fixed != nil {
		grid = fidelity.Grid{DPI: []int{opts.Fixed.DPI}, Quality: []int{opts.Fixed.Quality}}
	}

	log.Info("searching whole corpus", "documents", len(docs), "budget", opts.Budget, "configurations", grid.Size())
	sres, err := b.search(ctx, ws, corpusScope, docs, grid, opts)
	result.Traces = append(result.Traces, Trace{Scope: corpusScope, Evaluations: sres.Evaluations})

	switch {
	case err == nil:
		defer sres.Release()
		art, ferr := b.finalize(sres.Best, tree, docs, filepath.Join(opts.OutputDir, opts.OutputName), opts)
		if ferr != nil {
			return result, ferr
		}
		log.Info("artifact written", "file", art.Path, "config", art.Config.String(), "size", art.Size)
		result.Artifacts = append(result.Artifacts, art)
		return result, nil

	case !errors.Is(err, search.ErrNoFit):
		return result, err

	case !sres.FirstOverBudget:
		// The most aggressive configuration did not overflow; splitting the
		// corpus would not change what went wrong.
		return result, fmt.Errorf("whole corpus: %w", err)
	}

	log.Warn("whole corpus does not fit, splitting by section")
	result.Mode = ModeGroups
	if err := b.runGroups(ctx, ws, docs, tree, opts, result); err != nil {
		return result, err
	}
	if len(result.Artifacts) == 0 {
		return result, fmt.Errorf("no group fits the budget: %w", search.ErrNoFit)
	}
	return result, nil
}

// runGroups searches every group, at most min(workers, groups) at a time,
// in partition order. A group's failure does not affect its siblings.
func (b *Binder) runGroups(ctx context.Context, ws *home.Scope, docs []corpus.Document, tree toc.Tree, opts Options, result *Result) error {
	part := partition.Partition(docs, tree)
	result.Unmatched = part.Unmatched
	for _, d := range part.Unmatched {
		b.logger.Warn("document has no table-of-contents entry, excluded from every artifact", "file", d.Name, "ordinal", d.Ordinal)
	}
	if len(part.Groups) == 0 {
		return fmt.Errorf("no document maps to a section")
	}

	titles := make([]string, len(part.Groups))
	for i, g := range part.Groups {
		titles[i] = g.Title
	}
	names := groupFileNames(opts.GroupPrefix, titles)

	limit := opts.Workers
	if limit <= 0 || limit > len(part.Groups) {
		limit = len(part.Groups)
	}

	type outcome struct {
		art   *Artifact
		fail  *Failure
		trace Trace
	}
	outcomes := make([]outcome, len(part.Groups))

	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(limit)

	for i, g := range part.Groups {
		if ctx.Err() != nil {
			break
		}
		if b.hooks.OnGroupStart != nil {
			b.hooks.OnGroupStart(g)
		}
		eg.Go(func() error {
			art, trace, err := b.runGroup(ctx, ws, g, names[i], opts)
			mu.Lock()
			defer mu.Unlock()
			outcomes[i].trace = trace
			if err != nil {
				outcomes[i].fail = &Failure{Group: g.Title, Documents: len(g.Documents), Error: err.Error()}
				return nil
			}
			outcomes[i].art = art
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, o := range outcomes {
		if o.trace.Scope != "" {
			result.Traces = append(result.Traces, o.trace)
		}
		if o.art != nil {
			result.Artifacts = append(result.Artifacts, *o.art)
		}
		if o.fail != nil {
			result.Failures = append(result.Failures, *o.fail)
		}
	}
	return nil
}

func (b *Binder) runGroup(ctx context.Context, ws *home.Scope, g partition.Group, name string, opts Options) (*Artifact, Trace, error) {
	scope := fmt.Sprintf("group-%02d", g.SectionIndex)
	log := b.logger.With("group", g.Title)
	log.Info("searching group", "documents", len(g.Documents))

	sres, err := b.search(ctx, ws, scope, g.Documents, opts.Grid, opts)
	trace := Trace{Scope: scope, Evaluations: sres.Evaluations}
	if err != nil {
		log.Warn("group produced no artifact", "error", err)
		return nil, trace, err
	}
	defer sres.Release()

	art, err := b.finalize(sres.Best, g.TOC, g.Documents, filepath.Join(opts.OutputDir, name), opts)
	if err != nil {
		log.Warn("failed to write group artifact", "error", err)
		return nil, trace, err
	}
	art.Group = g.Title
	log.Info("artifact written", "file", art.Path, "config", art.Config.String(), "size", art.Size)
	return &art, trace, nil
}

// search runs one grid search over docs in its own child workspace. The
// returned result is never nil.
func (b *Binder) search(ctx context.Context, ws *home.Scope, scope string, docs []corpus.Document, grid fidelity.Grid, opts Options) (*search.Result, error) {
	sub, err := ws.Sub(scope)
	if err != nil {
		return &search.Result{}, err
	}
	logger := b.logger.With("scope", scope)

	cfg := search.Config{
		Budget:   opts.Budget,
		Grid:     grid,
		Strategy: opts.Strategy,
		Evaluator: &scopeEvaluator{
			docs:       docs,
			scope:      sub,
			dispatcher: b.dispatcher,
			toolkit:    b.toolkit,
			logger:     logger,
		},
		AllowPartial: opts.AllowPartial,
		Logger:       logger,
	}
	if b.hooks.OnEvaluation != nil {
		cfg.OnEvaluation = func(ev search.Evaluation) { b.hooks.OnEvaluation(scope, ev) }
	}

	driver, err := search.NewDriver(cfg)
	if err != nil {
		return &search.Result{}, err
	}
	if b.hooks.OnSearchStart != nil {
		b.hooks.OnSearchStart(scope, grid.Size())
	}
	return driver.Run(ctx)
}
