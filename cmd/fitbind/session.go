package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/fitbind/internal/api"
	"github.com/jackzampolin/fitbind/internal/config"
	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/jobs"
	"github.com/jackzampolin/fitbind/internal/pdfdoc"
	"github.com/jackzampolin/fitbind/internal/pipeline"
	"github.com/jackzampolin/fitbind/internal/render"
	"github.com/jackzampolin/fitbind/internal/search"
	"github.com/jackzampolin/fitbind/internal/svcctx"
	"github.com/jackzampolin/fitbind/internal/toc"
)

// runFlags are the config overrides shared by bind, compress and watch.
type runFlags struct {
	budgetMB   float64
	sourceDir  string
	tocFile    string
	outputDir  string
	deliverDir string
	strategy   string
	renderer   string
	workers    int
	strict     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.budgetMB, "budget-mb", 0, "size budget in MiB (config: budget_mb)")
	cmd.Flags().StringVarP(&f.sourceDir, "source", "s", "", "directory of source PDFs (config: source_dir)")
	cmd.Flags().StringVar(&f.tocFile, "toc", "", "table of contents file (config: toc_file)")
	cmd.Flags().StringVar(&f.outputDir, "out", "", "output directory (config: output_dir)")
	cmd.Flags().StringVar(&f.deliverDir, "deliver", "", "move finished files here (config: deliver_dir)")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "search strategy: greedy or exhaustive (config: strategy)")
	cmd.Flags().StringVar(&f.renderer, "renderer", "", "renderer: pdftoppm or fitz (config: renderer)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "parallel renders (config: workers)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "reject configurations where any document failed to render")
}

// apply pushes changed flags into the config manager.
func (f *runFlags) apply(cmd *cobra.Command, mgr *config.Manager) error {
	overrides := map[string]any{
		"budget-mb": f.budgetMB,
		"source":    f.sourceDir,
		"toc":       f.tocFile,
		"out":       f.outputDir,
		"deliver":   f.deliverDir,
		"strategy":  f.strategy,
		"renderer":  f.renderer,
		"workers":   f.workers,
	}
	keys := map[string]string{
		"budget-mb": "budget_mb",
		"source":    "source_dir",
		"toc":       "toc_file",
		"out":       "output_dir",
		"deliver":   "deliver_dir",
		"strategy":  "strategy",
		"renderer":  "renderer",
		"workers":   "workers",
	}
	for flag, value := range overrides {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		if err := mgr.Set(keys[flag], value); err != nil {
			return err
		}
	}
	if f.strict {
		return mgr.Set("allow_partial", false)
	}
	return nil
}

// startSession wires the services of one command invocation. The returned
// stop func shuts the worker pool down.
func startSession(ctx context.Context, cmd *cobra.Command, flags *runFlags) (context.Context, *svcctx.Services, func(), error) {
	logger, err := newLogger()
	if err != nil {
		return ctx, nil, nil, err
	}
	h, mgr, err := loadConfig()
	if err != nil {
		return ctx, nil, nil, err
	}
	if flags != nil {
		if err := flags.apply(cmd, mgr); err != nil {
			return ctx, nil, nil, err
		}
	}
	cfg := mgr.Get()
	if err := cfg.Validate(); err != nil {
		return ctx, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if file := mgr.ConfigFile(); file != "" {
		logger.Info("using config file", "file", file)
	}

	toolkit := pdfdoc.New(pdfdoc.Config{Logger: logger})
	renderer, err := render.New(cfg.Renderer)
	if err != nil {
		return ctx, nil, nil, err
	}
	compressor, err := render.NewCompressor(render.CompressorConfig{
		Renderer: renderer,
		Importer: toolkit,
		Attempts: cfg.RenderAttempts,
		Logger:   logger,
	})
	if err != nil {
		return ctx, nil, nil, err
	}

	pool := jobs.NewCPUWorkerPool(jobs.CPUWorkerPoolConfig{
		Name:        "render",
		Logger:      logger,
		WorkerCount: cfg.WorkerCount(),
	})
	pool.RegisterHandler(jobs.TaskCompress, jobs.CompressHandler(compressor))

	poolCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Start(poolCtx)
	}()
	stop := func() {
		cancel()
		<-done
	}

	svc := &svcctx.Services{
		Logger:     logger,
		Config:     mgr,
		Home:       h,
		Pool:       pool,
		Dispatcher: jobs.NewDispatcher(pool, logger),
		Toolkit:    toolkit,
		Compressor: compressor,
	}
	return svcctx.WithServices(ctx, svc), svc, stop, nil
}

// optionsFrom maps configuration onto pipeline options.
func optionsFrom(cfg *config.Config) (pipeline.Options, error) {
	strategy, err := search.ParseStrategy(cfg.Strategy)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Budget:       cfg.BudgetBytes(),
		Grid:         cfg.Grid,
		Strategy:     strategy,
		AllowPartial: cfg.AllowPartial,
		Workers:      cfg.WorkerCount(),
		OutputDir:    cfg.OutputPath(),
		OutputName:   cfg.OutputName,
		GroupPrefix:  cfg.GroupPrefix,
		DeliverDir:   cfg.DeliverPath(),
		WorkDir:      cfg.WorkPath(),
	}, nil
}

// corpusOptions keeps the configured outputs out of the corpus.
func corpusOptions(cfg *config.Config) corpus.Options {
	return pipeline.CorpusOptions(pipeline.Options{OutputName: cfg.OutputName, GroupPrefix: cfg.GroupPrefix})
}

// loadInputs enumerates the corpus and parses the table of contents.
func loadInputs(cfg *config.Config, logger *slog.Logger) ([]corpus.Document, toc.Tree, error) {
	docs, err := corpus.Enumerate(cfg.SourcePath(), corpusOptions(cfg))
	if err != nil {
		return nil, toc.Tree{}, err
	}
	tree, err := toc.Load(cfg.TOCPath())
	if err != nil {
		return nil, toc.Tree{}, err
	}
	if n := tree.EntryCount(); n != len(docs) {
		logger.Warn("table of contents and corpus differ in length, mapping is by position",
			"entries", n, "documents", len(docs))
	}
	return docs, tree, nil
}

// bind runs the pipeline once with the session's current configuration.
func bind(ctx context.Context, fixed *fidelity.Configuration) (*pipeline.Result, error) {
	svc := svcctx.ServicesFrom(ctx)
	cfg := svc.Config.Get()
	opts, err := optionsFrom(cfg)
	if err != nil {
		return nil, err
	}
	opts.Fixed = fixed

	docs, tree, err := loadInputs(cfg, svc.Logger)
	if err != nil {
		return nil, err
	}

	var progress *api.Progress
	var hooks pipeline.Hooks
	if !api.IsStructuredOutput() {
		progress = api.NewProgress(os.Stderr)
		hooks = progress.Hooks()
	}

	binder, err := pipeline.New(pipeline.Config{
		Dispatcher: svc.Dispatcher,
		Toolkit:    svc.Toolkit,
		Home:       svc.Home,
		Hooks:      hooks,
		Logger:     svc.Logger,
	})
	if err != nil {
		return nil, err
	}

	res, err := binder.Run(ctx, docs, tree, opts)
	if progress != nil {
		progress.Finish()
	}
	if res != nil {
		if oerr := report(res, opts.Budget); oerr != nil {
			return res, oerr
		}
	}
	return res, err
}

// report prints a run result in the selected format.
func report(res *pipeline.Result, budget int64) error {
	if api.IsStructuredOutput() {
		return api.Output(res)
	}
	api.WriteRunSummary(os.Stdout, res, budget)
	return nil
}
