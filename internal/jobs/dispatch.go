package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/render"
)

// Dispatcher fans one configuration out over a corpus on a shared pool.
type Dispatcher struct {
	pool   *CPUWorkerPool
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. The pool must have a TaskCompress
// handler registered.
func NewDispatcher(pool *CPUWorkerPool, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{pool: pool, logger: logger}
}

// Dispatch compresses every document at cfg, each into its own
// subdirectory of dir, and blocks until all have reported. Results are in
// the order of docs. Failures are returned as values, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, docs []corpus.Document, cfg fidelity.Configuration, dir string) []CompressionResult {
	jobID := uuid.NewString()
	log := d.logger.With("dpi", cfg.DPI, "quality", cfg.Quality)

	results := make([]CompressionResult, len(docs))
	reply := make(chan WorkResult, len(docs))
	index := make(map[string]int, len(docs))

	pending := 0
	for i, doc := range docs {
		results[i] = CompressionResult{Document: doc, Config: cfg}

		unit := &WorkUnit{
			ID:    fmt.Sprintf("%s-%d", jobID, doc.Ordinal),
			JobID: jobID,
			CPURequest: &CPUWorkRequest{
				Task: TaskCompress,
				Data: CompressRequest{
					Document: doc,
					Config:   cfg,
					OutDir:   filepath.Join(dir, fmt.Sprintf("%04d", doc.Ordinal)),
				},
			},
			Reply: reply,
		}
		if err := d.pool.Enqueue(ctx, unit.WithContext(ctx)); err != nil {
			results[i].Err = err
			results[i].Kind = classify(err)
			continue
		}
		index[unit.ID] = i
		pending++
	}

	for pending > 0 {
		select {
		case wr := <-reply:
			pending--
			i := index[wr.WorkUnitID]
			delete(index, wr.WorkUnitID)
			d.fill(&results[i], wr)
		case <-ctx.Done():
			for _, i := range index {
				results[i].Err = ctx.Err()
				results[i].Kind = FailureCanceled
			}
			pending = 0
		}
	}

	for _, r := range results {
		if !r.OK() && r.Kind != FailureCanceled {
			log.Warn("document dropped from configuration", "file", r.Document.Name, "kind", string(r.Kind), "error", r.Err)
		}
	}
	return results
}

func (d *Dispatcher) fill(r *CompressionResult, wr WorkResult) {
	if !wr.Success {
		r.Err = wr.Error
		r.Kind = classify(wr.Error)
		return
	}
	out, ok := wr.CPUResult.Data.(render.Output)
	if !ok {
		r.Err = fmt.Errorf("unexpected result type %T", wr.CPUResult.Data)
		r.Kind = FailureEncode
		return
	}
	r.Path = out.Path
	r.Size = out.Size
	r.Pages = out.Pages
}
