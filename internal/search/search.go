// Package search finds the highest-fidelity grid configuration whose
// combined artifact fits a byte budget.
//
// The default strategy is a greedy sweep: configurations are visited in
// grid order (DPI ascending, quality ascending). A fitting configuration
// becomes the best fit; the first configuration over budget ends the
// search if a best fit exists, otherwise it abandons the rest of its DPI
// tier. This assumes size grows with fidelity, which usually but not always
// holds. The exhaustive strategy drops that assumption and visits every
// configuration.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/fitbind/internal/fidelity"
)

// ErrNoFit is returned when no configuration in the grid fits the budget.
var ErrNoFit = errors.New("no configuration fits the budget")

// Strategy selects how the grid is traversed.
type Strategy string

const (
	StrategyGreedy     Strategy = "greedy"
	StrategyExhaustive Strategy = "exhaustive"
)

// ParseStrategy maps a config value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyGreedy, "":
		return StrategyGreedy, nil
	case StrategyExhaustive:
		return StrategyExhaustive, nil
	default:
		return "", fmt.Errorf("unknown search strategy: %q", s)
	}
}

// Part is one document's compressed output inside a probe artifact.
type Part struct {
	Ordinal int    // corpus position of the source document
	Name    string // source document name
	Path    string // compressed single-document PDF
	Pages   int
}

// Probe is the combined artifact produced for one configuration.
type Probe struct {
	Config   fidelity.Configuration
	Path     string
	Size     int64
	Parts    []Part // included documents, in corpus order
	Failed   []int  // ordinals of documents that failed to render
	Complete bool   // true when no document failed

	// Release reclaims the probe's temporary storage. Safe to call twice.
	Release func()
}

func (p *Probe) release() {
	if p != nil && p.Release != nil {
		p.Release()
	}
}

// Evaluator renders and merges the corpus at one configuration.
// Implementations must not retain state between calls.
type Evaluator interface {
	Evaluate(ctx context.Context, cfg fidelity.Configuration) (*Probe, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, cfg fidelity.Configuration) (*Probe, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, cfg fidelity.Configuration) (*Probe, error) {
	return f(ctx, cfg)
}

// Outcome classifies one evaluation.
type Outcome string

const (
	OutcomeFit        Outcome = "fit"
	OutcomeOverBudget Outcome = "over_budget"
	OutcomeIneligible Outcome = "ineligible"
)

// Evaluation records what happened at one configuration.
type Evaluation struct {
	Config   fidelity.Configuration `json:"config" yaml:"config"`
	Size     int64                  `json:"size" yaml:"size"`
	Outcome  Outcome                `json:"outcome" yaml:"outcome"`
	Included int                    `json:"included" yaml:"included"`
	Failed   int                    `json:"failed" yaml:"failed"`
	Error    string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

// BestFit is the highest-order fitting configuration seen so far.
type BestFit struct {
	Config fidelity.Configuration
	Probe  *Probe
	Size   int64
}

// Result is the outcome of one search.
type Result struct {
	Best        *BestFit
	Evaluations []Evaluation

	// FirstOverBudget is true when the very first (most aggressive)
	// configuration produced an artifact over budget.
	FirstOverBudget bool
}

// Release reclaims the best fit's storage, if any.
func (r *Result) Release() {
	if r != nil && r.Best != nil {
		r.Best.Probe.release()
	}
}

// Config configures a Driver.
type Config struct {
	Budget    int64 // maximum artifact size in bytes
	Grid      fidelity.Grid
	Strategy  Strategy
	Evaluator Evaluator

	// AllowPartial accepts probes in which some documents failed to
	// render. When false such probes are skipped without counting as a
	// budget violation.
	AllowPartial bool

	// OnEvaluation, if set, is called after every evaluation.
	OnEvaluation func(Evaluation)

	Logger *slog.Logger
}

// Driver runs one search. It is single-threaded; concurrency happens
// inside the Evaluator.
type Driver struct {
	cfg    Config
	logger *slog.Logger
}

// NewDriver validates cfg and returns a Driver.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %d", cfg.Budget)
	}
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyGreedy
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		cfg:    cfg,
		logger: logger.With("strategy", string(cfg.Strategy)),
	}, nil
}

// Run executes the search. On success the returned Result holds the best
// fit, whose probe the caller must Release. When nothing fits, Run returns
// the Result together with ErrNoFit. Context cancellation aborts between
// evaluations and releases everything.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	first := true

	for _, tier := range d.cfg.Grid.Tiers() {
		for _, cfg := range tier {
			if err := ctx.Err(); err != nil {
				result.Release()
				result.Best = nil
				return result, err
			}

			outcome, err := d.evaluate(ctx, cfg, result)
			if err != nil {
				result.Release()
				result.Best = nil
				return result, err
			}

			if outcome == OutcomeOverBudget && first {
				result.FirstOverBudget = true
			}
			first = false

			if outcome != OutcomeOverBudget || d.cfg.Strategy == StrategyExhaustive {
				continue
			}

			if result.Best != nil {
				d.logger.Info("over budget after a fit, stopping",
					"at", cfg.String(), "best", result.Best.Config.String())
				return result, nil
			}
			d.logger.Debug("over budget without a fit, advancing resolution tier", "at", cfg.String())
			break
		}
	}

	if result.Best == nil {
		return result, ErrNoFit
	}
	return result, nil
}

// evaluate runs one configuration and folds it into result.
// It only returns an error for context cancellation.
func (d *Driver) evaluate(ctx context.Context, cfg fidelity.Configuration, result *Result) (Outcome, error) {
	log := d.logger.With("dpi", cfg.DPI, "quality", cfg.Quality)

	probe, err := d.cfg.Evaluator.Evaluate(ctx, cfg)
	if err != nil {
		probe.release()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.Warn("evaluation failed, skipping configuration", "error", err)
		d.record(result, Evaluation{Config: cfg, Outcome: OutcomeIneligible, Error: err.Error()})
		return OutcomeIneligible, nil
	}

	ev := Evaluation{
		Config:   cfg,
		Size:     probe.Size,
		Included: len(probe.Parts),
		Failed:   len(probe.Failed),
	}

	switch {
	case !probe.Complete && !d.cfg.AllowPartial:
		probe.release()
		ev.Outcome = OutcomeIneligible
		ev.Error = fmt.Sprintf("%d document(s) failed to render", len(probe.Failed))
		log.Warn("partial probe rejected", "failed", len(probe.Failed))

	case probe.Size <= d.cfg.Budget:
		if result.Best != nil {
			result.Best.Probe.release()
		}
		result.Best = &BestFit{Config: cfg, Probe: probe, Size: probe.Size}
		ev.Outcome = OutcomeFit
		log.Info("configuration fits", "size", probe.Size, "budget", d.cfg.Budget)

	default:
		probe.release()
		ev.Outcome = OutcomeOverBudget
		log.Info("configuration over budget", "size", probe.Size, "budget", d.cfg.Budget)
	}

	d.record(result, ev)
	return ev.Outcome, nil
}

func (d *Driver) record(result *Result, ev Evaluation) {
	result.Evaluations = append(result.Evaluations, ev)
	if d.cfg.OnEvaluation != nil {
		d.cfg.OnEvaluation(ev)
	}
}
