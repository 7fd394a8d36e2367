// Package pipeline binds a corpus into budget-sized artifacts.
//
// A run first searches the whole corpus. If nothing fits and the most
// aggressive configuration was already over budget, the corpus is split
// into one group per table-of-contents section and each group is searched
// on its own, concurrently. Every successful search yields an artifact with
// a bookmark outline reconciled against the documents it actually holds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/fitbind/internal/corpus"
	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/home"
	"github.com/jackzampolin/fitbind/internal/jobs"
	"github.com/jackzampolin/fitbind/internal/outline"
	"github.com/jackzampolin/fitbind/internal/partition"
	"github.com/jackzampolin/fitbind/internal/search"
)

// ErrNothingRendered is returned by an evaluation in which no document
// could be compressed. An empty merge would trivially fit the budget.
var ErrNothingRendered = errors.New("no document rendered")

// Dispatcher compresses a set of documents at one configuration.
// *jobs.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, docs []corpus.Document, cfg fidelity.Configuration, dir string) []jobs.CompressionResult
}

// Toolkit merges PDFs and writes outlines. *pdfdoc.Toolkit implements it.
type Toolkit interface {
	Merge(inputs []string, outFile string) error
	WriteOutline(inFile, outFile string, nodes []outline.Node) error
}

// Mode tells whether a run produced one artifact or one per group.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeGroups Mode = "groups"
)

// Options are the per-run settings.
type Options struct {
	Budget       int64
	Grid         fidelity.Grid
	Strategy     search.Strategy
	AllowPartial bool

	// Fixed, if set, restricts the whole-corpus attempt to this single
	// configuration. Group searches still use Grid.
	Fixed *fidelity.Configuration

	// Workers bounds the number of concurrent group searches.
	Workers int

	OutputDir   string
	OutputName  string
	GroupPrefix string
	// DeliverDir, if set, receives the artifacts once they are complete.
	DeliverDir string
	// WorkDir is the workspace root; empty uses the home work directory.
	WorkDir string
}

// Hooks observe a run. All are optional and may be called concurrently.
type Hooks struct {
	OnSearchStart func(scope string, evaluations int)
	OnEvaluation  func(scope string, ev search.Evaluation)
	OnGroupStart  func(g partition.Group)
}

// Artifact is one finished output file.
type Artifact struct {
	Path      string                 `json:"path" yaml:"path"`
	Group     string                 `json:"group,omitempty" yaml:"group,omitempty"`
	Config    fidelity.Configuration `json:"config" yaml:"config"`
	Size      int64                  `json:"size" yaml:"size"`
	Pages     int                    `json:"pages" yaml:"pages"`
	Documents []string               `json:"documents" yaml:"documents"`
	Dropped   []string               `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Bookmarks int                    `json:"bookmarks" yaml:"bookmarks"`
}

// Failure is a search scope that produced no artifact.
type Failure struct {
	Group     string `json:"group" yaml:"group"`
	Documents int    `json:"documents" yaml:"documents"`
	Error     string `json:"error" yaml:"error"`
}

// Trace is the evaluation history of one search scope.
type Trace struct {
	Scope       string              `json:"scope" yaml:"scope"`
	Evaluations []search.Evaluation `json:"evaluations" yaml:"evaluations"`
}

// Result is the outcome of a run.
type Result struct {
	RunID     string            `json:"run_id" yaml:"run_id"`
	Mode      Mode              `json:"mode" yaml:"mode"`
	Artifacts []Artifact        `json:"artifacts" yaml:"artifacts"`
	Unmatched []corpus.Document `json:"unmatched,omitempty" yaml:"unmatched,omitempty"`
	Failures  []Failure         `json:"failures,omitempty" yaml:"failures,omitempty"`
	Traces    []Trace           `json:"traces" yaml:"traces"`
}

// Config configures a Binder.
type Config struct {
	Dispatcher Dispatcher
	Toolkit    Toolkit
	Home       *home.Dir
	Hooks      Hooks
	Logger     *slog.Logger
}

// Binder runs the bind pipeline. A Binder holds no per-run state and may
// run several times, but not concurrently against the same output paths.
type Binder struct {
	dispatcher Dispatcher
	toolkit    Toolkit
	home       *home.Dir
	hooks      Hooks
	logger     *slog.Logger
}

// New creates a Binder.
func New(cfg Config) (*Binder, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Toolkit == nil {
		return nil, fmt.Errorf("toolkit is required")
	}
	if cfg.Home == nil {
		return nil, fmt.Errorf("home directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{
		dispatcher: cfg.Dispatcher,
		toolkit:    cfg.Toolkit,
		home:       cfg.Home,
		hooks:      cfg.Hooks,
		logger:     logger,
	}, nil
}

// CorpusOptions returns the enumeration options that keep a run's own
// outputs and scratch files out of its corpus.
func CorpusOptions(opts Options) corpus.Options {
	return corpus.Options{
		ExcludeNames:    []string{opts.OutputName},
		ExcludePrefixes: []string{opts.GroupPrefix + "-", "temp_", "."},
	}
}
