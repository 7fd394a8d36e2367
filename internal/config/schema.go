package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jackzampolin/fitbind/internal/fidelity"
	"github.com/jackzampolin/fitbind/internal/render"
	"github.com/jackzampolin/fitbind/internal/search"
)

// Config holds fitbind configuration.
// Stored at: ./config.yaml or ~/.fitbind/config.yaml
type Config struct {
	// BudgetMB is the maximum artifact size in MiB.
	BudgetMB float64       `mapstructure:"budget_mb" yaml:"budget_mb"`
	Grid     fidelity.Grid `mapstructure:"grid" yaml:"grid"`
	Strategy string        `mapstructure:"strategy" yaml:"strategy"` // "greedy" or "exhaustive"

	// AllowPartial accepts probes in which some documents failed to render.
	AllowPartial bool `mapstructure:"allow_partial" yaml:"allow_partial"`

	Workers        int    `mapstructure:"workers" yaml:"workers"`
	Renderer       string `mapstructure:"renderer" yaml:"renderer"` // "pdftoppm" or "fitz"
	RenderAttempts int    `mapstructure:"render_attempts" yaml:"render_attempts"`

	TOCFile     string `mapstructure:"toc_file" yaml:"toc_file"`         // relative to source_dir unless absolute
	SourceDir   string `mapstructure:"source_dir" yaml:"source_dir"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`     // defaults to source_dir
	OutputName  string `mapstructure:"output_name" yaml:"output_name"`
	GroupPrefix string `mapstructure:"group_prefix" yaml:"group_prefix"`
	DeliverDir  string `mapstructure:"deliver_dir" yaml:"deliver_dir"`   // optional
	WorkDir     string `mapstructure:"work_dir" yaml:"work_dir"`         // defaults to ~/.fitbind/work
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BudgetMB:       1.9,
		Grid:           fidelity.DefaultGrid(),
		Strategy:       string(search.StrategyGreedy),
		AllowPartial:   true,
		Workers:        runtime.NumCPU(),
		Renderer:       render.BackendPdftoppm,
		RenderAttempts: 1,
		TOCFile:        "Inhaltsverzeichnis.md",
		SourceDir:      ".",
		OutputName:     "Anlagen.pdf",
		GroupPrefix:    "Anlagen",
	}
}

// Validate checks the configuration for values no run could use.
func (c *Config) Validate() error {
	if c.BudgetMB <= 0 {
		return fmt.Errorf("budget_mb must be positive, got %v", c.BudgetMB)
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if _, err := search.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if _, err := render.New(c.Renderer); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.RenderAttempts < 0 {
		return fmt.Errorf("render_attempts must not be negative, got %d", c.RenderAttempts)
	}
	if c.OutputName == "" || c.OutputName != filepath.Base(c.OutputName) {
		return fmt.Errorf("output_name must be a plain file name, got %q", c.OutputName)
	}
	if !strings.EqualFold(filepath.Ext(c.OutputName), ".pdf") {
		return fmt.Errorf("output_name must end in .pdf, got %q", c.OutputName)
	}
	if c.GroupPrefix == "" {
		return fmt.Errorf("group_prefix is required")
	}
	return nil
}

// BudgetBytes returns the budget in bytes.
func (c *Config) BudgetBytes() int64 {
	return int64(c.BudgetMB * 1024 * 1024)
}

// WorkerCount returns Workers, or the number of CPUs when unset.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// TOCPath returns the table-of-contents path, resolved against SourceDir.
func (c *Config) TOCPath() string {
	p := ResolveEnvVars(c.TOCFile)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.SourcePath(), p)
}

// SourcePath returns SourceDir with ${ENV_VAR} references expanded.
func (c *Config) SourcePath() string {
	return ResolveEnvVars(c.SourceDir)
}

// OutputPath returns the directory artifacts are written to.
func (c *Config) OutputPath() string {
	if c.OutputDir == "" {
		return c.SourcePath()
	}
	return ResolveEnvVars(c.OutputDir)
}

// DeliverPath returns the delivery directory, or "" when delivery is off.
func (c *Config) DeliverPath() string {
	return ResolveEnvVars(c.DeliverDir)
}

// WorkPath returns the workspace root, or "" for the home default.
func (c *Config) WorkPath() string {
	return ResolveEnvVars(c.WorkDir)
}
