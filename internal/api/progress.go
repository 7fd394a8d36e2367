package api

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/jackzampolin/fitbind/internal/partition"
	"github.com/jackzampolin/fitbind/internal/pipeline"
	"github.com/jackzampolin/fitbind/internal/search"
)

// Progress shows grid evaluations as a progress bar. Each search adds its
// grid size to the total, so early termination leaves the bar short of
// full until Finish.
type Progress struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	total int64
}

// NewProgress creates a progress bar writing to w.
func NewProgress(w io.Writer) *Progress {
	bar := progressbar.NewOptions64(
		0,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("searching"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("configs"),
		progressbar.OptionClearOnFinish(),
	)
	return &Progress{bar: bar}
}

// Hooks returns pipeline hooks that drive the bar.
func (p *Progress) Hooks() pipeline.Hooks {
	return pipeline.Hooks{
		OnSearchStart: func(scope string, evaluations int) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.total += int64(evaluations)
			p.bar.ChangeMax64(p.total)
		},
		OnEvaluation: func(scope string, ev search.Evaluation) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.bar.Describe(scope + " " + ev.Config.String())
			_ = p.bar.Add(1)
		},
		OnGroupStart: func(g partition.Group) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.bar.Describe("group " + g.Title)
		},
	}
}

// Finish completes the bar.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}
