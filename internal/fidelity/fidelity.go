// Package fidelity defines the (resolution, quality) grid the search walks.
package fidelity

import (
	"fmt"
	"sort"
)

// Configuration is one point of the grid: render resolution in DPI and
// JPEG quality (1-100).
type Configuration struct {
	DPI     int `json:"dpi" yaml:"dpi"`
	Quality int `json:"quality" yaml:"quality"`
}

// String renders the configuration as "<quality>@<dpi>dpi".
func (c Configuration) String() string {
	return fmt.Sprintf("%d@%ddpi", c.Quality, c.DPI)
}

// Key is a filesystem-safe identifier, e.g. "150_70".
func (c Configuration) Key() string {
	return fmt.Sprintf("%d_%d", c.DPI, c.Quality)
}

// Less reports whether c comes before o in traversal order:
// DPI ascending, then quality ascending.
func (c Configuration) Less(o Configuration) bool {
	if c.DPI != o.DPI {
		return c.DPI < o.DPI
	}
	return c.Quality < o.Quality
}

// Grid holds the two ascending axes.
type Grid struct {
	DPI     []int `json:"dpi" yaml:"dpi" mapstructure:"dpi"`
	Quality []int `json:"quality" yaml:"quality" mapstructure:"quality"`
}

// DefaultGrid mirrors the values the binder has always shipped with.
func DefaultGrid() Grid {
	return Grid{
		DPI:     []int{100, 150, 200, 250, 300},
		Quality: []int{50, 55, 60, 65, 70, 75, 80, 85},
	}
}

// Validate checks both axes are non-empty, strictly ascending and in range.
func (g Grid) Validate() error {
	if len(g.DPI) == 0 {
		return fmt.Errorf("grid: at least one dpi value is required")
	}
	if len(g.Quality) == 0 {
		return fmt.Errorf("grid: at least one quality value is required")
	}
	if !strictlyAscending(g.DPI) {
		return fmt.Errorf("grid: dpi values must be strictly ascending: %v", g.DPI)
	}
	if !strictlyAscending(g.Quality) {
		return fmt.Errorf("grid: quality values must be strictly ascending: %v", g.Quality)
	}
	if g.DPI[0] <= 0 {
		return fmt.Errorf("grid: dpi must be positive, got %d", g.DPI[0])
	}
	if g.Quality[0] < 1 || g.Quality[len(g.Quality)-1] > 100 {
		return fmt.Errorf("grid: quality must be within 1..100: %v", g.Quality)
	}
	return nil
}

// Size returns the number of configurations in the grid.
func (g Grid) Size() int {
	return len(g.DPI) * len(g.Quality)
}

// First returns the most aggressive configuration.
func (g Grid) First() Configuration {
	return Configuration{DPI: g.DPI[0], Quality: g.Quality[0]}
}

// Last returns the highest-fidelity configuration.
func (g Grid) Last() Configuration {
	return Configuration{DPI: g.DPI[len(g.DPI)-1], Quality: g.Quality[len(g.Quality)-1]}
}

// Tiers returns the grid as one slice per DPI tier, each in quality order.
func (g Grid) Tiers() [][]Configuration {
	tiers := make([][]Configuration, 0, len(g.DPI))
	for _, dpi := range g.DPI {
		tier := make([]Configuration, 0, len(g.Quality))
		for _, q := range g.Quality {
			tier = append(tier, Configuration{DPI: dpi, Quality: q})
		}
		tiers = append(tiers, tier)
	}
	return tiers
}

// All returns every configuration in traversal order.
func (g Grid) All() []Configuration {
	all := make([]Configuration, 0, g.Size())
	for _, tier := range g.Tiers() {
		all = append(all, tier...)
	}
	return all
}

func strictlyAscending(vals []int) bool {
	return sort.SliceIsSorted(vals, func(i, j int) bool { return vals[i] < vals[j] }) && unique(vals)
}

func unique(vals []int) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i] == vals[i-1] {
			return false
		}
	}
	return true
}
