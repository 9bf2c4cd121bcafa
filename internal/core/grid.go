package core

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// GridScale selects the spacing of a generated coefficient grid.
type GridScale string

const (
	GridLinear GridScale = "linear"
	GridLog    GridScale = "log"
)

// Grid describes a generated coefficient list: Num points from Start to Stop
// inclusive.
type Grid struct {
	Start float64   `toml:"start"`
	Stop  float64   `toml:"stop"`
	Num   int       `toml:"num"`
	Scale GridScale `toml:"scale"`

	// Round keeps this many decimal places; 0 disables rounding. Log grids
	// otherwise produce values like 3.1622776601683795 which make for awkward
	// experiment names.
	Round int `toml:"round"`
}

// Lambdas materializes the grid.
func (g Grid) Lambdas() ([]float64, error) {
	scale := GridScale(strings.ToLower(strings.TrimSpace(string(g.Scale))))
	if scale == "" {
		scale = GridLinear
	}
	if g.Num < 1 {
		return nil, fmt.Errorf("grid num must be >= 1 (got %d)", g.Num)
	}
	if g.Round < 0 {
		return nil, fmt.Errorf("grid round must be >= 0 (got %d)", g.Round)
	}
	switch scale {
	case GridLinear:
	case GridLog:
		if g.Start <= 0 || (g.Num > 1 && g.Stop <= 0) {
			return nil, fmt.Errorf("log grid bounds must be > 0 (got %v, %v)", g.Start, g.Stop)
		}
	default:
		return nil, fmt.Errorf("invalid grid scale %q (expected linear|log)", g.Scale)
	}
	if g.Num == 1 {
		return []float64{g.round(g.Start)}, nil
	}

	dst := make([]float64, g.Num)
	if scale == GridLog {
		floats.LogSpan(dst, g.Start, g.Stop)
	} else {
		floats.Span(dst, g.Start, g.Stop)
	}
	for i := range dst {
		dst[i] = g.round(dst[i])
	}
	return dst, nil
}

func (g Grid) round(v float64) float64 {
	if g.Round == 0 {
		return v
	}
	p := math.Pow(10, float64(g.Round))
	return math.Round(v*p) / p
}
