package confirmation

import (
	"fmt"
	"math"

	"mtfcollector/internal/diagnostics"
	"mtfcollector/internal/indicator"
)

// Direction is the EMA trend classification of one timeframe.
type Direction int

const (
	Range Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "Range"
	}
}

// trendAlignment scores agreement of the anchors' EMA directions. The majority
// non-Range direction wins; ties go to the slower anchor.
func (ev *evaluation) trendAlignment() float64 {
	anchors := ev.anchors()
	var dirs [3]Direction
	for i, s := range anchors {
		dirs[i] = ev.analyzeTrend(s)
		ev.diag = ev.diag.Add(diagnostics.String("trend.dir."+string(s.tf), dirs[i].String()))
	}

	majority, count := Range, 0
	for _, d := range dirs {
		if d == Range {
			continue
		}
		n := 0
		for _, other := range dirs {
			if other == d {
				n++
			}
		}
		if n > count {
			majority, count = d, n
		}
	}

	switch {
	case majority == Range:
		ev.diag = ev.diag.Add(diagnostics.String("trend", "no-consensus"))
		return 0
	case count < ev.cfg.RequiredTimeframeAlignment:
		ev.diag = ev.diag.Add(diagnostics.String("trend", fmt.Sprintf("aligned=%d/%d", count, len(dirs))))
		return 0
	}
	ev.diag = ev.diag.Add(diagnostics.String("trend", fmt.Sprintf("%s %d/%d", majority, count, len(dirs))))
	return clamp01(float64(count) / float64(len(dirs)))
}

func (ev *evaluation) analyzeTrend(s *series) Direction {
	cfg := ev.cfg
	if len(s.bars) < cfg.TrendSlowEMA+2 {
		return Range
	}
	fast := ev.resolve(indicator.Key{Kind: indicator.EMA, Timeframe: s.tf, Period: cfg.TrendFastEMA}, func() float64 {
		return indicator.ComputeEMA(s.bars, cfg.TrendFastEMA)
	})
	slow := ev.resolve(indicator.Key{Kind: indicator.EMA, Timeframe: s.tf, Period: cfg.TrendSlowEMA}, func() float64 {
		return indicator.ComputeEMA(s.bars, cfg.TrendSlowEMA)
	})
	if math.IsNaN(fast) || math.IsNaN(slow) {
		return Range
	}

	delta := fast - slow
	relative := math.Abs(delta) / math.Max(math.Abs(slow), 1e-5)
	if relative < cfg.TrendAlignmentTolerance {
		return Range
	}
	if delta > 0 {
		return Up
	}
	return Down
}
