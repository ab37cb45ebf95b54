package confirmation

import (
	"math"

	"mtfcollector/internal/diagnostics"
	"mtfcollector/pkg/market"
)

// level is an optional price.
type level struct {
	price float64
	ok    bool
}

type keyLevels struct {
	resistance level
	support    level
}

func (k keyLevels) any() bool { return k.resistance.ok || k.support.ok }

// keyLevelConfirmation averages cross-timeframe pivot agreement with the
// breakout score. Without any pivot on any anchor the result is neutral (0.5).
func (ev *evaluation) keyLevelConfirmation() float64 {
	anchors := ev.anchors()
	var levels [3]keyLevels
	hasAny := false
	for i, s := range anchors {
		levels[i] = ev.extractKeyLevels(s)
		if levels[i].resistance.ok {
			ev.diag = ev.diag.Add(diagnostics.Float("keylevel."+string(s.tf)+".resistance", levels[i].resistance.price))
		}
		if levels[i].support.ok {
			ev.diag = ev.diag.Add(diagnostics.Float("keylevel."+string(s.tf)+".support", levels[i].support.price))
		}
		hasAny = hasAny || levels[i].any()
	}

	if !hasAny {
		ev.diag = ev.diag.Add(
			diagnostics.String("keylevel.confluence", "neutral"),
			diagnostics.String("keylevel.breakout", "neutral"),
		)
		return 0.5
	}

	resistances := [3]level{levels[0].resistance, levels[1].resistance, levels[2].resistance}
	supports := [3]level{levels[0].support, levels[1].support, levels[2].support}
	tol := ev.cfg.KeyLevelTolerance

	resScore := agreementScore(resistances[:], tol)
	supScore := agreementScore(supports[:], tol)
	confluence, side := resScore, "resistance"
	if supScore > resScore {
		confluence, side = supScore, "support"
	}

	breakout := ev.breakoutScore(dominantLevel(resistances[:], tol), dominantLevel(supports[:], tol))

	ev.diag = ev.diag.Add(
		diagnostics.String("keylevel.side", side),
		diagnostics.Float("keylevel.confluence", confluence),
		diagnostics.Float("keylevel.breakout", breakout),
	)
	return (confluence + breakout) / 2
}

func (ev *evaluation) extractKeyLevels(s *series) keyLevels {
	radius := ev.cfg.PivotRadius
	lookback := min(ev.cfg.KeyLevelLookback, len(s.bars))
	if lookback < radius*2 {
		return keyLevels{}
	}
	windowStart := len(s.bars) - lookback
	return keyLevels{
		resistance: findPivot(s.bars, windowStart, radius, true),
		support:    findPivot(s.bars, windowStart, radius, false),
	}
}

// findPivot returns the most recent bar whose high (or low) is strictly beyond
// every bar within radius on both sides. Equal neighbours disqualify the bar.
func findPivot(bars []market.Bar, start, radius int, high bool) level {
	value := func(b market.Bar) float64 {
		if high {
			return b.High
		}
		return b.Low
	}
	for i := len(bars) - radius - 1; i >= max(start, radius); i-- {
		candidate := value(bars[i])
		pivot := true
		for off := 1; off <= radius && pivot; off++ {
			back, fwd := value(bars[i-off]), value(bars[i+off])
			if high {
				pivot = candidate > back && candidate > fwd
			} else {
				pivot = candidate < back && candidate < fwd
			}
		}
		if pivot {
			return level{price: candidate, ok: true}
		}
	}
	return level{}
}

// agreementScore is the share of level pairs within tol. One level scores 0.5,
// none scores 0.
func agreementScore(levels []level, tol float64) float64 {
	var valid []float64
	for _, l := range levels {
		if l.ok {
			valid = append(valid, l.price)
		}
	}
	switch len(valid) {
	case 0:
		return 0
	case 1:
		return 0.5
	}
	matches, comparisons := 0, 0
	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			comparisons++
			if math.Abs(valid[i]-valid[j]) <= tol {
				matches++
			}
		}
	}
	return clamp01(float64(matches) / float64(comparisons))
}

// dominantLevel groups each candidate under the first candidate within tol and
// returns the reference value of the largest group, earliest group on ties.
func dominantLevel(levels []level, tol float64) level {
	var candidates []float64
	for _, l := range levels {
		if l.ok {
			candidates = append(candidates, l.price)
		}
	}
	if len(candidates) == 0 {
		return level{}
	}

	var keys []float64
	counts := map[float64]int{}
	for _, v := range candidates {
		for _, ref := range candidates {
			if math.Abs(ref-v) <= tol {
				if _, seen := counts[ref]; !seen {
					keys = append(keys, ref)
				}
				counts[ref]++
				break
			}
		}
	}
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return level{price: best, ok: true}
}

// breakoutScore measures how far price has cleared the dominant level in the
// direction both short-term slopes agree on, damped by the weaker volume spike.
func (ev *evaluation) breakoutScore(resistance, support level) float64 {
	if !resistance.ok && !support.ok {
		ev.diag = ev.diag.Add(diagnostics.String("keylevel.breakout_side", "none"))
		return 0.5
	}
	cfg := ev.cfg
	tol := cfg.KeyLevelTolerance

	price := ev.medium.latestClose()
	if math.IsNaN(price) || price <= 0 {
		price = ev.ctx.Market.Mid
	}

	bullish := ev.medium.priceSlope >= 0 && ev.fast.priceSlope >= 0
	bearish := ev.medium.priceSlope <= 0 && ev.fast.priceSlope <= 0

	score, side := 0.0, "none"
	if bullish && resistance.ok {
		if s := breakoutDistanceScore(price-resistance.price, tol); s > score {
			score, side = s, "resistance"
		}
	}
	if bearish && support.ok {
		if s := breakoutDistanceScore(support.price-price, tol); s > score {
			score, side = s, "support"
		}
	}
	if score <= 0 && resistance.ok && support.ok {
		if span := resistance.price - support.price; span > 0 {
			score = clamp01((price-support.price)/span) * 0.4
			side = "inside"
		}
	}
	if score <= 0 {
		score = 0.25
	}

	volumeWeight := math.Min(
		volumeSpikeScore(ev.medium, cfg.VolumeSpikeMultiplierMedium),
		volumeSpikeScore(ev.fast, cfg.VolumeSpikeMultiplierFast),
	)
	score *= math.Min(math.Max(volumeWeight, 0.2), 1)

	ev.diag = ev.diag.Add(
		diagnostics.String("keylevel.breakout_side", side),
		diagnostics.Float("keylevel.breakout_price", price),
	)
	return clamp01(score)
}

func breakoutDistanceScore(distance, tol float64) float64 {
	switch {
	case distance <= 0:
		return 0
	case distance >= tol*1.5:
		return 1
	case distance >= tol:
		return 0.85
	case distance >= tol*0.5:
		return 0.6
	default:
		return 0.4
	}
}
