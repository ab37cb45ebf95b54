package confirmation

import (
	"math"

	"mtfcollector/internal/diagnostics"
)

const (
	rsiBullish = 55.0
	rsiBearish = 45.0

	// ATR is judged against a 0.2% move of the latest close.
	atrReferenceMove = 0.002
)

func (ev *evaluation) momentumConfirmation() float64 {
	rsi := ev.rsiConsensus()
	atr := ev.atrStrength()
	price := ev.priceMomentum()

	ev.diag = ev.diag.Add(
		diagnostics.Float("momentum.rsi", rsi),
		diagnostics.Float("momentum.atr", atr),
		diagnostics.Float("momentum.price", price),
	)
	return (rsi + atr + price) / 3
}

func (ev *evaluation) rsiConsensus() float64 {
	bullish, bearish, readings := 0, 0, 0
	for _, s := range ev.anchors() {
		if math.IsNaN(s.rsi) || s.rsi <= 0 {
			continue
		}
		readings++
		if s.rsi >= rsiBullish {
			bullish++
		}
		if s.rsi <= rsiBearish {
			bearish++
		}
	}
	if readings == 0 {
		return 0
	}
	dominant := max(bullish, bearish)
	if dominant < ev.cfg.RequiredTimeframeAlignment {
		return 0
	}
	return clamp01(float64(dominant) / 3)
}

func (ev *evaluation) atrStrength() float64 {
	var sum float64
	var n int
	for _, s := range []*series{ev.medium, ev.fast} {
		closePrice := s.latestClose()
		if s.atr <= math.SmallestNonzeroFloat64 || math.IsNaN(closePrice) || closePrice == 0 {
			continue
		}
		sum += clamp01(s.atr / (closePrice * atrReferenceMove))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// priceMomentum scales slope magnitude against three times the threshold and
// halves it when the medium and fast slopes disagree in sign.
func (ev *evaluation) priceMomentum() float64 {
	slopes := [2]float64{ev.medium.priceSlope, ev.fast.priceSlope}
	if math.IsNaN(slopes[0]) || math.IsNaN(slopes[1]) {
		return 0
	}
	threshold := ev.cfg.MomentumPriceSlopeThreshold * 3
	magnitude := (clamp01(math.Abs(slopes[0])/threshold) + clamp01(math.Abs(slopes[1])/threshold)) / 2

	same := (slopes[0] >= 0 && slopes[1] >= 0) || (slopes[0] <= 0 && slopes[1] <= 0)
	if !same {
		return magnitude * 0.5
	}
	return magnitude
}
