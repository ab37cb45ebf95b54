package indicator

import (
	"math"

	"mtfcollector/pkg/market"
)

// ComputeEMA seeds at the first of the last period closes and smooths forward
// with k = 2/(period+1). NaN when fewer than period bars.
func ComputeEMA(bars []market.Bar, period int) float64 {
	n := len(bars)
	if period <= 0 || n < period {
		return math.NaN()
	}
	k := 2.0 / float64(period+1)
	ema := bars[n-period].Close
	for i := n - period + 1; i < n; i++ {
		ema = (bars[i].Close-ema)*k + ema
	}
	return ema
}

// ComputeVolumeSMA averages max(1, volume) over the last min(period, n) bars.
func ComputeVolumeSMA(bars []market.Bar, period int) float64 {
	period = min(period, len(bars))
	if period <= 0 {
		return 0
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += math.Max(1, b.Volume)
	}
	return sum / float64(period)
}

// ComputeRSI uses simple sums of gains and losses over the last period changes.
// NaN when there are not more than period bars; 50 when flat; 100 without losses.
func ComputeRSI(bars []market.Bar, period int) float64 {
	n := len(bars)
	if period <= 0 || n <= period {
		return math.NaN()
	}
	var gain, loss float64
	for i := n - period; i < n; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change >= 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// ComputeATR is the mean true range over the last period bars; 0 when short.
func ComputeATR(bars []market.Bar, period int) float64 {
	n := len(bars)
	if period <= 0 || n < period+1 {
		return 0
	}
	var sum float64
	for i := n - period; i < n; i++ {
		cur, prev := bars[i], bars[i-1]
		tr := math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		sum += tr
	}
	return sum / float64(period)
}

// PriceSlope is close[n-1] - close[n-1-lookback], NaN when short.
func PriceSlope(bars []market.Bar, lookback int) float64 {
	n := len(bars)
	if lookback < 0 || n <= lookback {
		return math.NaN()
	}
	return bars[n-1].Close - bars[n-1-lookback].Close
}

// VolumeSlope is the relative change of max(1, volume) over lookback bars, 0 when short.
func VolumeSlope(bars []market.Bar, lookback int) float64 {
	n := len(bars)
	if lookback < 0 || n <= lookback {
		return 0
	}
	start := math.Max(1, bars[n-1-lookback].Volume)
	end := math.Max(1, bars[n-1].Volume)
	return (end - start) / math.Max(math.Abs(start), 1)
}
