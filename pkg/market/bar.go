package market

import "time"

// Bar is one closed OHLCV candle. OpenTime is UTC.
// High >= max(Open, Close) and Low <= min(Open, Close) are assumed from upstream.
type Bar struct {
	OpenTime  time.Time `json:"open_time" yaml:"open_time"`
	Open      float64   `json:"open" yaml:"open"`
	High      float64   `json:"high" yaml:"high"`
	Low       float64   `json:"low" yaml:"low"`
	Close     float64   `json:"close" yaml:"close"`
	Volume    float64   `json:"volume" yaml:"volume"`
	Timeframe Timeframe `json:"timeframe" yaml:"timeframe"`
}

// CloseTime is OpenTime plus the timeframe duration.
func (b Bar) CloseTime() time.Time {
	return b.OpenTime.Add(b.Timeframe.Duration())
}

// Closes extracts close prices in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
