package bybit

import (
	"fmt"

	"mtfcollector/pkg/market"
)

// KlineInterval is the interval value used in Bybit REST queries and websocket topics.
type KlineInterval string

const (
	Interval1Min    KlineInterval = "1"
	Interval5Min    KlineInterval = "5"
	Interval15Min   KlineInterval = "15"
	Interval30Min   KlineInterval = "30"
	Interval60Min   KlineInterval = "60"
	Interval240Min  KlineInterval = "240"
	IntervalDaily   KlineInterval = "D"
	IntervalWeekly  KlineInterval = "W"
	IntervalMonthly KlineInterval = "M"
)

// Bybit also offers 3, 120, 360 and 720 minute candles; they have no Timeframe and are not collected.
var intervalTimeframes = map[KlineInterval]market.Timeframe{
	Interval1Min:    market.M1,
	Interval5Min:    market.M5,
	Interval15Min:   market.M15,
	Interval30Min:   market.M30,
	Interval60Min:   market.H1,
	Interval240Min:  market.H4,
	IntervalDaily:   market.D1,
	IntervalWeekly:  market.W1,
	IntervalMonthly: market.MN1,
}

var timeframeIntervals = func() map[market.Timeframe]KlineInterval {
	out := make(map[market.Timeframe]KlineInterval, len(intervalTimeframes))
	for k, tf := range intervalTimeframes {
		out[tf] = k
	}
	return out
}()

// IsValid checks if the KlineInterval maps to a collected timeframe.
func (k KlineInterval) IsValid() bool {
	_, ok := intervalTimeframes[k]
	return ok
}

// Timeframe returns the timeframe for k.
func (k KlineInterval) Timeframe() (market.Timeframe, error) {
	tf, ok := intervalTimeframes[k]
	if !ok {
		return "", fmt.Errorf("invalid KlineInterval: %s", string(k))
	}
	return tf, nil
}

// IntervalFor returns the Bybit interval for tf.
func IntervalFor(tf market.Timeframe) (KlineInterval, error) {
	k, ok := timeframeIntervals[tf]
	if !ok {
		return "", fmt.Errorf("no bybit interval for timeframe %s", tf)
	}
	return k, nil
}

// IntervalsFor maps every timeframe, failing on the first unsupported one.
func IntervalsFor(tfs []market.Timeframe) ([]KlineInterval, error) {
	out := make([]KlineInterval, 0, len(tfs))
	for _, tf := range tfs {
		k, err := IntervalFor(tf)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
