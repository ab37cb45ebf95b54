package bybit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"mtfcollector/pkg/market"

	"github.com/shopspring/decimal"
)

const klineTopicPrefix = "kline."

// ParseKlineList converts REST kline rows into Klines ordered oldest first.
// Incomplete or malformed rows are skipped. REST only returns finished candles
// except for the newest row, so Confirm is set for every row whose End is
// before serverTime.
func ParseKlineList(interval KlineInterval, raw [][]string, serverTime time.Time) ([]Kline, error) {
	tf, err := interval.Timeframe()
	if err != nil {
		return nil, err
	}

	out := make([]Kline, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		row := raw[i]
		if len(row) < 7 {
			continue
		}
		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		valid := true
		for _, v := range row[1:7] {
			if _, err := decimal.NewFromString(v); err != nil {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}

		end := time.UnixMilli(start).Add(tf.Duration()).UnixMilli() - 1
		out = append(out, Kline{
			Start:     start,
			End:       end,
			Interval:  string(interval),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
			Turnover:  row[6],
			Confirm:   end < serverTime.UnixMilli(),
			Timestamp: serverTime.UnixMilli(),
		})
	}
	return out, nil
}

// ToBar converts k into a market.Bar with a UTC open time.
func (k Kline) ToBar() (market.Bar, error) {
	tf, err := KlineInterval(k.Interval).Timeframe()
	if err != nil {
		return market.Bar{}, err
	}
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse kline %d field %d: %w", k.Start, i, err)
		}
		vals[i] = d.InexactFloat64()
	}
	return market.Bar{
		OpenTime:  time.UnixMilli(k.Start).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Timeframe: tf,
	}, nil
}

// KlineTopic returns the websocket topic for interval and symbol.
func KlineTopic(interval KlineInterval, symbol string) string {
	return klineTopicPrefix + string(interval) + "." + symbol
}

// IsKlineTopic returns true if the topic string indicates a kline stream.
func IsKlineTopic(topic string) bool {
	return strings.HasPrefix(topic, klineTopicPrefix)
}

// ParseKlineTopic splits "kline.15.BTCUSDT" into its interval and symbol.
func ParseKlineTopic(topic string) (KlineInterval, string, bool) {
	parts := strings.Split(topic, ".")
	if len(parts) != 3 || parts[0]+"." != klineTopicPrefix || parts[2] == "" {
		return "", "", false
	}
	interval := KlineInterval(parts[1])
	if !interval.IsValid() {
		return "", "", false
	}
	return interval, parts[2], true
}
