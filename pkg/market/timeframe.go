package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a fixed candle duration.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
	MN1 Timeframe = "MN1"
)

// TimeframeMeta holds the duration and the external spellings of a timeframe.
type TimeframeMeta struct {
	Duration time.Duration
	Short    string // e.g. "15m", used for DB records
	Aliases  []string
}

// validTimeframes maps each Timeframe to its duration and accepted aliases.
var validTimeframes = map[Timeframe]TimeframeMeta{
	M1:  {Duration: time.Minute, Short: "1m", Aliases: []string{"1m", "m1", "1"}},
	M5:  {Duration: 5 * time.Minute, Short: "5m", Aliases: []string{"5m", "m5", "5"}},
	M15: {Duration: 15 * time.Minute, Short: "15m", Aliases: []string{"15m", "m15", "15"}},
	M30: {Duration: 30 * time.Minute, Short: "30m", Aliases: []string{"30m", "m30", "30"}},
	H1:  {Duration: time.Hour, Short: "1h", Aliases: []string{"1h", "h1", "60"}},
	H4:  {Duration: 4 * time.Hour, Short: "4h", Aliases: []string{"4h", "h4", "240"}},
	D1:  {Duration: 24 * time.Hour, Short: "1d", Aliases: []string{"1d", "d1", "d"}},
	W1:  {Duration: 7 * 24 * time.Hour, Short: "1w", Aliases: []string{"1w", "w1", "w"}},
	MN1: {Duration: 30 * 24 * time.Hour, Short: "1M", Aliases: []string{"mn1", "m"}}, // 30 day month
}

var aliasIndex = func() map[string]Timeframe {
	idx := make(map[string]Timeframe, len(validTimeframes)*4)
	for tf, meta := range validTimeframes {
		idx[strings.ToLower(string(tf))] = tf
		for _, a := range meta.Aliases {
			idx[a] = tf
		}
	}
	return idx
}()

// DefaultTimeframes is the slow/medium/fast stack used when none is configured.
func DefaultTimeframes() []Timeframe {
	return []Timeframe{H4, H1, M15}
}

// IsValid reports whether tf is a known timeframe.
func (tf Timeframe) IsValid() bool {
	_, ok := validTimeframes[tf]
	return ok
}

// Duration returns the candle length, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	return validTimeframes[tf].Duration
}

// Short returns the compact spelling ("15m", "4h").
func (tf Timeframe) Short() string {
	return validTimeframes[tf].Short
}

func (tf Timeframe) String() string { return string(tf) }

// ParseTimeframe accepts canonical names and common exchange aliases, case-insensitively.
// "1M" is the only case-sensitive spelling (month, not minute).
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	if s == "1M" {
		return MN1, nil
	}
	if tf, ok := aliasIndex[strings.ToLower(s)]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("invalid timeframe: %q", s)
}
