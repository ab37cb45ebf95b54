package market

import "time"

// Snapshot is an immutable view of bars per timeframe for one symbol at a query time.
// All accessors return copies, so a Snapshot can be shared across goroutines freely.
type Snapshot struct {
	symbol     string
	timestamp  time.Time
	timeframes []Timeframe
	bars       map[Timeframe][]Bar
}

// NewSnapshot copies its inputs. Timeframes missing from bars are treated as empty.
func NewSnapshot(symbol string, timestamp time.Time, timeframes []Timeframe, bars map[Timeframe][]Bar) *Snapshot {
	s := &Snapshot{
		symbol:     symbol,
		timestamp:  timestamp,
		timeframes: append([]Timeframe(nil), timeframes...),
		bars:       make(map[Timeframe][]Bar, len(timeframes)),
	}
	for _, tf := range s.timeframes {
		src := bars[tf]
		cp := make([]Bar, len(src))
		copy(cp, src)
		s.bars[tf] = cp
	}
	return s
}

// EmptySnapshot lists every timeframe with zero bars.
func EmptySnapshot(symbol string, timestamp time.Time, timeframes []Timeframe) *Snapshot {
	return NewSnapshot(symbol, timestamp, timeframes, nil)
}

func (s *Snapshot) Symbol() string       { return s.symbol }
func (s *Snapshot) Timestamp() time.Time { return s.timestamp }

// Timeframes returns the configured order.
func (s *Snapshot) Timeframes() []Timeframe {
	return append([]Timeframe(nil), s.timeframes...)
}

// TotalTimeframes is the number of configured timeframes.
func (s *Snapshot) TotalTimeframes() int { return len(s.timeframes) }

// Bars returns a copy of the bars for tf, oldest first. Unknown timeframes yield nil.
func (s *Snapshot) Bars(tf Timeframe) []Bar {
	src, ok := s.bars[tf]
	if !ok {
		return nil
	}
	cp := make([]Bar, len(src))
	copy(cp, src)
	return cp
}

// Count returns the number of bars held for tf without copying.
func (s *Snapshot) Count(tf Timeframe) int {
	return len(s.bars[tf])
}

// Latest returns the newest bar for tf.
func (s *Snapshot) Latest(tf Timeframe) (Bar, bool) {
	src := s.bars[tf]
	if len(src) == 0 {
		return Bar{}, false
	}
	return src[len(src)-1], true
}
