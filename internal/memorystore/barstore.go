package memorystore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mtfcollector/config"
	"mtfcollector/internal/alignment"
	"mtfcollector/pkg/market"
)

// ErrInvalidArgument marks caller misuse. Business rejections are never errors.
var ErrInvalidArgument = errors.New("invalid argument")

// Rejection explains why Admit refused a bar. Accepted means the bar was stored.
type Rejection uint8

const (
	Accepted Rejection = iota
	RejectNotClosed
	RejectRepainting
	RejectOutOfOrder
)

func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectNotClosed:
		return "not_closed"
	case RejectRepainting:
		return "repainting"
	case RejectOutOfOrder:
		return "out_of_order"
	default:
		return fmt.Sprintf("rejection(%d)", uint8(r))
	}
}

// BarStore keeps the most recent closed bars per symbol and timeframe.
// Writers to one symbol are serialized; different symbols never contend
// beyond the registry lookup.
type BarStore struct {
	globalMu sync.RWMutex
	data     map[string]*symbolSeries

	cfg atomic.Pointer[config.BufferConfig]
}

type symbolSeries struct {
	mu           sync.Mutex
	buffers      map[market.Timeframe]*RingBuffer[market.Bar]
	lastAccepted map[market.Timeframe]time.Time
}

func NewBarStore(cfg config.BufferConfig) *BarStore {
	s := &BarStore{
		data: make(map[string]*symbolSeries),
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig swaps the configuration. Existing buffers keep their capacity;
// timeframes added by the new config get buffers on first use.
func (s *BarStore) UpdateConfig(cfg config.BufferConfig) {
	next := cfg.Normalize()
	s.cfg.Store(&next)
}

// Config returns the active configuration.
func (s *BarStore) Config() config.BufferConfig {
	return *s.cfg.Load()
}

// TryAddBar reports whether the bar was admitted.
func (s *BarStore) TryAddBar(symbol string, bar market.Bar, serverTime time.Time, isClosed bool) (bool, error) {
	r, err := s.Admit(symbol, bar, serverTime, isClosed)
	return r == Accepted && err == nil, err
}

// Admit applies the ingestion rules in order: closed-bar policy, anti-repaint
// guard, strictly newer open time. The bar is pushed only if all pass.
func (s *BarStore) Admit(symbol string, bar market.Bar, serverTime time.Time, isClosed bool) (Rejection, error) {
	key, err := symbolKey(symbol)
	if err != nil {
		return Accepted, err
	}
	if bar.OpenTime.IsZero() {
		return Accepted, fmt.Errorf("%w: bar open time is zero", ErrInvalidArgument)
	}
	if !bar.Timeframe.IsValid() {
		return Accepted, fmt.Errorf("%w: unknown timeframe %q", ErrInvalidArgument, bar.Timeframe)
	}

	cfg := s.cfg.Load()
	series := s.getOrCreate(key, cfg)

	series.mu.Lock()
	defer series.mu.Unlock()

	if cfg.RequireClosedBars && !isClosed {
		return RejectNotClosed, nil
	}
	if bar.CloseTime().After(serverTime.Add(-cfg.AntiRepaintGuard)) {
		return RejectRepainting, nil
	}
	tf := bar.Timeframe
	if last, ok := series.lastAccepted[tf]; ok && !bar.OpenTime.After(last) {
		return RejectOutOfOrder, nil
	}

	buf, ok := series.buffers[tf]
	if !ok {
		buf = NewRingBuffer[market.Bar](cfg.Capacity(tf))
		series.buffers[tf] = buf
	}
	bar.OpenTime = bar.OpenTime.UTC()
	buf.Push(bar)
	series.lastAccepted[tf] = bar.OpenTime
	return Accepted, nil
}

// CaptureSnapshot copies the configured timeframes for symbol, keeping only bars
// that closed at or before ts minus the guard. An unknown symbol yields an
// empty snapshot.
func (s *BarStore) CaptureSnapshot(symbol string, ts time.Time) (*market.Snapshot, error) {
	key, err := symbolKey(symbol)
	if err != nil {
		return nil, err
	}
	cfg := s.cfg.Load()

	s.globalMu.RLock()
	series, ok := s.data[key]
	s.globalMu.RUnlock()
	if !ok {
		return market.EmptySnapshot(key, ts, cfg.Timeframes), nil
	}

	cutoff := ts.Add(-cfg.AntiRepaintGuard)
	closed := func(b market.Bar) bool { return !b.CloseTime().After(cutoff) }

	bars := make(map[market.Timeframe][]market.Bar, len(cfg.Timeframes))
	series.mu.Lock()
	for _, tf := range cfg.Timeframes {
		if buf, ok := series.buffers[tf]; ok {
			bars[tf] = buf.Filter(closed)
		}
	}
	series.mu.Unlock()

	return market.NewSnapshot(key, ts, cfg.Timeframes, bars), nil
}

// EvaluateAlignment captures a snapshot at ts and evaluates it.
func (s *BarStore) EvaluateAlignment(symbol string, ts time.Time, ev *alignment.Evaluator) (alignment.Result, error) {
	if ev == nil {
		return alignment.Result{}, fmt.Errorf("%w: evaluator is nil", ErrInvalidArgument)
	}
	snap, err := s.CaptureSnapshot(symbol, ts)
	if err != nil {
		return alignment.Result{}, err
	}
	return ev.Evaluate(snap), nil
}

// Len returns the number of bars held for symbol and tf.
func (s *BarStore) Len(symbol string, tf market.Timeframe) int {
	series := s.lookup(symbol)
	if series == nil {
		return 0
	}
	series.mu.Lock()
	defer series.mu.Unlock()
	if buf, ok := series.buffers[tf]; ok {
		return buf.Len()
	}
	return 0
}

// Latest returns the newest stored bar for symbol and tf, ignoring the guard.
func (s *BarStore) Latest(symbol string, tf market.Timeframe) (market.Bar, bool) {
	series := s.lookup(symbol)
	if series == nil {
		return market.Bar{}, false
	}
	series.mu.Lock()
	defer series.mu.Unlock()
	if buf, ok := series.buffers[tf]; ok {
		return buf.Last()
	}
	return market.Bar{}, false
}

// Symbols lists tracked symbols in sorted order.
func (s *BarStore) Symbols() []string {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	out := make([]string, 0, len(s.data))
	for sym := range s.data {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// CountAll returns the total number of bars stored across all symbols.
func (s *BarStore) CountAll() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, series := range s.data {
		series.mu.Lock()
		for _, buf := range series.buffers {
			total += buf.Len()
		}
		series.mu.Unlock()
	}
	return total
}

func (s *BarStore) lookup(symbol string) *symbolSeries {
	key, err := symbolKey(symbol)
	if err != nil {
		return nil
	}
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return s.data[key]
}

func (s *BarStore) getOrCreate(key string, cfg *config.BufferConfig) *symbolSeries {
	s.globalMu.RLock()
	series, ok := s.data[key]
	s.globalMu.RUnlock()
	if ok {
		return series
	}

	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if series, ok = s.data[key]; !ok {
		series = newSymbolSeries(cfg)
		s.data[key] = series
	}
	return series
}

func newSymbolSeries(cfg *config.BufferConfig) *symbolSeries {
	series := &symbolSeries{
		buffers:      make(map[market.Timeframe]*RingBuffer[market.Bar], len(cfg.Timeframes)),
		lastAccepted: make(map[market.Timeframe]time.Time, len(cfg.Timeframes)),
	}
	for _, tf := range cfg.Timeframes {
		series.buffers[tf] = NewRingBuffer[market.Bar](cfg.Capacity(tf))
	}
	return series
}

func symbolKey(symbol string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidArgument)
	}
	return key, nil
}
