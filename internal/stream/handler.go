// Package stream turns Bybit websocket kline pushes into ingestion-gate calls.
//
// Bybit marks a candle confirmed a few milliseconds after it closes, well
// inside the anti-repaint guard. Confirmed candles are therefore parked and
// admitted once the guard has elapsed, either on a later message or on the
// periodic flush driven by Run.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mtfcollector/internal/memorystore"
	"mtfcollector/internal/metrics"
	"mtfcollector/pkg/bybit"
	"mtfcollector/pkg/market"
	"mtfcollector/pkg/storage"

	"go.uber.org/zap"
)

const archiveTimeout = 5 * time.Second

type pendingBar struct {
	symbol string
	bar    market.Bar
}

// Handler routes kline messages into the bar and quote stores.
type Handler struct {
	logger  *zap.Logger
	bars    *memorystore.BarStore
	quotes  *memorystore.QuoteStore
	archive storage.Archive
	now     func() time.Time

	mu      sync.Mutex
	pending []pendingBar
}

type Option func(*Handler)

// WithArchive stores every admitted bar.
func WithArchive(a storage.Archive) Option {
	return func(h *Handler) { h.archive = a }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(logger *zap.Logger, bars *memorystore.BarStore, quotes *memorystore.QuoteStore, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{logger: logger, bars: bars, quotes: quotes, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MakeMessageHandler returns a function that handles incoming WebSocket messages.
func MakeMessageHandler(logger *zap.Logger, bars *memorystore.BarStore, quotes *memorystore.QuoteStore, opts ...Option) func(msg []byte) {
	return NewHandler(logger, bars, quotes, opts...).Handle
}

// Handle parses one websocket frame. Non-kline frames are ignored apart from
// failed operation acknowledgements, which are logged.
func (h *Handler) Handle(msg []byte) {
	var meta struct {
		Topic   string `json:"topic"`
		Op      string `json:"op"`
		Success *bool  `json:"success"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := json.Unmarshal(msg, &meta); err != nil {
		h.logger.Warn("failed to extract topic", zap.Error(err))
		return
	}
	if !bybit.IsKlineTopic(meta.Topic) {
		if meta.Success != nil && !*meta.Success {
			h.logger.Warn("websocket operation failed", zap.String("op", meta.Op), zap.String("msg", meta.RetMsg))
		}
		return
	}

	interval, symbol, ok := bybit.ParseKlineTopic(meta.Topic)
	if !ok {
		h.logger.Warn("unsupported kline topic", zap.String("topic", meta.Topic))
		return
	}

	var parsed bybit.KlineMessage
	if err := json.Unmarshal(msg, &parsed); err != nil {
		h.logger.Warn("failed to parse kline payload", zap.Error(err))
		return
	}
	serverTime := h.now()
	if parsed.Ts > 0 {
		serverTime = time.UnixMilli(parsed.Ts)
	}

	for _, d := range parsed.Data {
		if d.Interval == "" {
			d.Interval = string(interval)
		}
		bar, err := d.ToBar()
		if err != nil {
			h.logger.Warn("failed to convert kline", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		quoteTime := serverTime
		if d.Timestamp > 0 {
			quoteTime = time.UnixMilli(d.Timestamp)
		}
		h.quotes.Update(symbol, memorystore.Quote{Mid: bar.Close, Timestamp: quoteTime})
		metrics.QuotesTotal.WithLabelValues(symbol).Inc()

		if !d.Confirm {
			continue
		}
		h.mu.Lock()
		h.pending = append(h.pending, pendingBar{symbol: symbol, bar: bar})
		h.mu.Unlock()
	}

	h.Flush(serverTime)
}

// Flush admits parked bars whose anti-repaint guard has elapsed at now and
// returns how many were accepted.
func (h *Handler) Flush(now time.Time) int {
	guard := h.bars.Config().AntiRepaintGuard

	h.mu.Lock()
	var ready []pendingBar
	keep := h.pending[:0]
	for _, p := range h.pending {
		if p.bar.CloseTime().After(now.Add(-guard)) {
			keep = append(keep, p)
			continue
		}
		ready = append(ready, p)
	}
	h.pending = keep
	h.mu.Unlock()

	accepted := 0
	for _, p := range ready {
		if h.Admit(p.symbol, p.bar, now) {
			accepted++
		}
	}
	return accepted
}

// Admit passes a closed bar through the ingestion gate and archives it on success.
func (h *Handler) Admit(symbol string, bar market.Bar, serverTime time.Time) bool {
	rej, err := h.bars.Admit(symbol, bar, serverTime, true)
	if err != nil {
		h.logger.Warn("bar rejected as invalid", zap.String("symbol", symbol), zap.Error(err))
		return false
	}
	metrics.BarsTotal.WithLabelValues(symbol, string(bar.Timeframe), rej.String()).Inc()
	if rej != memorystore.Accepted {
		h.logger.Debug("bar not admitted",
			zap.String("symbol", symbol),
			zap.String("timeframe", string(bar.Timeframe)),
			zap.Time("open_time", bar.OpenTime),
			zap.Stringer("reason", rej),
		)
		return false
	}

	if h.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := h.archive.SaveBar(ctx, symbol, bar); err != nil {
			h.logger.Warn("failed to archive bar", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return true
}

// Pending returns the number of parked bars.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Run flushes parked bars every interval until ctx is cancelled.
func (h *Handler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Flush(h.now())
		}
	}
}
