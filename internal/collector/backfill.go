package collector

import (
	"context"
	"sync"
	"time"

	"mtfcollector/internal/metrics"
	"mtfcollector/logger"
	"mtfcollector/pkg/bybit"
	"mtfcollector/pkg/market"

	"go.uber.org/zap"
)

// KlineFetcher returns the most recent candles of tf, oldest first, and the
// server time they were read at.
type KlineFetcher interface {
	GetKlines(ctx context.Context, category, symbol string, tf market.Timeframe, limit int) ([]bybit.Kline, time.Time, error)
}

// Backfiller warms the bar store from REST history.
type Backfiller struct {
	Fetcher     KlineFetcher
	Category    string
	Limit       int
	Timeout     time.Duration
	Concurrency int
	// Admit passes one closed bar through the ingestion gate.
	Admit  func(symbol string, bar market.Bar, serverTime time.Time) bool
	Logger *zap.Logger

	// Now stands in for a response without a server time.
	Now func() time.Time
}

// Run fetches every timeframe of every symbol and returns the number of admitted bars.
// Timeframes of one symbol are fetched in order; symbols run concurrently.
func (b *Backfiller) Run(ctx context.Context, symbols []string, timeframes []market.Timeframe) int {
	log := logger.OrNop(b.Logger)
	now := b.Now
	if now == nil {
		now = time.Now
	}

	sem := make(chan struct{}, max(b.Concurrency, 1))
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for _, symbol := range symbols {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return total
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			accepted, failed := 0, false
			for _, tf := range timeframes {
				n, err := b.fetch(ctx, symbol, tf, now)
				if err != nil {
					log.Warn("failed to fetch kline from REST",
						zap.String("symbol", symbol), zap.String("timeframe", string(tf)), zap.Error(err))
					failed = true
					continue
				}
				accepted += n
			}

			if failed {
				log.Warn("backfill finished with errors", zap.String("symbol", symbol), zap.Int("bars", accepted))
			} else {
				log.Info("backfill completed", zap.String("symbol", symbol), zap.Int("bars", accepted))
			}
			mu.Lock()
			total += accepted
			mu.Unlock()
		}()
	}
	wg.Wait()
	return total
}

func (b *Backfiller) fetch(ctx context.Context, symbol string, tf market.Timeframe, now func() time.Time) (int, error) {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	started := time.Now()
	klines, serverTime, err := b.Fetcher.GetKlines(ctx, b.Category, symbol, tf, b.Limit)
	metrics.BackfillDuration.WithLabelValues(string(tf)).Observe(time.Since(started).Seconds())
	if err != nil {
		return 0, err
	}

	if serverTime.IsZero() {
		serverTime = now()
	}
	accepted := 0
	for _, k := range klines {
		if !k.Confirm {
			continue
		}
		bar, err := k.ToBar()
		if err != nil {
			continue
		}
		if b.Admit(symbol, bar, serverTime) {
			accepted++
		}
	}
	return accepted, nil
}
