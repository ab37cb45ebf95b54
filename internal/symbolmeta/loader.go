package symbolmeta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mtfcollector/internal/memorystore"
	"mtfcollector/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SymbolLister fetches tradeable symbols from the exchange.
type SymbolLister interface {
	GetUSDTSymbols(ctx context.Context, category string) ([]string, error)
}

// Loader fills a symbol store from a fixed list or, when none is configured,
// from every USDT symbol of Category.
type Loader struct {
	Lister   SymbolLister
	Category string
	Static   []string
	Timeout  time.Duration
	Logger   *zap.Logger

	mu sync.Mutex // serializes LoadInto
}

// LoadSymbols streams symbols into ch and closes it.
func (l *Loader) LoadSymbols(ctx context.Context, ch chan<- string) error {
	defer close(ch)

	symbols := l.Static
	if len(symbols) == 0 {
		if l.Lister == nil {
			return fmt.Errorf("no symbols configured and no lister")
		}
		if l.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, l.Timeout)
			defer cancel()
		}
		var err error
		symbols, err = l.Lister.GetUSDTSymbols(ctx, l.Category)
		if err != nil {
			l.log().Error("failed to load USDT symbols", zap.Error(err))
			return err
		}
	}
	l.log().Info("loaded symbols", zap.Int("count", len(symbols)))

	for _, symbol := range symbols {
		select {
		case ch <- symbol:
		case <-ctx.Done():
			l.log().Warn("symbol streaming interrupted", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
	return nil
}

// LoadInto loads symbols into store and returns the ones that were not tracked before.
func (l *Loader) LoadInto(ctx context.Context, store *memorystore.MemorySymbolStore) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := store.Len()
	ch := make(chan string, 100)
	done := make(chan struct{})
	store.StartWorker(ch, done)

	err := l.LoadSymbols(ctx, ch)
	<-done
	return store.GetAll()[before:], err
}

// Schedule reloads symbols on spec and passes newly added ones to onNew.
func (l *Loader) Schedule(c *cron.Cron, spec string, store *memorystore.MemorySymbolStore, onNew func([]string)) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		added, err := l.LoadInto(context.Background(), store)
		if err != nil {
			l.log().Warn("symbol refresh failed", zap.Error(err))
		}
		if len(added) > 0 {
			l.log().Info("new symbols", zap.Strings("symbols", added))
			if onNew != nil {
				onNew(added)
			}
		}
	})
}

func (l *Loader) log() *zap.Logger {
	return logger.OrNop(l.Logger)
}
