// Package collector wires the Bybit feed into the multi-timeframe stores and
// runs the scheduled evaluation pipeline.
package collector

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"mtfcollector/config"
	"mtfcollector/internal/alignment"
	"mtfcollector/internal/confirmation"
	"mtfcollector/internal/diagnostics"
	"mtfcollector/internal/memorystore"
	"mtfcollector/internal/stream"
	"mtfcollector/internal/symbolmeta"
	"mtfcollector/pkg/bybit"
	"mtfcollector/pkg/market"
	"mtfcollector/pkg/storage"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const flushInterval = 250 * time.Millisecond

// Pruner deletes archived bars opened before a cutoff.
type Pruner interface {
	DeleteOldKlines(ctx context.Context, before time.Time) (int64, error)
}

type Collector struct {
	cfg    *config.Config
	logger *zap.Logger

	symbols  *memorystore.MemorySymbolStore
	bars     *memorystore.BarStore
	quotes   *memorystore.QuoteStore
	handler  *stream.Handler
	pipeline *Pipeline
	loader   *symbolmeta.Loader
	backfill *Backfiller
	rest     *bybit.RESTClient
	ws       *bybit.WSClient
	archive  storage.Archive

	cron *cron.Cron

	mu      sync.Mutex // guards runCtx, ws and active
	runCtx  context.Context
	active  []market.Timeframe // timeframes the feed and backfill cover
	reloads sync.WaitGroup
}

// New builds the collector from cfg. archive may be nil.
func New(cfg *config.Config, archive storage.Archive, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	mtf := cfg.MTF.Normalize()
	sink := diagnostics.NewZapSink(logger.Named("mtf"))

	c := &Collector{
		cfg:     cfg,
		logger:  logger,
		symbols: memorystore.NewSymbolStore(),
		bars:    memorystore.NewBarStore(mtf.Buffer),
		quotes:  memorystore.NewQuoteStore(),
		rest:    bybit.NewRESTClient(cfg.Bybit.REST.BaseURL, cfg.Bybit.REST.Timeout),
		archive: archive,
		cron:    cron.New(cron.WithSeconds()),
		active:  slices.Clone(mtf.Buffer.Timeframes),
	}

	var opts []stream.Option
	if archive != nil {
		opts = append(opts, stream.WithArchive(archive))
	}
	c.handler = stream.NewHandler(logger, c.bars, c.quotes, opts...)

	c.pipeline = &Pipeline{
		Bars:      c.bars,
		Quotes:    c.quotes,
		Evaluator: alignment.NewEvaluator(mtf.Alignment, alignment.WithSink(sink)),
		Scorer:    confirmation.NewScorer(mtf.Confirmation, confirmation.WithSink(sink), confirmation.WithLogger(logger)),
		Archive:   archive,
		Logger:    logger,
	}
	c.loader = &symbolmeta.Loader{
		Lister:   c.rest,
		Category: cfg.Bybit.Category,
		Static:   cfg.Bybit.Symbols,
		Timeout:  cfg.Bybit.REST.Timeout,
		Logger:   logger,
	}
	c.backfill = &Backfiller{
		Fetcher:     c.rest,
		Category:    cfg.Bybit.Category,
		Limit:       cfg.Bybit.REST.Backfill,
		Timeout:     cfg.Bybit.REST.Timeout,
		Concurrency: 5,
		Admit:       c.handler.Admit,
		Logger:      logger,
	}
	return c
}

// ApplyMTF hot-swaps the buffer, alignment and confirmation settings.
// Timeframes added to the buffer are backfilled and subscribed in the
// background once the collector has started. Removed timeframes stay
// subscribed but are no longer snapshotted.
func (c *Collector) ApplyMTF(mtf config.MTFConfig) {
	mtf = mtf.Normalize()

	c.mu.Lock()
	var added []market.Timeframe
	for _, tf := range mtf.Buffer.Timeframes {
		if !slices.Contains(c.active, tf) {
			added = append(added, tf)
		}
	}
	if _, err := bybit.IntervalsFor(added); err != nil {
		c.logger.Warn("timeframe change rejected, keeping current timeframes",
			zap.Any("timeframes", mtf.Buffer.Timeframes), zap.Error(err))
		mtf.Buffer.Timeframes = c.bars.Config().Timeframes
		added = nil
	}
	c.active = append(c.active, added...)
	intervals, _ := bybit.IntervalsFor(c.active)
	ctx, ws := c.runCtx, c.ws
	c.mu.Unlock()

	c.bars.UpdateConfig(mtf.Buffer)
	c.pipeline.Evaluator.UpdateConfig(mtf.Alignment)
	c.pipeline.Scorer.UpdateConfig(mtf.Confirmation)

	if len(added) == 0 || ctx == nil {
		return
	}
	c.logger.Info("timeframes added on reload", zap.Any("timeframes", added))
	c.reloads.Add(1)
	go func() {
		defer c.reloads.Done()
		// live bars must not overtake the history
		n := c.backfill.Run(ctx, c.symbols.GetAll(), added)
		c.logger.Info("backfill of added timeframes done", zap.Int("bars", n))
		if ws == nil {
			return
		}
		ws.SetIntervals(intervals)
		if err := ws.Resubscribe(); err != nil {
			c.logger.Warn("resubscribe failed", zap.Error(err))
		}
	}()
}

// activeTimeframes returns the timeframes the feed currently covers.
func (c *Collector) activeTimeframes() []market.Timeframe {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.active)
}

// Start loads symbols, backfills history, subscribes to the live feed and
// schedules the evaluation, refresh and prune jobs. It returns once the feed is live.
func (c *Collector) Start(ctx context.Context) error {
	if _, err := c.loader.LoadInto(ctx, c.symbols); err != nil {
		return fmt.Errorf("failed to load symbols: %w", err)
	}

	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	timeframes := c.activeTimeframes()
	if _, err := bybit.IntervalsFor(timeframes); err != nil {
		return err
	}

	n := c.backfill.Run(ctx, c.symbols.GetAll(), timeframes)
	c.logger.Info("backfill done", zap.Int("symbols", c.symbols.Len()), zap.Int("bars", n))

	// timeframes added by a reload during the backfill are included here
	c.mu.Lock()
	intervals, err := bybit.IntervalsFor(c.active)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	ws := bybit.NewWSClient(c.cfg.Bybit.WS.URL, c.symbols, intervals, c.logger)
	ws.SetMessageHandler(c.handler.Handle)
	c.ws = ws
	c.mu.Unlock()

	if err := ws.Connect(ctx); err != nil {
		return err
	}
	go ws.Listen(ctx)
	go c.handler.Run(ctx, flushInterval)

	if err := c.schedule(ctx); err != nil {
		return err
	}
	c.cron.Start()
	go func() {
		<-ctx.Done()
		<-c.cron.Stop().Done()
	}()
	return nil
}

func (c *Collector) schedule(ctx context.Context) error {
	sched := c.cfg.Schedule

	if _, err := c.cron.AddFunc(sched.EvaluateCron, func() {
		outcomes := c.pipeline.EvaluateAll(ctx, c.symbols.GetAll(), time.Now())
		confirmed := 0
		for _, o := range outcomes {
			if o.Confirmed() {
				confirmed++
			}
		}
		c.logger.Info("evaluation done",
			zap.Int("symbols", len(outcomes)),
			zap.Int("confirmed", confirmed),
			zap.Int("bars", c.bars.CountAll()),
		)
	}); err != nil {
		return fmt.Errorf("schedule evaluate: %w", err)
	}

	if len(c.cfg.Bybit.Symbols) == 0 {
		if _, err := c.loader.Schedule(c.cron, sched.SymbolRefreshCron, c.symbols, func(added []string) {
			c.backfill.Run(ctx, added, c.activeTimeframes())
			c.mu.Lock()
			ws := c.ws
			c.mu.Unlock()
			if err := ws.Resubscribe(); err != nil {
				c.logger.Warn("resubscribe failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule symbol refresh: %w", err)
		}
	}

	pruner, ok := c.archive.(Pruner)
	if days := c.cfg.Postgres.RetentionDays; ok && days > 0 {
		if _, err := c.cron.AddFunc(sched.PruneCron, func() {
			cutoff := time.Now().AddDate(0, 0, -days)
			n, err := pruner.DeleteOldKlines(ctx, cutoff)
			if err != nil {
				c.logger.Warn("prune failed", zap.Error(err))
				return
			}
			c.logger.Info("pruned archived bars", zap.Int64("rows", n), zap.Time("before", cutoff))
		}); err != nil {
			return fmt.Errorf("schedule prune: %w", err)
		}
	}
	return nil
}
