// Package confirmation scores an aligned multi-timeframe snapshot. Four
// independent sub-scores (trend, key level, volume, momentum) are read from
// the slow, medium and fast anchor timeframes and combined with normalized
// weights into one confidence value.
package confirmation

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"mtfcollector/config"
	"mtfcollector/internal/diagnostics"
	"mtfcollector/internal/indicator"
	"mtfcollector/pkg/market"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrNilSnapshot is returned when the context carries no snapshot.
var ErrNilSnapshot = errors.New("confirmation: snapshot is required")

// Market is the live quote at evaluation time.
type Market struct {
	Mid       float64
	Timestamp time.Time
}

// Context bundles everything one confirmation check reads. Indicators is optional.
type Context struct {
	Snapshot   *market.Snapshot
	Market     Market
	Indicators indicator.Source
}

// Result is the verdict of one check. Sub-scores are in [0,1].
type Result struct {
	TrendAlignment       float64
	KeyLevelConfirmation float64
	VolumeConfirmation   float64
	MomentumConfirmation float64
	OverallScore         float64
	Threshold            float64
	IsConfirmed          bool
	Diagnostics          diagnostics.Entries
}

// Scorer computes confirmation results. It is safe for concurrent use.
type Scorer struct {
	cfg    atomic.Pointer[config.ConfirmationConfig]
	sink   diagnostics.Sink
	logger *zap.Logger
}

type Option func(*Scorer)

func WithSink(s diagnostics.Sink) Option {
	return func(sc *Scorer) { sc.sink = s }
}

// WithLogger enables the per-check debug score line.
func WithLogger(l *zap.Logger) Option {
	return func(sc *Scorer) { sc.logger = l }
}

func NewScorer(cfg config.ConfirmationConfig, opts ...Option) *Scorer {
	s := &Scorer{sink: diagnostics.NopSink{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.UpdateConfig(cfg)
	return s
}

func (s *Scorer) UpdateConfig(cfg config.ConfirmationConfig) {
	next := cfg.Normalize()
	s.cfg.Store(&next)
}

func (s *Scorer) Config() config.ConfirmationConfig {
	return *s.cfg.Load()
}

// CheckConfirmation scores ctx. It never fails for thin or missing data;
// the only error is a nil snapshot.
func (s *Scorer) CheckConfirmation(ctx Context) (*Result, error) {
	if ctx.Snapshot == nil {
		return nil, ErrNilSnapshot
	}
	cfg := s.cfg.Load()

	ev := &evaluation{cfg: cfg, ctx: ctx, at: ctx.Market.Timestamp}
	if ev.at.IsZero() {
		ev.at = ctx.Snapshot.Timestamp()
	}
	ev.slow = ev.buildSeries(cfg.Anchors.Slow, cfg.VolumeSMAPeriodMedium)
	ev.medium = ev.buildSeries(cfg.Anchors.Medium, cfg.VolumeSMAPeriodMedium)
	ev.fast = ev.buildSeries(cfg.Anchors.Fast, cfg.VolumeSMAPeriodFast)

	res := &Result{Threshold: cfg.MinimumConfirmationThreshold}
	res.TrendAlignment = ev.trendAlignment()
	res.KeyLevelConfirmation = ev.keyLevelConfirmation()
	res.VolumeConfirmation = ev.volumeConfirmation()
	res.MomentumConfirmation = ev.momentumConfirmation()

	w := cfg.WeightProfile()
	res.OverallScore = res.TrendAlignment*w.Trend +
		res.KeyLevelConfirmation*w.KeyLevel +
		res.VolumeConfirmation*w.Volume +
		res.MomentumConfirmation*w.Momentum
	res.IsConfirmed = res.OverallScore >= res.Threshold

	ev.diag = ev.diag.Add(ev.origins...)
	ev.diag = ev.diag.Add(
		diagnostics.Float("score.overall", res.OverallScore),
		diagnostics.Float("score.threshold", res.Threshold),
		diagnostics.Bool("confirmed", res.IsConfirmed),
	)
	res.Diagnostics = ev.diag

	s.report(ctx, res)
	return res, nil
}

func (s *Scorer) report(ctx Context, res *Result) {
	if ce := s.logger.Check(zapcore.DebugLevel, "confirmation score"); ce != nil {
		ce.Write(
			zap.String("symbol", ctx.Snapshot.Symbol()),
			zap.Float64("score", res.OverallScore),
			zap.Float64("threshold", res.Threshold),
			zap.Float64("trend", res.TrendAlignment),
			zap.Float64("key", res.KeyLevelConfirmation),
			zap.Float64("volume", res.VolumeConfirmation),
			zap.Float64("momentum", res.MomentumConfirmation),
		)
	}

	entries := diagnostics.Entries{
		diagnostics.String("symbol", ctx.Snapshot.Symbol()),
		diagnostics.Time("snapshot_time", ctx.Snapshot.Timestamp()),
		diagnostics.Float("trend_alignment", res.TrendAlignment),
		diagnostics.Float("key_level", res.KeyLevelConfirmation),
		diagnostics.Float("volume", res.VolumeConfirmation),
		diagnostics.Float("momentum", res.MomentumConfirmation),
	}
	diagnostics.Emit(s.sink, diagnostics.Event{
		Component: "MTF",
		Name:      "ConfirmationResult",
		Message:   "Multi-timeframe confirmation evaluated",
		Level:     zapcore.InfoLevel,
		Entries:   entries.Add(res.Diagnostics...),
	})
}

// evaluation carries the per-call state of one check.
type evaluation struct {
	cfg *config.ConfirmationConfig
	ctx Context
	at  time.Time

	slow, medium, fast *series

	diag    diagnostics.Entries
	origins diagnostics.Entries
}

// series is one anchor timeframe with its resolved indicators.
type series struct {
	tf         market.Timeframe
	bars       []market.Bar
	volumeSMA  float64
	atr        float64
	rsi        float64
	priceSlope float64
}

func (s *series) latestClose() float64 {
	if len(s.bars) == 0 {
		return math.NaN()
	}
	return s.bars[len(s.bars)-1].Close
}

func (s *series) latestVolume() float64 {
	if len(s.bars) == 0 {
		return 0
	}
	return s.bars[len(s.bars)-1].Volume
}

func (ev *evaluation) buildSeries(tf market.Timeframe, volumePeriod int) *series {
	bars := ev.ctx.Snapshot.Bars(tf)
	cfg := ev.cfg
	return &series{
		tf:   tf,
		bars: bars,
		volumeSMA: ev.resolve(indicator.Key{Kind: indicator.SMA, Timeframe: tf, Period: volumePeriod}, func() float64 {
			return indicator.ComputeVolumeSMA(bars, volumePeriod)
		}),
		atr: ev.resolve(indicator.Key{Kind: indicator.ATR, Timeframe: tf, Period: cfg.MomentumATRPeriod}, func() float64 {
			return indicator.ComputeATR(bars, cfg.MomentumATRPeriod)
		}),
		rsi: ev.resolve(indicator.Key{Kind: indicator.RSI, Timeframe: tf, Period: cfg.MomentumRSIPeriod}, func() float64 {
			return indicator.ComputeRSI(bars, cfg.MomentumRSIPeriod)
		}),
		priceSlope: indicator.PriceSlope(bars, cfg.MomentumLookbackBars),
	}
}

// resolve prefers a fresh cached value and records where it came from.
func (ev *evaluation) resolve(key indicator.Key, local func() float64) float64 {
	v := indicator.Resolve(ev.ctx.Indicators, key, ev.at, ev.cfg.IndicatorMaxAge, local)
	ev.origins = ev.origins.Add(diagnostics.String("indicator."+key.String(), v.Origin.String()))
	return v.Value
}

func (ev *evaluation) anchors() [3]*series {
	return [3]*series{ev.slow, ev.medium, ev.fast}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
