package alignment

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"mtfcollector/config"
	"mtfcollector/internal/diagnostics"
	"mtfcollector/pkg/market"

	"go.uber.org/zap/zapcore"
)

const (
	component = "MTF"

	blockedLogInterval = 5 * time.Second
	warmupLogInterval  = 2 * time.Minute
)

// Evaluator decides whether a snapshot has enough warmed-up, closely spaced
// and safely closed history. Evaluate holds no state that affects its result;
// the limiters only throttle diagnostics.
type Evaluator struct {
	cfg  atomic.Pointer[config.AlignmentConfig]
	sink diagnostics.Sink
	now  func() time.Time

	blockedLimiter *diagnostics.Limiter
	warmupLimiter  *diagnostics.Limiter
}

type Option func(*Evaluator)

// WithSink sets the diagnostics sink. Default discards events.
func WithSink(s diagnostics.Sink) Option {
	return func(e *Evaluator) { e.sink = s }
}

// WithClock overrides the wall clock used for log throttling.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(cfg config.AlignmentConfig, opts ...Option) *Evaluator {
	e := &Evaluator{
		sink:           diagnostics.NopSink{},
		now:            time.Now,
		blockedLimiter: diagnostics.NewLimiter(blockedLogInterval),
		warmupLimiter:  diagnostics.NewLimiter(warmupLogInterval),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.UpdateConfig(cfg)
	return e
}

// UpdateConfig atomically replaces the configuration.
func (e *Evaluator) UpdateConfig(cfg config.AlignmentConfig) {
	next := cfg.Normalize()
	e.cfg.Store(&next)
}

func (e *Evaluator) Config() config.AlignmentConfig {
	return *e.cfg.Load()
}

// Evaluate computes the alignment verdict for snap. A nil snapshot is treated
// as having no timeframes and is never aligned.
func (e *Evaluator) Evaluate(snap *market.Snapshot) Result {
	cfg := e.cfg.Load()
	if snap == nil {
		snap = market.EmptySnapshot("", time.Time{}, nil)
	}

	total := snap.TotalTimeframes()
	res := Result{
		TotalTimeframes: total,
		Snapshot:        snap,
		Statuses:        make([]TimeframeStatus, 0, total),
		WarmupSatisfied: true,
	}

	var earliest, latest time.Time
	var shortfalls []string
	for _, tf := range snap.Timeframes() {
		n := snap.Count(tf)
		st := TimeframeStatus{
			Timeframe:         tf,
			AvailableBars:     n,
			HasSufficientData: n >= cfg.MinimumBarsPerTimeframe,
			WarmupRequired:    cfg.WarmupRequirement(tf),
		}
		if st.HasSufficientData {
			st.LatestBar, _ = snap.Latest(tf)
			st.LatestClose = st.LatestBar.CloseTime()
			res.AlignedTimeframes++
			if earliest.IsZero() || st.LatestClose.Before(earliest) {
				earliest = st.LatestClose
			}
			if latest.IsZero() || st.LatestClose.After(latest) {
				latest = st.LatestClose
			}
		}
		st.WarmupMet = st.WarmupRequired <= 0 || n >= st.WarmupRequired
		if !st.WarmupMet {
			res.WarmupSatisfied = false
			shortfalls = append(shortfalls, fmt.Sprintf("%s:%d/%d", tf, n, st.WarmupRequired))
		}
		res.Statuses = append(res.Statuses, st)
	}

	e.emitWarmupProgress(snap, res.Statuses)

	if !latest.IsZero() {
		res.ObservedSkew = latest.Sub(earliest)
		res.HasSkew = true
	}

	enforceSkew := cfg.EnableSkewCheck && (!cfg.IgnoreSkewDuringWarmup || res.WarmupSatisfied)
	skewOK := !enforceSkew || !res.HasSkew || res.ObservedSkew <= cfg.MaximumAllowedSkew

	res.AntiRepaintSafe = !cfg.EnableAntiRepaint ||
		(!latest.IsZero() && snap.Timestamp().Sub(latest) >= cfg.AntiRepaintGuard)

	res.RequiredAligned = requiredAligned(cfg, total)

	if !res.WarmupSatisfied {
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonWarmup,
			Detail: fmt.Sprintf("warmup(%s)", strings.Join(shortfalls, ",")),
		})
	}
	if res.AlignedTimeframes < res.RequiredAligned {
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonAligned,
			Detail: fmt.Sprintf("aligned=%d required=%d", res.AlignedTimeframes, res.RequiredAligned),
		})
	}
	if !skewOK {
		res.Reasons = append(res.Reasons, Reason{Code: ReasonSkew})
	}
	if !res.AntiRepaintSafe {
		res.Reasons = append(res.Reasons, Reason{Code: ReasonAntiRepaint})
	}

	res.IsAligned = res.WarmupSatisfied &&
		res.AlignedTimeframes >= res.RequiredAligned &&
		skewOK &&
		res.AntiRepaintSafe

	if !res.IsAligned {
		e.emitBlocked(cfg, res)
	}
	return res
}

// requiredAligned is clamp(max(MinimumAligned, ceil(ratio*total)), 1, total).
func requiredAligned(cfg *config.AlignmentConfig, total int) int {
	byRatio := int(math.Ceil(cfg.RequiredAlignmentRatio * float64(total)))
	return max(1, min(total, max(cfg.MinimumAlignedTimeframes, byRatio)))
}

func (e *Evaluator) emitBlocked(cfg *config.AlignmentConfig, res Result) {
	if !e.blockedLimiter.Allow(e.now()) {
		return
	}
	snap := res.Snapshot
	entries := diagnostics.Entries{
		diagnostics.String("symbol", snap.Symbol()),
		diagnostics.Time("snapshot_time", snap.Timestamp()),
		diagnostics.Int("aligned", res.AlignedTimeframes),
		diagnostics.Int("required", res.RequiredAligned),
		diagnostics.Int("total", res.TotalTimeframes),
		diagnostics.Bool("warmup_satisfied", res.WarmupSatisfied),
		diagnostics.Duration("max_skew", cfg.MaximumAllowedSkew),
	}
	if res.HasSkew {
		entries = entries.Add(diagnostics.Duration("observed_skew", res.ObservedSkew))
	}
	entries = entries.Add(
		diagnostics.Duration("anti_repaint_guard", cfg.AntiRepaintGuard),
		diagnostics.Bool("anti_repaint_safe", res.AntiRepaintSafe),
		diagnostics.Bool("ignore_skew_during_warmup", cfg.IgnoreSkewDuringWarmup),
		diagnostics.String("reasons", res.Reason()),
	)
	for _, st := range res.Statuses {
		prefix := "tf." + string(st.Timeframe)
		entries = entries.Add(
			diagnostics.Int(prefix+".bars", st.AvailableBars),
			diagnostics.Bool(prefix+".has_data", st.HasSufficientData),
		)
		if st.HasSufficientData {
			entries = entries.Add(diagnostics.Time(prefix+".close", st.LatestClose))
		}
	}

	diagnostics.Emit(e.sink, diagnostics.Event{
		Component: component,
		Name:      "AlignmentDiagnostics",
		Message:   "Multi-timeframe alignment blocked",
		Level:     zapcore.InfoLevel,
		Entries:   entries,
	})
}

func (e *Evaluator) emitWarmupProgress(snap *market.Snapshot, statuses []TimeframeStatus) {
	if !e.warmupLimiter.Allow(e.now()) {
		return
	}
	sorted := append([]TimeframeStatus(nil), statuses...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timeframe < sorted[j].Timeframe })

	parts := make([]string, len(sorted))
	entries := diagnostics.Entries{
		diagnostics.String("symbol", snap.Symbol()),
		diagnostics.Time("snapshot_time", snap.Timestamp()),
	}
	for i, st := range sorted {
		required := max(0, st.WarmupRequired)
		parts[i] = fmt.Sprintf("%s=%d/%d", st.Timeframe, st.AvailableBars, required)
		entries = entries.Add(
			diagnostics.Int("warmup."+string(st.Timeframe)+".available", st.AvailableBars),
			diagnostics.Int("warmup."+string(st.Timeframe)+".required", required),
		)
	}

	diagnostics.Emit(e.sink, diagnostics.Event{
		Component: component,
		Name:      "WarmupProgress",
		Message:   "WARMUP_PROGRESS: " + strings.Join(parts, ", "),
		Level:     zapcore.InfoLevel,
		Entries:   entries,
	})
}
