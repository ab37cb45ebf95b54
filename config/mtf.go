package config

import (
	"math"
	"strings"
	"time"

	"mtfcollector/pkg/market"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// MTFConfig groups the multi-timeframe buffer, alignment and confirmation settings.
// A normalized MTFConfig is treated as immutable; hot-reload builds a new one.
type MTFConfig struct {
	Buffer       BufferConfig       `mapstructure:"buffer" yaml:"buffer"`
	Alignment    AlignmentConfig    `mapstructure:"alignment" yaml:"alignment"`
	Confirmation ConfirmationConfig `mapstructure:"confirmation" yaml:"confirmation"`
}

// BufferConfig controls the per-symbol ring buffers and the ingestion gate.
type BufferConfig struct {
	Timeframes        []market.Timeframe       `mapstructure:"timeframes" yaml:"timeframes"`
	DefaultCapacity   int                      `mapstructure:"default_capacity" yaml:"default_capacity"`
	Capacities        map[market.Timeframe]int `mapstructure:"capacities" yaml:"capacities"`
	RequireClosedBars bool                     `mapstructure:"require_closed_bars" yaml:"require_closed_bars"`
	AntiRepaintGuard  time.Duration            `mapstructure:"anti_repaint_guard" yaml:"anti_repaint_guard"`
}

// AlignmentConfig controls warm-up, skew and anti-repaint evaluation.
type AlignmentConfig struct {
	MinimumAlignedTimeframes int                      `mapstructure:"minimum_aligned_timeframes" yaml:"minimum_aligned_timeframes"`
	MinimumBarsPerTimeframe  int                      `mapstructure:"minimum_bars_per_timeframe" yaml:"minimum_bars_per_timeframe"`
	MaximumAllowedSkew       time.Duration            `mapstructure:"maximum_allowed_skew" yaml:"maximum_allowed_skew"`
	AntiRepaintGuard         time.Duration            `mapstructure:"anti_repaint_guard" yaml:"anti_repaint_guard"`
	WarmupBarsRequired       int                      `mapstructure:"warmup_bars_required" yaml:"warmup_bars_required"`
	WarmupBarsPerTimeframe   map[market.Timeframe]int `mapstructure:"warmup_bars_per_timeframe" yaml:"warmup_bars_per_timeframe"`
	RequiredAlignmentRatio   float64                  `mapstructure:"required_alignment_ratio" yaml:"required_alignment_ratio"`
	EnableAntiRepaint        bool                     `mapstructure:"enable_anti_repaint" yaml:"enable_anti_repaint"`
	EnableSkewCheck          bool                     `mapstructure:"enable_skew_check" yaml:"enable_skew_check"`
	IgnoreSkewDuringWarmup   bool                     `mapstructure:"ignore_skew_during_warmup" yaml:"ignore_skew_during_warmup"`
}

// AnchorConfig names the slow, medium and fast timeframes the scorer reads.
type AnchorConfig struct {
	Slow   market.Timeframe `mapstructure:"slow" yaml:"slow"`
	Medium market.Timeframe `mapstructure:"medium" yaml:"medium"`
	Fast   market.Timeframe `mapstructure:"fast" yaml:"fast"`
}

// ConfirmationConfig controls the multi-timeframe confirmation scorer.
// Medium and Fast fields refer to the anchors (H1 and M15 by default).
type ConfirmationConfig struct {
	MinimumConfirmationThreshold float64            `mapstructure:"minimum_confirmation_threshold" yaml:"minimum_confirmation_threshold"`
	Weights                      map[string]float64 `mapstructure:"weights" yaml:"weights"`
	RequiredTimeframeAlignment   int                `mapstructure:"required_timeframe_alignment" yaml:"required_timeframe_alignment"`
	Anchors                      AnchorConfig       `mapstructure:"anchors" yaml:"anchors"`
	IndicatorMaxAge              time.Duration      `mapstructure:"indicator_max_age" yaml:"indicator_max_age"`

	TrendFastEMA            int     `mapstructure:"trend_fast_ema" yaml:"trend_fast_ema"`
	TrendSlowEMA            int     `mapstructure:"trend_slow_ema" yaml:"trend_slow_ema"`
	TrendAlignmentTolerance float64 `mapstructure:"trend_alignment_tolerance" yaml:"trend_alignment_tolerance"`

	KeyLevelLookback  int     `mapstructure:"key_level_lookback" yaml:"key_level_lookback"`
	KeyLevelTolerance float64 `mapstructure:"key_level_tolerance" yaml:"key_level_tolerance"`
	PivotRadius       int     `mapstructure:"pivot_radius" yaml:"pivot_radius"`

	VolumeSMAPeriodMedium       int     `mapstructure:"volume_sma_period_medium" yaml:"volume_sma_period_medium"`
	VolumeSMAPeriodFast         int     `mapstructure:"volume_sma_period_fast" yaml:"volume_sma_period_fast"`
	VolumeSpikeMultiplierMedium float64 `mapstructure:"volume_spike_multiplier_medium" yaml:"volume_spike_multiplier_medium"`
	VolumeSpikeMultiplierFast   float64 `mapstructure:"volume_spike_multiplier_fast" yaml:"volume_spike_multiplier_fast"`
	VolumeTrendMinimumSlope     float64 `mapstructure:"volume_trend_minimum_slope" yaml:"volume_trend_minimum_slope"`

	MomentumRSIPeriod           int     `mapstructure:"momentum_rsi_period" yaml:"momentum_rsi_period"`
	MomentumATRPeriod           int     `mapstructure:"momentum_atr_period" yaml:"momentum_atr_period"`
	MomentumLookbackBars        int     `mapstructure:"momentum_lookback_bars" yaml:"momentum_lookback_bars"`
	MomentumPriceSlopeThreshold float64 `mapstructure:"momentum_price_slope_threshold" yaml:"momentum_price_slope_threshold"`
}

// Weight keys accepted in ConfirmationConfig.Weights.
const (
	WeightTrend    = "trend_alignment"
	WeightKeyLevel = "key_level"
	WeightVolume   = "volume"
	WeightMomentum = "momentum"
)

// Weights is a normalized weight profile; the fields sum to 1.
type Weights struct {
	Trend    float64
	KeyLevel float64
	Volume   float64
	Momentum float64
}

var defaultWeights = map[string]float64{
	WeightTrend:    0.35,
	WeightKeyLevel: 0.30,
	WeightVolume:   0.20,
	WeightMomentum: 0.15,
}

// DefaultMTFConfig returns the documented defaults, already normalized.
func DefaultMTFConfig() MTFConfig {
	return MTFConfig{
		Buffer:       DefaultBufferConfig(),
		Alignment:    DefaultAlignmentConfig(),
		Confirmation: DefaultConfirmationConfig(),
	}.Normalize()
}

func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		Timeframes:        market.DefaultTimeframes(),
		DefaultCapacity:   256,
		RequireClosedBars: true,
		AntiRepaintGuard:  time.Second,
	}
}

func DefaultAlignmentConfig() AlignmentConfig {
	return AlignmentConfig{
		MinimumAlignedTimeframes: 3,
		MinimumBarsPerTimeframe:  1,
		MaximumAllowedSkew:       4 * time.Hour,
		AntiRepaintGuard:         time.Second,
		WarmupBarsRequired:       12,
		WarmupBarsPerTimeframe: map[market.Timeframe]int{
			market.H4:  8,
			market.H1:  20,
			market.M15: 48,
		},
		RequiredAlignmentRatio: 1.0,
		EnableAntiRepaint:      true,
		EnableSkewCheck:        true,
		IgnoreSkewDuringWarmup: true,
	}
}

func DefaultConfirmationConfig() ConfirmationConfig {
	return ConfirmationConfig{
		MinimumConfirmationThreshold: 0.7,
		Weights:                      copyWeights(defaultWeights),
		RequiredTimeframeAlignment:   2,
		Anchors:                      AnchorConfig{Slow: market.H4, Medium: market.H1, Fast: market.M15},
		IndicatorMaxAge:              2 * time.Second,
		TrendFastEMA:                 21,
		TrendSlowEMA:                 55,
		TrendAlignmentTolerance:      0.0002,
		KeyLevelLookback:             60,
		KeyLevelTolerance:            0.0010,
		PivotRadius:                  3,
		VolumeSMAPeriodMedium:        20,
		VolumeSMAPeriodFast:          20,
		VolumeSpikeMultiplierMedium:  1.8,
		VolumeSpikeMultiplierFast:    2.0,
		VolumeTrendMinimumSlope:      0.05,
		MomentumRSIPeriod:            14,
		MomentumATRPeriod:            14,
		MomentumLookbackBars:         5,
		MomentumPriceSlopeThreshold:  0.0005,
	}
}

// Normalize returns a clamped copy of every section.
func (c MTFConfig) Normalize() MTFConfig {
	return MTFConfig{
		Buffer:       c.Buffer.Normalize(),
		Alignment:    c.Alignment.Normalize(),
		Confirmation: c.Confirmation.Normalize(),
	}
}

// YAML renders the configuration, used to log the effective settings.
func (c MTFConfig) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Normalize canonicalizes timeframe names and replaces out-of-range values.
func (c BufferConfig) Normalize() BufferConfig {
	out := c
	out.Timeframes = normalizeTimeframes(c.Timeframes)
	if len(out.Timeframes) == 0 {
		out.Timeframes = market.DefaultTimeframes()
	}
	if out.DefaultCapacity <= 0 {
		out.DefaultCapacity = 128
	}
	if out.AntiRepaintGuard <= 0 {
		out.AntiRepaintGuard = time.Second
	}
	out.Capacities = normalizeTimeframeInts(c.Capacities)
	return out
}

// Capacity resolves the ring buffer size for tf.
func (c BufferConfig) Capacity(tf market.Timeframe) int {
	if n, ok := c.Capacities[tf]; ok && n > 0 {
		return n
	}
	return c.DefaultCapacity
}

// Normalize mirrors the synchronizer bounds: non-positive counts become 1,
// a non-positive skew becomes 2h and an out-of-range ratio becomes 1.
func (c AlignmentConfig) Normalize() AlignmentConfig {
	out := c
	if out.MinimumAlignedTimeframes <= 0 {
		out.MinimumAlignedTimeframes = 1
	}
	if out.MinimumBarsPerTimeframe <= 0 {
		out.MinimumBarsPerTimeframe = 1
	}
	if out.MaximumAllowedSkew <= 0 {
		out.MaximumAllowedSkew = 2 * time.Hour
	}
	if out.AntiRepaintGuard <= 0 {
		out.AntiRepaintGuard = time.Second
	}
	if out.WarmupBarsRequired < 0 {
		out.WarmupBarsRequired = 0
	}
	if out.RequiredAlignmentRatio <= 0 || out.RequiredAlignmentRatio > 1 || math.IsNaN(out.RequiredAlignmentRatio) {
		out.RequiredAlignmentRatio = 1.0
	}
	out.WarmupBarsPerTimeframe = normalizeTimeframeInts(c.WarmupBarsPerTimeframe)
	return out
}

// WarmupRequirement returns the per-timeframe warm-up count, falling back to the global default.
func (c AlignmentConfig) WarmupRequirement(tf market.Timeframe) int {
	if n, ok := c.WarmupBarsPerTimeframe[tf]; ok {
		return n
	}
	return c.WarmupBarsRequired
}

// Normalize clamps periods and tolerances and rebuilds the weight map so it sums to 1.
func (c ConfirmationConfig) Normalize() ConfirmationConfig {
	out := c
	out.MinimumConfirmationThreshold = clamp(out.MinimumConfirmationThreshold, 0, 1)
	out.RequiredTimeframeAlignment = max(1, out.RequiredTimeframeAlignment)
	out.Anchors = normalizeAnchors(out.Anchors)
	if out.IndicatorMaxAge <= 0 {
		out.IndicatorMaxAge = 2 * time.Second
	}
	out.TrendFastEMA = max(2, out.TrendFastEMA)
	out.TrendSlowEMA = max(out.TrendFastEMA+1, out.TrendSlowEMA)
	out.TrendAlignmentTolerance = math.Max(0, out.TrendAlignmentTolerance)
	out.KeyLevelLookback = max(10, out.KeyLevelLookback)
	out.KeyLevelTolerance = math.Max(0.0001, out.KeyLevelTolerance)
	out.PivotRadius = min(max(out.PivotRadius, 2), 10)
	out.VolumeSMAPeriodMedium = max(5, out.VolumeSMAPeriodMedium)
	out.VolumeSMAPeriodFast = max(5, out.VolumeSMAPeriodFast)
	out.VolumeSpikeMultiplierMedium = math.Max(0.5, out.VolumeSpikeMultiplierMedium)
	out.VolumeSpikeMultiplierFast = math.Max(0.5, out.VolumeSpikeMultiplierFast)
	out.VolumeTrendMinimumSlope = math.Max(0, out.VolumeTrendMinimumSlope)
	out.MomentumRSIPeriod = max(5, out.MomentumRSIPeriod)
	out.MomentumATRPeriod = max(5, out.MomentumATRPeriod)
	out.MomentumLookbackBars = max(2, out.MomentumLookbackBars)
	out.MomentumPriceSlopeThreshold = math.Max(0.00005, out.MomentumPriceSlopeThreshold)
	out.Weights = normalizeWeights(c.Weights)
	return out
}

// WeightProfile reads the normalized weights.
func (c ConfirmationConfig) WeightProfile() Weights {
	w := normalizeWeights(c.Weights)
	return Weights{
		Trend:    w[WeightTrend],
		KeyLevel: w[WeightKeyLevel],
		Volume:   w[WeightVolume],
		Momentum: w[WeightMomentum],
	}
}

// normalizeWeights keeps the four known keys. Missing, non-positive or
// non-finite entries take the default before the set is scaled to sum to 1.
func normalizeWeights(in map[string]float64) map[string]float64 {
	picked := make(map[string]float64, len(defaultWeights))
	var total float64
	for key, def := range defaultWeights {
		v, ok := lookupWeight(in, key)
		if !ok || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			v = def
		}
		picked[key] = v
		total += v
	}
	for key := range picked {
		picked[key] /= total
	}
	return picked
}

func lookupWeight(in map[string]float64, key string) (float64, bool) {
	if v, ok := in[key]; ok {
		return v, true
	}
	for k, v := range in {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return 0, false
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func normalizeAnchors(a AnchorConfig) AnchorConfig {
	def := AnchorConfig{Slow: market.H4, Medium: market.H1, Fast: market.M15}
	slow, err1 := market.ParseTimeframe(string(a.Slow))
	medium, err2 := market.ParseTimeframe(string(a.Medium))
	fast, err3 := market.ParseTimeframe(string(a.Fast))
	if err1 != nil || err2 != nil || err3 != nil || slow == medium || medium == fast || slow == fast {
		return def
	}
	return AnchorConfig{Slow: slow, Medium: medium, Fast: fast}
}

// normalizeTimeframes parses names, drops unknown entries and duplicates, keeps order.
func normalizeTimeframes(in []market.Timeframe) []market.Timeframe {
	seen := make(map[market.Timeframe]bool, len(in))
	out := make([]market.Timeframe, 0, len(in))
	for _, raw := range in {
		tf, err := market.ParseTimeframe(string(raw))
		if err != nil || seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out
}

// normalizeTimeframeInts canonicalizes keys and drops non-positive values.
// Returns nil when nothing survives.
func normalizeTimeframeInts(in map[market.Timeframe]int) map[market.Timeframe]int {
	out := make(map[market.Timeframe]int, len(in))
	for raw, n := range in {
		tf, err := market.ParseTimeframe(string(raw))
		if err != nil || n <= 0 {
			continue
		}
		out[tf] = n
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// setMTFDefaults registers DefaultMTFConfig under the "mtf" key so that a partial
// config file only overrides what it names. Map entries merge with the defaults.
func setMTFDefaults(v *viper.Viper) {
	d := MTFConfig{
		Buffer:       DefaultBufferConfig(),
		Alignment:    DefaultAlignmentConfig(),
		Confirmation: DefaultConfirmationConfig(),
	}

	tfs := make([]string, len(d.Buffer.Timeframes))
	for i, tf := range d.Buffer.Timeframes {
		tfs[i] = string(tf)
	}
	v.SetDefault("mtf.buffer.timeframes", tfs)
	v.SetDefault("mtf.buffer.default_capacity", d.Buffer.DefaultCapacity)
	v.SetDefault("mtf.buffer.require_closed_bars", d.Buffer.RequireClosedBars)
	v.SetDefault("mtf.buffer.anti_repaint_guard", d.Buffer.AntiRepaintGuard)

	a := d.Alignment
	v.SetDefault("mtf.alignment.minimum_aligned_timeframes", a.MinimumAlignedTimeframes)
	v.SetDefault("mtf.alignment.minimum_bars_per_timeframe", a.MinimumBarsPerTimeframe)
	v.SetDefault("mtf.alignment.maximum_allowed_skew", a.MaximumAllowedSkew)
	v.SetDefault("mtf.alignment.anti_repaint_guard", a.AntiRepaintGuard)
	v.SetDefault("mtf.alignment.warmup_bars_required", a.WarmupBarsRequired)
	for tf, n := range a.WarmupBarsPerTimeframe {
		v.SetDefault("mtf.alignment.warmup_bars_per_timeframe."+strings.ToLower(string(tf)), n)
	}
	v.SetDefault("mtf.alignment.required_alignment_ratio", a.RequiredAlignmentRatio)
	v.SetDefault("mtf.alignment.enable_anti_repaint", a.EnableAntiRepaint)
	v.SetDefault("mtf.alignment.enable_skew_check", a.EnableSkewCheck)
	v.SetDefault("mtf.alignment.ignore_skew_during_warmup", a.IgnoreSkewDuringWarmup)

	c := d.Confirmation
	v.SetDefault("mtf.confirmation.minimum_confirmation_threshold", c.MinimumConfirmationThreshold)
	for k, w := range c.Weights {
		v.SetDefault("mtf.confirmation.weights."+k, w)
	}
	v.SetDefault("mtf.confirmation.required_timeframe_alignment", c.RequiredTimeframeAlignment)
	v.SetDefault("mtf.confirmation.anchors.slow", string(c.Anchors.Slow))
	v.SetDefault("mtf.confirmation.anchors.medium", string(c.Anchors.Medium))
	v.SetDefault("mtf.confirmation.anchors.fast", string(c.Anchors.Fast))
	v.SetDefault("mtf.confirmation.indicator_max_age", c.IndicatorMaxAge)
	v.SetDefault("mtf.confirmation.trend_fast_ema", c.TrendFastEMA)
	v.SetDefault("mtf.confirmation.trend_slow_ema", c.TrendSlowEMA)
	v.SetDefault("mtf.confirmation.trend_alignment_tolerance", c.TrendAlignmentTolerance)
	v.SetDefault("mtf.confirmation.key_level_lookback", c.KeyLevelLookback)
	v.SetDefault("mtf.confirmation.key_level_tolerance", c.KeyLevelTolerance)
	v.SetDefault("mtf.confirmation.pivot_radius", c.PivotRadius)
	v.SetDefault("mtf.confirmation.volume_sma_period_medium", c.VolumeSMAPeriodMedium)
	v.SetDefault("mtf.confirmation.volume_sma_period_fast", c.VolumeSMAPeriodFast)
	v.SetDefault("mtf.confirmation.volume_spike_multiplier_medium", c.VolumeSpikeMultiplierMedium)
	v.SetDefault("mtf.confirmation.volume_spike_multiplier_fast", c.VolumeSpikeMultiplierFast)
	v.SetDefault("mtf.confirmation.volume_trend_minimum_slope", c.VolumeTrendMinimumSlope)
	v.SetDefault("mtf.confirmation.momentum_rsi_period", c.MomentumRSIPeriod)
	v.SetDefault("mtf.confirmation.momentum_atr_period", c.MomentumATRPeriod)
	v.SetDefault("mtf.confirmation.momentum_lookback_bars", c.MomentumLookbackBars)
	v.SetDefault("mtf.confirmation.momentum_price_slope_threshold", c.MomentumPriceSlopeThreshold)
}
