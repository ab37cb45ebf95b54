package config

import (
	"bytes"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"mtfcollector/pkg/market"

	"github.com/spf13/viper"
)

func weightSum(w Weights) float64 {
	return w.Trend + w.KeyLevel + w.Volume + w.Momentum
}

// go test -v --run TestWeightNormalization
func TestWeightNormalization(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]float64
	}{
		{"nil", nil},
		{"empty", map[string]float64{}},
		{"defaults", map[string]float64{WeightTrend: 0.35, WeightKeyLevel: 0.30, WeightVolume: 0.20, WeightMomentum: 0.15}},
		{"unnormalized", map[string]float64{WeightTrend: 7, WeightKeyLevel: 6, WeightVolume: 4, WeightMomentum: 3}},
		{"non-positive", map[string]float64{WeightTrend: -1, WeightKeyLevel: 0, WeightVolume: 2}},
		{"unknown keys", map[string]float64{"noise": 10, "TREND_ALIGNMENT": 1}},
		{"nan", map[string]float64{WeightVolume: math.NaN(), WeightMomentum: math.Inf(1)}},
	}
	for _, tt := range tests {
		cfg := ConfirmationConfig{Weights: tt.in}.Normalize()
		w := cfg.WeightProfile()
		if math.Abs(weightSum(w)-1) > 1e-12 {
			t.Errorf("%s: weights sum to %v, want 1", tt.name, weightSum(w))
		}
		if w.Trend <= 0 || w.KeyLevel <= 0 || w.Volume <= 0 || w.Momentum <= 0 {
			t.Errorf("%s: expected all weights positive, got %+v", tt.name, w)
		}
		if len(cfg.Weights) != 4 {
			t.Errorf("%s: expected 4 normalized keys, got %v", tt.name, cfg.Weights)
		}
	}

	w := ConfirmationConfig{Weights: map[string]float64{WeightTrend: 1, WeightKeyLevel: 1, WeightVolume: 1, WeightMomentum: 1}}.Normalize().WeightProfile()
	if math.Abs(w.Trend-0.25) > 1e-12 {
		t.Errorf("expected equal weights of 0.25, got %+v", w)
	}
}

// go test -v --run TestConfirmationNormalizeClamps
func TestConfirmationNormalizeClamps(t *testing.T) {
	cfg := ConfirmationConfig{
		MinimumConfirmationThreshold: 3,
		TrendFastEMA:                 30,
		TrendSlowEMA:                 10,
		PivotRadius:                  50,
		KeyLevelLookback:             1,
		Anchors:                      AnchorConfig{Slow: "h1", Medium: "h1", Fast: "m15"},
	}.Normalize()

	if cfg.MinimumConfirmationThreshold != 1 {
		t.Errorf("threshold not clamped: %v", cfg.MinimumConfirmationThreshold)
	}
	if cfg.TrendSlowEMA != 31 {
		t.Errorf("slow EMA should exceed fast EMA, got fast=%d slow=%d", cfg.TrendFastEMA, cfg.TrendSlowEMA)
	}
	if cfg.PivotRadius != 10 {
		t.Errorf("pivot radius not clamped: %d", cfg.PivotRadius)
	}
	if cfg.KeyLevelLookback != 10 {
		t.Errorf("lookback not clamped: %d", cfg.KeyLevelLookback)
	}
	if cfg.Anchors != (AnchorConfig{Slow: market.H4, Medium: market.H1, Fast: market.M15}) {
		t.Errorf("duplicate anchors should fall back to defaults, got %+v", cfg.Anchors)
	}
	if cfg.IndicatorMaxAge != 2*time.Second {
		t.Errorf("unexpected indicator max age: %s", cfg.IndicatorMaxAge)
	}
}

// go test -v --run TestAlignmentNormalize
func TestAlignmentNormalize(t *testing.T) {
	cfg := AlignmentConfig{
		RequiredAlignmentRatio: 1.5,
		WarmupBarsRequired:     -3,
		WarmupBarsPerTimeframe: map[market.Timeframe]int{"h4": 8, "m15": 0, "bogus": 5},
	}.Normalize()

	if cfg.RequiredAlignmentRatio != 1 {
		t.Errorf("ratio not reset: %v", cfg.RequiredAlignmentRatio)
	}
	if cfg.MinimumAlignedTimeframes != 1 || cfg.MinimumBarsPerTimeframe != 1 {
		t.Errorf("counts not clamped: %+v", cfg)
	}
	if cfg.MaximumAllowedSkew != 2*time.Hour {
		t.Errorf("skew not defaulted: %s", cfg.MaximumAllowedSkew)
	}
	if got := cfg.WarmupRequirement(market.H4); got != 8 {
		t.Errorf("H4 warmup = %d, want 8", got)
	}
	if got := cfg.WarmupRequirement(market.M15); got != 0 {
		t.Errorf("M15 warmup should fall back to global 0, got %d", got)
	}
	if len(cfg.WarmupBarsPerTimeframe) != 1 {
		t.Errorf("unexpected warmup map: %v", cfg.WarmupBarsPerTimeframe)
	}
}

// go test -v --run TestDecodeYAML
func TestDecodeYAML(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	raw := []byte(`
mtf:
  buffer:
    timeframes: ["15m", "1h", "H4", "1h"]
    capacities:
      m15: 512
  alignment:
    maximum_allowed_skew: 6h
    warmup_bars_per_timeframe:
      h4: 10
  confirmation:
    minimum_confirmation_threshold: 0.65
    weights:
      momentum: 0.5
`)
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg, err := decode(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := []market.Timeframe{market.M15, market.H1, market.H4}
	if len(cfg.MTF.Buffer.Timeframes) != len(want) {
		t.Fatalf("timeframes = %v, want %v", cfg.MTF.Buffer.Timeframes, want)
	}
	for i := range want {
		if cfg.MTF.Buffer.Timeframes[i] != want[i] {
			t.Fatalf("timeframes = %v, want %v", cfg.MTF.Buffer.Timeframes, want)
		}
	}
	if got := cfg.MTF.Buffer.Capacity(market.M15); got != 512 {
		t.Errorf("M15 capacity = %d, want 512", got)
	}
	if got := cfg.MTF.Buffer.Capacity(market.H1); got != 256 {
		t.Errorf("H1 capacity = %d, want default 256", got)
	}
	if !cfg.MTF.Buffer.RequireClosedBars || !cfg.MTF.Alignment.EnableAntiRepaint {
		t.Error("boolean defaults were lost")
	}
	if cfg.MTF.Alignment.MaximumAllowedSkew != 6*time.Hour {
		t.Errorf("skew = %s", cfg.MTF.Alignment.MaximumAllowedSkew)
	}
	if got := cfg.MTF.Alignment.WarmupRequirement(market.H4); got != 10 {
		t.Errorf("H4 warmup = %d, want 10", got)
	}
	if cfg.MTF.Confirmation.MinimumConfirmationThreshold != 0.65 {
		t.Errorf("threshold = %v", cfg.MTF.Confirmation.MinimumConfirmationThreshold)
	}
	w := cfg.MTF.Confirmation.WeightProfile()
	if math.Abs(weightSum(w)-1) > 1e-12 || w.Momentum <= w.Volume {
		t.Errorf("unexpected weights %+v", w)
	}

	out, err := cfg.MTF.YAML()
	if err != nil || len(out) == 0 {
		t.Fatalf("yaml render failed: %v", err)
	}
}

// go test -v --run TestHolderSwap
func TestHolderSwap(t *testing.T) {
	h := NewHolder(DefaultMTFConfig())
	var notified atomic.Int32
	h.Subscribe(func(cfg MTFConfig) {
		if cfg.Alignment.MinimumAlignedTimeframes != 2 {
			t.Errorf("subscriber saw %d", cfg.Alignment.MinimumAlignedTimeframes)
		}
		notified.Add(1)
	})

	next := DefaultMTFConfig()
	next.Alignment.MinimumAlignedTimeframes = 2
	h.Store(next)

	if notified.Load() != 1 {
		t.Fatalf("expected one notification, got %d", notified.Load())
	}
	if h.Load().Alignment.MinimumAlignedTimeframes != 2 {
		t.Fatal("holder did not publish new config")
	}
}

// go test -v --run TestPostgresDSN
func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "pw",
		DBName:   "mtf",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}
	want := "host=localhost port=5432 user=postgres password=pw dbname=mtf sslmode=disable TimeZone=UTC"
	if got := cfg.DSN("dev"); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	if got := cfg.AdminDSN(); got != "host=localhost port=5432 user=postgres password=pw dbname=postgres sslmode=disable TimeZone=UTC" {
		t.Errorf("AdminDSN = %q", got)
	}
}
