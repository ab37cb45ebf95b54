package alignment

import (
	"strings"
	"testing"
	"time"

	"mtfcollector/config"
	"mtfcollector/internal/diagnostics"
	"mtfcollector/pkg/market"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	stack = []market.Timeframe{market.H4, market.H1, market.M15}
	noon  = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
)

// series returns n bars of tf whose last bar opens at lastOpen.
func series(tf market.Timeframe, lastOpen time.Time, n int) []market.Bar {
	bars := make([]market.Bar, n)
	for i := 0; i < n; i++ {
		open := lastOpen.Add(-time.Duration(n-1-i) * tf.Duration())
		bars[i] = market.Bar{OpenTime: open, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1, Timeframe: tf}
	}
	return bars
}

// syncedSnapshot closes every timeframe at noon and queries at noon+5s.
func syncedSnapshot(h4, h1, m15 int) *market.Snapshot {
	return market.NewSnapshot("EURUSD", noon.Add(5*time.Second), stack, map[market.Timeframe][]market.Bar{
		market.H4:  series(market.H4, noon.Add(-4*time.Hour), h4),
		market.H1:  series(market.H1, noon.Add(-time.Hour), h1),
		market.M15: series(market.M15, noon.Add(-15*time.Minute), m15),
	})
}

// go test -v --run TestAlignedWhenWarmedUpAndSynchronized
func TestAlignedWhenWarmedUpAndSynchronized(t *testing.T) {
	ev := NewEvaluator(config.DefaultAlignmentConfig())
	res := ev.Evaluate(syncedSnapshot(8, 20, 48))

	if !res.IsAligned {
		t.Fatalf("expected aligned, reasons: %s", res.Reason())
	}
	if res.AlignedTimeframes != 3 || res.RequiredAligned != 3 {
		t.Errorf("aligned=%d required=%d", res.AlignedTimeframes, res.RequiredAligned)
	}
	if !res.AntiRepaintSafe || !res.WarmupSatisfied {
		t.Errorf("unexpected flags: %+v", res)
	}
	if !res.HasSkew || res.ObservedSkew != 0 {
		t.Errorf("expected zero skew, got %s (has=%v)", res.ObservedSkew, res.HasSkew)
	}
	if len(res.Reasons) != 0 {
		t.Errorf("expected no reasons, got %v", res.Reasons)
	}
	st, ok := res.Status(market.H4)
	if !ok || st.AvailableBars != 8 || !st.LatestClose.Equal(noon) {
		t.Errorf("unexpected H4 status %+v", st)
	}
}

// go test -v --run TestWarmupShortfallIsReported
func TestWarmupShortfallIsReported(t *testing.T) {
	ev := NewEvaluator(config.DefaultAlignmentConfig())
	res := ev.Evaluate(syncedSnapshot(5, 20, 48))

	if res.IsAligned {
		t.Fatal("expected not aligned")
	}
	if res.WarmupSatisfied {
		t.Fatal("warm-up should not be satisfied")
	}
	if !res.Blocked(ReasonWarmup) {
		t.Fatalf("expected warmup reason, got %q", res.Reason())
	}
	if !strings.Contains(res.Reason(), "H4:5/8") {
		t.Errorf("reason %q should cite H4:5/8", res.Reason())
	}
	if strings.Contains(res.Reason(), "H1:") || strings.Contains(res.Reason(), "M15:") {
		t.Errorf("only H4 is short, got %q", res.Reason())
	}
}

// go test -v --run TestExcessiveSkewBlocks
func TestExcessiveSkewBlocks(t *testing.T) {
	cfg := config.DefaultAlignmentConfig()
	cfg.MaximumAllowedSkew = 4 * time.Hour
	ev := NewEvaluator(cfg)

	snap := market.NewSnapshot("EURUSD", noon.Add(5*time.Second), stack, map[market.Timeframe][]market.Bar{
		market.H4:  series(market.H4, noon.Add(-10*time.Hour), 8), // closes 06:00
		market.H1:  series(market.H1, noon.Add(-time.Hour), 20),
		market.M15: series(market.M15, noon.Add(-15*time.Minute), 48),
	})
	res := ev.Evaluate(snap)

	if res.IsAligned {
		t.Fatal("expected not aligned")
	}
	if res.ObservedSkew != 6*time.Hour {
		t.Errorf("observed skew = %s, want 6h", res.ObservedSkew)
	}
	if !strings.Contains(res.Reason(), "skew") {
		t.Errorf("reason %q should mention skew", res.Reason())
	}
}

// go test -v --run TestSkewSuppressedDuringWarmup
func TestSkewSuppressedDuringWarmup(t *testing.T) {
	snap := market.NewSnapshot("EURUSD", noon.Add(5*time.Second), stack, map[market.Timeframe][]market.Bar{
		market.H4:  series(market.H4, noon.Add(-10*time.Hour), 5),
		market.H1:  series(market.H1, noon.Add(-time.Hour), 20),
		market.M15: series(market.M15, noon.Add(-15*time.Minute), 48),
	})

	cfg := config.DefaultAlignmentConfig()
	res := NewEvaluator(cfg).Evaluate(snap)
	if res.Blocked(ReasonSkew) {
		t.Errorf("skew should be ignored during warm-up, got %q", res.Reason())
	}

	cfg.IgnoreSkewDuringWarmup = false
	res = NewEvaluator(cfg).Evaluate(snap)
	if !res.Blocked(ReasonSkew) || !res.Blocked(ReasonWarmup) {
		t.Errorf("expected warmup and skew, got %q", res.Reason())
	}
}

// go test -v --run TestAntiRepaint
func TestAntiRepaint(t *testing.T) {
	ev := NewEvaluator(config.DefaultAlignmentConfig())

	fresh := market.NewSnapshot("EURUSD", noon.Add(500*time.Millisecond), stack, map[market.Timeframe][]market.Bar{
		market.H4:  series(market.H4, noon.Add(-4*time.Hour), 8),
		market.H1:  series(market.H1, noon.Add(-time.Hour), 20),
		market.M15: series(market.M15, noon.Add(-15*time.Minute), 48),
	})
	res := ev.Evaluate(fresh)
	if res.AntiRepaintSafe || res.IsAligned || !res.Blocked(ReasonAntiRepaint) {
		t.Fatalf("bar closed 500ms ago must not be trusted: %+v", res)
	}

	empty := market.EmptySnapshot("EURUSD", noon, stack)
	res = ev.Evaluate(empty)
	if res.AntiRepaintSafe {
		t.Error("snapshot without bars is not anti-repaint safe")
	}
	for _, code := range []ReasonCode{ReasonWarmup, ReasonAligned, ReasonAntiRepaint} {
		if !res.Blocked(code) {
			t.Errorf("expected %s in %q", code, res.Reason())
		}
	}
	if !strings.Contains(res.Reason(), "aligned=0 required=3") {
		t.Errorf("unexpected reason %q", res.Reason())
	}

	cfg := config.DefaultAlignmentConfig()
	cfg.EnableAntiRepaint = false
	res = NewEvaluator(cfg).Evaluate(fresh)
	if !res.AntiRepaintSafe || !res.IsAligned {
		t.Errorf("disabled check should pass: %q", res.Reason())
	}
}

// go test -v --run TestRequiredAlignedClamp
func TestRequiredAlignedClamp(t *testing.T) {
	snap := market.NewSnapshot("EURUSD", noon.Add(5*time.Second), stack, map[market.Timeframe][]market.Bar{
		market.H4: series(market.H4, noon.Add(-4*time.Hour), 3),
		market.H1: series(market.H1, noon.Add(-time.Hour), 3),
	})

	tests := []struct {
		name     string
		minimum  int
		ratio    float64
		required int
		aligned  bool
	}{
		{"ratio rounds up", 1, 0.5, 2, true},
		{"minimum dominates", 2, 0.1, 2, true},
		{"clamped to total", 5, 1.0, 3, false},
		{"full ratio", 1, 1.0, 3, false},
	}
	for _, tt := range tests {
		ev := NewEvaluator(config.AlignmentConfig{
			MinimumAlignedTimeframes: tt.minimum,
			RequiredAlignmentRatio:   tt.ratio,
			EnableAntiRepaint:        true,
			EnableSkewCheck:          true,
		})
		res := ev.Evaluate(snap)
		if res.RequiredAligned != tt.required {
			t.Errorf("%s: required = %d, want %d", tt.name, res.RequiredAligned, tt.required)
		}
		if res.IsAligned != tt.aligned {
			t.Errorf("%s: aligned = %v, want %v (%s)", tt.name, res.IsAligned, tt.aligned, res.Reason())
		}
	}
}

// go test -v --run TestAlignmentMonotonicity
func TestAlignmentMonotonicity(t *testing.T) {
	ev := NewEvaluator(config.DefaultAlignmentConfig())
	wasAligned := false
	for n := 1; n <= 60; n++ {
		res := ev.Evaluate(syncedSnapshot(min(n, 30), min(n, 40), n))
		if wasAligned && !res.IsAligned {
			t.Fatalf("adding bars broke alignment at n=%d: %s", n, res.Reason())
		}
		wasAligned = res.IsAligned
	}
	if !wasAligned {
		t.Fatal("expected alignment once warm-up completed")
	}
}

// go test -v --run TestDiagnosticsAreRateLimited
func TestDiagnosticsAreRateLimited(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	clock := noon
	ev := NewEvaluator(config.DefaultAlignmentConfig(),
		WithSink(diagnostics.NewZapSink(zap.New(core))),
		WithClock(func() time.Time { return clock }),
	)
	snap := syncedSnapshot(5, 20, 48)

	first := ev.Evaluate(snap)
	second := ev.Evaluate(snap)
	clock = clock.Add(6 * time.Second)
	third := ev.Evaluate(snap)

	blocked := logs.FilterField(zap.String("event", "AlignmentDiagnostics")).Len()
	if blocked != 2 {
		t.Errorf("expected 2 blocked events, got %d", blocked)
	}
	warmup := logs.FilterField(zap.String("event", "WarmupProgress")).All()
	if len(warmup) != 1 {
		t.Fatalf("expected 1 warm-up event, got %d", len(warmup))
	}
	if !strings.Contains(warmup[0].Message, "H4=5/8") {
		t.Errorf("unexpected warm-up message %q", warmup[0].Message)
	}

	for _, r := range []Result{second, third} {
		if r.IsAligned != first.IsAligned || r.Reason() != first.Reason() {
			t.Error("throttled logging changed the result")
		}
	}
}
