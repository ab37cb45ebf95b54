package indicator

import (
	"math"
	"testing"
	"time"

	"mtfcollector/pkg/market"
)

func closes(vals ...float64) []market.Bar {
	bars := make([]market.Bar, len(vals))
	for i, v := range vals {
		bars[i] = market.Bar{Open: v, High: v, Low: v, Close: v, Volume: 1, Timeframe: market.H1}
	}
	return bars
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// go test -v --run TestComputeEMA
func TestComputeEMA(t *testing.T) {
	bars := closes(1, 2, 3, 4, 5)
	if got := ComputeEMA(bars, 3); !approx(got, 4.25) {
		t.Errorf("EMA(3) = %v, want 4.25", got)
	}
	if got := ComputeEMA(bars, 6); !math.IsNaN(got) {
		t.Errorf("EMA with too few bars = %v, want NaN", got)
	}
}

// go test -v --run TestComputeRSI
func TestComputeRSI(t *testing.T) {
	if got := ComputeRSI(closes(1, 2, 3, 2, 4), 3); !approx(got, 75) {
		t.Errorf("RSI = %v, want 75", got)
	}
	if got := ComputeRSI(closes(1, 1, 1, 1), 3); got != 50 {
		t.Errorf("flat RSI = %v, want 50", got)
	}
	if got := ComputeRSI(closes(1, 2, 3, 4), 3); got != 100 {
		t.Errorf("rising RSI = %v, want 100", got)
	}
	if got := ComputeRSI(closes(1, 2, 3), 3); !math.IsNaN(got) {
		t.Errorf("short RSI = %v, want NaN", got)
	}
}

// go test -v --run TestComputeATR
func TestComputeATR(t *testing.T) {
	bars := []market.Bar{
		{High: 2, Low: 1, Close: 1.5},
		{High: 3, Low: 2, Close: 2.5},
		{High: 2.6, Low: 2.4, Close: 2.5},
	}
	if got := ComputeATR(bars, 2); !approx(got, 0.85) {
		t.Errorf("ATR = %v, want 0.85", got)
	}
	if got := ComputeATR(bars, 3); got != 0 {
		t.Errorf("short ATR = %v, want 0", got)
	}
}

// go test -v --run TestVolumeAndSlopes
func TestVolumeAndSlopes(t *testing.T) {
	bars := closes(1, 2, 3, 4, 5, 6, 7)
	bars[0].Volume = 0
	bars[5].Volume = 3
	bars[6].Volume = 4

	if got := ComputeVolumeSMA(bars, 3); !approx(got, (1+3+4)/3.0) {
		t.Errorf("SMA(3) = %v", got)
	}
	if got := ComputeVolumeSMA(bars, 100); !approx(got, (1+1+1+1+1+3+4)/7.0) {
		t.Errorf("SMA clamps period to bar count, got %v", got)
	}
	if got := ComputeVolumeSMA(nil, 5); got != 0 {
		t.Errorf("empty SMA = %v", got)
	}
	if got := PriceSlope(bars, 5); got != 5 {
		t.Errorf("price slope = %v, want 5", got)
	}
	if got := PriceSlope(bars, 7); !math.IsNaN(got) {
		t.Errorf("short price slope = %v, want NaN", got)
	}
	if got := VolumeSlope(bars, 5); !approx(got, 3) {
		t.Errorf("volume slope = %v, want 3", got)
	}
	if got := VolumeSlope(bars[:3], 5); got != 0 {
		t.Errorf("short volume slope = %v, want 0", got)
	}
}

// go test -v --run TestKeyRoundTrip
func TestKeyRoundTrip(t *testing.T) {
	k := Key{Kind: ATR, Timeframe: market.H1, Period: 14}
	if k.String() != "ATR(H1,14)" {
		t.Fatalf("String = %q", k.String())
	}
	parsed, err := ParseKey("atr( 1h , 14 )")
	if err != nil || parsed != k {
		t.Fatalf("ParseKey = %+v, %v", parsed, err)
	}
	for _, bad := range []string{"ATR(H1)", "FOO(H1,14)", "ATR(H7,14)", "ATR(H1,0)"} {
		if _, err := ParseKey(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

// go test -v --run TestResolve
func TestResolve(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	key := Key{Kind: RSI, Timeframe: market.M15, Period: 14}
	local := func() float64 { return 42 }

	src := NewMapSource()
	if v := Resolve(src, key, now, 2*time.Second, local); v.Origin != Local || v.Value != 42 {
		t.Errorf("empty source should fall back, got %+v", v)
	}
	if v := Resolve(nil, key, now, 2*time.Second, local); v.Origin != Local {
		t.Errorf("nil source should fall back, got %+v", v)
	}
	var unset *MapSource
	if v := Resolve(unset, key, now, 2*time.Second, local); v.Origin != Local || v.Value != 42 {
		t.Errorf("nil *MapSource should fall back, got %+v", v)
	}

	src.Publish(now.Add(-time.Second), map[Key]float64{key: 61})
	if v := Resolve(src, key, now, 2*time.Second, local); v.Origin != Cached || v.Value != 61 {
		t.Errorf("fresh value should be used, got %+v", v)
	}

	other := Key{Kind: RSI, Timeframe: market.H1, Period: 14}
	if v := Resolve(src, other, now, 2*time.Second, local); v.Origin != Local {
		t.Errorf("missing key should fall back, got %+v", v)
	}

	src.Publish(now.Add(-3*time.Second), map[Key]float64{key: 61})
	if v := Resolve(src, key, now, 2*time.Second, local); v.Origin != Local {
		t.Errorf("stale value should fall back, got %+v", v)
	}

	src.Publish(now.Add(time.Second), map[Key]float64{key: 61})
	if v := Resolve(src, key, now, 2*time.Second, local); v.Origin != Local {
		t.Errorf("future-stamped value should fall back, got %+v", v)
	}

	src.Publish(now, map[Key]float64{key: math.Inf(1)})
	if v := Resolve(src, key, now, 2*time.Second, local); v.Origin != Local {
		t.Errorf("non-finite value should fall back, got %+v", v)
	}
}
