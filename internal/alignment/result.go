package alignment

import (
	"strings"
	"time"

	"mtfcollector/pkg/market"
)

// ReasonCode names a blocking condition.
type ReasonCode string

const (
	ReasonWarmup      ReasonCode = "warmup"
	ReasonAligned     ReasonCode = "aligned"
	ReasonSkew        ReasonCode = "skew"
	ReasonAntiRepaint ReasonCode = "anti-repaint"
)

// Reason is one blocking condition. Detail is the human-readable form,
// e.g. "warmup(H4:5/8)" or "aligned=2 required=3".
type Reason struct {
	Code   ReasonCode
	Detail string
}

func (r Reason) String() string {
	if r.Detail != "" {
		return r.Detail
	}
	return string(r.Code)
}

// TimeframeStatus describes one timeframe of the evaluated snapshot.
type TimeframeStatus struct {
	Timeframe         market.Timeframe
	AvailableBars     int
	HasSufficientData bool
	LatestBar         market.Bar
	LatestClose       time.Time // zero unless HasSufficientData
	WarmupRequired    int
	WarmupMet         bool
}

// Result is the verdict for one snapshot. It is built fresh per call.
type Result struct {
	IsAligned         bool
	AntiRepaintSafe   bool
	AlignedTimeframes int
	RequiredAligned   int
	TotalTimeframes   int
	WarmupSatisfied   bool

	// ObservedSkew is valid only when HasSkew is set.
	ObservedSkew time.Duration
	HasSkew      bool

	Statuses []TimeframeStatus
	Reasons  []Reason
	Snapshot *market.Snapshot
}

// Reason joins all reasons with "; ", empty when aligned.
func (r Result) Reason() string {
	parts := make([]string, len(r.Reasons))
	for i, reason := range r.Reasons {
		parts[i] = reason.String()
	}
	return strings.Join(parts, "; ")
}

// Blocked reports whether code is among the reasons.
func (r Result) Blocked(code ReasonCode) bool {
	for _, reason := range r.Reasons {
		if reason.Code == code {
			return true
		}
	}
	return false
}

// Status returns the entry for tf.
func (r Result) Status(tf market.Timeframe) (TimeframeStatus, bool) {
	for _, s := range r.Statuses {
		if s.Timeframe == tf {
			return s, true
		}
	}
	return TimeframeStatus{}, false
}
