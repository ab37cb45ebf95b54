package confirmation

import (
	"math"

	"mtfcollector/internal/diagnostics"
	"mtfcollector/internal/indicator"
)

const volumeTrendLookback = 5

func (ev *evaluation) volumeConfirmation() float64 {
	cfg := ev.cfg
	medium := volumeSpikeScore(ev.medium, cfg.VolumeSpikeMultiplierMedium)
	fast := volumeSpikeScore(ev.fast, cfg.VolumeSpikeMultiplierFast)

	trend := 0.0
	if indicator.VolumeSlope(ev.medium.bars, volumeTrendLookback) >= cfg.VolumeTrendMinimumSlope {
		trend += 0.5
	}
	if indicator.VolumeSlope(ev.fast.bars, volumeTrendLookback) >= cfg.VolumeTrendMinimumSlope {
		trend += 0.5
	}

	ev.diag = ev.diag.Add(
		diagnostics.Float("volume."+string(ev.medium.tf), medium),
		diagnostics.Float("volume."+string(ev.fast.tf), fast),
		diagnostics.Float("volume.trend", trend),
	)
	return (medium + fast + trend) / 3
}

// volumeSpikeScore grades the latest volume against its SMA.
func volumeSpikeScore(s *series, multiplier float64) float64 {
	if s.volumeSMA <= math.SmallestNonzeroFloat64 || math.IsNaN(s.volumeSMA) {
		return 0
	}
	ratio := s.latestVolume() / s.volumeSMA
	switch {
	case ratio >= multiplier:
		return 1
	case ratio >= 1:
		return 0.6
	default:
		return 0.3
	}
}
