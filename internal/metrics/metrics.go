package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mtf_bars_total", Help: "Bar ingestion attempts by outcome"},
		[]string{"symbol", "timeframe", "outcome"},
	)
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mtf_quotes_total", Help: "Live quote updates applied"},
		[]string{"symbol"},
	)
	AlignmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mtf_alignment_total", Help: "Alignment evaluations by verdict"},
		[]string{"symbol", "aligned"},
	)
	ConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mtf_confirmations_total", Help: "Confirmation checks by verdict"},
		[]string{"symbol", "confirmed"},
	)
	ConfirmationScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mtf_confirmation_score",
			Help:    "Overall confirmation score",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"symbol"},
	)
	BackfillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mtf_backfill_seconds",
			Help:    "REST backfill latency per symbol and timeframe",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"timeframe"},
	)
)

func init() {
	prometheus.MustRegister(BarsTotal, QuotesTotal, AlignmentTotal, ConfirmationsTotal, ConfirmationScore, BackfillDuration)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
