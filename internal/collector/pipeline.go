package collector

import (
	"context"
	"strconv"
	"time"

	"mtfcollector/internal/alignment"
	"mtfcollector/internal/confirmation"
	"mtfcollector/internal/indicator"
	"mtfcollector/internal/memorystore"
	"mtfcollector/internal/metrics"
	"mtfcollector/logger"
	"mtfcollector/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline runs one evaluation per symbol: snapshot, alignment and, when the
// snapshot is aligned, confirmation.
type Pipeline struct {
	Bars       *memorystore.BarStore
	Quotes     *memorystore.QuoteStore
	Evaluator  *alignment.Evaluator
	Scorer     *confirmation.Scorer
	Indicators indicator.Source // optional
	Archive    storage.Archive  // optional
	Logger     *zap.Logger
}

// Outcome is the result of one evaluation. Confirmation is nil when the
// snapshot was not aligned.
type Outcome struct {
	ID           uuid.UUID
	Symbol       string
	At           time.Time
	Alignment    alignment.Result
	Confirmation *confirmation.Result
}

// Confirmed reports whether the evaluation produced a confirmed setup.
func (o Outcome) Confirmed() bool {
	return o.Confirmation != nil && o.Confirmation.IsConfirmed
}

// Evaluate scores symbol as of at.
func (p *Pipeline) Evaluate(ctx context.Context, symbol string, at time.Time) (Outcome, error) {
	log := p.logger()

	snap, err := p.Bars.CaptureSnapshot(symbol, at)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{ID: uuid.New(), Symbol: snap.Symbol(), At: at}
	out.Alignment = p.Evaluator.Evaluate(snap)
	metrics.AlignmentTotal.WithLabelValues(out.Symbol, strconv.FormatBool(out.Alignment.IsAligned)).Inc()

	if !out.Alignment.IsAligned {
		log.Debug("no trade: not aligned",
			zap.String("symbol", out.Symbol),
			zap.Stringer("evaluation_id", out.ID),
			zap.String("reason", out.Alignment.Reason()),
		)
		return out, nil
	}

	mkt := confirmation.Market{Timestamp: at}
	if q, ok := p.Quotes.Get(out.Symbol); ok {
		mkt.Mid = q.Mid
	} else if tfs := snap.Timeframes(); len(tfs) > 0 {
		if bar, ok := snap.Latest(tfs[len(tfs)-1]); ok {
			mkt.Mid = bar.Close
		}
	}

	res, err := p.Scorer.CheckConfirmation(confirmation.Context{
		Snapshot:   snap,
		Market:     mkt,
		Indicators: p.Indicators,
	})
	if err != nil {
		return out, err
	}
	out.Confirmation = res

	metrics.ConfirmationScore.WithLabelValues(out.Symbol).Observe(res.OverallScore)
	metrics.ConfirmationsTotal.WithLabelValues(out.Symbol, strconv.FormatBool(res.IsConfirmed)).Inc()

	fields := []zap.Field{
		zap.String("symbol", out.Symbol),
		zap.Stringer("evaluation_id", out.ID),
		zap.Float64("score", res.OverallScore),
		zap.Float64("threshold", res.Threshold),
	}
	if res.IsConfirmed {
		log.Info("setup confirmed", fields...)
	} else {
		log.Debug("no trade: below threshold", fields...)
	}

	if p.Archive != nil {
		if err := p.Archive.SaveConfirmation(ctx, toRecord(out)); err != nil {
			log.Warn("failed to archive confirmation", zap.String("symbol", out.Symbol), zap.Error(err))
		}
	}
	return out, nil
}

// EvaluateAll evaluates every symbol at the same instant. Failures are logged
// and the symbol is skipped.
func (p *Pipeline) EvaluateAll(ctx context.Context, symbols []string, at time.Time) []Outcome {
	out := make([]Outcome, 0, len(symbols))
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		o, err := p.Evaluate(ctx, symbol, at)
		if err != nil {
			p.logger().Warn("evaluation failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		out = append(out, o)
	}
	return out
}

func (p *Pipeline) logger() *zap.Logger {
	return logger.OrNop(p.Logger)
}

func toRecord(o Outcome) storage.ConfirmationRecord {
	rec := storage.ConfirmationRecord{
		EvaluationID:    o.ID,
		Symbol:          o.Symbol,
		SnapshotTime:    o.At,
		Aligned:         o.Alignment.IsAligned,
		AlignmentReason: o.Alignment.Reason(),
	}
	if c := o.Confirmation; c != nil {
		rec.Trend = c.TrendAlignment
		rec.KeyLevel = c.KeyLevelConfirmation
		rec.Volume = c.VolumeConfirmation
		rec.Momentum = c.MomentumConfirmation
		rec.Overall = c.OverallScore
		rec.Threshold = c.Threshold
		rec.Confirmed = c.IsConfirmed
	}
	return rec
}
