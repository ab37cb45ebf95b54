package diagnostics

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event is a structured, fire-and-forget diagnostic record.
type Event struct {
	Component string
	Name      string
	Message   string
	Level     zapcore.Level
	Entries   Entries
}

// Sink receives events. Implementations must not panic back into the caller;
// use Emit to guard third-party sinks.
type Sink interface {
	Emit(Event)
}

// Emit delivers ev to sink, swallowing nil sinks and panics.
func Emit(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	defer func() { _ = recover() }()
	sink.Emit(ev)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// ZapSink writes each event as a single log line.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("diagnostic sink panic", zap.Any("recovered", r), zap.String("event", ev.Name))
		}
	}()

	fields := make([]zap.Field, 0, len(ev.Entries)+2)
	fields = append(fields, zap.String("component", ev.Component), zap.String("event", ev.Name))
	fields = append(fields, ev.Entries.Fields()...)
	if ce := s.logger.Check(ev.Level, ev.Message); ce != nil {
		ce.Write(fields...)
	}
}

// Limiter admits at most one call per interval. Safe for concurrent use; a
// losing CAS simply skips the event.
type Limiter struct {
	interval time.Duration
	last     atomic.Int64
}

func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Allow reports whether now is at least interval past the last admitted call.
func (l *Limiter) Allow(now time.Time) bool {
	n := now.UnixNano()
	prev := l.last.Load()
	if prev != 0 && n-prev < int64(l.interval) {
		return false
	}
	return l.last.CompareAndSwap(prev, n)
}
