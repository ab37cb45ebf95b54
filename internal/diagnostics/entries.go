package diagnostics

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Kind tags the value held by an Entry.
type Kind uint8

const (
	KindString Kind = iota
	KindFloat
	KindInt
	KindBool
	KindDuration
	KindTime
)

// Entry is one named, typed diagnostic value.
type Entry struct {
	Key  string
	Kind Kind

	str string
	num float64
	i   int64
	b   bool
	d   time.Duration
	t   time.Time
}

func String(key, v string) Entry { return Entry{Key: key, Kind: KindString, str: v} }
func Float(key string, v float64) Entry { return Entry{Key: key, Kind: KindFloat, num: v} }
func Int(key string, v int) Entry { return Entry{Key: key, Kind: KindInt, i: int64(v)} }
func Bool(key string, v bool) Entry { return Entry{Key: key, Kind: KindBool, b: v} }
func Duration(key string, v time.Duration) Entry { return Entry{Key: key, Kind: KindDuration, d: v} }
func Time(key string, v time.Time) Entry { return Entry{Key: key, Kind: KindTime, t: v} }

func (e Entry) StringValue() string { return e.str }
func (e Entry) FloatValue() float64 { return e.num }
func (e Entry) IntValue() int { return int(e.i) }
func (e Entry) BoolValue() bool { return e.b }
func (e Entry) DurationValue() time.Duration { return e.d }
func (e Entry) TimeValue() time.Time { return e.t }

// Value renders the entry for display.
func (e Entry) Value() string {
	switch e.Kind {
	case KindFloat:
		return fmt.Sprintf("%.6f", e.num)
	case KindInt:
		return fmt.Sprintf("%d", e.i)
	case KindBool:
		return fmt.Sprintf("%t", e.b)
	case KindDuration:
		return e.d.String()
	case KindTime:
		return e.t.UTC().Format(time.RFC3339)
	default:
		return e.str
	}
}

// Field converts the entry to a zap field. Non-finite floats are logged as strings
// because the JSON encoder cannot represent them.
func (e Entry) Field() zap.Field {
	switch e.Kind {
	case KindFloat:
		if math.IsNaN(e.num) || math.IsInf(e.num, 0) {
			return zap.String(e.Key, fmt.Sprint(e.num))
		}
		return zap.Float64(e.Key, e.num)
	case KindInt:
		return zap.Int64(e.Key, e.i)
	case KindBool:
		return zap.Bool(e.Key, e.b)
	case KindDuration:
		return zap.Duration(e.Key, e.d)
	case KindTime:
		return zap.Time(e.Key, e.t)
	default:
		return zap.String(e.Key, e.str)
	}
}

// Entries is an ordered list; insertion order is preserved and keys may repeat,
// in which case lookups return the last one.
type Entries []Entry

// Add appends and returns the extended list.
func (es Entries) Add(e ...Entry) Entries {
	return append(es, e...)
}

// Get returns the last entry with key.
func (es Entries) Get(key string) (Entry, bool) {
	for i := len(es) - 1; i >= 0; i-- {
		if es[i].Key == key {
			return es[i], true
		}
	}
	return Entry{}, false
}

func (es Entries) Float(key string) (float64, bool) {
	e, ok := es.Get(key)
	if !ok || e.Kind != KindFloat {
		return 0, false
	}
	return e.num, true
}

func (es Entries) String(key string) (string, bool) {
	e, ok := es.Get(key)
	if !ok || e.Kind != KindString {
		return "", false
	}
	return e.str, true
}

func (es Entries) Keys() []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Key
	}
	return out
}

// Fields converts every entry for structured logging.
func (es Entries) Fields() []zap.Field {
	out := make([]zap.Field, len(es))
	for i, e := range es {
		out[i] = e.Field()
	}
	return out
}

// Clone returns an independent copy.
func (es Entries) Clone() Entries {
	if es == nil {
		return nil
	}
	return append(Entries(nil), es...)
}
