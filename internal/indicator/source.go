package indicator

import (
	"math"
	"sync"
	"time"
)

// Source is an optional cache of precomputed indicator values.
type Source interface {
	Indicator(Key) (float64, bool)
	LatestSnapshotTime() (time.Time, bool)
}

// Origin tells where a resolved value came from.
type Origin uint8

const (
	Local Origin = iota
	Cached
)

func (o Origin) String() string {
	if o == Cached {
		return "cache"
	}
	return "local"
}

// Value is a resolved indicator reading.
type Value struct {
	Key    Key
	Value  float64
	Origin Origin
}

// Fresh reports whether src's latest snapshot is at most maxAge old at time at.
// A snapshot stamped after at is not fresh.
func Fresh(src Source, at time.Time, maxAge time.Duration) bool {
	if src == nil {
		return false
	}
	ts, ok := src.LatestSnapshotTime()
	if !ok {
		return false
	}
	age := at.Sub(ts)
	return age >= 0 && age <= maxAge
}

// Resolve returns the cached value for key when src is fresh and the value is
// finite; otherwise it returns local().
func Resolve(src Source, key Key, at time.Time, maxAge time.Duration, local func() float64) Value {
	if Fresh(src, at, maxAge) {
		if v, ok := src.Indicator(key); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return Value{Key: key, Value: v, Origin: Cached}
		}
	}
	return Value{Key: key, Value: local(), Origin: Local}
}

// MapSource is an in-memory Source fed by a preprocessing step.
type MapSource struct {
	mu     sync.RWMutex
	values map[Key]float64
	at     time.Time
}

func NewMapSource() *MapSource {
	return &MapSource{values: make(map[Key]float64)}
}

// Publish replaces all values and stamps them with at.
func (m *MapSource) Publish(at time.Time, values map[Key]float64) {
	cp := make(map[Key]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	m.mu.Lock()
	m.values = cp
	m.at = at
	m.mu.Unlock()
}

// Indicator and LatestSnapshotTime treat a nil *MapSource as an empty cache.
func (m *MapSource) Indicator(k Key) (float64, bool) {
	if m == nil {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[k]
	return v, ok
}

func (m *MapSource) LatestSnapshotTime() (time.Time, bool) {
	if m == nil {
		return time.Time{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.at, !m.at.IsZero()
}
