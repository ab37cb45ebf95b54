package memorystore

// RingBuffer is a bounded FIFO. Pushing beyond capacity evicts the oldest item.
// It is not safe for concurrent use; callers hold the owning series lock.
type RingBuffer[T any] struct {
	items []T
	head  int // index of the oldest item
	size  int
}

// NewRingBuffer panics on capacity < 1; capacities come from normalized config.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		panic("memorystore: ring buffer capacity must be >= 1")
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends v and reports whether an item was evicted.
func (r *RingBuffer[T]) Push(v T) (evicted bool) {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.head+r.size)%capacity] = v
		r.size++
		return false
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % capacity
	return true
}

func (r *RingBuffer[T]) Len() int { return r.size }
func (r *RingBuffer[T]) Cap() int { return len(r.items) }

// Last returns the newest item.
func (r *RingBuffer[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head+r.size-1)%len(r.items)], true
}

// Items copies the contents, oldest first.
func (r *RingBuffer[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Filter copies the items that satisfy keep, oldest first.
func (r *RingBuffer[T]) Filter(keep func(T) bool) []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		v := r.items[(r.head+i)%len(r.items)]
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
