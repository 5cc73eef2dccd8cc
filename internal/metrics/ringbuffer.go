package metrics

// RingBuffer is a fixed-capacity FIFO. Pushing past capacity evicts the
// oldest value. It is not safe for concurrent use; Monitor guards its rings.
type RingBuffer[T any] struct {
	items []T
	head  int
	size  int
}

func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

func (r *RingBuffer[T]) Push(value T) {
	idx := (r.head + r.size) % len(r.items)
	r.items[idx] = value
	if r.size < len(r.items) {
		r.size++
		return
	}
	r.head = (r.head + 1) % len(r.items)
}

func (r *RingBuffer[T]) Len() int { return r.size }

func (r *RingBuffer[T]) Cap() int { return len(r.items) }

func (r *RingBuffer[T]) Values() []T {
	return r.Last(r.size)
}

func (r *RingBuffer[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	start := r.head + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

func (r *RingBuffer[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
