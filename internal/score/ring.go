package score

// ring is a fixed-capacity FIFO. Pushing past capacity evicts the oldest
// entry. Index 0 is always the oldest entry.
type ring[T any] struct {
	buf   []T
	start int
	n     int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) Len() int { return r.n }
func (r *ring[T]) Cap() int { return len(r.buf) }

func (r *ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) At(i int) T {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Slice copies the contents out, oldest first.
func (r *ring[T]) Slice() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}
