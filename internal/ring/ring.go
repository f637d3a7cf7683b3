package ring

// Ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest
// entry. Ring is not safe for concurrent use; callers own the locking.
type Ring[T any] struct {
	entries []T
	size    int
	pos     int
	count   int
}

// New creates a ring that holds up to size entries. size must be positive.
func New[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		entries: make([]T, size),
		size:    size,
	}
}

// Push appends v. If the ring was full, the evicted entry is returned with ok=true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.count == r.size {
		evicted, ok = r.entries[r.pos], true
	}
	r.entries[r.pos] = v
	r.pos = (r.pos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
	return evicted, ok
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return r.size }

// Each walks entries oldest first until fn returns false.
func (r *Ring[T]) Each(fn func(T) bool) {
	start := 0
	if r.count == r.size {
		start = r.pos
	}
	for i := 0; i < r.count; i++ {
		if !fn(r.entries[(start+i)%r.size]) {
			return
		}
	}
}

// Slice returns a copy of all entries, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, 0, r.count)
	r.Each(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Tail returns a copy of the newest n entries, oldest first.
// n <= 0 or n > Len returns everything.
func (r *Ring[T]) Tail(n int) []T {
	all := r.Slice()
	if n > 0 && len(all) > n {
		return all[len(all)-n:]
	}
	return all
}
