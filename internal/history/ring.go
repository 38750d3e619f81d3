package history

import "sync"

// Ring: ограниченный буфер фиксированной ёмкости, при переполнении
// вытесняется самый старый элемент. Один писатель (сэмплер), много читателей.
type Ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	head int // индекс самого старого
	size int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Snapshot: копия содержимого, от старых к новым.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

// Replace атомарно заменяет содержимое (лишнее с начала отбрасывается).
func (r *Ring[T]) Replace(items []T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(items) > len(r.buf) {
		items = items[len(items)-len(r.buf):]
	}
	copy(r.buf, items)
	r.head = 0
	r.size = len(items)
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *Ring[T]) Cap() int { return len(r.buf) }
