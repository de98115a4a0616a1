// Package ring provides a fixed-capacity single-producer, single-consumer
// queue of values. The producer only advances the write index and the
// consumer only advances the read index; each side checks capacity against
// the other side's most recently published index, so no lock is needed.
package ring

import "sync/atomic"

// Ring is a single-producer, single-consumer value ring.
type Ring[T any] struct {
	buf  []T
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // 0->>0 available edge
}

// New allocates a ring holding size values. size must be a power of two >= 2.
func New[T any](size int) *Ring[T] {
	if size < 2 || (size&(size-1)) != 0 {
		panic("ring: size must be power of two >= 2")
	}
	return &Ring[T]{
		buf:      make([]T, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

func (r *Ring[T]) size() uint32 { return uint32(len(r.buf)) }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of queued values as seen by the caller.
func (r *Ring[T]) Len() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(wr - rd)
}

// Producer side

// Push copies v into the ring. It returns false, leaving the ring
// unchanged, when the ring is full.
func (r *Ring[T]) Push(v T) bool {
	rd := r.rd.Load() // acquire
	wr := r.wr.Load()
	if wr-rd >= r.size() {
		return false
	}
	r.buf[wr&r.mask] = v
	r.wr.Store(wr + 1) // release

	if wr == rd {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return true
}

// Consumer side

// Pop removes the oldest value. ok is false when the ring is empty.
func (r *Ring[T]) Pop() (v T, ok bool) {
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	if wr == rd {
		return v, false
	}
	idx := rd & r.mask
	v = r.buf[idx]
	var zero T
	r.buf[idx] = zero
	r.rd.Store(rd + 1) // release
	return v, true
}

// Watermarks returns the raw read and write indices.
func (r *Ring[T]) Watermarks() (rd, wr uint32) {
	return r.rd.Load(), r.wr.Load()
}

// Readable fires once when the ring goes from empty to non-empty.
// Consumers should drain fully after each wake.
func (r *Ring[T]) Readable() <-chan struct{} { return r.readable }
