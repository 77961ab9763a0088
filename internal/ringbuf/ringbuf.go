// Package ringbuf provides a fixed-capacity overwriting ring buffer for
// trade records. Once the buffer is full, each append evicts the oldest
// entry, so memory stays bounded no matter how long a session runs.
// Callers synchronize access themselves.
package ringbuf

import (
	"papertrader/internal/model"
)

// Ring keeps the most recent trade records.
// Capacity is rounded up to a power of two for fast bitwise modulo.
type Ring struct {
	buf  []model.TradeRecord
	mask uint64
	head uint64 // total records ever appended
}

// New creates a ring buffer. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New(capacity int) *Ring {
	cap := nextPow2(capacity)
	if cap < 2 {
		cap = 2
	}
	return &Ring{
		buf:  make([]model.TradeRecord, cap),
		mask: uint64(cap - 1),
	}
}

// Append adds a record, evicting the oldest when full.
func (r *Ring) Append(rec model.TradeRecord) {
	r.buf[r.head&r.mask] = rec
	r.head++
}

// Snapshot returns the retained records oldest first. The returned slice
// is a copy and safe to hand out.
func (r *Ring) Snapshot() []model.TradeRecord {
	n := r.Len()
	out := make([]model.TradeRecord, 0, n)
	start := r.head - uint64(n)
	for i := start; i < r.head; i++ {
		out = append(out, r.buf[i&r.mask])
	}
	return out
}

// Len returns the number of retained records.
func (r *Ring) Len() int {
	if r.head < uint64(len(r.buf)) {
		return int(r.head)
	}
	return len(r.buf)
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
