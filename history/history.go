// Package history holds the append-only execution and access logs written by
// the tool and resource registries.
//
// Records are appended once, after the invocation completes, and never
// mutated. The in-memory Ring keeps the most recent records only; older
// entries are evicted first. A RedisSink can be combined with a Ring via Tee
// to retain a longer trail outside the process.
package history

import (
	"context"
	"sync"
	"time"
)

// Status is the outcome recorded for an invocation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
	StatusFailure Status = "failure"
)

// ExecutionRecord is one tool invocation.
type ExecutionRecord struct {
	Tool      string         `json:"tool"`
	SessionID string         `json:"sessionId,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ElapsedMS int64          `json:"elapsedMs"`
	Status    Status         `json:"status"`
	At        time.Time      `json:"at"`
}

// AccessRecord is one resource read.
type AccessRecord struct {
	URI       string    `json:"uri"`
	SessionID string    `json:"sessionId,omitempty"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsedMs"`
	Status    Status    `json:"status"`
	At        time.Time `json:"at"`
}

// Recorder accepts completed records. Implementations must be safe for
// concurrent use and must not block the caller on slow storage for long.
type Recorder[T any] interface {
	Record(ctx context.Context, rec T)
}

// DefaultCapacity is used by NewRing when capacity is not positive.
const DefaultCapacity = 1000

// Ring is a fixed-capacity, oldest-first-evicting in-memory log.
type Ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	next int
	full bool
}

// NewRing returns a ring holding at most capacity records.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Record appends rec, evicting the oldest entry when the ring is full.
func (r *Ring[T]) Record(_ context.Context, rec T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = rec
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// Len reports the number of retained records.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Cap reports the ring's capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Snapshot returns the retained records, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		out := make([]T, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Clear drops every retained record.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.next = 0
	r.full = false
}

type tee[T any] []Recorder[T]

func (t tee[T]) Record(ctx context.Context, rec T) {
	for _, r := range t {
		r.Record(ctx, rec)
	}
}

// Tee fans a record out to every non-nil recorder in order.
func Tee[T any](recorders ...Recorder[T]) Recorder[T] {
	out := make(tee[T], 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Discard drops every record.
func Discard[T any]() Recorder[T] { return tee[T](nil) }
