package sessions

import (
	"maps"
	"time"
)

// record is the mutable state owned by the Store for one session.
type record struct {
	sess Session
	// window holds the times of accepted requests inside the trailing rate
	// window, oldest first.
	window []time.Time
}

func (r *record) snapshot() Session {
	s := r.sess
	s.Capabilities = maps.Clone(r.sess.Capabilities)
	s.State = maps.Clone(r.sess.State)
	return s
}

// admit applies the sliding-window rate check at now. A limit of zero or less
// admits everything. Rejected requests are not counted against the window.
func (r *record) admit(now time.Time, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}
	cutoff := now.Add(-window)
	i := 0
	for i < len(r.window) && !r.window[i].After(cutoff) {
		i++
	}
	r.window = r.window[i:]
	if len(r.window) >= limit {
		return false
	}
	r.window = append(r.window, now)
	return true
}
