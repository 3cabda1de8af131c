package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultTTL is the session lifetime when none is configured.
	DefaultTTL = time.Hour
	// RateWindow is the trailing window the per-minute limit is evaluated over.
	RateWindow = time.Minute
)

var (
	// ErrUnknownSession is returned for ids the store does not hold.
	ErrUnknownSession = errors.New("unknown session")
	// ErrRateLimited is returned by Touch when a session exceeds its budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the session lifetime. Non-positive values keep DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRateLimit sets the accepted requests per minute per session. Zero
// disables the check.
func WithRateLimit(perMinute int) Option {
	return func(s *Store) { s.limit = perMinute }
}

// WithClock overrides the clock used for timestamps, expiry and rate checks.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger used for sweep events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithOnExpire registers fn to run for every id removed by Sweep, after the
// store lock is released.
func WithOnExpire(fn func(id string)) Option {
	return func(s *Store) {
		if fn != nil {
			s.onExpire = append(s.onExpire, fn)
		}
	}
}

// Store is the in-memory session table. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record

	ttl   time.Duration
	limit int
	clock clockwork.Clock
	log   *slog.Logger

	onExpire []func(id string)
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*record),
		ttl:      DefaultTTL,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL reports the configured session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create registers a new session, or refreshes the one already held under
// p.ID: its negotiated fields are replaced and its lifetime restarts. The
// state bag and counters of a refreshed session are kept.
func (s *Store) Create(ctx context.Context, p CreateParams) Session {
	now := s.clock.Now()
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	rec, exists := s.sessions[id]
	if !exists {
		rec = &record{sess: Session{ID: id, CreatedAt: now}}
		s.sessions[id] = rec
	}
	rec.sess.Transport = p.Transport
	rec.sess.ProtocolVersion = p.ProtocolVersion
	rec.sess.Client = p.Client
	rec.sess.Capabilities = p.Capabilities
	if exists {
		rec.sess.CreatedAt = now
	}
	rec.sess.ExpiresAt = now.Add(s.ttl)
	out := rec.snapshot()
	s.mu.Unlock()

	event := "sessions.create"
	if exists {
		event = "sessions.refresh"
	}
	s.log.DebugContext(ctx, event, slog.String("session_id", id), slog.String("transport", string(p.Transport)))
	return out
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return rec.snapshot(), true
}

// Touch records one request against the session: the counter is incremented,
// the last-request time refreshed and the rate limit evaluated. It returns
// ErrUnknownSession for ids the store does not hold and ErrRateLimited when
// the request exceeds the per-minute budget.
func (s *Store) Touch(id string) error {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	rec.sess.RequestCount++
	rec.sess.LastRequest = now
	if !rec.admit(now, s.limit, RateWindow) {
		return ErrRateLimited
	}
	return nil
}

// Delete removes a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len reports how many sessions are held, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns snapshots of every held session ordered by id.
func (s *Store) List() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec.snapshot())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sweep removes every session whose lifetime ended before now and returns
// the removed ids in sorted order.
func (s *Store) Sweep(now time.Time) []string {
	var removed []string
	s.mu.Lock()
	for id, rec := range s.sessions {
		if rec.sess.Expired(now) {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()
	sort.Strings(removed)
	for _, id := range removed {
		for _, fn := range s.onExpire {
			fn(id)
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := s.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			if removed := s.Sweep(s.clock.Now()); len(removed) > 0 {
				s.log.InfoContext(ctx, "sessions.sweep", slog.Int("removed", len(removed)))
			}
		}
	}
}
