package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/netra-systems/zen-sub153/mcp"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateAndRefresh(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewStore(WithClock(clock), WithTTL(10*time.Minute))
	ctx := context.Background()

	created := s.Create(ctx, CreateParams{Transport: mcp.TransportHTTP, ProtocolVersion: "2025-06-18"})
	if created.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if !created.ExpiresAt.Equal(epoch.Add(10 * time.Minute)) {
		t.Fatalf("ExpiresAt = %v", created.ExpiresAt)
	}
	if err := s.SetState(created.ID, PermissionsKey, []any{"admin", 3}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	clock.Advance(5 * time.Minute)
	refreshed := s.Create(ctx, CreateParams{ID: created.ID, Transport: mcp.TransportWebSocket})
	if refreshed.Transport != mcp.TransportWebSocket {
		t.Fatalf("Transport = %q", refreshed.Transport)
	}
	if !refreshed.ExpiresAt.Equal(epoch.Add(15 * time.Minute)) {
		t.Fatalf("refresh did not restart lifetime: %v", refreshed.ExpiresAt)
	}
	if diff := cmp.Diff([]string{"admin"}, s.Permissions(ctx, created.ID)); diff != "" {
		t.Fatalf("permissions mismatch (-want +got):\n%s", diff)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestTouchCountsRequests(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewStore(WithClock(clock))
	sess := s.Create(context.Background(), CreateParams{ID: "s1"})

	for range 3 {
		clock.Advance(time.Second)
		if err := s.Touch(sess.ID); err != nil {
			t.Fatalf("Touch: %v", err)
		}
	}
	got, _ := s.Get("s1")
	if got.RequestCount != 3 || !got.LastRequest.Equal(epoch.Add(3*time.Second)) {
		t.Fatalf("session = %+v", got)
	}
	if err := s.Touch("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Touch(nope) = %v, want ErrUnknownSession", err)
	}
}

func TestRateLimitBoundary(t *testing.T) {
	const limit = 5

	t.Run("burst within a minute", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		s := NewStore(WithClock(clock), WithRateLimit(limit))
		s.Create(context.Background(), CreateParams{ID: "s"})
		for i := range limit {
			clock.Advance(10 * time.Second)
			if err := s.Touch("s"); err != nil {
				t.Fatalf("request %d rejected: %v", i+1, err)
			}
		}
		clock.Advance(9 * time.Second)
		if err := s.Touch("s"); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("request %d = %v, want ErrRateLimited", limit+1, err)
		}
	})

	t.Run("spread over more than a minute", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		s := NewStore(WithClock(clock), WithRateLimit(limit))
		s.Create(context.Background(), CreateParams{ID: "s"})
		for i := range limit + 1 {
			if err := s.Touch("s"); err != nil {
				t.Fatalf("request %d rejected: %v", i+1, err)
			}
			clock.Advance(13 * time.Second)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		s := NewStore()
		s.Create(context.Background(), CreateParams{ID: "s"})
		for range 1000 {
			if err := s.Touch("s"); err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
		}
	})
}

func TestSweep(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewStore(WithClock(clock), WithTTL(time.Hour))
	ctx := context.Background()

	s.Create(ctx, CreateParams{ID: "old"})
	clock.Advance(30 * time.Minute)
	s.Create(ctx, CreateParams{ID: "young"})

	if removed := s.Sweep(epoch.Add(time.Hour)); len(removed) != 0 {
		t.Fatalf("swept %v at exactly the expiry instant", removed)
	}
	if diff := cmp.Diff([]string{"old"}, s.Sweep(epoch.Add(61*time.Minute))); diff != "" {
		t.Fatalf("sweep mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Get("old"); ok {
		t.Fatalf("expired session still present")
	}
	if _, ok := s.Get("young"); !ok {
		t.Fatalf("live session was swept")
	}
}

func TestSweepRunsExpiryHooks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	var expired []string
	s := NewStore(WithClock(clock), WithTTL(time.Minute), WithOnExpire(func(id string) {
		expired = append(expired, id)
	}))
	ctx := context.Background()
	s.Create(ctx, CreateParams{ID: "b"})
	s.Create(ctx, CreateParams{ID: "a"})

	s.Sweep(epoch.Add(2 * time.Minute))
	if diff := cmp.Diff([]string{"a", "b"}, expired); diff != "" {
		t.Fatalf("expiry hook ids mismatch (-want +got):\n%s", diff)
	}
}

func TestRunSweeper(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewStore(WithClock(clock), WithTTL(time.Minute))
	s.Create(context.Background(), CreateParams{ID: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, 30*time.Second)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	clock.BlockUntil(1)
	clock.Advance(90 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper did not remove the expired session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
