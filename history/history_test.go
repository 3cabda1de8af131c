package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	r := NewRing[int](3)

	for i := 1; i <= 5; i++ {
		r.Record(ctx, i)
	}

	if got := r.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	if diff := cmp.Diff([]int{3, 4, 5}, r.Snapshot()); diff != "" {
		t.Fatalf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
}

func TestRingPartialSnapshot(t *testing.T) {
	ctx := context.Background()
	r := NewRing[string](4)
	r.Record(ctx, "a")
	r.Record(ctx, "b")

	if diff := cmp.Diff([]string{"a", "b"}, r.Snapshot()); diff != "" {
		t.Fatalf("Snapshot() mismatch (-want +got):\n%s", diff)
	}

	r.Clear()
	if got := r.Len(); got != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", got)
	}
}

func TestNewRingDefaultCapacity(t *testing.T) {
	if got := NewRing[int](0).Cap(); got != DefaultCapacity {
		t.Fatalf("Cap() = %d, want %d", got, DefaultCapacity)
	}
}

func TestTeeFansOut(t *testing.T) {
	ctx := context.Background()
	a, b := NewRing[int](2), NewRing[int](2)
	rec := Tee[int](a, nil, b)
	rec.Record(ctx, 7)

	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("expected both rings to receive the record, got %d and %d", a.Len(), b.Len())
	}
}

func TestRedisSinkCapsList(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sink, err := NewRedisSink[ExecutionRecord](RedisConfig{Client: client, Key: "netra:executions", MaxLen: 2})
	if err != nil {
		t.Fatalf("NewRedisSink: %v", err)
	}

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{"one", "two", "three"} {
		sink.Record(ctx, ExecutionRecord{Tool: name, Status: StatusSuccess, At: at})
	}

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var names []string
	for _, r := range got {
		names = append(names, r.Tool)
	}
	if diff := cmp.Diff([]string{"three", "two"}, names); diff != "" {
		t.Fatalf("Recent() mismatch (-want +got):\n%s", diff)
	}

	if err := sink.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if mr.Exists("netra:executions") {
		t.Fatalf("expected key to be deleted")
	}
}

func TestNewRedisSinkRequiresClient(t *testing.T) {
	if _, err := NewRedisSink[AccessRecord](RedisConfig{Key: "k"}); err == nil {
		t.Fatalf("expected error without client")
	}
}
