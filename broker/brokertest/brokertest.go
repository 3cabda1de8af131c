// Package brokertest holds a conformance suite that every broker.Broker
// implementation must pass.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/netra-systems/zen-sub153/broker"
	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
)

// BrokerFactory is a function that creates a new broker instance for testing.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the complete broker test suite against the provided factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishAfterSubscribe", func(t *testing.T) {
		testPublishAfterSubscribe(t, factory)
	})
	t.Run("ResumeFromLastEventID", func(t *testing.T) {
		testResumeFromLastEventID(t, factory)
	})
	t.Run("OrderingWithinNamespace", func(t *testing.T) {
		testOrdering(t, factory)
	})
	t.Run("MultipleSubscribers", func(t *testing.T) {
		testMultipleSubscribers(t, factory)
	})
	t.Run("NamespaceIsolation", func(t *testing.T) {
		testNamespaceIsolation(t, factory)
	})
	t.Run("NextHonorsContext", func(t *testing.T) {
		testNextHonorsContext(t, factory)
	})
	t.Run("CloseEndsStream", func(t *testing.T) {
		testCloseEndsStream(t, factory)
	})
	t.Run("CleanupDropsHistory", func(t *testing.T) {
		testCleanupDropsHistory(t, factory)
	})
}

func message(i int) jsonrpc.Message {
	return jsonrpc.Message(fmt.Sprintf(`{"jsonrpc":"2.0","method":"notifications/test","params":{"n":%d}}`, i))
}

func publish(t *testing.T, b broker.Broker, ns string, i int) string {
	t.Helper()
	id, err := b.Publish(context.Background(), ns, message(i))
	if err != nil {
		t.Fatalf("Publish(%s, %d) failed: %v", ns, i, err)
	}
	if id == "" {
		t.Fatalf("Publish(%s, %d) returned empty event id", ns, i)
	}
	return id
}

func subscribe(t *testing.T, b broker.Broker, ns, last string) broker.MessageStream {
	t.Helper()
	s, err := b.Subscribe(context.Background(), ns, last)
	if err != nil {
		t.Fatalf("Subscribe(%s, %q) failed: %v", ns, last, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func next(t *testing.T, s broker.MessageStream) broker.MessageEnvelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	return env
}

func expectNothing(t *testing.T, s broker.MessageStream) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if env, err := s.Next(ctx); err == nil {
		t.Fatalf("expected no message, got %s", env.Data)
	}
}

func testPublishAfterSubscribe(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	publish(t, b, "ns", 0)

	s := subscribe(t, b, "ns", "")
	id := publish(t, b, "ns", 1)

	env := next(t, s)
	if env.ID != id {
		t.Fatalf("event id = %q, want %q", env.ID, id)
	}
	if string(env.Data) != string(message(1)) {
		t.Fatalf("data = %s, want %s", env.Data, message(1))
	}
}

func testResumeFromLastEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	first := publish(t, b, "ns", 1)
	second := publish(t, b, "ns", 2)
	third := publish(t, b, "ns", 3)

	s := subscribe(t, b, "ns", first)
	if env := next(t, s); env.ID != second {
		t.Fatalf("first resumed id = %q, want %q", env.ID, second)
	}
	if env := next(t, s); env.ID != third {
		t.Fatalf("second resumed id = %q, want %q", env.ID, third)
	}
	live := publish(t, b, "ns", 4)
	if env := next(t, s); env.ID != live {
		t.Fatalf("live id = %q, want %q", env.ID, live)
	}
}

func testOrdering(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	s := subscribe(t, b, "ns", "")

	const n = 20
	ids := make([]string, n)
	for i := range n {
		ids[i] = publish(t, b, "ns", i)
	}
	for i := range n {
		env := next(t, s)
		if env.ID != ids[i] {
			t.Fatalf("message %d has id %q, want %q", i, env.ID, ids[i])
		}
		if string(env.Data) != string(message(i)) {
			t.Fatalf("message %d data = %s", i, env.Data)
		}
	}
}

func testMultipleSubscribers(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	s1 := subscribe(t, b, "ns", "")
	s2 := subscribe(t, b, "ns", "")

	id := publish(t, b, "ns", 7)
	for i, s := range []broker.MessageStream{s1, s2} {
		if env := next(t, s); env.ID != id {
			t.Fatalf("subscriber %d got id %q, want %q", i, env.ID, id)
		}
	}
}

func testNamespaceIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	a := subscribe(t, b, "a", "")
	other := subscribe(t, b, "b", "")

	publish(t, b, "a", 1)
	if env := next(t, a); string(env.Data) != string(message(1)) {
		t.Fatalf("namespace a data = %s", env.Data)
	}
	expectNothing(t, other)
}

func testNextHonorsContext(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	s := subscribe(t, b, "ns", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Next() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Next() did not return after cancellation")
	}
}

func testCloseEndsStream(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	s := subscribe(t, b, "ns", "")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("Next() after Close error = %v, want io.EOF", err)
	}
}

func testCleanupDropsHistory(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	first := publish(t, b, "ns", 1)
	publish(t, b, "ns", 2)

	if err := b.Cleanup(context.Background(), "ns"); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if err := b.Cleanup(context.Background(), "never-used"); err != nil {
		t.Fatalf("Cleanup() of unknown namespace failed: %v", err)
	}

	s := subscribe(t, b, "ns", first)
	expectNothing(t, s)
}
