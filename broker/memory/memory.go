// Package memory provides an in-memory broker.Broker for single-node
// deployments and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/netra-systems/zen-sub153/broker"
	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
)

// DefaultRetention is how many messages a namespace keeps for resumption.
const DefaultRetention = 1000

// subscriberBuffer bounds how far a subscriber may lag before messages are
// dropped for it.
const subscriberBuffer = 100

// Broker implements broker.Broker with in-process state.
type Broker struct {
	mu           sync.RWMutex
	namespaces   map[string]*namespace
	eventCounter atomic.Int64
	retention    int
}

type namespace struct {
	mu          sync.RWMutex
	messages    []broker.MessageEnvelope
	subscribers map[*subscription]struct{}
	closed      bool
}

type subscription struct {
	namespace *namespace
	ch        chan broker.MessageEnvelope
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithRetention sets how many messages each namespace keeps.
func WithRetention(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.retention = n
		}
	}
}

// New creates a new memory-based broker instance.
func New(opts ...Option) *Broker {
	b := &Broker{namespaces: make(map[string]*namespace), retention: DefaultRetention}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Broker) ensure(name string) *namespace {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.namespaces[name]
	if !ok {
		ns = &namespace{subscribers: make(map[*subscription]struct{})}
		b.namespaces[name] = ns
	}
	return ns
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, name string, message jsonrpc.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	env := broker.MessageEnvelope{
		ID:   strconv.FormatInt(b.eventCounter.Add(1), 10),
		Data: append([]byte(nil), message...),
	}
	ns := b.ensure(name)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return "", fmt.Errorf("namespace %q has been cleaned up", name)
	}
	ns.messages = append(ns.messages, env)
	if over := len(ns.messages) - b.retention; over > 0 {
		ns.messages = append([]broker.MessageEnvelope(nil), ns.messages[over:]...)
	}
	for sub := range ns.subscribers {
		select {
		case sub.ch <- env:
		case <-sub.ctx.Done():
			delete(ns.subscribers, sub)
		default:
			// Lagging subscriber; it can resume from its last event id.
		}
	}
	return env.ID, nil
}

// Subscribe implements broker.Broker. An unknown lastEventID replays nothing.
func (b *Broker) Subscribe(ctx context.Context, name string, lastEventID string) (broker.MessageStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ns := b.ensure(name)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return nil, fmt.Errorf("namespace %q has been cleaned up", name)
	}

	var replay []broker.MessageEnvelope
	if lastEventID != "" {
		for i, msg := range ns.messages {
			if msg.ID == lastEventID {
				replay = ns.messages[i+1:]
				break
			}
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		namespace: ns,
		ch:        make(chan broker.MessageEnvelope, subscriberBuffer+len(replay)),
		ctx:       subCtx,
		cancel:    cancel,
	}
	for _, msg := range replay {
		sub.ch <- msg
	}
	ns.subscribers[sub] = struct{}{}
	return sub, nil
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	ns, ok := b.namespaces[name]
	delete(b.namespaces, name)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.closed = true
	for sub := range ns.subscribers {
		if sub.closed.CompareAndSwap(false, true) {
			sub.cancel()
			close(sub.ch)
		}
	}
	ns.subscribers = nil
	ns.messages = nil
	return nil
}

// Next implements broker.MessageStream.
func (s *subscription) Next(ctx context.Context) (broker.MessageEnvelope, error) {
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return broker.MessageEnvelope{}, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return broker.MessageEnvelope{}, ctx.Err()
	case <-s.ctx.Done():
		if s.closed.Load() {
			return broker.MessageEnvelope{}, io.EOF
		}
		return broker.MessageEnvelope{}, s.ctx.Err()
	}
}

// Close implements broker.MessageStream.
func (s *subscription) Close() error {
	s.namespace.mu.Lock()
	defer s.namespace.mu.Unlock()
	if s.closed.CompareAndSwap(false, true) {
		delete(s.namespace.subscribers, s)
		s.cancel()
		close(s.ch)
	}
	return nil
}

var (
	_ broker.Broker        = (*Broker)(nil)
	_ broker.MessageStream = (*subscription)(nil)
)
