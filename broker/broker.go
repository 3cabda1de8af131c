// Package broker queues server-initiated messages per namespace for delivery
// over streaming transports. The HTTP transport uses one namespace per
// session and drains it from the SSE stream; a reconnecting client resumes
// after the last event id it saw.
package broker

import (
	"context"

	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
)

// Broker handles message queuing and delivery with namespace isolation and
// ordered delivery within each namespace.
type Broker interface {
	// Publish appends message to namespace and returns its event ID.
	Publish(ctx context.Context, namespace string, message jsonrpc.Message) (eventID string, err error)

	// Subscribe to namespace messages. With an empty lastEventID the stream
	// starts at the next published message; otherwise it resumes after that
	// ID.
	Subscribe(ctx context.Context, namespace string, lastEventID string) (MessageStream, error)

	// Cleanup removes every stored message and subscription of namespace.
	Cleanup(ctx context.Context, namespace string) error
}

// MessageStream provides ordered message consumption within a namespace.
// Streams are safe for use by a single consumer.
type MessageStream interface {
	// Next blocks until the next message is available or ctx is done. It
	// returns io.EOF once the stream is closed.
	Next(ctx context.Context) (MessageEnvelope, error)

	// Close releases resources associated with this stream.
	Close() error
}

// MessageEnvelope wraps a message with its event ID.
type MessageEnvelope struct {
	// ID increases monotonically within a namespace.
	ID string `json:"id"`
	// Data is the JSON-serialized message content.
	Data []byte `json:"data"`
}
