package engine

import (
	"context"

	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
)

// MessageWriter delivers a server-initiated message to clients.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg jsonrpc.Message) error
}

type MessageWriterFunc func(ctx context.Context, msg jsonrpc.Message) error

func (f MessageWriterFunc) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	return f(ctx, msg)
}

// MultiWriter fans a message out to every writer and returns the first error.
func MultiWriter(writers ...MessageWriter) MessageWriter {
	return MessageWriterFunc(func(ctx context.Context, msg jsonrpc.Message) error {
		var first error
		for _, w := range writers {
			if w == nil {
				continue
			}
			if err := w.WriteMessage(ctx, msg); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
