package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
	"github.com/netra-systems/zen-sub153/mcp"
)

// Notification encodes a server-initiated JSON-RPC notification.
func Notification(method string, params any) (jsonrpc.Message, error) {
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

// WatchListChanges forwards registry changes to w as list_changed
// notifications until ctx is done or every registry is cleared.
func (e *Engine) WatchListChanges(ctx context.Context, w MessageWriter) {
	type source struct {
		method    string
		subscribe func() (<-chan struct{}, func())
	}
	var sources []source
	if e.regs.Tools != nil {
		sources = append(sources, source{mcp.ToolsListChangedNotification, e.regs.Tools.Subscribe})
	}
	if e.regs.Resources != nil {
		sources = append(sources, source{mcp.ResourcesListChangedNotification, e.regs.Resources.Subscribe})
	}
	if e.regs.Prompts != nil {
		sources = append(sources, source{mcp.PromptsListChangedNotification, e.regs.Prompts.Subscribe})
	}

	done := make(chan struct{}, len(sources))
	for _, src := range sources {
		ch, cancel := src.subscribe()
		go func() {
			defer func() { done <- struct{}{} }()
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					e.emit(ctx, w, src.method)
				}
			}
		}()
	}
	for range sources {
		<-done
	}
}

func (e *Engine) emit(ctx context.Context, w MessageWriter, method string) {
	msg, err := Notification(method, nil)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.notify.encode_fail", slog.String("method", method), slog.String("err", err.Error()))
		return
	}
	if err := w.WriteMessage(ctx, msg); err != nil {
		e.log.WarnContext(ctx, "engine.notify.write_fail", slog.String("method", method), slog.String("err", err.Error()))
	}
}
