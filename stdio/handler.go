package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/netra-systems/zen-sub153/internal/engine"
	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/sessions"
)

const defaultMaxLine = 4 << 20

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout. The peer is identified by a UserProvider, which
// defaults to the current OS user.
//
// Handler also implements engine.MessageWriter so server-initiated
// notifications share the output stream with responses.
type Handler struct {
	eng          *engine.Engine
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	userProvider UserProvider
	sessionID    string
	maxLine      int

	wmu sync.Mutex
	bw  *bufio.Writer

	started atomic.Bool
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng:          eng,
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.Default(),
		userProvider: OSUserProvider{},
		sessionID:    "stdio-" + uuid.NewString(),
		maxLine:      defaultMaxLine,
	}
	for _, o := range opts {
		o(h)
	}
	h.bw = bufio.NewWriter(h.w)
	return h
}

// SessionID returns the id every request on this connection is routed under.
func (h *Handler) SessionID() string { return h.sessionID }

// WriteMessage implements engine.MessageWriter.
func (h *Handler) WriteMessage(_ context.Context, msg jsonrpc.Message) error {
	return h.writeLine(msg)
}

func (h *Handler) writeLine(b []byte) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if _, err := h.bw.Write(b); err != nil {
		return err
	}
	if err := h.bw.WriteByte('\n'); err != nil {
		return err
	}
	return h.bw.Flush()
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled, both of which return nil. A failed read is returned as an error.
// Serve may be called at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return errors.New("stdio: Serve called more than once")
	}
	return h.serve(ctx)
}

type line struct {
	data []byte
	err  error
}

func (h *Handler) serve(ctx context.Context) error {
	ctx = engine.WithTransport(ctx, mcp.TransportStdio)
	h.openSession(ctx)
	defer h.eng.Sessions().Delete(h.sessionID)

	if err := h.announce(); err != nil {
		return fmt.Errorf("stdio: write server info: %w", err)
	}
	h.l.InfoContext(ctx, "stdio.start", slog.String("session_id", h.sessionID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The reader goroutine may stay blocked in Read after cancellation; it
	// exits once the underlying reader is closed.
	lines := make(chan line)
	go func() {
		defer close(lines)
		br := bufio.NewReaderSize(h.r, 64*1024)
		for {
			data, err := readLine(br, h.maxLine)
			if len(data) > 0 || err != nil {
				select {
				case lines <- line{data: data, err: err}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.stop", slog.String("reason", "context"))
			return nil
		case ln, ok := <-lines:
			if !ok {
				return nil
			}
			if len(ln.data) > 0 {
				h.handleLine(ctx, ln.data)
			}
			if ln.err != nil {
				if errors.Is(ln.err, io.EOF) {
					h.l.InfoContext(ctx, "stdio.stop", slog.String("reason", "eof"))
					return nil
				}
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", ln.err.Error()))
				return fmt.Errorf("stdio: read: %w", ln.err)
			}
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, data []byte) {
	resp := h.eng.HandleBytes(ctx, h.sessionID, data)
	if resp == nil {
		return
	}
	if err := h.writeLine(resp); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) openSession(ctx context.Context) {
	store := h.eng.Sessions()
	store.Create(ctx, sessions.CreateParams{
		ID:              h.sessionID,
		Transport:       mcp.TransportStdio,
		ProtocolVersion: mcp.LatestProtocolVersion,
	})
	uid, err := h.userProvider.CurrentUserID()
	if err != nil {
		h.l.WarnContext(ctx, "stdio.user.lookup_fail", slog.String("err", err.Error()))
		return
	}
	_ = store.SetState(h.sessionID, UserStateKey, uid)
}

func (h *Handler) announce() error {
	msg, err := engine.Notification(mcp.ServerInfoNotification, mcp.ServerInfoParams{
		ServerInfo:      h.eng.ServerInfo(),
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    h.eng.Capabilities(),
		SessionID:       h.sessionID,
	})
	if err != nil {
		return err
	}
	return h.writeLine(msg)
}

// readLine returns the next newline-terminated line without its terminator.
// A line longer than limit is replaced by a lone "{" so the engine answers it
// with a parse error.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	var buf []byte
	overflow := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !overflow && len(buf)+len(chunk) <= limit {
			buf = append(buf, chunk...)
		} else {
			overflow = true
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if overflow {
			return []byte("{"), err
		}
		return bytes.TrimSpace(buf), err
	}
}
