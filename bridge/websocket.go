package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/specbridge/ipc"
	"github.com/pithecene-io/specbridge/iox"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/types"
)

// closeGrace bounds the close handshake write.
const closeGrace = time.Second

// WebSocketTransport carries one envelope per binary websocket message.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	conn.SetReadLimit(ipc.MaxPayloadSize)
	return &WebSocketTransport{conn: conn}
}

// DialWebSocket connects to a bridge endpoint, e.g. ws://localhost:9222/__specbridge.
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WebSocketTransport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		iox.DiscardClose(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn), nil
}

// Send implements Transport.
func (w *WebSocketTransport) Send(ctx context.Context, env *types.Envelope) error {
	b, err := ipc.EncodeEnvelope(env)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	// Zero deadline when ctx has none.
	deadline, _ := ctx.Deadline()
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return w.mapErr(err)
	}
	return w.mapErr(w.conn.WriteMessage(websocket.BinaryMessage, b))
}

// Receive implements Transport. Non-binary messages are skipped.
func (w *WebSocketTransport) Receive(ctx context.Context) (*types.Envelope, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = w.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		kind, b, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, w.mapErr(err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return ipc.DecodeEnvelope(b)
	}
}

// Close sends a normal closure and closes the connection.
func (w *WebSocketTransport) Close() error {
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		w.writeMu.Unlock()
		w.closeErr = iox.CloseIgnoreClosed(w.conn.NetConn())
	})
	return w.closeErr
}

func (w *WebSocketTransport) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent) || iox.IsClosed(err) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}

// WebSocketHandler upgrades requests and hands each connection to serve,
// which owns the transport until it returns. The transport is closed
// afterwards.
func WebSocketHandler(logger *log.Logger, serve func(ctx context.Context, t *WebSocketTransport)) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		// The bridge is reached from other origins by construction.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", map[string]any{
				"remote": r.RemoteAddr,
				"error":  err.Error(),
			})
			return
		}
		t := NewWebSocketTransport(conn)
		defer iox.DiscardClose(t)

		logger.Info("primary connected", map[string]any{"remote": r.RemoteAddr})
		serve(r.Context(), t)
		logger.Info("primary disconnected", map[string]any{"remote": r.RemoteAddr})
	})
}
