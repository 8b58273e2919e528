package channel

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pocketnode/core/internal/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	// The host app connects from its own webview origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler upgrades HTTP requests to websocket channel sessions. Each
// text message carries one JSON frame, mirroring one line of the stream
// transports.
func (c *Core) WSHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			c.logger.Warn(r.Context(), "websocket upgrade failed",
				ports.F("error", err.Error()))
			return
		}
		defer func() { _ = conn.Close() }()

		s := &session{core: c, write: func(f Frame) error { return conn.WriteJSON(f) }}
		s.send(Frame{Type: TypeReady, NodeVersion: c.info.NodeVersion})

		for {
			if ctx.Err() != nil {
				return
			}
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage || len(msg) == 0 {
				continue
			}
			s.handleLine(ctx, msg)
		}
	}
}
