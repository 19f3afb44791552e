package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/galebot/internal/application/broadcast"
	"github.com/alejandrodnm/galebot/internal/domain"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleEvents upgrades to a WebSocket and streams events. With ?after=N
// the retained events after N are replayed first, so a reconnecting client
// sees no gap; without it the stream starts at the next event.
func (s *Server) handleEvents(c *gin.Context) {
	after := s.feed.LastSeq()
	if v := c.Query("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(c, err)
			return
		}
		after = n
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("api: websocket upgrade failed", "err", err)
		return
	}

	client := newWSClient(conn, c.Request.RemoteAddr)
	unsubscribe := s.feed.SubscribeAfter(broadcast.NewDedup(client), after)
	slog.Info("api: feed client connected", "remote", client.remote, "after", after)

	client.serve()
	unsubscribe()
	slog.Info("api: feed client disconnected", "remote", client.remote)
}

// wsClient is one WebSocket connection subscribed to the broadcaster.
// A write failure closes the connection; Handle then drops events instead
// of asking for redelivery.
type wsClient struct {
	conn   *websocket.Conn
	remote string

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSClient(conn *websocket.Conn, remote string) *wsClient {
	return &wsClient{conn: conn, remote: remote, done: make(chan struct{})}
}

func (w *wsClient) Name() string { return "ws:" + w.remote }

func (w *wsClient) Handle(_ context.Context, e domain.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(e); err != nil {
		slog.Debug("api: feed write failed", "remote", w.remote, "seq", e.Seq, "err", err)
		w.closeLocked()
	}
	return nil
}

// serve runs the read side (pongs and close frames) and the ping ticker
// until the connection ends.
func (w *wsClient) serve() {
	w.conn.SetReadLimit(512)
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.mu.Lock()
				if w.closed {
					w.mu.Unlock()
					return
				}
				err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				w.mu.Unlock()
				if err != nil {
					w.close()
					return
				}
			case <-w.done:
				return
			}
		}
	}()

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			break
		}
	}
	w.close()
}

func (w *wsClient) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *wsClient) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	w.conn.Close()
}
