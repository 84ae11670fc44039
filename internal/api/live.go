package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"parkwise/internal/logger"
	"parkwise/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
)

// LiveStreamer pushes page snapshots to a browser over a websocket.
type LiveStreamer struct {
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewLiveStreamer accepts any origin when allowedOrigins is empty.
func NewLiveStreamer(allowedOrigins []string, log *logger.Logger) *LiveStreamer {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &LiveStreamer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		log: log,
	}
}

// Serve upgrades the request and streams the page until the client goes
// away or the page closes.
func (l *LiveStreamer) Serve(w http.ResponseWriter, r *http.Request, page *service.Page) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Warn("websocket upgrade failed", "page_id", page.ID(), "error", err)
		return
	}

	updates, cancel := page.Watch()
	l.log.Debug("live client connected", "page_id", page.ID())

	go l.readPump(conn, cancel)
	l.writePump(conn, updates)
	cancel()
	l.log.Debug("live client disconnected", "page_id", page.ID())
}

func (l *LiveStreamer) writePump(conn *websocket.Conn, updates <-chan service.PageSnapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case snap, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "page closed"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames; cancel ends the watch, which closes
// the updates channel and stops writePump.
func (l *LiveStreamer) readPump(conn *websocket.Conn, cancel func()) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.log.Debug("live client read error", "error", err)
			}
			return
		}
	}
}
