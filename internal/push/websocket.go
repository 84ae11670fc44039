package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"parkwise/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
	outboundBuffer = 64
)

// WebsocketTransport keeps one websocket connection to the backend's push endpoint,
// reconnecting after a fixed delay and re-joining every lot room on reconnect.
type WebsocketTransport struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	lots      lotSet
	connected bool
	out       chan Message
}

// NewWebsocketTransport creates a transport dialing url.
func NewWebsocketTransport(url string, reconnectDelay time.Duration, log *logger.Logger) *WebsocketTransport {
	return &WebsocketTransport{
		url:            url,
		header:         http.Header{},
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnectDelay,
		log:            log,
		lots:           make(lotSet),
		out:            make(chan Message, outboundBuffer),
	}
}

// Join implements Transport.
func (t *WebsocketTransport) Join(lotID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lots.add(lotID) && t.connected {
		t.sendLocked(TypeJoinLotRoom, lotID)
	}
}

// Leave implements Transport.
func (t *WebsocketTransport) Leave(lotID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lots.remove(lotID) && t.connected {
		t.sendLocked(TypeLeaveLotRoom, lotID)
	}
}

func (t *WebsocketTransport) sendLocked(msgType MessageType, lotID string) {
	msg, err := NewMessage(msgType, lotID)
	if err != nil {
		t.log.Error("encoding room command", "type", msgType, "error", err)
		return
	}
	select {
	case t.out <- msg:
	default:
		t.log.Warn("outbound push buffer full, dropping command", "type", msgType, "lot_id", lotID)
	}
}

// Run implements Transport. It returns when ctx is done.
func (t *WebsocketTransport) Run(ctx context.Context, sink Sink) error {
	for {
		conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sink.ConnectionChanged(false, fmt.Errorf("dialing %s: %w", t.url, err))
		} else {
			err = t.serve(ctx, conn, sink)
			if ctx.Err() != nil {
				return nil
			}
			sink.ConnectionChanged(false, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(t.reconnectDelay):
		}
	}
}

func (t *WebsocketTransport) serve(ctx context.Context, conn *websocket.Conn, sink Sink) error {
	defer conn.Close()

	t.mu.Lock()
	t.connected = true
	for _, lotID := range t.lots.list() {
		t.sendLocked(TypeJoinLotRoom, lotID)
	}
	t.mu.Unlock()
	sink.ConnectionChanged(true, nil)

	defer func() {
		t.mu.Lock()
		t.connected = false
		// Pending commands are replayed from the lot set on reconnect
		for len(t.out) > 0 {
			<-t.out
		}
		t.mu.Unlock()
	}()

	readErr := make(chan error, 1)
	go func() {
		readErr <- t.readPump(conn, sink)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()

		case err := <-readErr:
			return err

		case msg := <-t.out:
			data, err := json.Marshal(msg)
			if err != nil {
				t.log.Error("encoding push command", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("writing %s: %w", msg.Type, err)
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("writing ping: %w", err)
			}
		}
	}
}

func (t *WebsocketTransport) readPump(conn *websocket.Conn, sink Sink) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("push channel closed by server")
			}
			return fmt.Errorf("reading push channel: %w", err)
		}

		ev, ok, err := DecodeSlotUpdate(data)
		if err != nil {
			t.log.Warn("ignoring malformed push message", "error", err)
			continue
		}
		if !ok {
			continue
		}

		t.mu.Lock()
		joined := t.lots.has(ev.LotID)
		t.mu.Unlock()
		if joined {
			sink.SlotChanged(ev)
		}
	}
}
