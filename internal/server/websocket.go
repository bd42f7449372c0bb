package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadLimit    = 64 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsWriteWait    = 10 * time.Second
)

// wsMessage is the envelope of websocket frames sent to clients outside the event stream.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// SafeConn wraps a WebSocket connection with a write mutex and panic recovery
type SafeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

// NewSafeConn creates a new safe connection wrapper
func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteJSON serializes writes to the connection. Writes after Close are dropped.
func (sc *SafeConn) WriteJSON(v any) (err error) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if sc.closed {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			sc.closed = true
			err = errors.New("websocket write panic")
		}
	}()

	return sc.conn.WriteJSON(v)
}

// WritePing sends a ping control frame
func (sc *SafeConn) WritePing() error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if sc.closed {
		return nil
	}
	return sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	sc.writeMu.Lock()
	sc.closed = true
	sc.writeMu.Unlock()
	return sc.conn.Close()
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// Browsers on other origins authenticate with bearer tokens, not cookies.
		CheckOrigin: func(*http.Request) bool { return true },
	}
}

// handleSessionWebSocket streams the events of a session over a websocket.
// The first frame is a snapshot; clients may send {"type":"ping"} and receive a pong.
func (s *Server) handleSessionWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookupSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", sess.ID, "error", err)
		return
	}
	safeConn := NewSafeConn(conn)
	defer safeConn.Close()

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	snap, err := sess.Snapshot()
	if err != nil {
		safeConn.WriteJSON(wsMessage{Type: "error", Data: map[string]string{"error": err.Error()}}) //nolint:errcheck
		return
	}
	if err := safeConn.WriteJSON(wsMessage{Type: "snapshot", Data: snap}); err != nil {
		return
	}

	logger := s.logger.With("session", sess.ID, "transport", "websocket")
	logger.Debug("stream opened")
	defer logger.Debug("stream closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readWebSocket(ctx, conn, safeConn, sess.ID)
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case <-ping.C:
			if err := safeConn.WritePing(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				safeConn.WriteJSON(wsMessage{Type: "closed"}) //nolint:errcheck
				return
			}
			if err := safeConn.WriteJSON(ev); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// readWebSocket answers client pings until the connection fails or stops answering pongs.
func (s *Server) readWebSocket(ctx context.Context, conn *websocket.Conn, safeConn *SafeConn, id uuid.UUID) {
	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for ctx.Err() == nil {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "session", id, "error", err)
			}
			return
		}

		if msg.Type == "ping" {
			safeConn.WriteJSON(wsMessage{Type: "pong", Data: map[string]int64{"timestamp": time.Now().Unix()}}) //nolint:errcheck
		}
	}
}
