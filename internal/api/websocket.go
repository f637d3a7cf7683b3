package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxReadMsg = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboards connect from other origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn adapts a websocket connection to hub.Conn with a per-write deadline.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v any) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// handleSubscribe upgrades to a websocket and registers the connection with
// the hub. The hub's writer goroutine owns all data frames; this goroutine
// only reads (to notice the peer going away) and sends pings.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id, err := s.hub.Subscribe(r.Context(), &wsConn{conn: conn})
	if err != nil {
		s.logger.Error("subscribe failed", "remote", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}

	done := make(chan struct{})
	go s.pingLoop(conn, done)

	conn.SetReadLimit(maxReadMsg)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Clients send nothing meaningful; reads only surface close and errors.
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)

	if err := s.hub.Unsubscribe(context.Background(), id); err != nil {
		s.logger.Debug("unsubscribe after hub stop", "subscriber", id, "error", err)
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
