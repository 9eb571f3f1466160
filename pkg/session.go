package pkg

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	idleTimeout    = 60 * time.Second
	pingPeriod     = (idleTimeout * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256
)

// Session adapts one websocket connection to the hub's link interface. Sends
// are queued on a buffered channel drained by the write pump; a full queue
// drops the frame for this recipient only.
type Session struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn) *Session {
	return &Session{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// Send queues data for delivery. It never blocks.
func (s *Session) Send(data []byte) {
	select {
	case s.send <- data:
	default:
	}
}

// Close terminates the connection. The read pump then unwinds and detaches
// the client from the hub.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// readPump feeds inbound frames to the hub until the connection dies, then
// tears the client down. The send channel is closed only after Disconnect
// has detached the session from the broker, so no publish can race the
// close.
func (s *Session) readPump(h *Hub, c *Client) {
	defer func() {
		h.Disconnect(c)
		close(s.send)
		s.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Error("Failed to read message: ", err)
			}
			return
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		h.Message(c, data, messageType == websocket.BinaryMessage)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Error("Failed to write message: ", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
