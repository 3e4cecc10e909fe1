package server

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/gorilla/websocket"
)

// session binds one websocket connection to an ephemeral player identity
// and, after create/join, to a room. Identity is connection-scoped; there is
// no resumption.
type session struct {
	server   *Server
	conn     *websocket.Conn
	send     chan []byte
	playerID string

	// roomCode is set once by the read loop on create/join and read by the
	// fan-out path under the server's session lock.
	roomCode string

	once sync.Once
}

// newPlayerID returns a fresh connection-scoped identifier.
func newPlayerID() string {
	buf := make([]byte, 16)
	if _, err := cryptorand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func (c *session) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// enqueue hands a marshaled message to the write pump. Slow or gone clients
// are dropped rather than blocking the caller.
func (c *session) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *session) readPump() {
	defer func() {
		c.server.dropSession(c)
		c.conn.Close()
	}()

	for {
		var req request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.server.log.Debugf("session %s disconnected", c.playerID)
			} else {
				c.server.log.Debugf("session %s read error: %v", c.playerID, err)
			}
			return
		}

		c.server.handleRequest(c, &req)
	}
}

func (c *session) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.server.log.Debugf("session %s write error: %v", c.playerID, err)
			return
		}
	}
}
