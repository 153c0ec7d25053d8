package ws

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write
	writeWait = 10 * time.Second

	// closeWait bounds the close handshake
	closeWait = time.Second
)

// wsConn adapts a websocket connection to transport.IConn.
// Every frame is one websocket text message.
type wsConn struct {
	conn    *websocket.Conn
	idle    time.Duration // read deadline per message, 0 disables it
	writeMu sync.Mutex
}

func newConn(conn *websocket.Conn, maxFrame int, idle time.Duration) transport.IConn {
	conn.SetReadLimit(int64(maxFrame))
	return &wsConn{conn: conn, idle: idle}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConn)
// --------------------------------------------------------------------------

func (c *wsConn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) Receive() ([]byte, error) {
	for {
		if c.idle > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.idle)); err != nil {
				return nil, fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil, io.EOF
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, fmt.Errorf("frame too large: %w", err)
			}
			return nil, err
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			return data, nil
		default:
			// control frames are handled by gorilla, skip anything else
			continue
		}
	}
}

func (c *wsConn) Close() error {
	// Best effort close handshake, skipped while a Send is in flight.
	// Closing the conn below fails that Send.
	if c.writeMu.TryLock() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWait))
		c.writeMu.Unlock()
	}
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
