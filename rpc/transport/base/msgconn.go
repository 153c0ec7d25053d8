package base

import (
	"fmt"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/serializer"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
)

// MsgConn combines a frame connection with a serializer. It is used by both
// the server dispatcher and the client connection.
type MsgConn struct {
	conn       transport.IConn
	serializer serializer.IRPCSerializer
}

// NewMsgConn creates a new message connection
func NewMsgConn(conn transport.IConn, serializer serializer.IRPCSerializer) *MsgConn {
	return &MsgConn{conn: conn, serializer: serializer}
}

// Send serializes and writes one message
func (c *MsgConn) Send(msg common.Message) error {
	frame, err := c.serializer.Serialize(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %v", msg, err)
	}
	return c.conn.Send(frame)
}

// Receive blocks until the next message arrives.
// A frame that cannot be decoded returns an error wrapping common.ErrProtocol,
// any other error comes from the underlying connection and is final.
func (c *MsgConn) Receive() (common.Message, error) {
	frame, err := c.conn.Receive()
	if err != nil {
		return common.Message{}, err
	}

	var msg common.Message
	if err := c.serializer.Deserialize(frame, &msg); err != nil {
		return common.Message{}, fmt.Errorf("%w: %v", common.ErrProtocol, err)
	}
	return msg, nil
}

// Run receives messages until the connection fails and calls sink for each one.
// The loop stops at the first error of Receive or sink, which is returned.
func (c *MsgConn) Run(sink func(msg common.Message) error) error {
	for {
		msg, err := c.Receive()
		if err != nil {
			return err
		}
		if err := sink(msg); err != nil {
			return err
		}
	}
}

// Close closes the underlying connection
func (c *MsgConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the address of the peer
func (c *MsgConn) RemoteAddr() string {
	return c.conn.RemoteAddr()
}
