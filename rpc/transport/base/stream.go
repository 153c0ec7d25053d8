package base

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
)

// ErrFrameTooLarge is returned if a frame exceeds the configured limit
var ErrFrameTooLarge = errors.New("frame too large")

// streamConn frames messages on a byte stream. Every frame is terminated by a
// single '\n', so frames must not contain a raw newline (compact JSON never does).
type streamConn struct {
	conn     net.Conn
	scanner  *bufio.Scanner
	maxFrame int
	idle     time.Duration // read deadline per frame, 0 disables it
	writeMu  sync.Mutex
}

// NewStreamConn wraps a net.Conn into a newline framed transport.IConn.
// Frames larger than maxFrame are rejected in both directions.
func NewStreamConn(conn net.Conn, maxFrame int, idle time.Duration) transport.IConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(maxFrame, 64*1024)), maxFrame)
	return &streamConn{
		conn:     conn,
		scanner:  scanner,
		maxFrame: maxFrame,
		idle:     idle,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConn)
// --------------------------------------------------------------------------

func (c *streamConn) Send(frame []byte) error {
	if len(frame) > c.maxFrame {
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(frame), c.maxFrame)
	}
	if bytes.IndexByte(frame, '\n') >= 0 {
		return errors.New("frame contains a newline")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// frame and delimiter in one write
	b := net.Buffers{frame, []byte{'\n'}}
	_, err := b.WriteTo(c.conn)
	return err
}

func (c *streamConn) Receive() ([]byte, error) {
	for {
		if c.idle > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.idle)); err != nil {
				return nil, fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		if !c.scanner.Scan() {
			err := c.scanner.Err()
			if err == nil {
				return nil, io.EOF
			}
			if errors.Is(err, bufio.ErrTooLong) {
				return nil, fmt.Errorf("%w: limit is %d bytes", ErrFrameTooLarge, c.maxFrame)
			}
			return nil, err
		}

		line := bytes.TrimSuffix(c.scanner.Bytes(), []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			// skip keep-alive blank lines
			continue
		}

		// the scanner reuses its buffer
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

func (c *streamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
