package transport

import (
	"context"
	"net"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
)

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// IConn is a bidirectional, frame oriented connection.
// Each frame carries exactly one serialized message. Send may be called
// concurrently with Receive, but Receive must only be called from one goroutine.
type IConn interface {
	// Send writes one frame to the peer
	Send(frame []byte) error
	// Receive blocks until the next frame arrives.
	// It returns io.EOF if the peer closed the connection.
	Receive() (frame []byte, err error)
	// Close closes the connection, a blocked Receive returns with an error
	Close() error
	// RemoteAddr returns the address of the peer for logging
	RemoteAddr() string
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ConnHandleFunc is called by a server transport for every accepted connection.
// It owns the connection until it returns, the transport closes it afterwards.
type ConnHandleFunc func(conn IConn)

// IRPCServerTransport is the interface for the server side of a transport
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for accepted connections
	RegisterHandler(handler ConnHandleFunc)
	// Listen creates a listener for config.Endpoint and serves it until ctx is cancelled
	Listen(ctx context.Context, config common.ServerConfig) error
	// Serve accepts connections on an existing listener until ctx is cancelled.
	// All open connections are closed before Serve returns.
	Serve(ctx context.Context, config common.ServerConfig, listener net.Listener) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the client side of a transport
type IRPCClientTransport interface {
	// Dial opens a new connection to config.Endpoint
	Dial(ctx context.Context, config common.ClientConfig) (IConn, error)
}
