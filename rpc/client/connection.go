package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/serializer"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// Connection is one persistent connection to an ACI server.
// Any number of goroutines may issue calls through it or its store proxies,
// one background goroutine reads the replies. There is no reconnection: once
// the connection dropped every pending and future call fails with common.ErrTransportClosed.
type Connection struct {
	name       string
	config     common.ClientConfig
	conn       *base.MsgConn
	correlator *correlator
	proxies    *xsync.MapOf[string, *StoreProxy]

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens a connection to config.Endpoint using the given transport and serializer.
// The name identifies the connection in logs and in a Registry.
//
// Usage:
//
//	conn, err := client.Dial(ctx, "main", common.ClientConfig{Endpoint: "localhost:8765"},
//		ws.NewWSClientTransport(), serializer.NewJSONSerializer())
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	notes := conn.Store("notes")
//	notes.Set("a", 1)
//	val, err := notes.Get(ctx, "a")
func Dial(
	ctx context.Context,
	name string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Connection, error) {
	conn, err := transport.Dial(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewConnection(name, config, base.NewMsgConn(conn, serializer)), nil
}

// NewConnection creates a connection on an already established message connection
// and starts reading replies from it.
func NewConnection(name string, config common.ClientConfig, conn *base.MsgConn) *Connection {
	c := &Connection{
		name:       name,
		config:     config,
		conn:       conn,
		correlator: newCorrelator(),
		proxies:    xsync.NewMapOf[string, *StoreProxy](),
		done:       make(chan struct{}),
	}
	go c.readReplies()
	return c
}

// Name returns the name the connection was created with
func (c *Connection) Name() string {
	return c.name
}

// Store returns the proxy for the named store.
// Proxies are cached, the store is not checked for existence.
func (c *Connection) Store(name string) *StoreProxy {
	proxy, _ := c.proxies.LoadOrCompute(name, func() *StoreProxy {
		return &StoreProxy{conn: c, name: name}
	})
	return proxy
}

// CreateStore asks the server to create an empty store (replacing an existing one)
// and returns its proxy. The request is not acknowledged by the server.
func (c *Connection) CreateStore(name string) (*StoreProxy, error) {
	proxy := c.Store(name)
	if err := proxy.Create(); err != nil {
		return nil, err
	}
	return proxy, nil
}

// PersistAll asks the server to write every store to disk
func (c *Connection) PersistAll() error {
	return c.cast(common.NewPersistRequest(""))
}

// Authenticate sends an id token to the server and returns the verified subject.
// A rejected token returns an error wrapping common.ErrAuthRejected, the connection stays usable.
func (c *Connection) Authenticate(ctx context.Context, idToken string) (string, error) {
	reply, err := c.call(ctx, common.NewAuthRequest(idToken))
	if err != nil {
		return "", err
	}
	return reply.Msg, nil
}

// Close closes the connection. Pending calls fail with common.ErrTransportClosed.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		err = c.conn.Close()
	})
	<-c.done
	return err
}

// Done is closed once the connection is dropped, by Close or by the peer
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection was dropped, nil while it is open
func (c *Connection) Err() error {
	return c.correlator.err()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readReplies hands every reply to the correlator until the connection fails
func (c *Connection) readReplies() {
	defer close(c.done)

	err := c.conn.Run(func(msg common.Message) error {
		c.correlator.deliver(msg)
		return nil
	})

	switch {
	case c.closing.Load() || errors.Is(err, net.ErrClosed):
		Logger.Debugf("Connection %q closed", c.name)
		err = nil
	case errors.Is(err, io.EOF):
		Logger.Warningf("Connection %q closed by server", c.name)
	default:
		Logger.Errorf("Connection %q failed: %v", c.name, err)
	}

	c.correlator.failAll(err)
	c.conn.Close()
}

// call sends req and waits for its reply.
// Without a deadline on ctx the configured timeout applies.
// An errResp is returned as error, as is a reply of an unexpected type.
func (c *Connection) call(ctx context.Context, req common.Message) (common.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout())
		defer cancel()
	}

	id, ch, err := c.correlator.register()
	if err != nil {
		return common.Message{}, err
	}

	req.ID = id
	if err := c.conn.Send(req); err != nil {
		c.correlator.abandon(id)
		return common.Message{}, fmt.Errorf("%w: %v", common.ErrTransportClosed, err)
	}

	reply, err := c.correlator.wait(ctx, id, ch)
	if err != nil {
		return common.Message{}, err
	}

	// Check if the response is an error response
	if reply.CmdType == common.MsgTError {
		return common.Message{}, common.ErrorFromReply(reply)
	}

	// Check if the type of the response is the expected type
	if expected := req.CmdType.ReplyType(); reply.CmdType != expected {
		return common.Message{}, fmt.Errorf("%w: unexpected reply %s, expected %s", common.ErrProtocol, reply.CmdType, expected)
	}

	return reply, nil
}

// cast sends req without waiting for a reply.
// A reply the server sends anyway is dropped by the correlator.
func (c *Connection) cast(req common.Message) error {
	if err := c.correlator.err(); err != nil {
		return err
	}

	req.ID = c.correlator.newID()
	if err := c.conn.Send(req); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransportClosed, err)
	}
	return nil
}
