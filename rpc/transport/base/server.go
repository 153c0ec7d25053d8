package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the accept loop shared by all stream transports
type serverTransport struct {
	connector  IServerConnector
	handler    transport.ConnHandleFunc
	conns      *xsync.MapOf[uint64, net.Conn] // open connections, closed on shutdown
	nextConnID atomic.Uint64
	wg         sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport using the given connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[uint64, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ConnHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(ctx context.Context, config common.ServerConfig) error {
	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	return t.Serve(ctx, config, listener)
}

func (t *serverTransport) Serve(ctx context.Context, config common.ServerConfig, listener net.Listener) error {
	if t.handler == nil {
		listener.Close()
		return errors.New("no connection handler registered")
	}

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	// Stop accepting once the context is done
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()

	var acceptErr error
	backoff := 5 * time.Millisecond
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				acceptErr = err
				break
			}
			// Temporary failure (e.g. too many open files), retry with backoff
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(backoff)
			backoff = min(backoff*2, time.Second)
			continue
		}
		backoff = 5 * time.Millisecond

		if err := t.connector.UpgradeConnection(conn); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		// Track before handing off, shutdown must see every connection
		id := t.nextConnID.Add(1)
		t.conns.Store(id, conn)

		// Handle the connection in a goroutine
		t.wg.Add(1)
		go t.handleConnection(id, conn, config)
	}

	// Close all connections and wait for their handlers
	t.conns.Range(func(_ uint64, conn net.Conn) bool {
		conn.Close()
		return true
	})
	t.wg.Wait()

	Logger.Infof("Stopped %s server on %s", t.connector.GetName(), listener.Addr())
	return acceptErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection runs the handler for one connection and closes it afterwards
func (t *serverTransport) handleConnection(id uint64, conn net.Conn, config common.ServerConfig) {
	defer t.wg.Done()
	defer func() {
		t.conns.Delete(id)
		conn.Close()
	}()

	Logger.Debugf("Accepted connection %d from %s", id, conn.RemoteAddr())
	t.handler(NewStreamConn(conn, config.FrameLimit(), config.Timeout()))
	Logger.Debugf("Connection %d from %s closed", id, conn.RemoteAddr())
}
