package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/gorilla/websocket"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// NewWSServerTransport creates a new websocket server transport.
// The upgrade is accepted on every path, browser clients from any origin are allowed.
func NewWSServerTransport() transport.IRPCServerTransport {
	return &wsServerTransport{
		conns: xsync.NewMapOf[uint64, transport.IConn](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type wsServerTransport struct {
	handler    transport.ConnHandleFunc
	config     common.ServerConfig
	upgrader   websocket.Upgrader
	conns      *xsync.MapOf[uint64, transport.IConn] // hijacked connections are not closed by http.Server
	nextConnID atomic.Uint64

	mu      sync.Mutex // guards closing and wg.Add
	closing bool
	wg      sync.WaitGroup
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *wsServerTransport) RegisterHandler(handler transport.ConnHandleFunc) {
	t.handler = handler
}

func (t *wsServerTransport) Listen(ctx context.Context, config common.ServerConfig) error {
	listener, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	return t.Serve(ctx, config, listener)
}

func (t *wsServerTransport) Serve(ctx context.Context, config common.ServerConfig, listener net.Listener) error {
	if t.handler == nil {
		listener.Close()
		return errors.New("no connection handler registered")
	}
	t.config = config

	var handler http.HandlerFunc = t.handleUpgrade
	if config.LogLevel == "debug" {
		handler = loggerMiddleware(handler)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: writeWait,
	}

	Logger.Infof("Starting websocket server on %s", listener.Addr())

	stop := context.AfterFunc(ctx, func() {
		server.Close()
	})
	defer stop()

	err := server.Serve(listener)

	// Close all upgraded connections and wait for their handlers
	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()
	t.conns.Range(func(_ uint64, conn transport.IConn) bool {
		conn.Close()
		return true
	})
	t.wg.Wait()

	Logger.Infof("Stopped websocket server on %s", listener.Addr())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleUpgrade upgrades the request and runs the handler for the connection
func (t *wsServerTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an http error
		Logger.Warningf("Failed to upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}

	conn := newConn(wsConn, t.config.FrameLimit(), t.config.Timeout())

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.wg.Add(1)
	id := t.nextConnID.Add(1)
	t.conns.Store(id, conn)
	t.mu.Unlock()

	defer t.wg.Done()
	defer func() {
		t.conns.Delete(id)
		conn.Close()
	}()

	Logger.Debugf("Accepted websocket connection %d from %s", id, conn.RemoteAddr())
	t.handler(conn)
	Logger.Debugf("Websocket connection %d from %s closed", id, conn.RemoteAddr())
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// loggerMiddleware is a middleware that logs the upgrade requests and how long the connection lived
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		Logger.Debugf("%s %s from %s ended after %s", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	}
}
