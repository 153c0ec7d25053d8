package server

import (
	"context"
	"net"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/auth"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/registry"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/serializer"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// RPCServer serves the stores of a registry over a transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	registry   *registry.StoreRegistry
	verifier   auth.IAuthVerifier
	metrics    *serverMetrics
}

// NewRPCServer creates a new RPC server.
// A nil verifier rejects every g_auth request.
//
// Usage:
//
//	persister, _ := boltstore.NewPersister(config.DataDir)
//	s := server.NewRPCServer(
//		config,
//		ws.NewWSServerTransport(),
//		serializer.NewJSONSerializer(),
//		registry.NewStoreRegistry(lstore.NewFactory(persister), lstore.NewLoader(persister)),
//		verifier,
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	registry *registry.StoreRegistry,
	verifier auth.IAuthVerifier,
) *RPCServer {
	if verifier == nil {
		verifier = auth.NewDenyVerifier("authentication is not configured")
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	s := &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		registry:   registry,
		verifier:   verifier,
		metrics:    newServerMetrics(),
	}
	transport.RegisterHandler(s.serveConn)
	return s
}

// Registry returns the registry holding the served stores
func (s *RPCServer) Registry() *registry.StoreRegistry {
	return s.registry
}

// Serve restores the startup stores and serves config.Endpoint until ctx is cancelled.
// If configured, the admin http server runs alongside and all stores are
// persisted after the last connection is closed.
func (s *RPCServer) Serve(ctx context.Context) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.transport.Listen(ctx, s.config)
	})
}

// ServeListener is like Serve but accepts connections on an existing listener
func (s *RPCServer) ServeListener(ctx context.Context, listener net.Listener) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.transport.Serve(ctx, s.config, listener)
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) run(ctx context.Context, serve func(ctx context.Context) error) error {
	s.bootstrap()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.config.MetricsEndpoint != "" {
		adminDone := make(chan struct{})
		go func() {
			defer close(adminDone)
			if err := s.serveAdmin(ctx, s.config.MetricsEndpoint); err != nil {
				Logger.Errorf("Admin server failed: %v", err)
			}
		}()
		defer func() { <-adminDone }()
	}

	err := serve(ctx)
	// stops the admin server when serve fails before ctx is done
	cancel()

	if s.config.PersistOnShutdown {
		if perr := s.registry.PersistAll(); perr != nil {
			Logger.Errorf("Failed to persist stores on shutdown: %v", perr)
		} else {
			Logger.Infof("Persisted %d stores on shutdown", len(s.registry.Names()))
		}
	}

	return err
}

// serveConn is the transport handler for a single connection
func (s *RPCServer) serveConn(conn transport.IConn) {
	s.metrics.connOpened()
	defer s.metrics.connClosed()

	Logger.Infof("Client connected from %s", conn.RemoteAddr())
	newDispatcher(s, base.NewMsgConn(conn, s.serializer)).run()
}
