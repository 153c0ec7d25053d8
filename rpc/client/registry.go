package client

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/serializer"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrConnectionUnknown is returned by Lookup for a name without a connection
	ErrConnectionUnknown = errors.New("connection unknown")
	// ErrConnectionExists is returned by Register if the name is taken
	ErrConnectionExists = errors.New("connection already registered")
)

// Registry makes connections discoverable by name.
// A dropped connection is removed automatically.
type Registry struct {
	conns *xsync.MapOf[string, *Connection]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{conns: xsync.NewMapOf[string, *Connection]()}
}

// Connect dials a new connection and registers it under name
func (r *Registry) Connect(
	ctx context.Context,
	name string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Connection, error) {
	if _, ok := r.conns.Load(name); ok {
		return nil, fmt.Errorf("%w: %q", ErrConnectionExists, name)
	}

	conn, err := Dial(ctx, name, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	if err := r.Register(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Register adds conn under its name
func (r *Registry) Register(conn *Connection) error {
	if _, loaded := r.conns.LoadOrStore(conn.Name(), conn); loaded {
		return fmt.Errorf("%w: %q", ErrConnectionExists, conn.Name())
	}

	// Forget the connection once it is dropped, unless the name was reused
	go func() {
		<-conn.Done()
		r.conns.Compute(conn.Name(), func(current *Connection, loaded bool) (*Connection, bool) {
			return current, !loaded || current == conn
		})
	}()
	return nil
}

// Lookup returns the connection registered under name
func (r *Registry) Lookup(name string) (*Connection, error) {
	conn, ok := r.conns.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConnectionUnknown, name)
	}
	return conn, nil
}

// Close closes and removes the connection registered under name
func (r *Registry) Close(name string) error {
	conn, ok := r.conns.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrConnectionUnknown, name)
	}
	return conn.Close()
}

// CloseAll closes and removes every connection
func (r *Registry) CloseAll() error {
	var errs []error
	for _, name := range r.Names() {
		if err := r.Close(name); err != nil && !errors.Is(err, ErrConnectionUnknown) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns the names of all registered connections, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, r.conns.Size())
	r.conns.Range(func(name string, _ *Connection) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
