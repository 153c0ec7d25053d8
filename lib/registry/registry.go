package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("registry")

// ErrStoreUnknown is returned for operations on a name without a live store
var ErrStoreUnknown = errors.New("store unknown")

// StoreRegistry owns the mapping from store name to live store.
// A name maps to at most one store at any time; Create and Restore replace
// the current instance, unpersisted changes of the replaced store are lost.
type StoreRegistry struct {
	stores  *xsync.MapOf[string, store.IStore]
	factory store.Factory
	loader  store.Loader
}

// NewStoreRegistry creates an empty registry.
// factory is used by Create, loader by Restore.
func NewStoreRegistry(factory store.Factory, loader store.Loader) *StoreRegistry {
	return &StoreRegistry{
		stores:  xsync.NewMapOf[string, store.IStore](),
		factory: factory,
		loader:  loader,
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Create installs a new empty store for name, discarding any prior instance
func (r *StoreRegistry) Create(name string) store.IStore {
	s := r.factory(name)
	if _, replaced := r.stores.LoadAndStore(name, s); replaced {
		Logger.Infof("replaced store %q with an empty store", name)
	} else {
		Logger.Infof("created store %q", name)
	}
	return s
}

// Restore loads name from durable storage and installs it, discarding any prior
// in-memory instance. On failure the current instance (if any) stays in place.
func (r *StoreRegistry) Restore(name string) error {
	s, err := r.loader(name)
	if err != nil {
		return err
	}
	r.stores.Store(name, s)
	Logger.Infof("restored store %q", name)
	return nil
}

// Persist writes the named store to durable storage
func (r *StoreRegistry) Persist(name string) error {
	s, err := r.Lookup(name)
	if err != nil {
		return err
	}
	return s.Persist()
}

// PersistAll writes every store to durable storage.
// All stores are attempted, the errors are joined.
func (r *StoreRegistry) PersistAll() error {
	var errs []error
	r.stores.Range(func(name string, s store.IStore) bool {
		if err := s.Persist(); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

// Lookup returns the live store for name or ErrStoreUnknown
func (r *StoreRegistry) Lookup(name string) (store.IStore, error) {
	s, ok := r.stores.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStoreUnknown, name)
	}
	return s, nil
}

// Names returns the names of all live stores, sorted
func (r *StoreRegistry) Names() []string {
	names := make([]string, 0, r.stores.Size())
	r.stores.Range(func(name string, _ store.IStore) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// Store Operations (delegate to the named store)
// --------------------------------------------------------------------------

// Get returns the value for key in the named store.
// A missing key yields store.ErrKeyNotFound.
func (r *StoreRegistry) Get(name, key string) ([]byte, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	val, ok, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrKeyNotFound, key)
	}
	return val, nil
}

// Set sets key to value in the named store
func (r *StoreRegistry) Set(name, key string, value []byte) error {
	s, err := r.Lookup(name)
	if err != nil {
		return err
	}
	return s.Set(key, value)
}

// Keys returns the keys of the named store in insertion order
func (r *StoreRegistry) Keys(name string) ([]string, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.Keys()
}
