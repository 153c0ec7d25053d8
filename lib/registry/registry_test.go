package registry

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store/boltstore"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store/lstore"
)

func newTestRegistry(t *testing.T) *StoreRegistry {
	t.Helper()
	p, err := boltstore.NewPersister(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create persister: %v", err)
	}
	return NewStoreRegistry(lstore.NewFactory(p), lstore.NewLoader(p))
}

func TestCreateAndLookup(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Lookup("notes"); !errors.Is(err, ErrStoreUnknown) {
		t.Errorf("Lookup before create = %v, want ErrStoreUnknown", err)
	}

	r.Create("notes")
	if err := r.Set("notes", "k", []byte(`"v"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := r.Get("notes", "k")
	if err != nil || string(val) != `"v"` {
		t.Errorf("Get = %s, %v", val, err)
	}

	// create replaces the live store with an empty one
	r.Create("notes")
	if _, err := r.Get("notes", "k"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Get after re-create = %v, want ErrKeyNotFound", err)
	}
}

func TestUnknownStore(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Get("nope", "k"); !errors.Is(err, ErrStoreUnknown) {
		t.Errorf("Get = %v", err)
	}
	if err := r.Set("nope", "k", []byte("1")); !errors.Is(err, ErrStoreUnknown) {
		t.Errorf("Set = %v", err)
	}
	if _, err := r.Keys("nope"); !errors.Is(err, ErrStoreUnknown) {
		t.Errorf("Keys = %v", err)
	}
	if err := r.Persist("nope"); !errors.Is(err, ErrStoreUnknown) {
		t.Errorf("Persist = %v", err)
	}
}

func TestPersistRestore(t *testing.T) {
	r := newTestRegistry(t)
	r.Create("notes")
	r.Set("notes", "b", []byte("2"))
	r.Set("notes", "a", []byte("1"))

	if err := r.Persist("notes"); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	// unpersisted changes are dropped by restore
	r.Set("notes", "c", []byte("3"))
	if err := r.Restore("notes"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	keys, err := r.Keys("notes")
	if err != nil || !reflect.DeepEqual(keys, []string{"b", "a"}) {
		t.Errorf("Keys after restore = %v, %v", keys, err)
	}
}

func TestRestoreFailureKeepsStore(t *testing.T) {
	r := newTestRegistry(t)
	r.Create("live")
	r.Set("live", "k", []byte("1"))

	if err := r.Restore("live"); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("Restore = %v, want ErrNoSnapshot", err)
	}
	if val, err := r.Get("live", "k"); err != nil || string(val) != "1" {
		t.Errorf("Store changed after failed restore: %s, %v", val, err)
	}

	if err := r.Restore("never"); err == nil {
		t.Errorf("Restore of unknown snapshot succeeded")
	}
	if _, err := r.Lookup("never"); !errors.Is(err, ErrStoreUnknown) {
		t.Errorf("Failed restore installed a store")
	}
}

func TestPersistAll(t *testing.T) {
	r := newTestRegistry(t)
	for _, name := range []string{"one", "two"} {
		r.Create(name)
		r.Set(name, "k", []byte(`"`+name+`"`))
	}
	if err := r.PersistAll(); err != nil {
		t.Fatalf("PersistAll failed: %v", err)
	}
	for _, name := range []string{"one", "two"} {
		r.Create(name)
		if err := r.Restore(name); err != nil {
			t.Fatalf("Restore(%s) failed: %v", name, err)
		}
		if val, _ := r.Get(name, "k"); string(val) != `"`+name+`"` {
			t.Errorf("Restored %s = %s", name, val)
		}
	}
}

func TestPersistAllJoinsErrors(t *testing.T) {
	// stores without a persister fail to persist
	r := NewStoreRegistry(lstore.NewFactory(nil), lstore.NewLoader(nil))
	r.Create("a")
	r.Create("b")

	err := r.PersistAll()
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("PersistAll = %v, want ErrInvalid", err)
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Errorf("Expected two joined errors, got %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	r := newTestRegistry(t)
	for _, name := range []string{"gamma", "alpha", "beta"} {
		r.Create(name)
	}
	if names := r.Names(); !reflect.DeepEqual(names, []string{"alpha", "beta", "gamma"}) {
		t.Errorf("Names() = %v", names)
	}
}
