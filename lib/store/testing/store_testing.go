package testing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store"
)

// Backend creates a fresh durable storage and returns a factory and a loader
// working on it. Each call must return an independent storage.
type Backend func(t testing.TB) (store.Factory, store.Loader)

// RunStoreTests runs a comprehensive test suite for a store.IStore implementation.
func RunStoreTests(t *testing.T, name string, backend Backend) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, backend)
		})

		t.Run("InvalidValue", func(t *testing.T) {
			testInvalidValue(t, backend)
		})

		t.Run("KeyOrder", func(t *testing.T) {
			testKeyOrder(t, backend)
		})

		t.Run("PersistRestore", func(t *testing.T) {
			testPersistRestore(t, backend)
		})

		t.Run("RestoreMissing", func(t *testing.T) {
			testRestoreMissing(t, backend)
		})

		t.Run("IndexOperations", func(t *testing.T) {
			testIndexOperations(t, backend)
		})

		t.Run("IndexErrors", func(t *testing.T) {
			testIndexErrors(t, backend)
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, backend)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newStore(t testing.TB, backend Backend, name string) store.IStore {
	factory, _ := backend(t)
	return factory(name)
}

func mustSet(t testing.TB, s store.IStore, key, value string) {
	t.Helper()
	if err := s.Set(key, []byte(value)); err != nil {
		t.Fatalf("Set(%q, %s) failed: %v", key, value, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, backend Backend) {
	s := newStore(t, backend, "test")

	if s.Name() != "test" {
		t.Errorf("Name() = %q, want test", s.Name())
	}

	mustSet(t, s, "key", `{"a":1}`)
	result, ok, err := s.Get("key")
	if err != nil || !ok {
		t.Fatalf("Expected key to exist after Set, got ok=%v err=%v", ok, err)
	}
	if string(result) != `{"a":1}` {
		t.Errorf("Expected value {\"a\":1}, got %s", result)
	}

	mustSet(t, s, "key", `"second"`)
	result, _, _ = s.Get("key")
	if string(result) != `"second"` {
		t.Errorf("Expected overwritten value, got %s", result)
	}

	if _, ok, err := s.Get("nonexistent-key"); ok || err != nil {
		t.Errorf("Expected nonexistent key to return ok=false, got ok=%v err=%v", ok, err)
	}

	// returned values must not alias the stored ones
	result[0] = 'X'
	again, _, _ := s.Get("key")
	if !bytes.Equal(again, []byte(`"second"`)) {
		t.Errorf("Modifying a returned value changed the store: %s", again)
	}

	// nor must the stored value alias the caller's buffer
	buf := []byte("123")
	if err := s.Set("buf", buf); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	buf[0] = '9'
	if val, _, _ := s.Get("buf"); string(val) != "123" {
		t.Errorf("Modifying the input buffer changed the store: %s", val)
	}
}

func testInvalidValue(t *testing.T, backend Backend) {
	s := newStore(t, backend, "test")

	for _, value := range []string{"", "{", "not json", `{"a":}`} {
		err := s.Set("key", []byte(value))
		if !errors.Is(err, store.ErrInvalid) {
			t.Errorf("Set(%q) error = %v, want ErrInvalid", value, err)
		}
	}

	if keys, _ := s.Keys(); len(keys) != 0 {
		t.Errorf("Invalid values were stored: %v", keys)
	}
}

func testKeyOrder(t *testing.T, backend Backend) {
	s := newStore(t, backend, "test")

	for i, key := range []string{"c", "a", "b"} {
		mustSet(t, s, key, fmt.Sprint(i))
	}
	// an update keeps the position
	mustSet(t, s, "c", "10")

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"c", "a", "b"}) {
		t.Errorf("Keys() = %v, want [c a b]", keys)
	}

	// the returned slice is a copy
	keys[0] = "changed"
	if again, _ := s.Keys(); again[0] != "c" {
		t.Errorf("Modifying the key list changed the store")
	}
}

func testPersistRestore(t *testing.T, backend Backend) {
	factory, loader := backend(t)
	s := factory("notes")

	mustSet(t, s, "b", "1")
	mustSet(t, s, "a", `[1,2,3]`)
	mustSet(t, s, "c", `{"nested":{"x":true}}`)

	if err := s.Persist(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	// changes after the snapshot are not part of it
	mustSet(t, s, "d", "4")

	restored, err := loader("notes")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	keys, _ := restored.Keys()
	if !reflect.DeepEqual(keys, []string{"b", "a", "c"}) {
		t.Errorf("Restored keys = %v, want [b a c]", keys)
	}
	for key, want := range map[string]string{"b": "1", "a": "[1,2,3]", "c": `{"nested":{"x":true}}`} {
		val, ok, err := restored.Get(key)
		if err != nil || !ok || string(val) != want {
			t.Errorf("Restored Get(%q) = %s, %v, %v, want %s", key, val, ok, err, want)
		}
	}

	// the restored store is independent of the original
	mustSet(t, restored, "e", "5")
	if _, ok, _ := s.Get("e"); ok {
		t.Errorf("Restored store shares state with the original")
	}

	// a second persist replaces the snapshot
	if err := restored.Persist(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	again, err := loader("notes")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if keys, _ := again.Keys(); !reflect.DeepEqual(keys, []string{"b", "a", "c", "e"}) {
		t.Errorf("Keys after second snapshot = %v", keys)
	}

	// an empty store round trips
	empty := factory("empty")
	if err := empty.Persist(); err != nil {
		t.Fatalf("Persist of empty store failed: %v", err)
	}
	restoredEmpty, err := loader("empty")
	if err != nil {
		t.Fatalf("Restore of empty store failed: %v", err)
	}
	if keys, _ := restoredEmpty.Keys(); len(keys) != 0 {
		t.Errorf("Restored empty store has keys %v", keys)
	}
}

func testRestoreMissing(t *testing.T, backend Backend) {
	_, loader := backend(t)
	if _, err := loader("never-persisted"); !errors.Is(err, store.ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}
}

func testIndexOperations(t *testing.T, backend Backend) {
	s := newStore(t, backend, "test")

	// append on a missing key starts a list
	for _, v := range []string{`"a"`, `"b"`, `{"c":3}`} {
		if err := s.AppendIndex("list", []byte(v)); err != nil {
			t.Fatalf("AppendIndex(%s) failed: %v", v, err)
		}
	}

	if n, err := s.LenIndex("list"); err != nil || n != 3 {
		t.Errorf("LenIndex = %d, %v, want 3", n, err)
	}

	if val, err := s.GetIndex("list", 2); err != nil || string(val) != `{"c":3}` {
		t.Errorf("GetIndex(2) = %s, %v", val, err)
	}

	if err := s.SetIndex("list", 0, []byte(`"A"`)); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}
	if val, _, _ := s.Get("list"); string(val) != `["A","b",{"c":3}]` {
		t.Errorf("Get(list) = %s", val)
	}

	testCases := []struct {
		num  int
		want string
	}{
		{num: 0, want: `[]`},
		{num: 2, want: `["b",{"c":3}]`},
		{num: 3, want: `["A","b",{"c":3}]`},
		{num: 10, want: `["A","b",{"c":3}]`},
	}
	for _, tc := range testCases {
		val, err := s.RecentIndex("list", tc.num)
		if err != nil || string(val) != tc.want {
			t.Errorf("RecentIndex(%d) = %s, %v, want %s", tc.num, val, err, tc.want)
		}
	}

	// a list set as a whole works with the index operations
	mustSet(t, s, "plain", `[ 1, 2 ]`)
	if n, err := s.LenIndex("plain"); err != nil || n != 2 {
		t.Errorf("LenIndex(plain) = %d, %v", n, err)
	}
}

func testIndexErrors(t *testing.T, backend Backend) {
	s := newStore(t, backend, "test")
	mustSet(t, s, "list", `[1,2]`)
	mustSet(t, s, "scalar", `"text"`)
	mustSet(t, s, "null", `null`)

	testCases := []struct {
		name string
		err  error
		want error
	}{
		{"GetIndex missing", errOf(s.GetIndex("missing", 0)), store.ErrKeyNotFound},
		{"GetIndex scalar", errOf(s.GetIndex("scalar", 0)), store.ErrNotAList},
		{"GetIndex null", errOf(s.GetIndex("null", 0)), store.ErrNotAList},
		{"GetIndex negative", errOf(s.GetIndex("list", -1)), store.ErrOutOfRange},
		{"GetIndex past end", errOf(s.GetIndex("list", 2)), store.ErrOutOfRange},
		{"SetIndex past end", s.SetIndex("list", 2, []byte("3")), store.ErrOutOfRange},
		{"SetIndex missing", s.SetIndex("missing", 0, []byte("3")), store.ErrKeyNotFound},
		{"SetIndex invalid", s.SetIndex("list", 0, []byte("{")), store.ErrInvalid},
		{"AppendIndex scalar", s.AppendIndex("scalar", []byte("3")), store.ErrNotAList},
		{"AppendIndex invalid", s.AppendIndex("list", []byte("")), store.ErrInvalid},
		{"LenIndex missing", errOf(s.LenIndex("missing")), store.ErrKeyNotFound},
		{"RecentIndex negative", errOf(s.RecentIndex("list", -1)), store.ErrInvalid},
		{"RecentIndex scalar", errOf(s.RecentIndex("scalar", 1)), store.ErrNotAList},
	}

	for _, tc := range testCases {
		if !errors.Is(tc.err, tc.want) {
			t.Errorf("%s: error = %v, want %v", tc.name, tc.err, tc.want)
		}
	}

	// failed operations leave the value untouched
	if val, _, _ := s.Get("list"); string(val) != `[1,2]` {
		t.Errorf("Failed operations changed the list: %s", val)
	}
}

// errOf returns the error of a two value result
func errOf(_ any, err error) error {
	return err
}

func testConcurrent(t *testing.T, backend Backend) {
	s := newStore(t, backend, "test")

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("k-%d-%d", w, i)
				if err := s.Set(key, []byte(fmt.Sprint(i))); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
				if err := s.AppendIndex("shared", []byte(fmt.Sprint(w))); err != nil {
					t.Errorf("AppendIndex failed: %v", err)
					return
				}
				if _, _, err := s.Get(key); err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
			}
		}(w)
	}

	// persist while writers are running
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			if err := s.Persist(); err != nil {
				t.Errorf("Persist failed: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	keys, _ := s.Keys()
	if len(keys) != workers*perWorker+1 {
		t.Errorf("Expected %d keys, got %d", workers*perWorker+1, len(keys))
	}
	if n, _ := s.LenIndex("shared"); n != workers*perWorker {
		t.Errorf("Expected %d appended items, got %d", workers*perWorker, n)
	}

	var items []int
	val, _, _ := s.Get("shared")
	if err := json.Unmarshal(val, &items); err != nil {
		t.Errorf("shared list is not valid JSON: %v", err)
	}
}
