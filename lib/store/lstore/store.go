package lstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

type storeImpl struct {
	name      string
	persister store.IPersister

	mu    sync.RWMutex
	data  map[string][]byte
	order []string // keys in insertion order
}

// NewLocalStore creates a new, empty local store instance.
// The store lives in memory, the persister is only used by Persist.
// A nil persister creates a store that cannot be persisted.
func NewLocalStore(name string, persister store.IPersister) store.IStore {
	return &storeImpl{
		name:      name,
		persister: persister,
		data:      make(map[string][]byte),
	}
}

// RestoreLocalStore creates a local store from the last snapshot saved by the persister.
func RestoreLocalStore(name string, persister store.IPersister) (store.IStore, error) {
	if persister == nil {
		return nil, store.NewError(store.RetCInvalidOperation, "no durable storage configured")
	}

	entries, err := persister.Load(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load store %q: %w", name, err)
	}

	s := &storeImpl{
		name:      name,
		persister: persister,
		data:      make(map[string][]byte, len(entries)),
		order:     make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		s.setLocked(e.Key, e.Value)
	}

	Logger.Debugf("restored store %q with %d keys", name, len(entries))
	return s, nil
}

// NewFactory returns a store.Factory creating local stores backed by persister
func NewFactory(persister store.IPersister) store.Factory {
	return func(name string) store.IStore {
		return NewLocalStore(name, persister)
	}
}

// NewLoader returns a store.Loader restoring local stores from persister
func NewLoader(persister store.IPersister) store.Loader {
	return func(name string) (store.IStore, error) {
		return RestoreLocalStore(name, persister)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Name() string {
	return s.name
}

func (s *storeImpl) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return store.NewError(store.RetCInvalidOperation, "value is not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value)
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(val), true, nil
}

func (s *storeImpl) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys, nil
}

func (s *storeImpl) Persist() error {
	if s.persister == nil {
		return store.NewError(store.RetCInvalidOperation, "no durable storage configured")
	}

	// Snapshot under the read lock, write without holding it
	s.mu.RLock()
	entries := make([]store.Entry, 0, len(s.order))
	for _, key := range s.order {
		entries = append(entries, store.Entry{Key: key, Value: s.data[key]})
	}
	s.mu.RUnlock()

	if err := s.persister.Save(s.name, entries); err != nil {
		return fmt.Errorf("failed to persist store %q: %w", s.name, err)
	}

	Logger.Debugf("persisted store %q with %d keys", s.name, len(entries))
	return nil
}

func (s *storeImpl) GetIndex(key string, index int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.listLocked(key)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(items) {
		return nil, outOfRange(index, len(items))
	}
	return bytes.Clone(items[index]), nil
}

func (s *storeImpl) SetIndex(key string, index int, value []byte) error {
	if !json.Valid(value) {
		return store.NewError(store.RetCInvalidOperation, "value is not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.listLocked(key)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(items) {
		return outOfRange(index, len(items))
	}
	items[index] = value
	return s.writeListLocked(key, items)
}

func (s *storeImpl) AppendIndex(key string, value []byte) error {
	if !json.Valid(value) {
		return store.NewError(store.RetCInvalidOperation, "value is not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.listLocked(key)
	if errors.Is(err, store.ErrKeyNotFound) {
		items, err = nil, nil
	}
	if err != nil {
		return err
	}
	return s.writeListLocked(key, append(items, value))
}

func (s *storeImpl) LenIndex(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.listLocked(key)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *storeImpl) RecentIndex(key string, num int) ([]byte, error) {
	if num < 0 {
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("num must not be negative, got %d", num))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.listLocked(key)
	if err != nil {
		return nil, err
	}
	if num > len(items) {
		num = len(items)
	}
	return json.Marshal(items[len(items)-num:])
}

// --------------------------------------------------------------------------
// Helper Methods (callers hold s.mu)
// --------------------------------------------------------------------------

func (s *storeImpl) setLocked(key string, value []byte) {
	if _, ok := s.data[key]; !ok {
		s.order = append(s.order, key)
	}
	s.data[key] = bytes.Clone(value)
}

// listLocked decodes the value under key as a JSON array
func (s *storeImpl) listLocked(key string) ([]json.RawMessage, error) {
	val, ok := s.data[key]
	if !ok {
		return nil, store.ErrKeyNotFound
	}

	// json.Unmarshal accepts null for slices, so check the shape first
	if trimmed := bytes.TrimSpace(val); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, store.NewError(store.RetCNotAList, fmt.Sprintf("value of key %q is not a list", key))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(val, &items); err != nil {
		return nil, store.NewError(store.RetCNotAList, fmt.Sprintf("value of key %q is not a list: %v", key, err))
	}
	return items, nil
}

func (s *storeImpl) writeListLocked(key string, items []json.RawMessage) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	s.setLocked(key, encoded)
	return nil
}

func outOfRange(index, length int) error {
	return store.NewError(store.RetCOutOfRange, fmt.Sprintf("index %d out of range for list of length %d", index, length))
}
