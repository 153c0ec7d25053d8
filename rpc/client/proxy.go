package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
)

// StoreProxy gives access to one named store through a connection.
// Values are JSON encoded with encoding/json, a json.RawMessage is sent as is.
//
// Get, List and the index reads block until the reply arrives or the call times out.
// Set, SetIndex, Persist, Restore and Create only wait until the request is written.
type StoreProxy struct {
	conn *Connection
	name string
}

// Name returns the name of the store
func (p *StoreProxy) Name() string {
	return p.name
}

// --------------------------------------------------------------------------
// Values
// --------------------------------------------------------------------------

// Get returns the raw JSON value of key.
// A missing key returns an error wrapping common.ErrNotFound, a missing store common.ErrStoreUnknown.
func (p *StoreProxy) Get(ctx context.Context, key string) (json.RawMessage, error) {
	reply, err := p.conn.call(ctx, common.NewGetRequest(p.name, key))
	if err != nil {
		return nil, err
	}
	return reply.Val, nil
}

// GetInto decodes the value of key into v
func (p *StoreProxy) GetInto(ctx context.Context, key string, v any) error {
	val, err := p.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("failed to decode value of %q: %w", key, err)
	}
	return nil
}

// Set sets key to value without waiting for the server.
// Errors on the server side (e.g. an unknown store) are only logged, use SetAndWait to get them.
func (p *StoreProxy) Set(key string, value any) error {
	val, err := encodeValue(value)
	if err != nil {
		return err
	}
	return p.conn.cast(common.NewSetRequest(p.name, key, val))
}

// SetAndWait sets key to value and waits for the acknowledgement
func (p *StoreProxy) SetAndWait(ctx context.Context, key string, value any) error {
	val, err := encodeValue(value)
	if err != nil {
		return err
	}
	_, err = p.conn.call(ctx, common.NewSetRequest(p.name, key, val))
	return err
}

// List returns the keys of the store in insertion order
func (p *StoreProxy) List(ctx context.Context) ([]string, error) {
	reply, err := p.conn.call(ctx, common.NewListRequest(p.name))
	if err != nil {
		return nil, err
	}
	return reply.Keys()
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Persist asks the server to write the store to disk
func (p *StoreProxy) Persist() error {
	return p.conn.cast(common.NewPersistRequest(p.name))
}

// Restore asks the server to replace the store with its last snapshot
func (p *StoreProxy) Restore() error {
	return p.conn.cast(common.NewRestoreRequest(p.name))
}

// Create asks the server to replace the store with an empty one
func (p *StoreProxy) Create() error {
	return p.conn.cast(common.NewCreateRequest(p.name))
}

// --------------------------------------------------------------------------
// Lists
// --------------------------------------------------------------------------

// GetIndex returns the element at index of the list stored under key
func (p *StoreProxy) GetIndex(ctx context.Context, key string, index int) (json.RawMessage, error) {
	reply, err := p.conn.call(ctx, common.NewGetIndexRequest(p.name, key, index))
	if err != nil {
		return nil, err
	}
	return reply.Val, nil
}

// SetIndex replaces the element at index without waiting for the server
func (p *StoreProxy) SetIndex(key string, index int, value any) error {
	val, err := encodeValue(value)
	if err != nil {
		return err
	}
	return p.conn.cast(common.NewSetIndexRequest(p.name, key, index, val))
}

// SetIndexAndWait replaces the element at index and waits for the acknowledgement
func (p *StoreProxy) SetIndexAndWait(ctx context.Context, key string, index int, value any) error {
	val, err := encodeValue(value)
	if err != nil {
		return err
	}
	_, err = p.conn.call(ctx, common.NewSetIndexRequest(p.name, key, index, val))
	return err
}

// AppendIndex appends value to the list stored under key, a missing key starts a new list
func (p *StoreProxy) AppendIndex(ctx context.Context, key string, value any) error {
	val, err := encodeValue(value)
	if err != nil {
		return err
	}
	_, err = p.conn.call(ctx, common.NewAppendIndexRequest(p.name, key, val))
	return err
}

// LenIndex returns the length of the list stored under key
func (p *StoreProxy) LenIndex(ctx context.Context, key string) (int, error) {
	reply, err := p.conn.call(ctx, common.NewLenIndexRequest(p.name, key))
	if err != nil {
		return 0, err
	}
	var length int
	if err := json.Unmarshal(reply.Val, &length); err != nil {
		return 0, fmt.Errorf("%w: invalid length: %v", common.ErrProtocol, err)
	}
	return length, nil
}

// RecentIndex returns the last num elements of the list stored under key
func (p *StoreProxy) RecentIndex(ctx context.Context, key string, num int) ([]json.RawMessage, error) {
	reply, err := p.conn.call(ctx, common.NewRecentIndexRequest(p.name, key, num))
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(reply.Val, &items); err != nil {
		return nil, fmt.Errorf("%w: invalid list: %v", common.ErrProtocol, err)
	}
	return items, nil
}

// encodeValue converts a value into its JSON encoding
func encodeValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: value is not valid JSON", common.ErrBadRequest)
		}
		return raw, nil
	}
	val, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode value: %v", common.ErrBadRequest, err)
	}
	return val, nil
}
