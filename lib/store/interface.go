package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Entry is a single key-value pair as it is written to durable storage.
// Value holds the raw JSON encoding of the stored value.
type Entry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// IPersister is the durable storage behind a store.
// A store hands the persister a full snapshot of its entries on Persist and
// reads one back on Restore. The persister never sees partial updates.
type IPersister interface {
	// Save replaces the snapshot for the named store with the given entries.
	// The entries are stored in the order given.
	Save(name string, entries []Entry) (err error)
	// Load returns the snapshot for the named store in the order it was saved.
	// If no snapshot exists ErrNoSnapshot is returned.
	Load(name string) (entries []Entry, err error)
}

// Factory creates an empty store for the given name.
// This is used to abstract the creation of the store from the registry.
type Factory func(name string) IStore

// Loader creates a store for the given name from its last snapshot.
type Loader func(name string) (IStore, error)

// IStore is the interface for a single named key–value store.
// Values are raw JSON documents. All write operations return only an error
// (nil on success), read operations return the requested data along with an error.
type IStore interface {
	// Name returns the name the store was created with.
	Name() string
	// Set inserts or updates a key–value pair.
	Set(key string, value []byte) (err error)
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Keys returns all keys of the store in insertion order.
	Keys() (keys []string, err error)
	// Persist writes a snapshot of the store to durable storage.
	Persist() (err error)

	// GetIndex returns the element at index of the JSON array stored under key.
	GetIndex(key string, index int) (value []byte, err error)
	// SetIndex replaces the element at index of the JSON array stored under key.
	SetIndex(key string, index int, value []byte) (err error)
	// AppendIndex appends value to the JSON array stored under key.
	// If the key does not exist a new single element array is created.
	AppendIndex(key string, value []byte) (err error)
	// LenIndex returns the length of the JSON array stored under key.
	LenIndex(key string) (length int, err error)
	// RecentIndex returns the last num elements of the JSON array stored under key as a JSON array.
	RecentIndex(key string, num int) (value []byte, err error)
}

// ErrNoSnapshot is returned by IPersister.Load if nothing was saved for a name.
var ErrNoSnapshot = errors.New("no snapshot found")

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a store error with the same code.
// This allows errors.Is(err, store.ErrKeyNotFound) for errors carrying a custom message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinel values to be used with errors.Is
var (
	ErrKeyNotFound = NewError(RetCKeyNotFound, "key not found")
	ErrNotAList    = NewError(RetCNotAList, "value is not a list")
	ErrOutOfRange  = NewError(RetCOutOfRange, "index out of range")
	ErrInvalid     = NewError(RetCInvalidOperation, "invalid operation")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation (e.g. malformed value).
	RetCKeyNotFound                     // 3: The key does not exist.
	RetCNotAList                        // 4: Index operation on a value that is not a JSON array.
	RetCOutOfRange                      // 5: Index outside of the array.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCKeyNotFound:
		return "KeyNotFound"
	case RetCNotAList:
		return "NotAList"
	case RetCOutOfRange:
		return "OutOfRange"
	default:
		return "Unknown"
	}
}
