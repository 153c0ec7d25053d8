package common

import (
	"errors"
	"fmt"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/auth"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/registry"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrTransportClosed is returned for every pending and future call on a dropped connection
	ErrTransportClosed = errors.New("transport closed")
	// ErrStoreUnknown is returned for operations on a name without a live store
	ErrStoreUnknown = registry.ErrStoreUnknown
	// ErrNotFound is returned by get operations for a missing key
	ErrNotFound = store.ErrKeyNotFound
	// ErrProtocol is returned for malformed or unexpected messages
	ErrProtocol = errors.New("protocol error")
	// ErrAuthRejected is returned if an id token was rejected
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrAuthRequired is returned for store operations on an unauthenticated connection if the server requires it
	ErrAuthRequired = errors.New("authentication required")
	// ErrTimeout is returned if no reply arrived in time
	ErrTimeout = errors.New("request timed out")
	// ErrBadRequest is returned for requests the store could not apply (e.g. index out of range)
	ErrBadRequest = errors.New("bad request")
	// ErrInternal is returned for all other server side failures
	ErrInternal = errors.New("internal error")
)

// ErrorCode is the machine readable error kind of an errResp message
type ErrorCode string

const (
	CodeStoreUnknown ErrorCode = "store_unknown"
	CodeNotFound     ErrorCode = "not_found"
	CodeProtocol     ErrorCode = "protocol"
	CodeAuthRejected ErrorCode = "auth_rejected"
	CodeAuthRequired ErrorCode = "auth_required"
	CodeBadRequest   ErrorCode = "bad_request"
	CodeInternal     ErrorCode = "internal"
)

// CodeOf maps an error from the store, registry or auth layer to its wire code
func CodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrStoreUnknown):
		return CodeStoreUnknown
	case errors.Is(err, store.ErrKeyNotFound):
		return CodeNotFound
	case errors.Is(err, ErrProtocol):
		return CodeProtocol
	case errors.Is(err, ErrAuthRejected),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongIssuer),
		errors.Is(err, auth.ErrWrongDomain):
		return CodeAuthRejected
	case errors.Is(err, ErrAuthRequired):
		return CodeAuthRequired
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, store.ErrNotAList),
		errors.Is(err, store.ErrOutOfRange),
		errors.Is(err, store.ErrInvalid):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

// ErrorFromReply converts an errResp message into an error wrapping the matching sentinel
func ErrorFromReply(msg Message) error {
	var sentinel error
	switch msg.Code {
	case CodeStoreUnknown:
		sentinel = ErrStoreUnknown
	case CodeNotFound:
		sentinel = ErrNotFound
	case CodeProtocol:
		sentinel = ErrProtocol
	case CodeAuthRejected:
		sentinel = ErrAuthRejected
	case CodeAuthRequired:
		sentinel = ErrAuthRequired
	case CodeBadRequest:
		sentinel = ErrBadRequest
	default:
		sentinel = ErrInternal
	}
	return fmt.Errorf("%w (server: %s)", sentinel, msg.Err)
}
