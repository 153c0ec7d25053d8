package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message. Messages are passed
// by value and not modified after construction.
type Message struct {
	// Type of message
	CmdType MessageType `json:"cmdType"`

	// ID correlates a reply with its request.
	// Set by the client on every request, echoed by the server on every reply.
	ID uint64 `json:"id,omitempty"`

	// General fields
	Key   string          `json:"key,omitempty"`    // Used for: get_val, set_val, index operations
	DBKey string          `json:"db_key,omitempty"` // Name of the store, empty for g_auth (and "all" for wtd)
	Val   json.RawMessage `json:"val,omitempty"`    // Used for: set_val (request), getResp, indexResp
	Msg   string          `json:"msg,omitempty"`    // Used for: setResp, ldResp (JSON key list), authResp (subject)

	// Auth fields
	IDToken string `json:"id_token,omitempty"` // Used for: g_auth

	// Index operation fields
	Index int             `json:"index,omitempty"` // Used for: get_index, set_index
	Num   int             `json:"num,omitempty"`   // Used for: get_recent_index
	Value json.RawMessage `json:"value,omitempty"` // Used for: set_index, append_index

	// Error fields (errResp only)
	Code ErrorCode `json:"code,omitempty"`
	Err  string    `json:"err,omitempty"`
}

// String returns a short representation for logging, values are left out
func (m Message) String() string {
	return fmt.Sprintf("%s(id=%d, db_key=%q, key=%q)", m.CmdType, m.ID, m.DBKey, m.Key)
}

// Keys decodes the key list carried by a ldResp message
func (m Message) Keys() ([]string, error) {
	var keys []string
	if err := json.Unmarshal([]byte(m.Msg), &keys); err != nil {
		return nil, fmt.Errorf("%w: invalid key list: %v", ErrProtocol, err)
	}
	return keys, nil
}

// --------------------------------------------------------------------------
// Message Factory Functions (requests)
// --------------------------------------------------------------------------

// NewGetRequest creates a new get_val request
func NewGetRequest(dbKey, key string) Message {
	return Message{CmdType: MsgTGetVal, DBKey: dbKey, Key: key}
}

// NewSetRequest creates a new set_val request
func NewSetRequest(dbKey, key string, val json.RawMessage) Message {
	return Message{CmdType: MsgTSetVal, DBKey: dbKey, Key: key, Val: val}
}

// NewListRequest creates a new list_databases request (lists the keys of one store)
func NewListRequest(dbKey string) Message {
	return Message{CmdType: MsgTListKeys, DBKey: dbKey}
}

// NewPersistRequest creates a new wtd request. An empty dbKey persists all stores.
func NewPersistRequest(dbKey string) Message {
	return Message{CmdType: MsgTPersist, DBKey: dbKey}
}

// NewRestoreRequest creates a new rfd request
func NewRestoreRequest(dbKey string) Message {
	return Message{CmdType: MsgTRestore, DBKey: dbKey}
}

// NewCreateRequest creates a new cdb request
func NewCreateRequest(dbKey string) Message {
	return Message{CmdType: MsgTCreate, DBKey: dbKey}
}

// NewAuthRequest creates a new g_auth request
func NewAuthRequest(idToken string) Message {
	return Message{CmdType: MsgTAuth, IDToken: idToken}
}

// NewGetIndexRequest creates a new get_index request
func NewGetIndexRequest(dbKey, key string, index int) Message {
	return Message{CmdType: MsgTGetIndex, DBKey: dbKey, Key: key, Index: index}
}

// NewSetIndexRequest creates a new set_index request
func NewSetIndexRequest(dbKey, key string, index int, value json.RawMessage) Message {
	return Message{CmdType: MsgTSetIndex, DBKey: dbKey, Key: key, Index: index, Value: value}
}

// NewAppendIndexRequest creates a new append_index request
func NewAppendIndexRequest(dbKey, key string, value json.RawMessage) Message {
	return Message{CmdType: MsgTAppendIndex, DBKey: dbKey, Key: key, Value: value}
}

// NewLenIndexRequest creates a new get_len_index request
func NewLenIndexRequest(dbKey, key string) Message {
	return Message{CmdType: MsgTLenIndex, DBKey: dbKey, Key: key}
}

// NewRecentIndexRequest creates a new get_recent_index request
func NewRecentIndexRequest(dbKey, key string, num int) Message {
	return Message{CmdType: MsgTRecentIndex, DBKey: dbKey, Key: key, Num: num}
}

// --------------------------------------------------------------------------
// Message Factory Functions (replies)
// --------------------------------------------------------------------------

// NewGetResponse creates a new getResp reply
func NewGetResponse(id uint64, dbKey, key string, val json.RawMessage) Message {
	return Message{CmdType: MsgTGetResp, ID: id, DBKey: dbKey, Key: key, Val: val}
}

// NewSetResponse creates a new setResp reply
func NewSetResponse(id uint64) Message {
	return Message{CmdType: MsgTSetResp, ID: id, Msg: "Value Set."}
}

// NewListResponse creates a new ldResp reply, msg holds the JSON encoded key list
func NewListResponse(id uint64, keys []string) Message {
	if keys == nil {
		keys = []string{}
	}
	encoded, _ := json.Marshal(keys) // a []string always encodes
	return Message{CmdType: MsgTListResp, ID: id, Msg: string(encoded)}
}

// NewAuthResponse creates a new authResp reply carrying the verified subject
func NewAuthResponse(id uint64, subject string) Message {
	return Message{CmdType: MsgTAuthResp, ID: id, Msg: subject}
}

// NewIndexResponse creates a new indexResp reply
func NewIndexResponse(id uint64, dbKey, key string, val json.RawMessage) Message {
	return Message{CmdType: MsgTIndexResp, ID: id, DBKey: dbKey, Key: key, Val: val}
}

// NewErrorResponse creates a new errResp reply for err
func NewErrorResponse(id uint64, err error) Message {
	return Message{CmdType: MsgTError, ID: id, Code: CodeOf(err), Err: err.Error()}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
// On the wire it is the cmdType string.
type MessageType uint8

// String returns the wire name of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTGetVal:
		return "get_val"
	case MsgTGetResp:
		return "getResp"
	case MsgTSetVal:
		return "set_val"
	case MsgTSetResp:
		return "setResp"
	case MsgTListKeys:
		return "list_databases"
	case MsgTListResp:
		return "ldResp"
	case MsgTPersist:
		return "wtd"
	case MsgTRestore:
		return "rfd"
	case MsgTCreate:
		return "cdb"
	case MsgTAuth:
		return "g_auth"
	case MsgTAuthResp:
		return "authResp"
	case MsgTGetIndex:
		return "get_index"
	case MsgTSetIndex:
		return "set_index"
	case MsgTAppendIndex:
		return "append_index"
	case MsgTLenIndex:
		return "get_len_index"
	case MsgTRecentIndex:
		return "get_recent_index"
	case MsgTIndexResp:
		return "indexResp"
	case MsgTError:
		return "errResp"
	default:
		return "unknown"
	}
}

// ReplyType returns the type of the reply the server sends for a request of type t.
// MsgTUnknown is returned for requests that get no reply.
func (t MessageType) ReplyType() MessageType {
	switch t {
	case MsgTGetVal:
		return MsgTGetResp
	case MsgTSetVal, MsgTSetIndex, MsgTAppendIndex:
		return MsgTSetResp
	case MsgTListKeys:
		return MsgTListResp
	case MsgTAuth:
		return MsgTAuthResp
	case MsgTGetIndex, MsgTLenIndex, MsgTRecentIndex:
		return MsgTIndexResp
	default:
		return MsgTUnknown
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// Unknown names decode to MsgTUnknown so that a peer sending newer commands
// gets an error reply instead of losing the connection.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "get_val":
		*t = MsgTGetVal
	case "getResp":
		*t = MsgTGetResp
	case "set_val":
		*t = MsgTSetVal
	case "setResp":
		*t = MsgTSetResp
	case "list_databases":
		*t = MsgTListKeys
	case "ldResp":
		*t = MsgTListResp
	case "wtd":
		*t = MsgTPersist
	case "rfd":
		*t = MsgTRestore
	case "cdb":
		*t = MsgTCreate
	case "g_auth":
		*t = MsgTAuth
	case "authResp":
		*t = MsgTAuthResp
	case "get_index":
		*t = MsgTGetIndex
	case "set_index":
		*t = MsgTSetIndex
	case "append_index":
		*t = MsgTAppendIndex
	case "get_len_index":
		*t = MsgTLenIndex
	case "get_recent_index":
		*t = MsgTRecentIndex
	case "indexResp":
		*t = MsgTIndexResp
	case "errResp":
		*t = MsgTError
	default:
		*t = MsgTUnknown
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota
	MsgTError               // Error reply for any request

	// Store operations

	MsgTGetVal   // Get a value by key
	MsgTGetResp  // Reply to get_val
	MsgTSetVal   // Set a key-value pair
	MsgTSetResp  // Ack for set_val, set_index and append_index
	MsgTListKeys // List the keys of a store
	MsgTListResp // Reply to list_databases

	// Store lifecycle (no reply)

	MsgTPersist // Write a store (or all stores) to disk
	MsgTRestore // Replace a store with its snapshot from disk
	MsgTCreate  // Replace a store with an empty one

	// Authentication

	MsgTAuth     // Verify an id token
	MsgTAuthResp // Reply to g_auth

	// List operations on values that are JSON arrays

	MsgTGetIndex    // Get one element
	MsgTSetIndex    // Replace one element
	MsgTAppendIndex // Append one element
	MsgTLenIndex    // Length of the list
	MsgTRecentIndex // Last n elements
	MsgTIndexResp   // Reply to get_index, get_len_index and get_recent_index
)
