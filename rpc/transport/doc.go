// Package transport defines the interfaces for moving ACI messages between a
// client and the server. A transport only knows about frames (one serialized
// message each), serialization lives in the serializer package and the
// meaning of a message is up to the server and client packages.
//
// Key Components:
//
//   - IConn: A single frame oriented connection, used on both sides.
//
//   - IRPCServerTransport: Accepts connections and hands each one to the
//     registered ConnHandleFunc.
//
//   - IRPCClientTransport: Dials a server and returns an IConn.
//
// Implementations: tcp and unix (newline delimited frames, see package base)
// and ws (one websocket text message per frame, compatible with browser clients).
package transport
