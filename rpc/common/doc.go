// Package common provides the wire protocol and the types shared by the
// client, the server and the transports.
//
// The package focuses on:
//   - Message protocol definition (Message, MessageType) with the cmdType names
//     spoken by existing ACI clients
//   - Error codes carried by errResp messages and the sentinel errors they map to
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with dragonboat's logger package
//
// Key Components:
//
//   - Message: One struct for all requests and replies. Requests carry an id which
//     the server echoes on the reply, so many calls can be in flight on one connection.
//
//   - MessageType: Closed set of message kinds. Unknown cmdType names decode to
//     MsgTUnknown and are answered with a protocol error.
//
//   - CodeOf / ErrorFromReply: Conversion between domain errors and errResp codes.
//
//   - ServerConfig / ClientConfig: Configuration with String() for startup logs.
package common
