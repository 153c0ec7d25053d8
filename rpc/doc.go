// Package rpc provides the communication layer of ACI. Many logical calls from
// a client share one persistent connection to the server, every request carries
// an id that the server echoes on its reply.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, error codes, configuration structures, and logging.
//
//   - transport: Framed connections with pluggable implementations
//     (WebSocket, TCP, Unix sockets).
//
//   - serializer: Message serialization (JSON) for converting between Message
//     objects and frames.
//
//   - client: Connections, store proxies and the named connection registry,
//     allowing applications to use remote stores with blocking calls.
//
//   - server: The per-connection dispatcher routing requests to the named stores,
//     startup restore and the admin http endpoint.
package rpc
