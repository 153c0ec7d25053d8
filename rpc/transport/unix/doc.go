// Package unix implements a transport for the ACI RPC system using Unix domain
// sockets, for clients running on the same machine as the server.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting framing and the accept loop from the base package.
// An existing socket file at the endpoint path is removed before listening.
package unix
