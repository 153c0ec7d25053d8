// Package tcp implements the TCP socket transport of the ACI RPC system.
// It provides the TCP specific connectors for the base package, framing and
// the accept loop are inherited from there.
//
// Key Components:
//
//   - clientConnector: Dials TCP connections, honoring the context deadline
//
//   - serverConnector: Creates TCP listeners
//
// Both sides disable Nagle's algorithm and enable keep-alive on every connection.
package tcp
