// Package base provides the parts shared by the stream based transports (tcp, unix)
// and the message layer used on top of every transport.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     (creating the listener, dialing, socket options).
//
//   - serverTransport: Accept loop that runs the registered handler for every
//     connection in its own goroutine. Cancelling the context closes the listener
//     and all open connections, Serve returns after every handler finished.
//
//   - clientTransport: Dials a single connection per call to Dial.
//
//   - streamConn: Newline delimited framing on a net.Conn. Each frame is one
//     compact JSON object followed by '\n'. Frames above the configured limit are
//     rejected, blank lines are ignored.
//
//   - MsgConn: Wraps any transport.IConn with a serializer and sends/receives
//     common.Message values. Decoding failures are reported as common.ErrProtocol.
//
// Thread Safety:
//
//	Send on a streamConn (and MsgConn) may be called from multiple goroutines,
//	writes are serialized by a mutex. Receive must only be called by one goroutine.
package base
