// Package ws implements the websocket transport of the ACI RPC system.
// This is the transport the browser (ACI.js) and Python clients speak: every
// message is a single websocket text message holding one JSON object.
//
// Key Components:
//
//   - wsServerTransport: An http.Server upgrading requests on any path. Every
//     connection runs the registered handler in the server's request goroutine.
//     On shutdown the server is closed and all upgraded connections with it.
//
//   - wsClientTransport: Dials ws:// or wss:// urls, a plain host:port endpoint
//     is dialed as ws://host:port.
//
//   - wsConn: Adapts *websocket.Conn to transport.IConn with a write mutex,
//     since gorilla allows only one concurrent writer.
package ws
