// Package server implements the ACI server: it accepts connections from a
// transport, decodes the messages of every connection and applies them to the
// named stores of a registry.
//
// Key Components:
//
//   - RPCServer: Owns the config, transport, serializer, registry and auth verifier.
//     Serve restores the startup stores, serves until the context is cancelled and
//     optionally persists all stores on shutdown.
//
//   - dispatcher: One per connection. Messages are handled strictly in arrival order,
//     every reply echoes the request id. Requests for unknown stores are answered with
//     an errResp, an undecodable frame closes only that connection. With
//     Auth.Required set, store operations need a successful g_auth first.
//
//   - bootstrap: Restores the configured stores and, if a config store is set, every
//     store listed under its "dbs" key. Failures are logged, not fatal.
//
//   - admin server: Optional http endpoint (gorilla/mux) with Prometheus metrics
//     (VictoriaMetrics), a health check and a read only view of the stores.
//
// Replies per request:
//
//	get_val, get_index, get_len_index, get_recent_index  -> getResp / indexResp or errResp
//	set_val, set_index, append_index                     -> setResp or errResp
//	list_databases                                       -> ldResp or errResp
//	g_auth                                               -> authResp or errResp
//	wtd, rfd, cdb                                        -> no reply, failures are logged
//	anything else                                        -> errResp (protocol)
package server
