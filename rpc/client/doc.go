// Package client implements the client side of ACI: blocking store operations
// on top of one shared, asynchronous message connection.
//
// Key Components:
//
//   - Connection: Owns a transport connection and a background goroutine reading
//     all replies. Every request carries a fresh id, the correlator hands the reply
//     with the same id to the waiting call. Calls are bounded by the caller's context
//     or, if it has no deadline, by ClientConfig.TimeoutSecond.
//
//   - StoreProxy: The operations of one named store (get, set, list, persist, restore,
//     create and the list index operations). Proxies are cached per connection.
//
//   - Registry: Named connections owned by the application, with explicit
//     register, lookup and close.
//
// Errors:
//
//	All errors wrap the sentinels of the common package and can be tested with errors.Is:
//	ErrNotFound, ErrStoreUnknown, ErrTimeout, ErrTransportClosed, ErrAuthRejected, ...
//	A dropped connection is not re-established, every later call fails with ErrTransportClosed.
//
// Usage Example:
//
//	config := common.ClientConfig{Endpoint: "localhost:8765", TimeoutSecond: 5}
//
//	conn, err := client.Dial(ctx, "main", config, ws.NewWSClientTransport(), serializer.NewJSONSerializer())
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	notes, _ := conn.CreateStore("notes")
//	notes.Set("a", 1)
//
//	var a int
//	err = notes.GetInto(ctx, "a", &a)
//	keys, err := notes.List(ctx)
//	notes.Persist()
package client
