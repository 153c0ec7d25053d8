// Package store defines the interface of a single named key-value store and
// the durable storage used to snapshot it.
//
// The package focuses on:
//   - A unified interface (IStore) for store operations, including the list
//     operations on values that are JSON arrays
//   - A snapshot interface (IPersister) for durable storage
//   - Typed errors with return codes (Error, RetCode)
//
// Implementations:
//
//   - Local Store (lstore): in-memory store with insertion ordered keys.
//   - Bolt persister (boltstore): bbolt backed IPersister, one file per store.
package store
