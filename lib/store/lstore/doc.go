// Package lstore implements a local, in-memory key-value store based on the
// store.IStore interface. Every store has a name and holds raw JSON values.
// Snapshots are written to and read from a store.IPersister.
//
// Key Features:
//   - Insertion ordered keys, so Keys returns keys in the order they were first set
//   - List operations on values that are JSON arrays (GetIndex, SetIndex, AppendIndex, ...)
//   - Snapshot based persistence through a pluggable store.IPersister
//
// Thread Safety:
//
//	All operations are thread-safe. Writes take an exclusive lock on the store,
//	reads and Persist share a read lock. Persist only holds the lock while copying
//	the entries, the actual write to durable storage happens without the lock.
//
// Usage Example:
//
//	p, _ := boltstore.NewPersister("data")
//	s := lstore.NewLocalStore("notes", p)
//	_ = s.Set("a", []byte(`1`))
//	_ = s.Persist()
//
//	restored, _ := lstore.RestoreLocalStore("notes", p)
//	val, ok, _ := restored.Get("a") // `1`, true
package lstore
