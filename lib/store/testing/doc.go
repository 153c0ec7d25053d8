// Package testing provides standardised tests and benchmarks for
// store implementations that satisfy the store.IStore interface.
//
// The package contains:
//   - RunStoreTests: A test suite for the IStore contract (JSON values, key order,
//     snapshots, list index operations, concurrent use)
//   - RunStoreBenchmarks: Throughput of the common store operations
//
// Example usage:
//
//	// A backend returns a factory and a loader on fresh durable storage
//	backend := func(t testing.TB) (store.Factory, store.Loader) {
//		persister, _ := boltstore.NewPersister(t.TempDir())
//		return lstore.NewFactory(persister), lstore.NewLoader(persister)
//	}
//
//	// Running the standard test suite
//	storetesting.RunStoreTests(t, "lstore", backend)
//
//	// Running performance benchmarks
//	storetesting.RunStoreBenchmarks(b, "lstore", backend)
package testing
