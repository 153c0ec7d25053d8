package testing

import (
	"fmt"
	"testing"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store"
)

// RunStoreBenchmarks runs all benchmarks for a store.IStore implementation
func RunStoreBenchmarks(b *testing.B, name string, backend Backend) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, newStore(b, backend, "bench"))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, newStore(b, backend, "bench"))
		})

		b.Run("AppendIndex", func(b *testing.B) {
			benchmarkAppendIndex(b, newStore(b, backend, "bench"))
		})

		b.Run("Persist1k", func(b *testing.B) {
			benchmarkPersist(b, newStore(b, backend, "bench"), 1000)
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkSet(b *testing.B, s store.IStore) {
	value := []byte(`{"name":"benchmark","count":42}`)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			s.Set(fmt.Sprintf("key-%d", counter%1000), value)
			counter++
		}
	})
}

func benchmarkGet(b *testing.B, s store.IStore) {
	for i := 0; i < 1000; i++ {
		s.Set(fmt.Sprintf("key-%d", i), []byte(fmt.Sprint(i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			s.Get(fmt.Sprintf("key-%d", counter%1000))
			counter++
		}
	})
}

func benchmarkAppendIndex(b *testing.B, s store.IStore) {
	value := []byte(`"item"`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// keep the list short, appends rewrite the whole value
		s.AppendIndex(fmt.Sprintf("list-%d", i%100), value)
		if i%100 == 99 {
			for j := 0; j < 100; j++ {
				s.Set(fmt.Sprintf("list-%d", j), []byte("[]"))
			}
		}
	}
}

func benchmarkPersist(b *testing.B, s store.IStore, keys int) {
	for i := 0; i < keys; i++ {
		s.Set(fmt.Sprintf("key-%d", i), []byte(`{"payload":"0123456789abcdef"}`))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Persist(); err != nil {
			b.Fatalf("Persist failed: %v", err)
		}
	}
}
