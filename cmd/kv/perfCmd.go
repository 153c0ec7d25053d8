package kv

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/cmd/util"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/client"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for ACI servers",
		Long:    "Runs a set of benchmarks against a dedicated store of the server. The store is emptied before and after the run.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	// perfTimers holds one latency timer per benchmark
	perfTimers = metrics.NewRegistry()
	// perfPercentiles are reported for every benchmark
	perfPercentiles = []float64{0.5, 0.95, 0.99}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "perf-store"
	perfTestCmd.Flags().String(key, "__perf", util.WrapString("The store the benchmarks run on. It is replaced with an empty store"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = util.SplitList(viper.GetString("skip"))

	if perfKeySpread <= 0 || perfNumThreads <= 0 {
		return fmt.Errorf("keys and threads must be positive")
	}
	return nil
}

// benchmark is a single perf test. prepare runs before the timer starts, op is
// called concurrently with a per goroutine counter.
type benchmark struct {
	name    string
	prepare func(ctx context.Context, s *client.StoreProxy) error
	op      func(ctx context.Context, s *client.StoreProxy, counter int) error
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for ACI servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// the benchmarks run on their own store
	s := rpcConn.Store(viper.GetString("perf-store"))
	if err := resetStore(ctx, s); err != nil {
		return fmt.Errorf("failed to prepare the benchmark store: %w", err)
	}
	defer func() {
		if err := resetStore(ctx, s); err != nil {
			util.Logger.Warningf("failed to empty the benchmark store: %v", err)
		}
	}()

	largeValue := json.RawMessage(`"` + strings.Repeat("x", perfLargeValueSizeKB*1024) + `"`)
	preset := func(ctx context.Context, s *client.StoreProxy) error {
		for i := 0; i < perfKeySpread; i++ {
			if err := s.Set(getKey(i), "test"); err != nil {
				return err
			}
		}
		_, err := s.List(ctx)
		return err
	}

	benchmarks := []benchmark{
		{
			name: "set",
			op: func(_ context.Context, s *client.StoreProxy, counter int) error {
				return s.Set(getKey(counter), "test")
			},
		},
		{
			name: "set-wait",
			op: func(ctx context.Context, s *client.StoreProxy, counter int) error {
				return s.SetAndWait(ctx, getKey(counter), "test")
			},
		},
		{
			name: "set-large",
			op: func(ctx context.Context, s *client.StoreProxy, counter int) error {
				return s.SetAndWait(ctx, getKey(counter), largeValue)
			},
		},
		{
			name:    "get",
			prepare: preset,
			op: func(ctx context.Context, s *client.StoreProxy, counter int) error {
				_, err := s.Get(ctx, getKey(counter))
				return err
			},
		},
		{
			name:    "list",
			prepare: preset,
			op: func(ctx context.Context, s *client.StoreProxy, _ int) error {
				_, err := s.List(ctx)
				return err
			},
		},
		{
			name: "append",
			op: func(ctx context.Context, s *client.StoreProxy, counter int) error {
				// one list per key keeps the appended lists short
				return s.AppendIndex(ctx, fmt.Sprintf("%s-list-%d", perfKeyPrefix, counter%perfKeySpread), counter)
			},
		},
		{
			name:    "mixed",
			prepare: preset,
			op: func(ctx context.Context, s *client.StoreProxy, counter int) error {
				key := getKey(counter)
				switch counter % 3 {
				case 0:
					return s.SetAndWait(ctx, key, "test")
				case 1:
					_, err := s.Get(ctx, key)
					return err
				default:
					_, err := s.List(ctx)
					return err
				}
			},
		},
	}

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	for _, bm := range benchmarks {
		result := runBenchmark(ctx, s, bm)
		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func runBenchmark(ctx context.Context, s *client.StoreProxy, bm benchmark) testing.BenchmarkResult {
	if slices.Contains(perfSkip, bm.name) {
		return testing.BenchmarkResult{}
	}

	timer := metrics.GetOrRegisterTimer(bm.name, perfTimers)

	return testing.Benchmark(func(b *testing.B) {
		if err := resetStore(ctx, s); err != nil {
			util.Logger.Errorf("(%s) - error resetting store: %v", bm.name, err)
			return
		}
		if bm.prepare != nil {
			if err := bm.prepare(ctx, s); err != nil {
				util.Logger.Errorf("(%s) - error preparing: %v", bm.name, err)
				return
			}
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := bm.op(ctx, s, counter); err != nil {
					util.Logger.Errorf("(%s) - error: %v", bm.name, err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})
}

// resetStore replaces the store with an empty one and waits until the server did so
func resetStore(ctx context.Context, s *client.StoreProxy) error {
	if err := s.Create(); err != nil {
		return err
	}
	_, err := s.List(ctx)
	return err
}

// getKey returns the test key for i (with wraparound)
func getKey(i int) string {
	return fmt.Sprintf("%s-%d", perfKeyPrefix, i%perfKeySpread)
}

// percentiles returns the latency percentiles recorded for a benchmark
func percentiles(test string) []time.Duration {
	timer := metrics.GetOrRegisterTimer(test, perfTimers).Snapshot()
	out := make([]time.Duration, len(perfPercentiles))
	for i, p := range timer.Percentiles(perfPercentiles) {
		out[i] = time.Duration(p)
	}
	return out
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := percentiles(test)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, p[0], p[1], p[2])
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P95", "P99", "Skipped",
		"Endpoint", "TimeoutSec", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string
		p := make([]time.Duration, len(perfPercentiles))

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			p = percentiles(test)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			p[0].String(),
			p[1].String(),
			p[2].String(),
			skipped,
			config.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
