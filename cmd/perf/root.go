package perf

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/graphpack/cmd/util"
	"github.com/ValentinKolb/graphpack/lib/codec/dataset"
	"github.com/ValentinKolb/graphpack/lib/codec/graphcodec"
	"github.com/ValentinKolb/graphpack/lib/storage"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// PerfCmd benchmarks dump and load on the configured storage backend
var PerfCmd = &cobra.Command{
	Use:     "perf",
	Short:   "Performance testing tool for graphpack dumps",
	Long:    "",
	RunE:    run,
	PreRunE: processPerfConfig,
}

var (
	perfTensorSizeKB = 100
	perfRefCount     = 4
	perfSkip         = make([]string, 0)
)

func init() {
	util.InitConfig()

	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. dump,load)"))
	key = "tensor-size"
	PerfCmd.Flags().Int(key, 100, util.WrapString("Size of each reference tensor (in KB)"))
	key = "refs"
	PerfCmd.Flags().Int(key, 4, util.WrapString("How many tensor references each dumped graph carries"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.ApplyLogLevel(); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfTensorSizeKB = viper.GetInt("tensor-size")
	perfRefCount = viper.GetInt("refs")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// experiment is the synthetic graph the benchmarks dump and load
type experiment struct {
	Name     string
	Epoch    int
	Metrics  map[string]float64
	Datasets []*dataset.Dataset
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for graphpack dumps")

	store, err := util.GetStorage()
	if err != nil {
		return err
	}
	registry, types := util.GetRegistry()
	types.Register(experiment{})
	gc := graphcodec.New(registry, types)

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Storage:     %s\n", viper.GetString("storage"))
	fmt.Printf("Tensor size: %d KB\n", perfTensorSizeKB)
	fmt.Printf("References:  %d\n", perfRefCount)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map and per-test latency histograms
	results := make(map[string]testing.BenchmarkResult)
	histograms := make(map[string]gometrics.Histogram)

	value := buildExperiment(perfRefCount, perfTensorSizeKB)

	dumpResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("dump") {
			return
		}

		hist := newHistogram("dump", histograms)

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			start := time.Now()
			if _, err := gc.Dump(store, benchPath("dump", i), value); err != nil {
				b.Fatalf("(dump) - error dumping graph: %v", err)
			}
			hist.Update(time.Since(start).Nanoseconds())
		}
	})

	results["dump"] = dumpResult
	printResult("dump", dumpResult, histograms["dump"])

	loadResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("load") {
			return
		}

		// one dump that every iteration loads
		arts, err := gc.Dump(store, benchPath("load", 0), value)
		if err != nil {
			b.Fatalf("(load) - error preparing dump: %v", err)
		}

		hist := newHistogram("load", histograms)

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			start := time.Now()
			if _, err := gc.Load(arts); err != nil {
				b.Fatalf("(load) - error loading graph: %v", err)
			}
			hist.Update(time.Since(start).Nanoseconds())
		}
	})

	results["load"] = loadResult
	printResult("load", loadResult, histograms["load"])

	scanLoadResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("scan-load") {
			return
		}

		path := benchPath("scan-load", 0)
		if _, err := gc.Dump(store, path, value); err != nil {
			b.Fatalf("(scan-load) - error preparing dump: %v", err)
		}

		hist := newHistogram("scan-load", histograms)

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			start := time.Now()
			arts, err := store.Scan(path)
			if err != nil {
				b.Fatalf("(scan-load) - error scanning dump: %v", err)
			}
			if _, err := gc.Load(arts); err != nil {
				b.Fatalf("(scan-load) - error loading graph: %v", err)
			}
			hist.Update(time.Since(start).Nanoseconds())
		}
	})

	results["scan-load"] = scanLoadResult
	printResult("scan-load", scanLoadResult, histograms["scan-load"])

	verifyResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("verify") {
			return
		}

		arts, err := gc.Dump(store, benchPath("verify", 0), value)
		if err != nil {
			b.Fatalf("(verify) - error preparing dump: %v", err)
		}

		hist := newHistogram("verify", histograms)

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			start := time.Now()
			if err := graphcodec.Verify(registry, arts); err != nil {
				b.Fatalf("(verify) - error verifying dump: %v", err)
			}
			hist.Update(time.Since(start).Nanoseconds())
		}
	})

	results["verify"] = verifyResult
	printResult("verify", verifyResult, histograms["verify"])

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, histograms); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// buildExperiment creates a synthetic graph with the given number of tensor
// references of the given size
func buildExperiment(refs, sizeKB int) *experiment {
	exp := &experiment{
		Name:    "perf",
		Epoch:   1,
		Metrics: map[string]float64{"loss": 0.1, "accuracy": 0.9},
	}

	elements := sizeKB * 1024 / 8
	for i := 0; i < refs; i++ {
		data := make([]float64, elements)
		for j := range data {
			data[j] = float64(i + j)
		}
		exp.Datasets = append(exp.Datasets, &dataset.Dataset{
			Features: &dataset.Tensor{Shape: []int64{int64(elements)}, Data: data},
		})
	}
	return exp
}

func benchPath(test string, i int) string {
	return storage.Join("__perf", fmt.Sprintf("%s-%d", test, i))
}

func newHistogram(test string, histograms map[string]gometrics.Histogram) gometrics.Histogram {
	hist := gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015))
	histograms[test] = hist
	return hist
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, hist gometrics.Histogram) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result with latency quantiles
	p := hist.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(p[0]), time.Duration(p[1]), time.Duration(p[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, histograms map[string]gometrics.Histogram) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"P50Ns", "P95Ns", "P99Ns",
		"Storage", "Compress", "TensorSizeKB", "Refs",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		var p []float64
		if hist := histograms[test]; hist != nil {
			p = hist.Percentiles([]float64{0.5, 0.95, 0.99})
		} else {
			p = []float64{0, 0, 0}
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			fmt.Sprintf("%.0f", p[2]),
			viper.GetString("storage"),
			strconv.FormatBool(viper.GetBool("compress")),
			strconv.Itoa(perfTensorSizeKB),
			strconv.Itoa(perfRefCount),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
