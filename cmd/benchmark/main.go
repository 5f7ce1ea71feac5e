// Command benchmark runs the ARM32 core program suite.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv       Output results in CSV format (default: human-readable)
//	-json      Output results as a JSON report
//	-no-cache  Fetch directly from the program image
//	-v         Trace every executed instruction
//
// Example:
//
//	# Run all programs with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// The command exits with status 1 if any program fails its expectations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/armcore/benchmarks"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as a JSON report")
	noCache := flag.Bool("no-cache", false, "Disable the fetch cache")
	verbose := flag.Bool("v", false, "Trace every executed instruction")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.EnableFetchCache = !*noCache
	config.Verbose = *verbose
	config.Output = os.Stdout

	harness := benchmarks.NewHarness(config)
	harness.AddBenchmarks(benchmarks.GetPrograms())

	if !*csvOutput && !*jsonOutput {
		fmt.Println("ARM32 Core Benchmark Harness")
		fmt.Println("============================")
		fmt.Printf("Fetch cache: %v\n", config.EnableFetchCache)
		fmt.Println("")
	}

	results := harness.RunAll()

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}

	if !benchmarks.AllPassed(results) {
		os.Exit(1)
	}
}
