// Package benchmarks provides a functional program suite for the ARM32 core
// and a harness that runs it.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/sarchlab/armcore/codestore"
	"github.com/sarchlab/armcore/emu"
	"github.com/sarchlab/armcore/insts"
)

// ProgramAddr is where every benchmark program is loaded and entered.
const ProgramAddr = 0x1000

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark exercises
	Description string

	// Setup prepares the register file before the run
	Setup func(regFile *emu.RegFile)

	// Program is the ARM32 machine code to execute
	Program []byte

	// Expected is checked once the PC leaves the program
	Expected Expectation
}

// Expectation is the architectural state a benchmark must end in.
type Expectation struct {
	// Registers maps register numbers to their final values.
	Registers map[uint8]uint32

	// Flags, when set, must equal the final CPSR.
	Flags *emu.PSR

	// Instructions, when non-zero, is the number of instructions stepped.
	Instructions uint64
}

// Result holds the outcome of a single benchmark run.
type Result struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Passed is true when the run finished and every expectation held.
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
	Error    string   `json:"error,omitempty"`

	// Instructions is the number of instructions stepped, skipped ones
	// included.
	Instructions uint64 `json:"instructions"`

	// Fetch cache statistics (if the cache is enabled)
	FetchReads   uint64  `json:"fetch_reads,omitempty"`
	FetchHits    uint64  `json:"fetch_hits,omitempty"`
	FetchMisses  uint64  `json:"fetch_misses,omitempty"`
	FetchHitRate float64 `json:"fetch_hit_rate,omitempty"`

	// WallTime is the actual time taken to run the program
	WallTime time.Duration `json:"wall_time_ns"`
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableFetchCache routes instruction fetches through a fetch cache
	EnableFetchCache bool

	// CacheConfig sizes the fetch cache
	CacheConfig codestore.Config

	// MaxInstructions bounds each run (0 means no limit)
	MaxInstructions uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose traces every executed instruction to Output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableFetchCache: true,
		CacheConfig:      codestore.DefaultConfig(),
		MaxInstructions:  100000,
		Output:           os.Stdout,
		Verbose:          false,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []Result {
	results := make([]Result, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		results = append(results, h.runBenchmark(bench))
	}

	return results
}

// runBenchmark executes a single benchmark on a fresh emulator.
func (h *Harness) runBenchmark(bench Benchmark) Result {
	rom := codestore.NewROM(ProgramAddr, bench.Program)

	var store emu.CodeStore = rom
	var cache *codestore.FetchCache
	if h.config.EnableFetchCache {
		cache = codestore.New(h.config.CacheConfig, rom)
		store = cache
	}

	opts := []emu.EmulatorOption{
		emu.WithMaxInstructions(h.config.MaxInstructions),
		emu.WithStderr(io.Discard),
	}
	if h.config.Verbose {
		opts = append(opts, emu.WithTrace(h.config.Output))
	}

	e := emu.NewEmulator(opts...)
	e.LoadProgram(ProgramAddr, store)

	if bench.Setup != nil {
		bench.Setup(e.RegFile())
	}

	start := time.Now()
	err := e.Run()
	wallTime := time.Since(start)

	result := Result{
		Name:         bench.Name,
		Description:  bench.Description,
		Instructions: e.InstructionCount(),
		WallTime:     wallTime,
	}

	if cache != nil {
		stats := cache.Stats()
		result.FetchReads = stats.Reads
		result.FetchHits = stats.Hits
		result.FetchMisses = stats.Misses
		result.FetchHitRate = stats.HitRate()
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Failures = bench.Expected.check(e)
	result.Passed = len(result.Failures) == 0

	return result
}

// check compares the final emulator state against the expectation and
// returns one message per mismatch.
func (x Expectation) check(e *emu.Emulator) []string {
	var failures []string
	regFile := e.RegFile()

	regs := make([]int, 0, len(x.Registers))
	for reg := range x.Registers {
		regs = append(regs, int(reg))
	}
	sort.Ints(regs)

	for _, reg := range regs {
		want := x.Registers[uint8(reg)]
		if got := regFile.ReadReg(uint8(reg)); got != want {
			failures = append(failures, fmt.Sprintf("%s = 0x%08X, want 0x%08X",
				insts.RegName(uint8(reg)), got, want))
		}
	}

	if x.Flags != nil && regFile.CPSR != *x.Flags {
		failures = append(failures, fmt.Sprintf("flags = %s, want %s", regFile.CPSR, *x.Flags))
	}

	if x.Instructions != 0 && e.InstructionCount() != x.Instructions {
		failures = append(failures, fmt.Sprintf("instructions = %d, want %d",
			e.InstructionCount(), x.Instructions))
	}

	return failures
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []Result) {
	_, _ = fmt.Fprintln(h.config.Output, "=== ARM32 Core Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}

		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s [%s]\n", r.Name, status)
		_, _ = fmt.Fprintf(h.config.Output, "  Description:  %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions: %d\n", r.Instructions)

		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		}
		for _, f := range r.Failures {
			_, _ = fmt.Fprintf(h.config.Output, "  Mismatch: %s\n", f)
		}

		if r.FetchReads > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Fetch Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Reads:    %d\n", r.FetchReads)
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:     %d\n", r.FetchHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses:   %d\n", r.FetchMisses)
			_, _ = fmt.Fprintf(h.config.Output, "  Hit Rate: %.1f%%\n", r.FetchHitRate*100)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []Result) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,passed,instructions,fetch_reads,fetch_hits,fetch_misses,wall_time_ns")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%t,%d,%d,%d,%d,%d\n",
			r.Name,
			r.Passed,
			r.Instructions,
			r.FetchReads,
			r.FetchHits,
			r.FetchMisses,
			r.WallTime.Nanoseconds(),
		)
	}
}

// Report is the complete JSON output format for benchmark results.
type Report struct {
	Timestamp    string   `json:"timestamp"`
	FetchCache   bool     `json:"fetch_cache"`
	Results      []Result `json:"results"`
	Passed       int      `json:"passed"`
	Failed       int      `json:"failed"`
	Instructions uint64   `json:"total_instructions"`
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []Result) error {
	report := Report{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		FetchCache: h.config.EnableFetchCache,
		Results:    results,
	}

	for _, r := range results {
		if r.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Instructions += r.Instructions
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
