// Package main provides a profiling wrapper for armcore to identify
// performance bottlenecks in the decode and execute path.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/jeandeaual/go-locale"
	"golang.org/x/text/message"

	"github.com/sarchlab/armcore/benchmarks"
	"github.com/sarchlab/armcore/codestore"
	"github.com/sarchlab/armcore/emu"
	"github.com/sarchlab/armcore/loader"
)

var (
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile  = flag.String("memprofile", "", "write memory profile to file")
	duration    = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	instruction = flag.Uint64("max-instr", 1000000, "max instructions per run (0 = unlimited)")
	iterations  = flag.Int("iterations", 1000, "number of runs")
	base        = flag.Uint("base", 0x8000, "load address for raw images")
	noCache     = flag.Bool("no-cache", false, "bypass the fetch cache")
)

// profileOptions controls how programs are run while profiling.
type profileOptions struct {
	base       uint32
	maxInstr   uint64
	iterations int
	noCache    bool
}

func main() {
	flag.Parse()
	os.Exit(profile())
}

// profile runs the profiled workload and returns the process exit code.
// Profiles are flushed before it returns.
func profile() int {

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	// Set timeout
	go func() {
		time.Sleep(*duration)
		fmt.Printf("\nTimeout reached after %v - stopping execution\n", *duration)
		os.Exit(2)
	}()

	opts := profileOptions{
		base:       uint32(*base),
		maxInstr:   *instruction,
		iterations: *iterations,
		noCache:    *noCache,
	}

	start := time.Now()

	var (
		instrCount uint64
		err        error
	)
	if flag.NArg() > 0 {
		instrCount, err = profileProgram(flag.Arg(0), opts)
	} else {
		fmt.Println("No program given, profiling the benchmark suite")
		instrCount, err = profileSuite(opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	elapsed := time.Since(start)

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	p := newPrinter()
	p.Printf("\nProfiling Results:\n")
	p.Printf("Runs: %d\n", opts.iterations)
	p.Printf("Instructions executed: %d\n", instrCount)
	p.Printf("Elapsed time: %v\n", elapsed)
	if instrCount > 0 {
		p.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}

	return 0
}

// newPrinter returns a printer that groups digits for the user's locale.
func newPrinter() *message.Printer {
	locales, err := locale.GetLocales()
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile: locale: %v\n", err)
	}

	if len(locales) == 0 {
		locales = []string{"en-US"}
	}

	return message.NewPrinter(message.MatchLanguage(locales...))
}

// profileProgram runs a program file repeatedly and returns the total
// instruction count. Reaching the instruction limit ends a run normally.
func profileProgram(path string, opts profileOptions) (uint64, error) {
	prog, err := loader.LoadFile(path, opts.base)
	if err != nil {
		return 0, fmt.Errorf("loading program: %w", err)
	}

	fmt.Printf("Loaded: %s\n", path)
	fmt.Printf("Entry point: 0x%08X\n", prog.EntryPoint)

	rom := prog.ROM()

	var total uint64
	for i := 0; i < opts.iterations; i++ {
		var store emu.CodeStore = rom
		if !opts.noCache {
			store = codestore.New(codestore.DefaultConfig(), rom)
		}

		emulator := emu.NewEmulator(
			emu.WithMaxInstructions(opts.maxInstr),
			emu.WithStderr(io.Discard),
		)
		emulator.LoadProgram(prog.EntryPoint, store)

		err := emulator.Run()
		if err != nil && !errors.Is(err, emu.ErrMaxInstructions) {
			return total, fmt.Errorf("run %d: %w", i, err)
		}
		total += emulator.InstructionCount()
	}

	return total, nil
}

// profileSuite runs the benchmark programs repeatedly and returns the total
// instruction count.
func profileSuite(opts profileOptions) (uint64, error) {
	config := benchmarks.DefaultConfig()
	config.EnableFetchCache = !opts.noCache
	config.MaxInstructions = opts.maxInstr

	harness := benchmarks.NewHarness(config)
	harness.AddBenchmarks(benchmarks.GetPrograms())

	var total uint64
	for i := 0; i < opts.iterations; i++ {
		results := harness.RunAll()
		if !benchmarks.AllPassed(results) {
			return total, fmt.Errorf("benchmark suite failed on run %d", i)
		}
		for _, r := range results {
			total += r.Instructions
		}
	}

	return total, nil
}
