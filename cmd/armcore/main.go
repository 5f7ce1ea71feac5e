// Package main provides the armcore command line emulator.
//
// armcore loads an ARM32 ELF executable or a raw image, runs it until the
// PC leaves the image, an error occurs or the instruction limit is
// reached, then prints the final register state.
//
// Exit status is 0 when the PC ran off the image and 3 when the
// instruction limit stopped the run. Load and emulation errors exit with 1.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/armcore/codestore"
	"github.com/sarchlab/armcore/config"
	"github.com/sarchlab/armcore/emu"
	"github.com/sarchlab/armcore/insts"
	"github.com/sarchlab/armcore/loader"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command with the given arguments and returns the exit
// code.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("armcore", flag.ContinueOnError)
	flags.SetOutput(stderr)

	base := flags.Uint("base", 0, "Load address for raw images (default from config: 0x8000)")
	configPath := flags.String("config", "", "Path to run configuration JSON file")
	maxInsts := flags.Uint64("max", 0, "Maximum instructions to execute (default from config)")
	verbose := flags.Bool("v", false, "Trace every executed instruction")
	noCache := flags.Bool("no-cache", false, "Fetch directly from the image, bypassing the fetch cache")

	flags.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: armcore [options] <program>\n")
		_, _ = fmt.Fprintf(stderr, "\nOptions:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return 2
	}

	if flags.NArg() < 1 {
		flags.Usage()
		return 1
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	// Explicit flags override the configuration file.
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base":
			cfg.LoadBase = uint32(*base)
		case "max":
			cfg.MaxInstructions = *maxInsts
		case "no-cache":
			cfg.FetchCache.Enabled = !*noCache
		}
	})

	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return 1
	}

	programPath := flags.Arg(0)

	prog, err := loader.LoadFile(programPath, cfg.LoadBase)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 1
	}

	if *verbose {
		_, _ = fmt.Fprintf(stdout, "Loaded: %s\n", programPath)
		_, _ = fmt.Fprintf(stdout, "Entry point: 0x%08X\n", cfg.EntryPoint(prog.EntryPoint))
		_, _ = fmt.Fprintf(stdout, "Segments: %d\n", len(prog.Segments))
	}

	rom := prog.ROM()

	var store emu.CodeStore = rom
	var cache *codestore.FetchCache
	if cfg.FetchCache.Enabled {
		cache = codestore.New(cfg.CacheConfig(), rom)
		store = cache
	}

	opts := []emu.EmulatorOption{
		emu.WithStderr(stderr),
		emu.WithMaxInstructions(cfg.MaxInstructions),
	}
	if *verbose {
		opts = append(opts, emu.WithTrace(stdout))
	}

	emulator := emu.NewEmulator(opts...)
	emulator.LoadProgram(cfg.EntryPoint(prog.EntryPoint), store)

	if err := cfg.Apply(emulator.RegFile()); err != nil {
		_, _ = fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return 1
	}

	runErr := emulator.Run()

	printState(stdout, emulator, cache)

	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, emu.ErrMaxInstructions):
		return 3
	default:
		return 1
	}
}

// printState writes the final registers, flags and statistics.
func printState(w io.Writer, e *emu.Emulator, cache *codestore.FetchCache) {
	regFile := e.RegFile()

	_, _ = fmt.Fprintln(w, "Registers:")
	for reg := uint8(0); reg < 16; reg++ {
		_, _ = fmt.Fprintf(w, "  %-3s = 0x%08X", insts.RegName(reg), regFile.ReadReg(reg))
		if reg%4 == 3 {
			_, _ = fmt.Fprintln(w)
		}
	}

	_, _ = fmt.Fprintf(w, "CPSR: %s  SPSR: %s\n", regFile.CPSR, regFile.SPSR)
	_, _ = fmt.Fprintf(w, "Instructions: %d\n", e.InstructionCount())

	if cache != nil {
		stats := cache.Stats()
		_, _ = fmt.Fprintf(w, "Fetch cache: %d reads, %d hits, %d misses (%.1f%% hit rate)\n",
			stats.Reads, stats.Hits, stats.Misses, stats.HitRate()*100)
	}
}
