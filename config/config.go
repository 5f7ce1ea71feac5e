// Package config holds the JSON run configuration of the emulator: where
// programs are placed, the initial register and flag state, the instruction
// limit and the fetch cache geometry.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/sarchlab/armcore/codestore"
	"github.com/sarchlab/armcore/emu"
	"github.com/sarchlab/armcore/insts"
)

// FetchCacheConfig describes the optional fetch cache in front of the
// program image.
type FetchCacheConfig struct {
	// Enabled puts a fetch cache between the emulator and the image.
	Enabled bool `json:"enabled"`

	// Size in bytes. Default: 4KB.
	Size int `json:"size"`

	// Associativity (number of ways). Default: 4.
	Associativity int `json:"associativity"`

	// BlockSize in bytes, a power of two. Default: 64.
	BlockSize int `json:"block_size"`
}

// Config holds the run configuration.
type Config struct {
	// LoadBase is the address raw images are placed at. Default: 0x8000.
	LoadBase uint32 `json:"load_base"`

	// Entry overrides the program entry point when set.
	Entry *uint32 `json:"entry,omitempty"`

	// MaxInstructions stops the run after this many instructions.
	// 0 means no limit. Default: 1,000,000.
	MaxInstructions uint64 `json:"max_instructions"`

	// Registers holds initial register values keyed by name (r0-r15, sp,
	// lr, pc).
	Registers map[string]uint32 `json:"registers,omitempty"`

	// Flags is the initial CPSR in "NZCVT" notation.
	Flags string `json:"flags,omitempty"`

	// SavedFlags is the initial SPSR in "NZCVT" notation.
	SavedFlags string `json:"saved_flags,omitempty"`

	// FetchCache configures the fetch cache.
	FetchCache FetchCacheConfig `json:"fetch_cache"`
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() *Config {
	cache := codestore.DefaultConfig()

	return &Config{
		LoadBase:        0x8000,
		MaxInstructions: 1000000,
		FetchCache: FetchCacheConfig{
			Enabled:       true,
			Size:          cache.Size,
			Associativity: cache.Associativity,
			BlockSize:     cache.BlockSize,
		},
	}
}

// LoadConfig loads a configuration from a JSON file. Fields missing from
// the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	for name := range c.Registers {
		if _, err := insts.ParseRegister(name); err != nil {
			return fmt.Errorf("registers: %w", err)
		}
	}

	if _, err := emu.ParsePSR(c.Flags); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	if _, err := emu.ParsePSR(c.SavedFlags); err != nil {
		return fmt.Errorf("saved_flags: %w", err)
	}

	if !c.FetchCache.Enabled {
		return nil
	}

	fc := c.FetchCache
	if fc.Size <= 0 || fc.Associativity <= 0 || fc.BlockSize <= 0 {
		return fmt.Errorf("fetch_cache size, associativity and block_size must be > 0")
	}
	if fc.BlockSize&(fc.BlockSize-1) != 0 {
		return fmt.Errorf("fetch_cache block_size must be a power of two")
	}
	if fc.Size%(fc.Associativity*fc.BlockSize) != 0 {
		return fmt.Errorf("fetch_cache size must be a multiple of associativity * block_size")
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	if c.Entry != nil {
		entry := *c.Entry
		clone.Entry = &entry
	}

	if c.Registers != nil {
		clone.Registers = make(map[string]uint32, len(c.Registers))
		for name, value := range c.Registers {
			clone.Registers[name] = value
		}
	}

	return &clone
}

// CacheConfig returns the fetch cache geometry.
func (c *Config) CacheConfig() codestore.Config {
	return codestore.Config{
		Size:          c.FetchCache.Size,
		Associativity: c.FetchCache.Associativity,
		BlockSize:     c.FetchCache.BlockSize,
	}
}

// EntryPoint returns the configured entry point, or programEntry when none
// is set.
func (c *Config) EntryPoint(programEntry uint32) uint32 {
	if c.Entry != nil {
		return *c.Entry
	}
	return programEntry
}

// Apply writes the initial registers and flags into a register file.
// Registers are applied in name order, so aliases such as sp and r13
// resolve deterministically.
func (c *Config) Apply(regFile *emu.RegFile) error {
	names := make([]string, 0, len(c.Registers))
	for name := range c.Registers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		reg, err := insts.ParseRegister(name)
		if err != nil {
			return fmt.Errorf("registers: %w", err)
		}
		regFile.WriteReg(reg, c.Registers[name])
	}

	cpsr, err := emu.ParsePSR(c.Flags)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	spsr, err := emu.ParsePSR(c.SavedFlags)
	if err != nil {
		return fmt.Errorf("saved_flags: %w", err)
	}

	regFile.CPSR = cpsr
	regFile.SPSR = spsr

	return nil
}
