package codestore

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds fetch cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
}

// DefaultConfig returns a small instruction cache: 4KB, 4-way, 64B lines.
func DefaultConfig() Config {
	return Config{
		Size:          4 * 1024,
		Associativity: 4,
		BlockSize:     64,
	}
}

// AccessResult contains the result of a fetch cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Data is the little-endian value read.
	Data uint32
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint32
}

// Statistics holds fetch cache statistics.
type Statistics struct {
	Reads     uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns the fraction of reads that hit, or 0 before any read.
func (s Statistics) HitRate() float64 {
	if s.Reads == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Reads)
}

// Backing is the store a fetch cache fills its blocks from.
type Backing interface {
	Read8(addr uint32) uint8
}

// FetchCache is a read-only, set-associative cache in front of a code
// store. Blocks are tracked by an Akita cache directory with LRU
// replacement.
type FetchCache struct {
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte

	stats   Statistics
	backing Backing
}

// New creates a new fetch cache with the given configuration.
func New(config Config, backing Backing) *FetchCache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &FetchCache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *FetchCache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *FetchCache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *FetchCache) ResetStats() {
	c.stats = Statistics{}
}

// Contains forwards to the backing store when it is bounded. An unbounded
// backing store holds every address.
func (c *FetchCache) Contains(addr uint32) bool {
	if bounded, ok := c.backing.(interface{ Contains(uint32) bool }); ok {
		return bounded.Contains(addr)
	}
	return true
}

// Read8 reads a single byte through the cache.
func (c *FetchCache) Read8(addr uint32) uint8 {
	return uint8(c.Read(addr, 1).Data)
}

// Read reads size bytes (at most 4) starting at addr. The access must not
// cross a block boundary; bytes past the block read as 0.
func (c *FetchCache) Read(addr uint32, size int) AccessResult {
	c.stats.Reads++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block) // Update LRU

		offset := addr - blockAddr
		return AccessResult{
			Hit:  true,
			Data: extractData(c.dataStore[c.blockIndex(block)], offset, size),
		}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size)
}

// handleMiss fills a victim block from the backing store.
func (c *FetchCache) handleMiss(addr uint32, size int) AccessResult {
	result := AccessResult{}
	blockAddr := c.blockAddr(addr)

	victim := c.directory.FindVictim(uint64(blockAddr))
	if victim == nil {
		return result
	}

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = uint32(victim.Tag) // Tag stores block-aligned address
	}

	victimData := c.dataStore[c.blockIndex(victim)]
	for i := range victimData {
		if c.backing == nil {
			victimData[i] = 0
			continue
		}
		victimData[i] = c.backing.Read8(blockAddr + uint32(i))
	}

	victim.Tag = uint64(blockAddr)
	victim.IsValid = true
	victim.IsDirty = false

	result.Data = extractData(victimData, addr-blockAddr, size)

	c.directory.Visit(victim) // Update LRU

	return result
}

// Invalidate marks the cache line holding addr as invalid.
func (c *FetchCache) Invalidate(addr uint32) {
	block := c.directory.Lookup(0, uint64(c.blockAddr(addr)))
	if block != nil && block.IsValid {
		block.IsValid = false
	}
}

// Reset invalidates all cache lines and clears statistics.
func (c *FetchCache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

// ValidBlocks returns the number of valid cache lines.
func (c *FetchCache) ValidBlocks() int {
	count := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				count++
			}
		}
	}
	return count
}

func (c *FetchCache) blockAddr(addr uint32) uint32 {
	blockSize := uint32(c.config.BlockSize)
	return (addr / blockSize) * blockSize
}

// blockIndex computes the index into dataStore for a block.
func (c *FetchCache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// extractData reads a little-endian value of the given size.
func extractData(data []byte, offset uint32, size int) uint32 {
	var result uint32
	for i := 0; i < size && i < 4; i++ {
		idx := int(offset) + i
		if idx >= len(data) {
			break
		}
		result |= uint32(data[idx]) << (i * 8)
	}
	return result
}
