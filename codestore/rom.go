// Package codestore provides the read-only code stores instructions are
// fetched from: a flat ROM image and a set-associative fetch cache built on
// Akita cache components.
package codestore

// ROM is a read-only byte image placed at a base address. Reads outside the
// image return 0.
type ROM struct {
	base uint32
	data []byte
}

// NewROM creates a ROM holding data at base. The slice is copied.
func NewROM(base uint32, data []byte) *ROM {
	r := &ROM{base: base}
	if len(data) > 0 {
		r.data = append([]byte(nil), data...)
	}
	return r
}

// Base returns the address of the first byte.
func (r *ROM) Base() uint32 {
	return r.base
}

// Size returns the image size in bytes.
func (r *ROM) Size() int {
	return len(r.data)
}

// Contains reports whether addr lies inside the image.
func (r *ROM) Contains(addr uint32) bool {
	return addr >= r.base && uint64(addr-r.base) < uint64(len(r.data))
}

// Read8 reads a single byte.
func (r *ROM) Read8(addr uint32) uint8 {
	if !r.Contains(addr) {
		return 0
	}
	return r.data[addr-r.base]
}

// Load copies data to addr, growing the image to cover it. Gaps between
// segments are zero-filled.
func (r *ROM) Load(addr uint32, data []byte) {
	if len(data) == 0 {
		return
	}

	if len(r.data) == 0 {
		r.base = addr
		r.data = append([]byte(nil), data...)
		return
	}

	start := min(uint64(r.base), uint64(addr))
	end := max(uint64(r.base)+uint64(len(r.data)), uint64(addr)+uint64(len(data)))

	if start != uint64(r.base) || end != uint64(r.base)+uint64(len(r.data)) {
		grown := make([]byte, end-start)
		copy(grown[uint64(r.base)-start:], r.data)
		r.data = grown
		r.base = uint32(start)
	}

	copy(r.data[uint64(addr)-uint64(r.base):], data)
}
