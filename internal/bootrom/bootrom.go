// Package bootrom holds the optional 256-byte DMG boot ROM overlay.
package bootrom

import "fmt"

const size = 0x100

// Bootrom optionally overlays 0x0000-0x00FF until the host disables it by
// writing a nonzero value to 0xFF50. A Bootrom value with no buffer (the
// zero value) behaves as "no boot ROM": ReadB returns 0xFF and IsUsed is
// false.
type Bootrom struct {
	buf []byte
}

// New validates and wraps a boot ROM image. Passing nil data is valid and
// yields a Bootrom that reports IsUsed() == false.
func New(data []byte) (*Bootrom, error) {
	if data == nil {
		return &Bootrom{}, nil
	}
	if len(data) != size {
		return nil, fmt.Errorf("bootrom: image is %d bytes, want %d", len(data), size)
	}
	buf := make([]byte, size)
	copy(buf, data)
	return &Bootrom{buf: buf}, nil
}

// ReadB returns the byte at addr, or 0xFF if no boot ROM is loaded.
func (b *Bootrom) ReadB(addr uint16) byte {
	if b.buf == nil {
		return 0xFF
	}
	return b.buf[addr&0xFF]
}

// IsUsed distinguishes "a boot ROM was provided" from "skip boot": when
// false, the caller is expected to seed CPU/bus state with the standard
// post-boot defaults instead of running the overlay from 0x0000.
func (b *Bootrom) IsUsed() bool {
	return b.buf != nil
}
